package middleware

import (
	"cargohold-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// ResponseFormatter injects standardized success/error helpers into Locals
// so handlers can use them. Actual helpers are in internal/pkg/response.
func ResponseFormatter() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals("response_success", func(msg string, data interface{}, meta interface{}) error {
			return response.Success(c, msg, data, meta)
		})
		c.Locals("response_error", func(msg string, code int, details interface{}) error {
			return response.Error(c, msg, code, details)
		})
		return c.Next()
	}
}
