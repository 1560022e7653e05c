package middleware

import (
	"crypto/subtle"

	"cargohold-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

const actorLocal = "actor"

// RequireAPIKey guards the ledger API. Callers are internal platform
// services and admin tooling, identified by a shared key plus an actor
// header recorded on every ledger entry they produce.
func RequireAPIKey(apiKey string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if apiKey == "" {
			return response.Error(c, "API key not configured", fiber.StatusInternalServerError, nil)
		}
		provided := c.Get("X-Api-Key")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
			return response.Unauthorized(c, "Unauthorized")
		}

		actor := c.Get("X-Actor")
		if actor == "" {
			actor = "api"
		}
		c.Locals(actorLocal, actor)
		return c.Next()
	}
}

// GetActor returns the caller identity recorded by RequireAPIKey.
func GetActor(c *fiber.Ctx) string {
	if a, ok := c.Locals(actorLocal).(string); ok {
		return a
	}
	return ""
}
