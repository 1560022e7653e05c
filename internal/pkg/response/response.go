// Package response renders the JSON envelope every API endpoint speaks.
// Success payloads carry data plus optional metadata (ledger listing counts,
// reconciliation summaries); failures nest a message and status code under a
// single error object so clients branch on one shape.
package response

import (
	"github.com/gofiber/fiber/v2"
)

// Envelope is the success shape.
type Envelope struct {
	Status   string      `json:"status"`
	Message  string      `json:"message"`
	Data     interface{} `json:"data"`
	Metadata interface{} `json:"metadata,omitempty"`
}

// ErrorEnvelope is the failure shape.
type ErrorEnvelope struct {
	Status string      `json:"status"`
	Error  ErrorDetail `json:"error"`
}

// ErrorDetail nests the message, the HTTP status code and any field-level
// details.
type ErrorDetail struct {
	Message    string      `json:"message"`
	StatusCode int         `json:"statusCode"`
	Details    interface{} `json:"details,omitempty"`
}

func send(c *fiber.Ctx, code int, message string, data, metadata interface{}) error {
	if metadata == nil {
		metadata = fiber.Map{}
	}
	return c.Status(code).JSON(Envelope{
		Status:   "success",
		Message:  message,
		Data:     data,
		Metadata: metadata,
	})
}

// Success answers 200 with the standard envelope.
func Success(c *fiber.Ctx, message string, data, metadata interface{}) error {
	return send(c, fiber.StatusOK, message, data, metadata)
}

// SuccessCreated answers 201. Used by the append endpoints (movements,
// reservations) whose success writes a new ledger entry or hold.
func SuccessCreated(c *fiber.Ctx, message string, data, metadata interface{}) error {
	return send(c, fiber.StatusCreated, message, data, metadata)
}

// Error answers with the nested error shape. Handlers and the global error
// handler both route through here so every failure looks the same.
func Error(c *fiber.Ctx, message string, statusCode int, details interface{}) error {
	if details == nil {
		details = fiber.Map{}
	}
	return c.Status(statusCode).JSON(ErrorEnvelope{
		Status: "error",
		Error: ErrorDetail{
			Message:    message,
			StatusCode: statusCode,
			Details:    details,
		},
	})
}

// Unauthorized is the API key middleware's rejection, same shape as every
// other error.
func Unauthorized(c *fiber.Ctx, message string) error {
	return Error(c, message, fiber.StatusUnauthorized, nil)
}
