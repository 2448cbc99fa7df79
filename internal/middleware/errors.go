package middleware

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/smartwill/lastwill/internal/apperr"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// statusOf reports the HTTP status err is answered with.
func statusOf(err error) int {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return apperr.Status(err)
}

// ErrorHandler renders failures as JSON. Domain errors carry their stable
// code and the status apperr.Status assigns; fiber errors keep theirs.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(errorResponse{Error: http.StatusText(fe.Code), Message: fe.Message})
	}
	status := apperr.Status(err)
	code := apperr.CodeOf(err)
	msg := err.Error()
	if code == "" {
		code = "Internal"
		msg = http.StatusText(http.StatusInternalServerError)
	}
	return c.Status(status).JSON(errorResponse{Error: code, Message: msg})
}
