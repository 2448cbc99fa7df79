package middleware

import (
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/fiber/v2"

	"github.com/smartwill/lastwill/internal/apperr"
)

// Audit logs one structured line per request. Authenticated requests carry
// the caller address, and failures carry the error code clients receive.
func Audit(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		attrs := []any{
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Int("status", c.Response().StatusCode()),
			slog.Duration("duration", time.Since(start)),
		}
		if id := RequestIDFrom(c); id != "" {
			attrs = append(attrs, slog.String("request_id", id))
		}
		if caller, ok := c.Locals(callerKey).(common.Address); ok {
			attrs = append(attrs, slog.String("caller", caller.Hex()))
		}
		if key := c.Get(idempotencyKeyHeader); key != "" {
			attrs = append(attrs, slog.String("idempotency_key", key))
		}
		if err != nil {
			status := statusOf(err)
			attrs[2] = slog.Int("status", status)
			if code := apperr.CodeOf(err); code != "" {
				attrs = append(attrs, slog.String("code", code))
			}
			attrs = append(attrs, slog.Any("error", err))
			if status >= fiber.StatusInternalServerError {
				logger.Error("request failed", attrs...)
			} else {
				logger.Warn("request rejected", attrs...)
			}
			return err
		}

		logger.Info("request completed", attrs...)
		return nil
	}
}
