package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/smartwill/lastwill/internal/auth"
	"github.com/smartwill/lastwill/internal/identity"
)

// RegisterAuthRoutes wires the wallet sign-in endpoints.
func RegisterAuthRoutes(r fiber.Router, ids *identity.Handler, h *auth.Handler, limiter fiber.Handler) {
	r.Post("/auth/challenge", limiter, ids.Challenge)
	r.Post("/auth/login", limiter, h.Login)
}
