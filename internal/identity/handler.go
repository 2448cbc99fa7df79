package identity

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/smartwill/lastwill/internal/asset"
)

// Handler exposes the challenge endpoint.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type challengeRequest struct {
	Address string `json:"address"`
}

type challengeResponse struct {
	Address   string `json:"address"`
	Nonce     string `json:"nonce"`
	Message   string `json:"message"`
	ExpiresAt string `json:"expires_at"`
}

// Challenge issues the message the wallet must sign to log in.
func (h *Handler) Challenge(c *fiber.Ctx) error {
	var req challengeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	address, err := asset.ParseAddress(req.Address)
	if err != nil {
		return err
	}
	ch, err := h.svc.Issue(c.UserContext(), address)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(challengeResponse{
		Address:   ch.Address.Hex(),
		Nonce:     ch.Nonce,
		Message:   ch.Message,
		ExpiresAt: ch.ExpiresAt.Format(time.RFC3339),
	})
}
