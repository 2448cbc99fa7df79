package auth

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/smartwill/lastwill/internal/asset"
	"github.com/smartwill/lastwill/internal/identity"
)

// Handler exchanges a signed challenge for an access token.
type Handler struct {
	ids *identity.Service
	svc *Service
}

func NewHandler(ids *identity.Service, svc *Service) *Handler {
	return &Handler{ids: ids, svc: svc}
}

type loginRequest struct {
	Address   string `json:"address"`
	Signature string `json:"signature"`
}

type loginResponse struct {
	Address string `json:"address"`
	Token
}

// Login verifies the signature over the outstanding challenge and returns
// an access token for the address.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	address, err := asset.ParseAddress(req.Address)
	if err != nil {
		return err
	}
	if err := h.ids.Verify(c.UserContext(), address, req.Signature); err != nil {
		return fiber.NewError(http.StatusUnauthorized, err.Error())
	}
	token, err := h.svc.Issue(address)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(loginResponse{Address: address.Hex(), Token: token})
}
