package escrow

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/smartwill/lastwill/internal/asset"
	"github.com/smartwill/lastwill/internal/middleware"
)

// Handler exposes escrow HTTP endpoints.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterReads(r fiber.Router) {
	r.Get("/escrow", h.Settings)
	r.Get("/escrow/wills/:will", h.Status)
	r.Get("/escrow/wills/:will/native", h.NativeBalance)
	r.Get("/escrow/wills/:will/balances/:asset", h.TokenBalance)
}

func (h *Handler) RegisterWrites(r fiber.Router) {
	r.Put("/escrow/owner", h.TransferOwnership)
}

type ownershipRequest struct {
	NewOwner string `json:"new_owner"`
}

func (h *Handler) Settings(c *fiber.Ctx) error {
	s, err := h.service.Settings(c.UserContext())
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"address": s.Address.Hex(),
		"owner":   s.Owner.Hex(),
		"factory": s.Factory.Hex(),
	})
}

func (h *Handler) Status(c *fiber.Ctx) error {
	will, err := asset.ParseAddress(c.Params("will"))
	if err != nil {
		return err
	}
	authorized, registered, err := h.service.Status(c.UserContext(), will)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"will": will.Hex(), "authorized": authorized, "registered": registered})
}

func (h *Handler) TokenBalance(c *fiber.Ctx) error {
	will, err := asset.ParseAddress(c.Params("will"))
	if err != nil {
		return err
	}
	a, err := asset.ParseAddress(c.Params("asset"))
	if err != nil {
		return err
	}
	acc, err := h.service.TokenBalance(c.UserContext(), will, a)
	if err != nil {
		return err
	}
	amount := "0"
	if acc.Amount != nil {
		amount = acc.Amount.Dec()
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"will":   will.Hex(),
		"asset":  a.Hex(),
		"owner":  acc.Owner.Hex(),
		"amount": amount,
	})
}

func (h *Handler) NativeBalance(c *fiber.Ctx) error {
	will, err := asset.ParseAddress(c.Params("will"))
	if err != nil {
		return err
	}
	v, err := h.service.NativeBalance(c.UserContext(), will)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"will": will.Hex(), "amount": v.Dec()})
}

// TransferOwnership hands the escrow administrator capability to another
// address. Owner only.
func (h *Handler) TransferOwnership(c *fiber.Ctx) error {
	var req ownershipRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	newOwner, err := asset.ParseAddress(req.NewOwner)
	if err != nil {
		return err
	}
	if err := h.service.TransferOwnership(c.UserContext(), middleware.Caller(c), newOwner); err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"owner": newOwner.Hex()})
}
