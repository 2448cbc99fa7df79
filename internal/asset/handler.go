package asset

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/smartwill/lastwill/internal/middleware"
)

// Handler exposes bank HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a bank HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterReads mounts the public accessors.
func (h *Handler) RegisterReads(r fiber.Router) {
	r.Get("/assets/:asset", h.Token)
	r.Get("/assets/:asset/balances/:holder", h.Balance)
	r.Get("/assets/:asset/allowances/:owner/:spender", h.Allowance)
}

// RegisterWrites mounts the mutations. r must authenticate the caller.
func (h *Handler) RegisterWrites(r fiber.Router) {
	r.Post("/assets", h.RegisterToken)
	r.Post("/assets/:asset/mint", h.Mint)
	r.Post("/assets/:asset/approve", h.Approve)
	r.Post("/assets/:asset/transfer", h.Transfer)
}

type registerRequest struct {
	Asset    string `json:"asset"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

type movementRequest struct {
	To      string `json:"to"`
	Spender string `json:"spender"`
	Amount  string `json:"amount"`
}

type tokenResponse struct {
	Asset    string `json:"asset"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

// RegisterToken makes a token known to the bank. Bank owner only.
func (h *Handler) RegisterToken(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	a, err := ParseAddress(req.Asset)
	if err != nil {
		return err
	}
	if err := h.service.RegisterToken(c.UserContext(), middleware.Caller(c), a, req.Symbol, req.Decimals); err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(tokenResponse{Asset: a.Hex(), Symbol: req.Symbol, Decimals: req.Decimals})
}

// Token returns an asset's metadata.
func (h *Handler) Token(c *fiber.Ctx) error {
	a, err := ParseAddress(c.Params("asset"))
	if err != nil {
		return err
	}
	t, err := h.service.Token(c.UserContext(), a)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(tokenResponse{Asset: t.Asset.Hex(), Symbol: t.Symbol, Decimals: t.Decimals})
}

// Mint credits units to a holder. Bank owner only.
func (h *Handler) Mint(c *fiber.Ctx) error {
	a, err := ParseAddress(c.Params("asset"))
	if err != nil {
		return err
	}
	var req movementRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	to, err := ParseAddress(req.To)
	if err != nil {
		return err
	}
	amount, err := ParseAmount(req.Amount)
	if err != nil {
		return err
	}
	if err := h.service.Mint(c.UserContext(), middleware.Caller(c), a, to, amount); err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"asset": a.Hex(), "to": to.Hex(), "amount": amount.Dec()})
}

// Approve sets a spender's allowance over the caller's balance.
func (h *Handler) Approve(c *fiber.Ctx) error {
	a, err := ParseAddress(c.Params("asset"))
	if err != nil {
		return err
	}
	var req movementRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	spender, err := ParseAddress(req.Spender)
	if err != nil {
		return err
	}
	amount, err := ParseAmount(req.Amount)
	if err != nil {
		return err
	}
	if err := h.service.Approve(c.UserContext(), middleware.Caller(c), a, spender, amount); err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"asset": a.Hex(), "spender": spender.Hex(), "amount": amount.Dec()})
}

// Transfer moves the caller's units to another holder.
func (h *Handler) Transfer(c *fiber.Ctx) error {
	a, err := ParseAddress(c.Params("asset"))
	if err != nil {
		return err
	}
	var req movementRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	to, err := ParseAddress(req.To)
	if err != nil {
		return err
	}
	amount, err := ParseAmount(req.Amount)
	if err != nil {
		return err
	}
	if err := h.service.Transfer(c.UserContext(), middleware.Caller(c), a, to, amount); err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"asset": a.Hex(), "to": to.Hex(), "amount": amount.Dec()})
}

// Balance returns a holder's units of an asset.
func (h *Handler) Balance(c *fiber.Ctx) error {
	a, err := ParseAddress(c.Params("asset"))
	if err != nil {
		return err
	}
	holder, err := ParseAddress(c.Params("holder"))
	if err != nil {
		return err
	}
	balance, err := h.service.BalanceOf(c.UserContext(), holder, a)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"asset": a.Hex(), "holder": holder.Hex(), "balance": balance.Dec()})
}

// Allowance returns what a spender may still draw from an owner.
func (h *Handler) Allowance(c *fiber.Ctx) error {
	a, err := ParseAddress(c.Params("asset"))
	if err != nil {
		return err
	}
	owner, err := ParseAddress(c.Params("owner"))
	if err != nil {
		return err
	}
	spender, err := ParseAddress(c.Params("spender"))
	if err != nil {
		return err
	}
	allowance, err := h.service.Allowance(c.UserContext(), owner, spender, a)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"asset": a.Hex(), "owner": owner.Hex(), "spender": spender.Hex(), "allowance": allowance.Dec(),
	})
}
