package will

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/smartwill/lastwill/internal/asset"
	"github.com/smartwill/lastwill/internal/middleware"
)

// Handler exposes will HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a will HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterReads mounts the public accessors.
func (h *Handler) RegisterReads(r fiber.Router) {
	r.Get("/wills/:will", h.Get)
	r.Get("/wills/:will/heirs", h.Heirs)
	r.Get("/wills/:will/heirs/:heir", h.Heir)
	r.Get("/wills/:will/totals", h.Totals)
}

// RegisterWrites mounts the mutations. r must authenticate the caller.
func (h *Handler) RegisterWrites(r fiber.Router) {
	r.Put("/wills/:will/due-date", h.UpdateDueDate)
	r.Post("/wills/:will/heirs", h.AddHeir)
	r.Delete("/wills/:will/heirs/:heir", h.RemoveHeir)
	r.Post("/wills/:will/heirs/:heir/execute", h.Execute)
}

// Get returns the will.
func (h *Handler) Get(c *fiber.Ctx) error {
	address, err := asset.ParseAddress(c.Params("will"))
	if err != nil {
		return err
	}
	rec, err := h.service.Get(c.UserContext(), address)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(toWillResponse(rec))
}

// Heirs lists the will's heirs in insertion order.
func (h *Handler) Heirs(c *fiber.Ctx) error {
	address, err := asset.ParseAddress(c.Params("will"))
	if err != nil {
		return err
	}
	heirs, err := h.service.Heirs(c.UserContext(), address)
	if err != nil {
		return err
	}
	out := make([]HeirResponse, len(heirs))
	for i, heir := range heirs {
		out[i] = toHeirResponse(heir)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"heirs": out})
}

// Heir returns one allocation with the will's due date.
func (h *Handler) Heir(c *fiber.Ctx) error {
	address, err := asset.ParseAddress(c.Params("will"))
	if err != nil {
		return err
	}
	wallet, err := asset.ParseAddress(c.Params("heir"))
	if err != nil {
		return err
	}
	hv, err := h.service.Heir(c.UserContext(), address, wallet)
	if err != nil {
		return err
	}
	resp := toHeirResponse(hv.Allocation)
	resp.DueDate = hv.DueDate
	return c.Status(http.StatusOK).JSON(resp)
}

// Totals reports the will's escrowed assets.
func (h *Handler) Totals(c *fiber.Ctx) error {
	address, err := asset.ParseAddress(c.Params("will"))
	if err != nil {
		return err
	}
	t, err := h.service.Totals(c.UserContext(), address)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(TotalsResponse{
		Tokens:  asset.FormatAddresses(t.Assets),
		Amounts: asset.FormatAmounts(t.Amounts),
		Native:  t.Native.Dec(),
	})
}

// UpdateDueDate moves the due date. Testator only.
func (h *Handler) UpdateDueDate(c *fiber.Ctx) error {
	address, err := asset.ParseAddress(c.Params("will"))
	if err != nil {
		return err
	}
	var req DueDateRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := h.service.UpdateDueDate(c.UserContext(), middleware.Caller(c), address, req.DueDate); err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"will": address.Hex(), "due_date": req.DueDate})
}

// AddHeir deposits and records an allocation. Testator only.
func (h *Handler) AddHeir(c *fiber.Ctx) error {
	address, err := asset.ParseAddress(c.Params("will"))
	if err != nil {
		return err
	}
	var req AddHeirRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	wallet, err := asset.ParseAddress(req.Wallet)
	if err != nil {
		return err
	}
	tokens, err := asset.ParseAddresses(req.Tokens)
	if err != nil {
		return err
	}
	amounts, err := asset.ParseAmounts(req.Amounts)
	if err != nil {
		return err
	}
	value, err := asset.ParseAmount(req.Value)
	if err != nil {
		return err
	}
	err = h.service.AddHeir(c.UserContext(), AddHeirInput{
		Caller:  middleware.Caller(c),
		Will:    address,
		Wallet:  wallet,
		Tokens:  tokens,
		Amounts: amounts,
		Value:   value,
	})
	if err != nil {
		return err
	}
	hv, err := h.service.Heir(c.UserContext(), address, wallet)
	if err != nil {
		return err
	}
	resp := toHeirResponse(hv.Allocation)
	resp.DueDate = hv.DueDate
	return c.Status(http.StatusCreated).JSON(resp)
}

// RemoveHeir withdraws an allocation and refunds the testator.
func (h *Handler) RemoveHeir(c *fiber.Ctx) error {
	address, err := asset.ParseAddress(c.Params("will"))
	if err != nil {
		return err
	}
	wallet, err := asset.ParseAddress(c.Params("heir"))
	if err != nil {
		return err
	}
	if err := h.service.RemoveHeir(c.UserContext(), middleware.Caller(c), address, wallet); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// Execute releases an heir's allocation once the will is due.
func (h *Handler) Execute(c *fiber.Ctx) error {
	address, err := asset.ParseAddress(c.Params("will"))
	if err != nil {
		return err
	}
	wallet, err := asset.ParseAddress(c.Params("heir"))
	if err != nil {
		return err
	}
	if err := h.service.Execute(c.UserContext(), middleware.Caller(c), address, wallet); err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"will": address.Hex(), "heir": wallet.Hex(), "executed": true})
}
