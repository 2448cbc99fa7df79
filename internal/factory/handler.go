package factory

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/fiber/v2"

	"github.com/smartwill/lastwill/internal/asset"
	"github.com/smartwill/lastwill/internal/middleware"
	"github.com/smartwill/lastwill/internal/store"
)

// Handler exposes factory HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a factory HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterReads mounts the public accessors.
func (h *Handler) RegisterReads(r fiber.Router) {
	r.Get("/testators/:testator/will", h.CreatedWill)
	r.Get("/heirs/:heir/wills", h.InheritedWills)
	r.Get("/whitelist", h.WhiteList)
	r.Get("/whitelist/:asset", h.WhiteListEntry)
}

// RegisterWrites mounts the mutations. r must authenticate the caller.
func (h *Handler) RegisterWrites(r fiber.Router) {
	r.Post("/wills", h.Create)
	r.Post("/whitelist", h.AddToWhiteList)
	r.Delete("/whitelist/:asset", h.RemoveFromWhiteList)
}

type createRequest struct {
	DueDate int64 `json:"due_date"`
}

type whitelistRequest struct {
	Asset string `json:"asset"`
}

type whitelistResponse struct {
	Asset    string `json:"asset"`
	Allowed  bool   `json:"allowed"`
	Decimals uint8  `json:"decimals"`
}

func toWhitelistResponse(e store.WhitelistEntry) whitelistResponse {
	return whitelistResponse{Asset: e.Asset.Hex(), Allowed: e.Allowed, Decimals: e.Decimals}
}

// Create creates the caller's will.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	caller := middleware.Caller(c)
	address, err := h.service.CreateLastWill(c.UserContext(), caller, req.DueDate)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"address":  address.Hex(),
		"testator": caller.Hex(),
		"due_date": req.DueDate,
	})
}

// CreatedWill returns the testator's will address, zero when none exists.
func (h *Handler) CreatedWill(c *fiber.Ctx) error {
	testator, err := asset.ParseAddress(c.Params("testator"))
	if err != nil {
		return err
	}
	address, err := h.service.CreatedWill(c.UserContext(), testator)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"testator": testator.Hex(),
		"will":     address.Hex(),
		"exists":   address != (common.Address{}),
	})
}

// InheritedWills lists the wills naming the heir.
func (h *Handler) InheritedWills(c *fiber.Ctx) error {
	heir, err := asset.ParseAddress(c.Params("heir"))
	if err != nil {
		return err
	}
	wills, err := h.service.InheritedWills(c.UserContext(), heir)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"heir": heir.Hex(), "wills": asset.FormatAddresses(wills)})
}

// WhiteList lists the allowed assets.
func (h *Handler) WhiteList(c *fiber.Ctx) error {
	entries, err := h.service.WhiteList(c.UserContext())
	if err != nil {
		return err
	}
	out := make([]whitelistResponse, len(entries))
	for i, e := range entries {
		out[i] = toWhitelistResponse(e)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"tokens": out})
}

// WhiteListEntry returns one asset's whitelist entry.
func (h *Handler) WhiteListEntry(c *fiber.Ctx) error {
	a, err := asset.ParseAddress(c.Params("asset"))
	if err != nil {
		return err
	}
	entry, err := h.service.WhiteListEntry(c.UserContext(), a)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(toWhitelistResponse(entry))
}

// AddToWhiteList permits an asset. Factory owner only.
func (h *Handler) AddToWhiteList(c *fiber.Ctx) error {
	var req whitelistRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	a, err := asset.ParseAddress(req.Asset)
	if err != nil {
		return err
	}
	if err := h.service.AddToWhiteList(c.UserContext(), middleware.Caller(c), a); err != nil {
		return err
	}
	entry, err := h.service.WhiteListEntry(c.UserContext(), a)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(toWhitelistResponse(entry))
}

// RemoveFromWhiteList revokes an asset. Factory owner only.
func (h *Handler) RemoveFromWhiteList(c *fiber.Ctx) error {
	a, err := asset.ParseAddress(c.Params("asset"))
	if err != nil {
		return err
	}
	if err := h.service.RemoveFromWhiteList(c.UserContext(), middleware.Caller(c), a); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}
