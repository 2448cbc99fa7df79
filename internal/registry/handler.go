package registry

import (
	"context"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/fiber/v2"

	"github.com/smartwill/lastwill/internal/asset"
	"github.com/smartwill/lastwill/internal/store"
)

// Handler answers authenticity queries.
type Handler struct {
	store    store.Store
	registry *Registry
}

func NewHandler(s store.Store, r *Registry) *Handler {
	return &Handler{store: s, registry: r}
}

func (h *Handler) RegisterReads(r fiber.Router) {
	r.Get("/registry/wills/:will", h.IsRegistered)
}

func (h *Handler) lookup(ctx context.Context, will common.Address) (bool, error) {
	var ok bool
	err := h.store.View(ctx, func(tx store.Tx) error {
		var err error
		ok, err = h.registry.IsRegistered(ctx, tx, will)
		return err
	})
	return ok, err
}

// IsRegistered reports whether the address is a will created by the factory.
func (h *Handler) IsRegistered(c *fiber.Ctx) error {
	will, err := asset.ParseAddress(c.Params("will"))
	if err != nil {
		return err
	}
	ok, err := h.lookup(c.UserContext(), will)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"will": will.Hex(), "registered": ok})
}
