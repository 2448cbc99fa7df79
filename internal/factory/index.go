package factory

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/smartwill/lastwill/internal/apperr"
	"github.com/smartwill/lastwill/internal/asset"
	"github.com/smartwill/lastwill/internal/clock"
	"github.com/smartwill/lastwill/internal/events"
	"github.com/smartwill/lastwill/internal/store"
)

// Recognizer reports whether an address is a will known to a component.
type Recognizer interface {
	IsRegistered(ctx context.Context, tx store.Tx, will common.Address) (bool, error)
}

// Metadata resolves the display precision of an asset.
type Metadata interface {
	Decimals(ctx context.Context, tx store.Tx, asset common.Address) (uint8, error)
}

// Index owns the factory's asset whitelist and the heir to wills reverse
// index. Wills consult and update it while the testator edits heirs.
type Index struct {
	registry Recognizer
	escrow   Recognizer
	assets   Metadata
	clock    clock.Clock
}

// NewIndex constructs the whitelist and heir index.
func NewIndex(registry, escrow Recognizer, assets Metadata, clk clock.Clock) *Index {
	if clk == nil {
		clk = clock.System{}
	}
	return &Index{registry: registry, escrow: escrow, assets: assets, clock: clk}
}

func contract(ctx context.Context, tx store.Tx) (store.Contract, error) {
	c, ok, err := tx.Contract(ctx, store.ContractFactory)
	if err != nil {
		return store.Contract{}, err
	}
	if !ok {
		return store.Contract{}, apperr.ErrNotDeployed
	}
	return c, nil
}

// AddTokenToWhiteList permits asset in new allocations. Owner only.
func (x *Index) AddTokenToWhiteList(ctx context.Context, tx store.Tx, caller, a common.Address) error {
	c, err := contract(ctx, tx)
	if err != nil {
		return err
	}
	if caller != c.Owner {
		return apperr.ErrNotOwner
	}
	if a == asset.Native {
		return apperr.ErrInvalidAddress
	}
	entry, _, err := tx.WhitelistEntry(ctx, a)
	if err != nil {
		return err
	}
	if entry.Allowed {
		return apperr.ErrTokenAlreadyWhitelisted
	}
	decimals, err := x.assets.Decimals(ctx, tx, a)
	if err != nil {
		return fmt.Errorf("%s: %w", a.Hex(), err)
	}
	entry = store.WhitelistEntry{Asset: a, Allowed: true, Decimals: decimals}
	if err := tx.PutWhitelistEntry(ctx, entry); err != nil {
		return err
	}
	return events.Append(ctx, tx, events.KindTokenWhitelisted, c.Address,
		events.TokenWhitelisted{Asset: a, Decimals: decimals}, x.clock.Now())
}

// RemoveTokenFromWhiteList stops asset from being used in new allocations.
// Existing deposits of it stay valid. Owner only.
func (x *Index) RemoveTokenFromWhiteList(ctx context.Context, tx store.Tx, caller, a common.Address) error {
	c, err := contract(ctx, tx)
	if err != nil {
		return err
	}
	if caller != c.Owner {
		return apperr.ErrNotOwner
	}
	entry, _, err := tx.WhitelistEntry(ctx, a)
	if err != nil {
		return err
	}
	if !entry.Allowed {
		return apperr.ErrTokenNotWhitelisted
	}
	entry.Allowed = false
	if err := tx.PutWhitelistEntry(ctx, entry); err != nil {
		return err
	}
	return events.Append(ctx, tx, events.KindTokenRemovedFromWhitelist, c.Address,
		events.TokenRemovedFromWhitelist{Asset: a}, x.clock.Now())
}

// TokenWhiteList returns the whitelist entry of asset; unknown assets yield
// a zero entry.
func (x *Index) TokenWhiteList(ctx context.Context, tx store.Tx, a common.Address) (store.WhitelistEntry, error) {
	entry, ok, err := tx.WhitelistEntry(ctx, a)
	if err != nil {
		return store.WhitelistEntry{}, err
	}
	if !ok {
		return store.WhitelistEntry{Asset: a}, nil
	}
	return entry, nil
}

// GetWhiteListedTokens returns the currently allowed assets in the order
// they were first whitelisted, with their parallel entries.
func (x *Index) GetWhiteListedTokens(ctx context.Context, tx store.Tx) ([]common.Address, []store.WhitelistEntry, error) {
	all, err := tx.Whitelist(ctx)
	if err != nil {
		return nil, nil, err
	}
	var (
		assets  []common.Address
		entries []store.WhitelistEntry
	)
	for _, e := range all {
		if !e.Allowed {
			continue
		}
		assets = append(assets, e.Asset)
		entries = append(entries, e)
	}
	return assets, entries, nil
}

// recognized enforces that caller is a will known to both the registry and
// the escrow.
func (x *Index) recognized(ctx context.Context, tx store.Tx, caller common.Address) error {
	inRegistry, err := x.registry.IsRegistered(ctx, tx, caller)
	if err != nil {
		return err
	}
	inEscrow, err := x.escrow.IsRegistered(ctx, tx, caller)
	if err != nil {
		return err
	}
	if !inRegistry || !inEscrow {
		return apperr.ErrUnauthorizedCaller
	}
	return nil
}

// AddInheritance records that the calling will names heir.
func (x *Index) AddInheritance(ctx context.Context, tx store.Tx, caller, heir common.Address) error {
	if err := x.recognized(ctx, tx, caller); err != nil {
		return err
	}
	if heir == (common.Address{}) {
		return apperr.ErrInvalidAddress
	}
	return tx.AddInheritance(ctx, heir, caller)
}

// RemoveInheritance drops the calling will from heir's index.
func (x *Index) RemoveInheritance(ctx context.Context, tx store.Tx, caller, heir common.Address) error {
	if err := x.recognized(ctx, tx, caller); err != nil {
		return err
	}
	return tx.RemoveInheritance(ctx, heir, caller)
}

// GetInheritedWills lists the wills naming heir, oldest first.
func (x *Index) GetInheritedWills(ctx context.Context, tx store.Tx, heir common.Address) ([]common.Address, error) {
	return tx.InheritedWills(ctx, heir)
}
