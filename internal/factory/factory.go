// Package factory creates wills, one per testator, and wires each new will
// into the registry and the escrow. It also owns the asset whitelist and the
// index of wills per heir.
package factory

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/smartwill/lastwill/internal/apperr"
	"github.com/smartwill/lastwill/internal/store"
)

// Initializer binds a freshly allocated will to its testator.
type Initializer interface {
	Initialize(ctx context.Context, tx store.Tx, caller, will, testator common.Address, dueDate int64) error
}

// Registry is the index of authentic wills.
type Registry interface {
	Settings(ctx context.Context, tx store.Tx) (store.Contract, error)
	RegisterWill(ctx context.Context, tx store.Tx, caller, will common.Address) error
}

// Escrow is the custody ledger new wills are authorized with.
type Escrow interface {
	Settings(ctx context.Context, tx store.Tx) (store.Contract, error)
	Authorize(ctx context.Context, tx store.Tx, caller, target common.Address) error
	RegisterWill(ctx context.Context, tx store.Tx, caller, will common.Address) error
}

// Factory creates wills. It embeds the Index, so whitelist and heir index
// operations are available on it directly.
type Factory struct {
	*Index
	wills    Initializer
	registry Registry
	escrow   Escrow
}

// New constructs the factory.
func New(index *Index, wills Initializer, registry Registry, escrow Escrow) *Factory {
	return &Factory{Index: index, wills: wills, registry: registry, escrow: escrow}
}

// Settings returns the factory's address and owner.
func (f *Factory) Settings(ctx context.Context, tx store.Tx) (store.Contract, error) {
	return contract(ctx, tx)
}

// CreateLastWill allocates, initializes and registers the caller's will and
// returns its address. A testator can create a single will.
func (f *Factory) CreateLastWill(ctx context.Context, tx store.Tx, caller common.Address, dueDate int64) (common.Address, error) {
	if caller == (common.Address{}) {
		return common.Address{}, apperr.ErrInvalidAddress
	}
	if _, exists, err := tx.WillByTestator(ctx, caller); err != nil {
		return common.Address{}, err
	} else if exists {
		return common.Address{}, apperr.ErrWillAlreadyExists
	}
	if dueDate <= f.clock.Now().Unix() {
		return common.Address{}, apperr.ErrInvalidDueDate
	}

	c, err := contract(ctx, tx)
	if err != nil {
		return common.Address{}, err
	}
	escrowSettings, err := f.escrow.Settings(ctx, tx)
	if err != nil {
		return common.Address{}, err
	}
	registrySettings, err := f.registry.Settings(ctx, tx)
	if err != nil {
		return common.Address{}, err
	}

	address := crypto.CreateAddress(c.Address, c.Nonce)
	c.Nonce++
	if err := tx.PutContract(ctx, c); err != nil {
		return common.Address{}, err
	}
	err = tx.PutWill(ctx, store.WillRecord{
		Address:   address,
		Factory:   c.Address,
		Escrow:    escrowSettings.Address,
		Registry:  registrySettings.Address,
		CreatedAt: f.clock.Now().UTC(),
	})
	if err != nil {
		return common.Address{}, err
	}

	if err := f.wills.Initialize(ctx, tx, c.Address, address, caller, dueDate); err != nil {
		return common.Address{}, err
	}
	if err := f.registry.RegisterWill(ctx, tx, c.Address, address); err != nil {
		return common.Address{}, err
	}
	if err := f.escrow.Authorize(ctx, tx, c.Address, address); err != nil {
		return common.Address{}, err
	}
	if err := f.escrow.RegisterWill(ctx, tx, c.Address, address); err != nil {
		return common.Address{}, err
	}
	if err := tx.PutTestatorWill(ctx, caller, address); err != nil {
		return common.Address{}, err
	}
	return address, nil
}

// GetCreatedWill returns the testator's will, or the zero address.
func (f *Factory) GetCreatedWill(ctx context.Context, tx store.Tx, testator common.Address) (common.Address, error) {
	address, _, err := tx.WillByTestator(ctx, testator)
	return address, err
}
