// Package registry keeps the flat index of authentic wills.
package registry

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/smartwill/lastwill/internal/apperr"
	"github.com/smartwill/lastwill/internal/store"
)

// Registry records which addresses are wills created by the factory.
type Registry struct{}

// New constructs a registry.
func New() *Registry {
	return &Registry{}
}

func (r *Registry) contract(ctx context.Context, tx store.Tx) (store.Contract, error) {
	c, ok, err := tx.Contract(ctx, store.ContractRegistry)
	if err != nil {
		return store.Contract{}, err
	}
	if !ok {
		return store.Contract{}, apperr.ErrNotDeployed
	}
	return c, nil
}

// Settings returns the registry's address, owner and factory.
func (r *Registry) Settings(ctx context.Context, tx store.Tx) (store.Contract, error) {
	return r.contract(ctx, tx)
}

// SetFactory designates the only address allowed to register wills.
func (r *Registry) SetFactory(ctx context.Context, tx store.Tx, caller, factory common.Address) error {
	c, err := r.contract(ctx, tx)
	if err != nil {
		return err
	}
	if caller != c.Owner {
		return apperr.ErrNotOwner
	}
	if factory == (common.Address{}) {
		return apperr.ErrInvalidAddress
	}
	c.Factory = factory
	return tx.PutContract(ctx, c)
}

// RegisterWill adds will to the index.
func (r *Registry) RegisterWill(ctx context.Context, tx store.Tx, caller, will common.Address) error {
	c, err := r.contract(ctx, tx)
	if err != nil {
		return err
	}
	if c.Factory == (common.Address{}) || caller != c.Factory {
		return apperr.ErrNotFactory
	}
	if will == (common.Address{}) {
		return apperr.ErrInvalidAddress
	}
	return tx.PutRegisteredWill(ctx, will)
}

// IsRegistered reports whether will was registered by the factory.
func (r *Registry) IsRegistered(ctx context.Context, tx store.Tx, will common.Address) (bool, error) {
	return tx.IsRegisteredWill(ctx, will)
}
