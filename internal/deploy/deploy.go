// Package deploy assembles the components of the system and records the
// singleton contracts (bank, escrow, registry, factory) in the store.
package deploy

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/smartwill/lastwill/internal/apperr"
	"github.com/smartwill/lastwill/internal/asset"
	"github.com/smartwill/lastwill/internal/clock"
	"github.com/smartwill/lastwill/internal/escrow"
	"github.com/smartwill/lastwill/internal/factory"
	"github.com/smartwill/lastwill/internal/registry"
	"github.com/smartwill/lastwill/internal/store"
	"github.com/smartwill/lastwill/internal/will"
)

// System holds one instance of every component, wired together.
type System struct {
	Clock    clock.Clock
	Bank     *asset.Bank
	Escrow   *escrow.Escrow
	Registry *registry.Registry
	Index    *factory.Index
	Wills    *will.Records
	Factory  *factory.Factory
}

// NewSystem wires the components. Collaborators are injected once here.
func NewSystem(clk clock.Clock) *System {
	if clk == nil {
		clk = clock.System{}
	}
	bank := asset.NewBank()
	esc := escrow.New(bank)
	reg := registry.New()
	index := factory.NewIndex(reg, esc, bank, clk)
	wills := will.New(esc, bank, index, clk)
	return &System{
		Clock:    clk,
		Bank:     bank,
		Escrow:   esc,
		Registry: reg,
		Index:    index,
		Wills:    wills,
		Factory:  factory.New(index, wills, reg, esc),
	}
}

// Addresses are the singleton contract addresses of a deployment.
type Addresses struct {
	Admin    common.Address
	Bank     common.Address
	Escrow   common.Address
	Registry common.Address
	Factory  common.Address
}

// Derive computes the deterministic singleton addresses for admin.
func Derive(admin common.Address) Addresses {
	return Addresses{
		Admin:    admin,
		Bank:     crypto.CreateAddress(admin, 0),
		Escrow:   crypto.CreateAddress(admin, 1),
		Registry: crypto.CreateAddress(admin, 2),
		Factory:  crypto.CreateAddress(admin, 3),
	}
}

// Bootstrap records the singleton contracts owned by admin and points the
// escrow and registry at the factory. Running it again against a deployed
// store changes nothing.
func Bootstrap(ctx context.Context, s store.Store, sys *System, admin common.Address) (Addresses, error) {
	if admin == (common.Address{}) {
		return Addresses{}, apperr.ErrInvalidAddress
	}
	addrs := Derive(admin)
	err := s.Update(ctx, func(tx store.Tx) error {
		existing, ok, err := tx.Contract(ctx, store.ContractFactory)
		if err != nil {
			return err
		}
		if ok {
			addrs = Addresses{Admin: existing.Owner, Factory: existing.Address}
			return loadExisting(ctx, tx, &addrs)
		}

		for _, c := range []store.Contract{
			{Name: store.ContractBank, Address: addrs.Bank, Owner: admin},
			{Name: store.ContractEscrow, Address: addrs.Escrow, Owner: admin},
			{Name: store.ContractRegistry, Address: addrs.Registry, Owner: admin},
			{Name: store.ContractFactory, Address: addrs.Factory, Owner: admin},
		} {
			if err := tx.PutContract(ctx, c); err != nil {
				return fmt.Errorf("record %s: %w", c.Name, err)
			}
		}
		if err := sys.Escrow.SetFactory(ctx, tx, admin, addrs.Factory); err != nil {
			return fmt.Errorf("escrow set factory: %w", err)
		}
		if err := sys.Registry.SetFactory(ctx, tx, admin, addrs.Factory); err != nil {
			return fmt.Errorf("registry set factory: %w", err)
		}
		return nil
	})
	if err != nil {
		return Addresses{}, err
	}
	return addrs, nil
}

func loadExisting(ctx context.Context, tx store.Tx, addrs *Addresses) error {
	for name, dst := range map[string]*common.Address{
		store.ContractBank:     &addrs.Bank,
		store.ContractEscrow:   &addrs.Escrow,
		store.ContractRegistry: &addrs.Registry,
	} {
		c, ok, err := tx.Contract(ctx, name)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%s missing from partial deployment: %w", name, apperr.ErrNotDeployed)
		}
		*dst = c.Address
	}
	return nil
}
