package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/smartwill/lastwill/internal/apperr"
	"github.com/smartwill/lastwill/internal/store"
)

var (
	admin   = common.HexToAddress("0x0000000000000000000000000000000000000001")
	factory = common.HexToAddress("0x0000000000000000000000000000000000000f01")
	will    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
)

func setup(t *testing.T) (*store.Memory, *Registry) {
	t.Helper()
	s := store.NewMemory()
	err := s.Update(context.Background(), func(tx store.Tx) error {
		return tx.PutContract(context.Background(), store.Contract{
			Name:    store.ContractRegistry,
			Address: common.HexToAddress("0x0000000000000000000000000000000000000e02"),
			Owner:   admin,
		})
	})
	if err != nil {
		t.Fatalf("seed registry: %v", err)
	}
	return s, New()
}

func TestRegisterWillRequiresFactory(t *testing.T) {
	s, r := setup(t)
	ctx := context.Background()

	err := s.Update(ctx, func(tx store.Tx) error {
		return r.RegisterWill(ctx, tx, factory, will)
	})
	if !errors.Is(err, apperr.ErrNotFactory) {
		t.Fatalf("expected NotFactory before factory is set, got %v", err)
	}

	err = s.Update(ctx, func(tx store.Tx) error {
		if err := r.SetFactory(ctx, tx, admin, factory); err != nil {
			return err
		}
		return r.RegisterWill(ctx, tx, factory, will)
	})
	if err != nil {
		t.Fatalf("register will: %v", err)
	}

	err = s.Update(ctx, func(tx store.Tx) error {
		return r.RegisterWill(ctx, tx, will, common.HexToAddress("0xbeef"))
	})
	if !errors.Is(err, apperr.ErrNotFactory) {
		t.Fatalf("expected NotFactory for a will caller, got %v", err)
	}

	_ = s.View(ctx, func(tx store.Tx) error {
		ok, _ := r.IsRegistered(ctx, tx, will)
		if !ok {
			t.Fatalf("expected will to be registered")
		}
		return nil
	})
}

func TestSetFactoryOwnerOnly(t *testing.T) {
	s, r := setup(t)
	ctx := context.Background()
	err := s.Update(ctx, func(tx store.Tx) error {
		return r.SetFactory(ctx, tx, will, factory)
	})
	if !errors.Is(err, apperr.ErrNotOwner) {
		t.Fatalf("expected NotOwner, got %v", err)
	}
}
