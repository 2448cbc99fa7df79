package asset

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/smartwill/lastwill/internal/apperr"
	"github.com/smartwill/lastwill/internal/store"
)

var (
	admin   = common.HexToAddress("0x0000000000000000000000000000000000000001")
	alice   = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob     = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	spender = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	usdc    = common.HexToAddress("0x00000000000000000000000000000000000000d1")
)

func newBank(t *testing.T) (*store.Memory, *Bank) {
	t.Helper()
	ctx := context.Background()
	s := store.NewMemory()
	b := NewBank()
	err := s.Update(ctx, func(tx store.Tx) error {
		if err := tx.PutContract(ctx, store.Contract{Name: store.ContractBank, Address: common.HexToAddress("0xba"), Owner: admin}); err != nil {
			return err
		}
		if err := b.RegisterToken(ctx, tx, admin, usdc, "USDC", 6); err != nil {
			return err
		}
		return b.Mint(ctx, tx, admin, usdc, alice, uint256.NewInt(1_000))
	})
	if err != nil {
		t.Fatalf("seed bank: %v", err)
	}
	return s, b
}

func TestBank_TransferFromConsumesAllowance(t *testing.T) {
	s, b := newBank(t)
	ctx := context.Background()

	err := s.Update(ctx, func(tx store.Tx) error {
		if err := b.Approve(ctx, tx, alice, usdc, spender, uint256.NewInt(300)); err != nil {
			return err
		}
		return b.TransferFrom(ctx, tx, spender, usdc, alice, bob, uint256.NewInt(200))
	})
	if err != nil {
		t.Fatalf("transfer from: %v", err)
	}

	err = s.Update(ctx, func(tx store.Tx) error {
		return b.TransferFrom(ctx, tx, spender, usdc, alice, bob, uint256.NewInt(101))
	})
	if !errors.Is(err, apperr.ErrInsufficientAllowance) {
		t.Fatalf("expected insufficient allowance, got %v", err)
	}

	_ = s.View(ctx, func(tx store.Tx) error {
		left, _ := b.Allowance(ctx, tx, alice, spender, usdc)
		a, _ := b.BalanceOf(ctx, tx, alice, usdc)
		c, _ := b.BalanceOf(ctx, tx, bob, usdc)
		if left.Uint64() != 100 || a.Uint64() != 800 || c.Uint64() != 200 {
			t.Fatalf("unexpected state: allowance=%s alice=%s bob=%s", left.Dec(), a.Dec(), c.Dec())
		}
		return nil
	})
}

func TestBank_MaxAllowanceIsNotConsumed(t *testing.T) {
	s, b := newBank(t)
	ctx := context.Background()
	err := s.Update(ctx, func(tx store.Tx) error {
		if err := b.Approve(ctx, tx, alice, usdc, spender, new(uint256.Int).SetAllOne()); err != nil {
			return err
		}
		return b.TransferFrom(ctx, tx, spender, usdc, alice, bob, uint256.NewInt(10))
	})
	if err != nil {
		t.Fatalf("transfer from: %v", err)
	}
	_ = s.View(ctx, func(tx store.Tx) error {
		left, _ := b.Allowance(ctx, tx, alice, spender, usdc)
		if !left.Eq(maxAmount) {
			t.Fatalf("max allowance was consumed: %s", left.Dec())
		}
		return nil
	})
}

func TestBank_TransferInsufficientFunds(t *testing.T) {
	s, b := newBank(t)
	ctx := context.Background()
	err := s.Update(ctx, func(tx store.Tx) error {
		return b.Transfer(ctx, tx, alice, usdc, bob, uint256.NewInt(1_001))
	})
	if !errors.Is(err, apperr.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
}

func TestBank_OwnerOnlyAdministration(t *testing.T) {
	s, b := newBank(t)
	ctx := context.Background()

	err := s.Update(ctx, func(tx store.Tx) error {
		return b.Mint(ctx, tx, alice, usdc, alice, uint256.NewInt(1))
	})
	if !errors.Is(err, apperr.ErrNotOwner) {
		t.Fatalf("expected NotOwner for mint, got %v", err)
	}
	err = s.Update(ctx, func(tx store.Tx) error {
		return b.RegisterToken(ctx, tx, admin, usdc, "USDC", 6)
	})
	if !errors.Is(err, apperr.ErrAssetExists) {
		t.Fatalf("expected AssetExists, got %v", err)
	}
	err = s.Update(ctx, func(tx store.Tx) error {
		return b.RegisterToken(ctx, tx, admin, Native, "ETH", 18)
	})
	if !errors.Is(err, apperr.ErrInvalidAddress) {
		t.Fatalf("expected InvalidAddress for native, got %v", err)
	}
}

func TestBank_MintOverflow(t *testing.T) {
	s, b := newBank(t)
	ctx := context.Background()
	err := s.Update(ctx, func(tx store.Tx) error {
		return b.Mint(ctx, tx, admin, usdc, alice, new(uint256.Int).SetAllOne())
	})
	if !errors.Is(err, apperr.ErrOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
}

func TestBank_Decimals(t *testing.T) {
	s, b := newBank(t)
	ctx := context.Background()
	_ = s.View(ctx, func(tx store.Tx) error {
		if d, _ := b.Decimals(ctx, tx, usdc); d != 6 {
			t.Fatalf("expected 6 decimals, got %d", d)
		}
		if d, _ := b.Decimals(ctx, tx, Native); d != NativeDecimals {
			t.Fatalf("expected native decimals, got %d", d)
		}
		if _, err := b.Decimals(ctx, tx, bob); !errors.Is(err, apperr.ErrUnknownAsset) {
			t.Fatalf("expected unknown asset, got %v", err)
		}
		return nil
	})
}
