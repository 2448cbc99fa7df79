// Package asset models the fungible assets wills hold: the native currency
// and registered tokens, their balances and their allowances.
package asset

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/smartwill/lastwill/internal/apperr"
	"github.com/smartwill/lastwill/internal/store"
)

// Native is the asset address of the native currency.
var Native = common.Address{}

// NativeDecimals is the display precision of the native currency.
const NativeDecimals uint8 = 18

// Bank moves asset balances between holders. It never opens transactions of
// its own; callers pass the transaction every movement belongs to.
type Bank struct{}

// NewBank constructs a bank.
func NewBank() *Bank {
	return &Bank{}
}

func (b *Bank) contract(ctx context.Context, tx store.Tx) (store.Contract, error) {
	c, ok, err := tx.Contract(ctx, store.ContractBank)
	if err != nil {
		return store.Contract{}, err
	}
	if !ok {
		return store.Contract{}, apperr.ErrNotDeployed
	}
	return c, nil
}

// Address returns the bank's own address.
func (b *Bank) Address(ctx context.Context, tx store.Tx) (common.Address, error) {
	c, err := b.contract(ctx, tx)
	return c.Address, err
}

// RegisterToken makes a token known to the bank. Only the bank owner may
// register tokens.
func (b *Bank) RegisterToken(ctx context.Context, tx store.Tx, caller, asset common.Address, symbol string, decimals uint8) error {
	c, err := b.contract(ctx, tx)
	if err != nil {
		return err
	}
	if caller != c.Owner {
		return apperr.ErrNotOwner
	}
	if asset == Native {
		return apperr.ErrInvalidAddress
	}
	if _, exists, err := tx.Token(ctx, asset); err != nil {
		return err
	} else if exists {
		return apperr.ErrAssetExists
	}
	return tx.PutToken(ctx, store.Token{Asset: asset, Symbol: symbol, Decimals: decimals})
}

// Token returns the metadata of asset.
func (b *Bank) Token(ctx context.Context, tx store.Tx, asset common.Address) (store.Token, error) {
	if asset == Native {
		return store.Token{Asset: Native, Symbol: "ETH", Decimals: NativeDecimals}, nil
	}
	t, ok, err := tx.Token(ctx, asset)
	if err != nil {
		return store.Token{}, err
	}
	if !ok {
		return store.Token{}, apperr.ErrUnknownAsset
	}
	return t, nil
}

// Decimals returns the display precision of asset.
func (b *Bank) Decimals(ctx context.Context, tx store.Tx, asset common.Address) (uint8, error) {
	t, err := b.Token(ctx, tx, asset)
	if err != nil {
		return 0, err
	}
	return t.Decimals, nil
}

// Mint credits newly issued units to a holder. Development faucet; owner only.
func (b *Bank) Mint(ctx context.Context, tx store.Tx, caller, asset, to common.Address, amount *uint256.Int) error {
	c, err := b.contract(ctx, tx)
	if err != nil {
		return err
	}
	if caller != c.Owner {
		return apperr.ErrNotOwner
	}
	if _, err := b.Token(ctx, tx, asset); err != nil {
		return err
	}
	if to == (common.Address{}) {
		return apperr.ErrInvalidAddress
	}
	if amount == nil || amount.IsZero() {
		return apperr.ErrInvalidAmount
	}
	return b.credit(ctx, tx, to, asset, amount)
}

// BalanceOf returns the units of asset held by holder.
func (b *Bank) BalanceOf(ctx context.Context, tx store.Tx, holder, asset common.Address) (*uint256.Int, error) {
	return tx.Holding(ctx, holder, asset)
}

// Allowance returns how much spender may still move out of owner's balance.
func (b *Bank) Allowance(ctx context.Context, tx store.Tx, owner, spender, asset common.Address) (*uint256.Int, error) {
	return tx.Allowance(ctx, owner, spender, asset)
}

// Approve sets the allowance spender may draw from caller's balance.
func (b *Bank) Approve(ctx context.Context, tx store.Tx, caller, asset, spender common.Address, amount *uint256.Int) error {
	if _, err := b.Token(ctx, tx, asset); err != nil {
		return err
	}
	if spender == (common.Address{}) {
		return apperr.ErrInvalidAddress
	}
	if amount == nil {
		amount = new(uint256.Int)
	}
	return tx.PutAllowance(ctx, caller, spender, asset, amount)
}

// Transfer moves amount of asset from caller to to.
func (b *Bank) Transfer(ctx context.Context, tx store.Tx, caller, asset, to common.Address, amount *uint256.Int) error {
	if _, err := b.Token(ctx, tx, asset); err != nil {
		return err
	}
	return b.move(ctx, tx, caller, to, asset, amount)
}

// TransferFrom moves amount of asset from from to to on behalf of spender,
// consuming spender's allowance. A maximal allowance is never consumed.
func (b *Bank) TransferFrom(ctx context.Context, tx store.Tx, spender, asset, from, to common.Address, amount *uint256.Int) error {
	if _, err := b.Token(ctx, tx, asset); err != nil {
		return err
	}
	allowed, err := tx.Allowance(ctx, from, spender, asset)
	if err != nil {
		return err
	}
	if amount == nil {
		amount = new(uint256.Int)
	}
	if allowed.Lt(amount) {
		return apperr.ErrInsufficientAllowance
	}
	if err := b.move(ctx, tx, from, to, asset, amount); err != nil {
		return err
	}
	if allowed.Eq(maxAmount) {
		return nil
	}
	return tx.PutAllowance(ctx, from, spender, asset, new(uint256.Int).Sub(allowed, amount))
}

var maxAmount = new(uint256.Int).SetAllOne()

func (b *Bank) move(ctx context.Context, tx store.Tx, from, to, asset common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) {
		return apperr.ErrInvalidAddress
	}
	if amount == nil {
		amount = new(uint256.Int)
	}
	balance, err := tx.Holding(ctx, from, asset)
	if err != nil {
		return err
	}
	if balance.Lt(amount) {
		return apperr.ErrInsufficientFunds
	}
	if from == to {
		return nil
	}
	if err := tx.PutHolding(ctx, from, asset, balance.Sub(balance, amount)); err != nil {
		return fmt.Errorf("debit %s: %w", from, err)
	}
	return b.credit(ctx, tx, to, asset, amount)
}

func (b *Bank) credit(ctx context.Context, tx store.Tx, to, asset common.Address, amount *uint256.Int) error {
	balance, err := tx.Holding(ctx, to, asset)
	if err != nil {
		return err
	}
	next, overflow := new(uint256.Int).AddOverflow(balance, amount)
	if overflow {
		return apperr.ErrOverflow
	}
	if err := tx.PutHolding(ctx, to, asset, next); err != nil {
		return fmt.Errorf("credit %s: %w", to, err)
	}
	return nil
}
