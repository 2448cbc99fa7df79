// Package escrow implements the central custody ledger. It tracks, per will
// and asset, how much of the escrow's bank holding belongs to that will, and
// only releases value on request of an authorized, registered will.
package escrow

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/smartwill/lastwill/internal/apperr"
	"github.com/smartwill/lastwill/internal/asset"
	"github.com/smartwill/lastwill/internal/store"
)

// Custody is the asset substrate holding the escrow's funds.
type Custody interface {
	BalanceOf(ctx context.Context, tx store.Tx, holder, asset common.Address) (*uint256.Int, error)
	Transfer(ctx context.Context, tx store.Tx, caller, asset, to common.Address, amount *uint256.Int) error
}

// Escrow is the custody ledger. Every method runs inside the caller's
// transaction; a failed call leaves no partial effect once that transaction
// is rolled back.
type Escrow struct {
	custody Custody
}

// New constructs the escrow ledger on top of custody.
func New(custody Custody) *Escrow {
	return &Escrow{custody: custody}
}

func (e *Escrow) contract(ctx context.Context, tx store.Tx) (store.Contract, error) {
	c, ok, err := tx.Contract(ctx, store.ContractEscrow)
	if err != nil {
		return store.Contract{}, err
	}
	if !ok {
		return store.Contract{}, apperr.ErrNotDeployed
	}
	return c, nil
}

// Settings returns the escrow's address, owner and factory.
func (e *Escrow) Settings(ctx context.Context, tx store.Tx) (store.Contract, error) {
	return e.contract(ctx, tx)
}

// SetFactory records the factory and authorizes it. Owner only.
func (e *Escrow) SetFactory(ctx context.Context, tx store.Tx, caller, factory common.Address) error {
	c, err := e.contract(ctx, tx)
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
	if err := tx.PutContract(ctx, c); err != nil {
		return err
	}
	return tx.PutAuthorizedCaller(ctx, factory)
}

// TransferOwnership hands the administrator capability to newOwner.
func (e *Escrow) TransferOwnership(ctx context.Context, tx store.Tx, caller, newOwner common.Address) error {
	c, err := e.contract(ctx, tx)
	if err != nil {
		return err
	}
	if caller != c.Owner {
		return apperr.ErrNotOwner
	}
	if newOwner == (common.Address{}) {
		return apperr.ErrInvalidAddress
	}
	c.Owner = newOwner
	return tx.PutContract(ctx, c)
}

// Authorize lets target call RegisterWill. Only the factory or the owner
// may authorize; authorizing twice is a no-op.
func (e *Escrow) Authorize(ctx context.Context, tx store.Tx, caller, target common.Address) error {
	c, err := e.contract(ctx, tx)
	if err != nil {
		return err
	}
	isFactory := c.Factory != (common.Address{}) && caller == c.Factory
	if !isFactory && caller != c.Owner {
		return apperr.ErrUnauthorizedCaller
	}
	if target == (common.Address{}) {
		return apperr.ErrInvalidAddress
	}
	return tx.PutAuthorizedCaller(ctx, target)
}

// RegisterWill marks will as eligible to hold deposits.
func (e *Escrow) RegisterWill(ctx context.Context, tx store.Tx, caller, will common.Address) error {
	ok, err := tx.IsAuthorizedCaller(ctx, caller)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.ErrUnauthorizedCaller
	}
	if will == (common.Address{}) {
		return apperr.ErrInvalidAddress
	}
	return tx.PutEscrowWill(ctx, will)
}

// checkCaller enforces that caller acts for a registered will: the will
// itself or the factory, and authorized in both cases.
func (e *Escrow) checkCaller(ctx context.Context, tx store.Tx, c store.Contract, caller, will common.Address) error {
	if caller != will && caller != c.Factory {
		return apperr.ErrWillNotRegistered
	}
	authorized, err := tx.IsAuthorizedCaller(ctx, caller)
	if err != nil {
		return err
	}
	registered, err := tx.IsEscrowWill(ctx, will)
	if err != nil {
		return err
	}
	if !authorized || !registered {
		return apperr.ErrWillNotRegistered
	}
	return nil
}

// RegisterDeposit books amount of asset, already moved into the escrow's
// custody, to will. The escrow's holding must cover every tracked balance of
// the asset afterwards.
func (e *Escrow) RegisterDeposit(ctx context.Context, tx store.Tx, caller, will, asset common.Address, amount *uint256.Int) error {
	c, err := e.contract(ctx, tx)
	if err != nil {
		return err
	}
	if err := e.checkCaller(ctx, tx, c, caller, will); err != nil {
		return err
	}
	if amount == nil || amount.IsZero() {
		return apperr.ErrInvalidAmount
	}

	acc, _, err := tx.EscrowAccount(ctx, will, asset)
	if err != nil {
		return err
	}
	next, overflow := new(uint256.Int).AddOverflow(acc.Amount, amount)
	if overflow {
		return apperr.ErrOverflow
	}
	acc.Owner = will
	acc.Amount = next
	if err := tx.PutEscrowAccount(ctx, acc); err != nil {
		return err
	}
	if asset == assetNative {
		if err := e.addNative(ctx, tx, will, amount); err != nil {
			return err
		}
	}
	return e.checkCustody(ctx, tx, c.Address, asset)
}

var assetNative = asset.Native

func (e *Escrow) addNative(ctx context.Context, tx store.Tx, will common.Address, amount *uint256.Int) error {
	bal, err := tx.NativeBalance(ctx, will)
	if err != nil {
		return err
	}
	next, overflow := new(uint256.Int).AddOverflow(bal, amount)
	if overflow {
		return apperr.ErrOverflow
	}
	return tx.PutNativeBalance(ctx, will, next)
}

func (e *Escrow) checkCustody(ctx context.Context, tx store.Tx, escrowAddr, asset common.Address) error {
	held, err := e.custody.BalanceOf(ctx, tx, escrowAddr, asset)
	if err != nil {
		return err
	}
	tracked, err := tx.EscrowTotal(ctx, asset)
	if err != nil {
		return err
	}
	if held.Lt(tracked) {
		return fmt.Errorf("asset %s: held %s, tracked %s: %w", asset.Hex(), held.Dec(), tracked.Dec(), apperr.ErrCustodyMismatch)
	}
	return nil
}

// TransferERC20 releases amount of a token booked to will to the address to.
func (e *Escrow) TransferERC20(ctx context.Context, tx store.Tx, caller, will, asset, to common.Address, amount *uint256.Int) error {
	if asset == assetNative {
		return apperr.ErrInvalidAddress
	}
	c, err := e.contract(ctx, tx)
	if err != nil {
		return err
	}
	if err := e.checkCaller(ctx, tx, c, caller, will); err != nil {
		return err
	}
	if err := e.debit(ctx, tx, will, asset, amount); err != nil {
		return err
	}
	return e.custody.Transfer(ctx, tx, c.Address, asset, to, amount)
}

// TransferNative releases amount of native currency booked to will.
func (e *Escrow) TransferNative(ctx context.Context, tx store.Tx, caller, will, to common.Address, amount *uint256.Int) error {
	c, err := e.contract(ctx, tx)
	if err != nil {
		return err
	}
	if err := e.checkCaller(ctx, tx, c, caller, will); err != nil {
		return err
	}
	bal, err := tx.NativeBalance(ctx, will)
	if err != nil {
		return err
	}
	if amount == nil || amount.IsZero() {
		return apperr.ErrInvalidAmount
	}
	if bal.Lt(amount) {
		return apperr.ErrInsufficientBalance
	}
	if err := e.debit(ctx, tx, will, assetNative, amount); err != nil {
		return err
	}
	if err := tx.PutNativeBalance(ctx, will, bal.Sub(bal, amount)); err != nil {
		return err
	}
	return e.custody.Transfer(ctx, tx, c.Address, assetNative, to, amount)
}

func (e *Escrow) debit(ctx context.Context, tx store.Tx, will, asset common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return apperr.ErrInvalidAmount
	}
	acc, _, err := tx.EscrowAccount(ctx, will, asset)
	if err != nil {
		return err
	}
	if acc.Amount.Lt(amount) {
		return apperr.ErrInsufficientBalance
	}
	acc.Amount = new(uint256.Int).Sub(acc.Amount, amount)
	acc.Owner = will
	return tx.PutEscrowAccount(ctx, acc)
}

// TokenBalance returns the account of asset booked to will. The owner is
// the zero address when nothing was ever deposited.
func (e *Escrow) TokenBalance(ctx context.Context, tx store.Tx, will, asset common.Address) (store.EscrowAccount, error) {
	acc, _, err := tx.EscrowAccount(ctx, will, asset)
	return acc, err
}

// NativeBalance returns the native currency booked to will.
func (e *Escrow) NativeBalance(ctx context.Context, tx store.Tx, will common.Address) (*uint256.Int, error) {
	return tx.NativeBalance(ctx, will)
}

// IsAuthorized reports whether addr may register wills.
func (e *Escrow) IsAuthorized(ctx context.Context, tx store.Tx, addr common.Address) (bool, error) {
	return tx.IsAuthorizedCaller(ctx, addr)
}

// IsRegistered reports whether addr is a will known to the escrow.
func (e *Escrow) IsRegistered(ctx context.Context, tx store.Tx, addr common.Address) (bool, error) {
	return tx.IsEscrowWill(ctx, addr)
}
