// Package will implements per-testator will records: the heir list, the due
// date and the deposit and release of each heir's allocation.
//
// A will is the only party moving value into or out of escrow on behalf of
// its testator. Deposits happen eagerly when an heir is added; releasing an
// allocation after the due date is a pure payout from escrow.
package will

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/smartwill/lastwill/internal/apperr"
	"github.com/smartwill/lastwill/internal/asset"
	"github.com/smartwill/lastwill/internal/clock"
	"github.com/smartwill/lastwill/internal/events"
	"github.com/smartwill/lastwill/internal/store"
)

// Escrow is the custody ledger wills deposit into and release from.
type Escrow interface {
	RegisterDeposit(ctx context.Context, tx store.Tx, caller, will, asset common.Address, amount *uint256.Int) error
	TransferERC20(ctx context.Context, tx store.Tx, caller, will, asset, to common.Address, amount *uint256.Int) error
	TransferNative(ctx context.Context, tx store.Tx, caller, will, to common.Address, amount *uint256.Int) error
	TokenBalance(ctx context.Context, tx store.Tx, will, asset common.Address) (store.EscrowAccount, error)
	NativeBalance(ctx context.Context, tx store.Tx, will common.Address) (*uint256.Int, error)
}

// Bank moves the testator's assets into escrow custody.
type Bank interface {
	Transfer(ctx context.Context, tx store.Tx, caller, asset, to common.Address, amount *uint256.Int) error
	TransferFrom(ctx context.Context, tx store.Tx, spender, asset, from, to common.Address, amount *uint256.Int) error
}

// Factory is the whitelist and heir index kept by the factory.
type Factory interface {
	TokenWhiteList(ctx context.Context, tx store.Tx, asset common.Address) (store.WhitelistEntry, error)
	AddInheritance(ctx context.Context, tx store.Tx, caller, heir common.Address) error
	RemoveInheritance(ctx context.Context, tx store.Tx, caller, heir common.Address) error
}

// Records operates on every will in the store, addressed by will address.
type Records struct {
	escrow  Escrow
	bank    Bank
	factory Factory
	clock   clock.Clock
}

// New wires the collaborators shared by all wills.
func New(escrow Escrow, bank Bank, factory Factory, clk clock.Clock) *Records {
	if clk == nil {
		clk = clock.System{}
	}
	return &Records{escrow: escrow, bank: bank, factory: factory, clock: clk}
}

// HeirView is an heir's allocation together with its position and the
// will's due date.
type HeirView struct {
	Allocation store.HeirAllocation
	Index      int
	DueDate    int64
}

// Totals is the aggregate of everything a will holds in escrow.
type Totals struct {
	Assets  []common.Address
	Amounts []*uint256.Int
	Native  *uint256.Int
}

// Get returns the will stored at address.
func (r *Records) Get(ctx context.Context, tx store.Tx, address common.Address) (store.WillRecord, error) {
	rec, ok, err := tx.Will(ctx, address)
	if err != nil {
		return store.WillRecord{}, err
	}
	if !ok {
		return store.WillRecord{}, apperr.ErrWillNotFound
	}
	return rec, nil
}

func (r *Records) active(ctx context.Context, tx store.Tx, address common.Address) (store.WillRecord, error) {
	rec, err := r.Get(ctx, tx, address)
	if err != nil {
		return store.WillRecord{}, err
	}
	if !rec.Initialized {
		return store.WillRecord{}, apperr.ErrNotInitialized
	}
	return rec, nil
}

func (r *Records) future(dueDate int64) error {
	if dueDate <= r.clock.Now().Unix() {
		return apperr.ErrInvalidDueDate
	}
	return nil
}

// Initialize binds an allocated will to its testator. Only the factory that
// allocated the record may call it, and only once.
func (r *Records) Initialize(ctx context.Context, tx store.Tx, caller, address, testator common.Address, dueDate int64) error {
	rec, err := r.Get(ctx, tx, address)
	if err != nil {
		return err
	}
	if caller != rec.Factory {
		return apperr.ErrNotFactory
	}
	if rec.Initialized {
		return apperr.ErrAlreadyInitialized
	}
	if testator == (common.Address{}) {
		return apperr.ErrInvalidAddress
	}
	if err := r.future(dueDate); err != nil {
		return err
	}

	rec.Testator = testator
	rec.DueDate = dueDate
	rec.Initialized = true
	if err := tx.PutWill(ctx, rec); err != nil {
		return err
	}
	return events.Append(ctx, tx, events.KindWillInitialized, address,
		events.WillInitialized{Will: address, Testator: testator, DueDate: dueDate}, r.clock.Now())
}

// UpdateDueDate moves the due date. The new date must lie in the future; it
// may be earlier or later than the current one.
func (r *Records) UpdateDueDate(ctx context.Context, tx store.Tx, caller, address common.Address, dueDate int64) error {
	rec, err := r.active(ctx, tx, address)
	if err != nil {
		return err
	}
	if caller != rec.Testator {
		return apperr.ErrNotOwner
	}
	if err := r.future(dueDate); err != nil {
		return err
	}
	rec.DueDate = dueDate
	if err := tx.PutWill(ctx, rec); err != nil {
		return err
	}
	return events.Append(ctx, tx, events.KindDueDateUpdated, address,
		events.DueDateUpdated{Will: address, DueDate: dueDate}, r.clock.Now())
}

// AddHeir validates an allocation, pulls every asset of it from the
// testator into escrow and records it. value is the native currency the
// testator attaches; it must equal the native amount of the allocation.
func (r *Records) AddHeir(ctx context.Context, tx store.Tx, caller, address, wallet common.Address, tokens []common.Address, amounts []*uint256.Int, value *uint256.Int) error {
	rec, err := r.active(ctx, tx, address)
	if err != nil {
		return err
	}
	if caller != rec.Testator {
		return apperr.ErrNotOwner
	}
	native, err := r.validateAllocation(ctx, tx, wallet, tokens, amounts)
	if err != nil {
		return err
	}
	if _, exists, err := tx.Heir(ctx, address, wallet); err != nil {
		return err
	} else if exists {
		return apperr.ErrHeirAlreadyExists
	}
	if value == nil {
		value = new(uint256.Int)
	}
	if !value.Eq(native) {
		return apperr.ErrNativeValueMismatch
	}

	for i, a := range tokens {
		if a == asset.Native {
			err = r.bank.Transfer(ctx, tx, rec.Testator, asset.Native, rec.Escrow, amounts[i])
		} else {
			err = r.bank.TransferFrom(ctx, tx, address, a, rec.Testator, rec.Escrow, amounts[i])
		}
		if err != nil {
			return fmt.Errorf("deposit %s: %w", a.Hex(), err)
		}
		if err := r.escrow.RegisterDeposit(ctx, tx, address, address, a, amounts[i]); err != nil {
			return fmt.Errorf("register deposit %s: %w", a.Hex(), err)
		}
	}

	alloc := store.HeirAllocation{Wallet: wallet, Tokens: tokens, Amounts: amounts}
	if _, err := tx.InsertHeir(ctx, address, alloc); err != nil {
		return err
	}
	if err := r.factory.AddInheritance(ctx, tx, address, wallet); err != nil {
		return err
	}
	return events.Append(ctx, tx, events.KindHeirAdded, address,
		events.HeirAdded{Will: address, Heir: wallet, Tokens: tokens, Amounts: amounts}, r.clock.Now())
}

// validateAllocation checks the allocation shape and the whitelist before
// any value moves, and returns the native amount it carries.
func (r *Records) validateAllocation(ctx context.Context, tx store.Tx, wallet common.Address, tokens []common.Address, amounts []*uint256.Int) (*uint256.Int, error) {
	if wallet == (common.Address{}) {
		return nil, apperr.ErrInvalidAddress
	}
	if len(tokens) != len(amounts) {
		return nil, apperr.ErrLengthMismatch
	}
	if len(tokens) == 0 {
		return nil, apperr.ErrEmptyAllocation
	}
	native := new(uint256.Int)
	seen := make(map[common.Address]struct{}, len(tokens))
	for i, a := range tokens {
		if _, dup := seen[a]; dup {
			return nil, apperr.ErrDuplicateAsset
		}
		seen[a] = struct{}{}
		if amounts[i] == nil || amounts[i].IsZero() {
			return nil, apperr.ErrInvalidAmount
		}
		if a == asset.Native {
			native.Set(amounts[i])
			continue
		}
		entry, err := r.factory.TokenWhiteList(ctx, tx, a)
		if err != nil {
			return nil, err
		}
		if !entry.Allowed {
			return nil, fmt.Errorf("%s: %w", a.Hex(), apperr.ErrTokenNotWhitelisted)
		}
	}
	return native, nil
}

// RemoveHeir withdraws an unexecuted allocation and refunds its escrowed
// assets to the testator.
func (r *Records) RemoveHeir(ctx context.Context, tx store.Tx, caller, address, wallet common.Address) error {
	rec, err := r.active(ctx, tx, address)
	if err != nil {
		return err
	}
	if caller != rec.Testator {
		return apperr.ErrNotOwner
	}
	heir, ok, err := tx.Heir(ctx, address, wallet)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.ErrHeirNotFound
	}
	if heir.Executed {
		return apperr.ErrAlreadyExecuted
	}

	if err := r.release(ctx, tx, address, rec.Testator, heir); err != nil {
		return fmt.Errorf("refund: %w", err)
	}
	if err := tx.DeleteHeir(ctx, address, wallet); err != nil {
		return err
	}
	if err := r.factory.RemoveInheritance(ctx, tx, address, wallet); err != nil {
		return err
	}
	return events.Append(ctx, tx, events.KindHeirRemoved, address,
		events.HeirRemoved{Will: address, Heir: wallet}, r.clock.Now())
}

// ExecuteLastWill pays an heir's allocation out of escrow once the due date
// has been reached. Anyone may trigger it; funds only go to heirWallet.
func (r *Records) ExecuteLastWill(ctx context.Context, tx store.Tx, caller, address, heirWallet common.Address) error {
	rec, err := r.active(ctx, tx, address)
	if err != nil {
		return err
	}
	if r.clock.Now().Unix() < rec.DueDate {
		return apperr.ErrNotDueYet
	}
	heir, ok, err := tx.Heir(ctx, address, heirWallet)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.ErrHeirNotFound
	}
	if heir.Executed {
		return apperr.ErrAlreadyExecuted
	}
	flipped, err := tx.MarkHeirExecuted(ctx, address, heirWallet)
	if err != nil {
		return err
	}
	if !flipped {
		return apperr.ErrAlreadyExecuted
	}

	if err := r.release(ctx, tx, address, heirWallet, heir); err != nil {
		return fmt.Errorf("payout: %w", err)
	}
	return events.Append(ctx, tx, events.KindHeirExecuted, address,
		events.HeirExecuted{Will: address, Heir: heirWallet, Executor: caller}, r.clock.Now())
}

func (r *Records) release(ctx context.Context, tx store.Tx, address, to common.Address, heir store.HeirAllocation) error {
	for i, a := range heir.Tokens {
		var err error
		if a == asset.Native {
			err = r.escrow.TransferNative(ctx, tx, address, address, to, heir.Amounts[i])
		} else {
			err = r.escrow.TransferERC20(ctx, tx, address, address, a, to, heir.Amounts[i])
		}
		if err != nil {
			return fmt.Errorf("%s: %w", a.Hex(), err)
		}
	}
	return nil
}

// GetHeirByAddress returns the heir's allocation, its index and the due date.
// The boolean is false, with a zero view, when the wallet is not an heir.
func (r *Records) GetHeirByAddress(ctx context.Context, tx store.Tx, address, wallet common.Address) (HeirView, bool, error) {
	rec, err := r.Get(ctx, tx, address)
	if err != nil {
		return HeirView{}, false, err
	}
	heir, ok, err := tx.Heir(ctx, address, wallet)
	if err != nil || !ok {
		return HeirView{}, false, err
	}
	return HeirView{Allocation: heir, Index: heir.Index, DueDate: rec.DueDate}, true, nil
}

// Heirs lists the will's heirs in insertion order.
func (r *Records) Heirs(ctx context.Context, tx store.Tx, address common.Address) ([]store.HeirAllocation, error) {
	if _, err := r.Get(ctx, tx, address); err != nil {
		return nil, err
	}
	return tx.Heirs(ctx, address)
}

// GetTotalTokenAmounts reports the escrow balance of every token the will's
// heirs reference, in first-appearance order, plus its native balance.
func (r *Records) GetTotalTokenAmounts(ctx context.Context, tx store.Tx, address common.Address) (Totals, error) {
	heirs, err := r.Heirs(ctx, tx, address)
	if err != nil {
		return Totals{}, err
	}
	var out Totals
	seen := make(map[common.Address]struct{})
	for _, h := range heirs {
		for _, a := range h.Tokens {
			if a == asset.Native {
				continue
			}
			if _, dup := seen[a]; dup {
				continue
			}
			seen[a] = struct{}{}
			acc, err := r.escrow.TokenBalance(ctx, tx, address, a)
			if err != nil {
				return Totals{}, err
			}
			out.Assets = append(out.Assets, a)
			out.Amounts = append(out.Amounts, acc.Amount)
		}
	}
	out.Native, err = r.escrow.NativeBalance(ctx, tx, address)
	if err != nil {
		return Totals{}, err
	}
	return out, nil
}
