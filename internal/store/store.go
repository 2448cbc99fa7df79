// Package store persists the state shared by the escrow, registry, factory,
// will and asset components.
//
// Every mutation runs inside Update. Update serializes writers and discards
// every write made by fn when fn returns an error, so a failed operation
// leaves no balance, allocation or flag behind. View runs fn against a
// consistent read-only snapshot.
package store

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// ErrReadOnly is returned by write methods called inside View.
var ErrReadOnly = errors.New("store: write in read-only transaction")

// Store runs transactions against the persisted state.
type Store interface {
	Update(ctx context.Context, fn func(tx Tx) error) error
	View(ctx context.Context, fn func(tx Tx) error) error

	// PendingEvents returns up to limit undelivered outbox events in
	// append order, or all of them when limit is not positive.
	PendingEvents(ctx context.Context, limit int) ([]Event, error)
	// MarkDelivered flags outbox events as published.
	MarkDelivered(ctx context.Context, ids []uuid.UUID) error
}

// Tx is the typed view of the state available inside a transaction.
// Found flags distinguish absent rows from zero values.
type Tx interface {
	Contract(ctx context.Context, name string) (Contract, bool, error)
	PutContract(ctx context.Context, c Contract) error

	Token(ctx context.Context, asset common.Address) (Token, bool, error)
	PutToken(ctx context.Context, t Token) error
	Holding(ctx context.Context, holder, asset common.Address) (*uint256.Int, error)
	PutHolding(ctx context.Context, holder, asset common.Address, amount *uint256.Int) error
	Allowance(ctx context.Context, owner, spender, asset common.Address) (*uint256.Int, error)
	PutAllowance(ctx context.Context, owner, spender, asset common.Address, amount *uint256.Int) error

	IsAuthorizedCaller(ctx context.Context, caller common.Address) (bool, error)
	PutAuthorizedCaller(ctx context.Context, caller common.Address) error
	IsEscrowWill(ctx context.Context, will common.Address) (bool, error)
	PutEscrowWill(ctx context.Context, will common.Address) error
	EscrowAccount(ctx context.Context, will, asset common.Address) (EscrowAccount, bool, error)
	PutEscrowAccount(ctx context.Context, a EscrowAccount) error
	// EscrowTotal sums every will's escrow amount of asset.
	EscrowTotal(ctx context.Context, asset common.Address) (*uint256.Int, error)
	NativeBalance(ctx context.Context, will common.Address) (*uint256.Int, error)
	PutNativeBalance(ctx context.Context, will common.Address, amount *uint256.Int) error

	IsRegisteredWill(ctx context.Context, will common.Address) (bool, error)
	PutRegisteredWill(ctx context.Context, will common.Address) error

	Will(ctx context.Context, address common.Address) (WillRecord, bool, error)
	PutWill(ctx context.Context, w WillRecord) error
	WillByTestator(ctx context.Context, testator common.Address) (common.Address, bool, error)
	PutTestatorWill(ctx context.Context, testator, will common.Address) error

	Heir(ctx context.Context, will, wallet common.Address) (HeirAllocation, bool, error)
	Heirs(ctx context.Context, will common.Address) ([]HeirAllocation, error)
	// InsertHeir appends h to the will's heirs and returns its index.
	InsertHeir(ctx context.Context, will common.Address, h HeirAllocation) (int, error)
	// DeleteHeir removes the heir and closes the gap in the ordering.
	DeleteHeir(ctx context.Context, will, wallet common.Address) error
	// MarkHeirExecuted flips executed from false to true and reports
	// whether this call made the transition.
	MarkHeirExecuted(ctx context.Context, will, wallet common.Address) (bool, error)

	WhitelistEntry(ctx context.Context, asset common.Address) (WhitelistEntry, bool, error)
	PutWhitelistEntry(ctx context.Context, e WhitelistEntry) error
	// Whitelist lists every entry ever added, allowed or not, in the order
	// assets were first added.
	Whitelist(ctx context.Context) ([]WhitelistEntry, error)

	AddInheritance(ctx context.Context, heir, will common.Address) error
	RemoveInheritance(ctx context.Context, heir, will common.Address) error
	InheritedWills(ctx context.Context, heir common.Address) ([]common.Address, error)

	AppendEvent(ctx context.Context, e Event) error
}
