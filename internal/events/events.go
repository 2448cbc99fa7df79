// Package events defines the notifications emitted by wills and the factory
// and relays them from the store outbox to downstream sinks.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"github.com/smartwill/lastwill/internal/store"
)

const (
	KindWillInitialized           = "will_initialized"
	KindDueDateUpdated            = "due_date_updated"
	KindHeirAdded                 = "heir_added"
	KindHeirRemoved               = "heir_removed"
	KindHeirExecuted              = "heir_executed"
	KindTokenWhitelisted          = "token_whitelisted"
	KindTokenRemovedFromWhitelist = "token_removed_from_whitelist"
)

// WillInitialized is emitted once per will, when the factory creates it.
type WillInitialized struct {
	Will     common.Address `json:"will"`
	Testator common.Address `json:"testator"`
	DueDate  int64          `json:"due_date"`
}

// DueDateUpdated carries the new due date of a will.
type DueDateUpdated struct {
	Will    common.Address `json:"will"`
	DueDate int64          `json:"due_date"`
}

// HeirAdded carries the full allocation deposited for an heir.
type HeirAdded struct {
	Will    common.Address   `json:"will"`
	Heir    common.Address   `json:"heir"`
	Tokens  []common.Address `json:"tokens"`
	Amounts []*uint256.Int   `json:"amounts"`
}

// HeirRemoved is emitted when a testator withdraws an heir's allocation.
type HeirRemoved struct {
	Will common.Address `json:"will"`
	Heir common.Address `json:"heir"`
}

// HeirExecuted is emitted when an heir's allocation has been paid out.
// Executor is whoever triggered the release; funds always go to Heir.
type HeirExecuted struct {
	Will     common.Address `json:"will"`
	Heir     common.Address `json:"heir"`
	Executor common.Address `json:"executor"`
}

// TokenWhitelisted is emitted when an asset is admitted to new allocations.
type TokenWhitelisted struct {
	Asset    common.Address `json:"asset"`
	Decimals uint8          `json:"decimals"`
}

// TokenRemovedFromWhitelist is emitted when an asset stops being accepted.
// Existing deposits of it are unaffected.
type TokenRemovedFromWhitelist struct {
	Asset common.Address `json:"asset"`
}

// New builds an outbox record for payload.
func New(kind string, source common.Address, payload any, now time.Time) (store.Event, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return store.Event{}, fmt.Errorf("encode %s event: %w", kind, err)
	}
	return store.Event{
		ID:        uuid.New(),
		Kind:      kind,
		Source:    source,
		Payload:   body,
		CreatedAt: now.UTC(),
	}, nil
}

// Append adds an event to the outbox of tx. It is published only if tx
// commits.
func Append(ctx context.Context, tx store.Tx, kind string, source common.Address, payload any, now time.Time) error {
	e, err := New(kind, source, payload, now)
	if err != nil {
		return err
	}
	return tx.AppendEvent(ctx, e)
}

// Envelope is the wire form of an event handed to sinks.
type Envelope struct {
	ID        uuid.UUID       `json:"id"`
	Kind      string          `json:"kind"`
	Source    common.Address  `json:"source"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// Encode renders e as an Envelope document.
func Encode(e store.Event) ([]byte, error) {
	return json.Marshal(Envelope{
		ID:        e.ID,
		Kind:      e.Kind,
		Source:    e.Source,
		Payload:   e.Payload,
		CreatedAt: e.CreatedAt,
	})
}
