package store

import (
	"context"
	"slices"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

type holdingKey struct {
	holder common.Address
	asset  common.Address
}

type allowanceKey struct {
	owner   common.Address
	spender common.Address
	asset   common.Address
}

type accountKey struct {
	will  common.Address
	asset common.Address
}

type outboxEntry struct {
	event     Event
	delivered bool
}

type memState struct {
	contracts      map[string]Contract
	tokens         map[common.Address]Token
	holdings       map[holdingKey]*uint256.Int
	allowances     map[allowanceKey]*uint256.Int
	callers        map[common.Address]struct{}
	escrowWills    map[common.Address]struct{}
	accounts       map[accountKey]EscrowAccount
	native         map[common.Address]*uint256.Int
	registered     map[common.Address]struct{}
	wills          map[common.Address]WillRecord
	creators       map[common.Address]common.Address
	heirs          map[common.Address][]HeirAllocation
	whitelist      map[common.Address]WhitelistEntry
	whitelistOrder []common.Address
	inherited      map[common.Address][]common.Address
	outbox         []outboxEntry
}

// Memory is an in-process Store. A single writer runs at a time and every
// write records an undo step that is replayed when the transaction fails.
type Memory struct {
	mu    sync.RWMutex
	state *memState
}

// NewMemory creates an empty in-memory store for development and tests.
func NewMemory() *Memory {
	return &Memory{state: &memState{
		contracts:   make(map[string]Contract),
		tokens:      make(map[common.Address]Token),
		holdings:    make(map[holdingKey]*uint256.Int),
		allowances:  make(map[allowanceKey]*uint256.Int),
		callers:     make(map[common.Address]struct{}),
		escrowWills: make(map[common.Address]struct{}),
		accounts:    make(map[accountKey]EscrowAccount),
		native:      make(map[common.Address]*uint256.Int),
		registered:  make(map[common.Address]struct{}),
		wills:       make(map[common.Address]WillRecord),
		creators:    make(map[common.Address]common.Address),
		heirs:       make(map[common.Address][]HeirAllocation),
		whitelist:   make(map[common.Address]WhitelistEntry),
		inherited:   make(map[common.Address][]common.Address),
	}}
}

// Update runs fn exclusively and rolls back its writes if it fails or panics.
func (m *Memory) Update(ctx context.Context, fn func(tx Tx) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{s: m.state}
	defer func() {
		if r := recover(); r != nil {
			tx.rollback()
			panic(r)
		}
	}()
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

// View runs fn under a shared lock; writes fail with ErrReadOnly.
func (m *Memory) View(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(&memTx{s: m.state, readOnly: true})
}

// PendingEvents returns undelivered events in append order.
func (m *Memory) PendingEvents(_ context.Context, limit int) ([]Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Event
	for _, e := range m.state.outbox {
		if e.delivered {
			continue
		}
		out = append(out, e.event)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// MarkDelivered flags events as published and drops the delivered prefix.
func (m *Memory) MarkDelivered(_ context.Context, ids []uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	done := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		done[id] = struct{}{}
	}
	for i := range m.state.outbox {
		if _, ok := done[m.state.outbox[i].event.ID]; ok {
			m.state.outbox[i].delivered = true
		}
	}
	n := 0
	for n < len(m.state.outbox) && m.state.outbox[n].delivered {
		n++
	}
	m.state.outbox = slices.Clone(m.state.outbox[n:])
	return nil
}

type memTx struct {
	s        *memState
	readOnly bool
	undo     []func()
}

func (tx *memTx) rollback() {
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
}

func (tx *memTx) writable() error {
	if tx.readOnly {
		return ErrReadOnly
	}
	return nil
}

func put[K comparable, V any](tx *memTx, m map[K]V, k K, v V) {
	old, existed := m[k]
	tx.undo = append(tx.undo, func() {
		if existed {
			m[k] = old
		} else {
			delete(m, k)
		}
	})
	m[k] = v
}

func del[K comparable, V any](tx *memTx, m map[K]V, k K) {
	old, existed := m[k]
	if !existed {
		return
	}
	tx.undo = append(tx.undo, func() { m[k] = old })
	delete(m, k)
}

func (tx *memTx) Contract(_ context.Context, name string) (Contract, bool, error) {
	c, ok := tx.s.contracts[name]
	return c, ok, nil
}

func (tx *memTx) PutContract(_ context.Context, c Contract) error {
	if err := tx.writable(); err != nil {
		return err
	}
	put(tx, tx.s.contracts, c.Name, c)
	return nil
}

func (tx *memTx) Token(_ context.Context, asset common.Address) (Token, bool, error) {
	t, ok := tx.s.tokens[asset]
	return t, ok, nil
}

func (tx *memTx) PutToken(_ context.Context, t Token) error {
	if err := tx.writable(); err != nil {
		return err
	}
	put(tx, tx.s.tokens, t.Asset, t)
	return nil
}

func (tx *memTx) Holding(_ context.Context, holder, asset common.Address) (*uint256.Int, error) {
	return cloneAmount(tx.s.holdings[holdingKey{holder, asset}]), nil
}

func (tx *memTx) PutHolding(_ context.Context, holder, asset common.Address, amount *uint256.Int) error {
	if err := tx.writable(); err != nil {
		return err
	}
	put(tx, tx.s.holdings, holdingKey{holder, asset}, cloneAmount(amount))
	return nil
}

func (tx *memTx) Allowance(_ context.Context, owner, spender, asset common.Address) (*uint256.Int, error) {
	return cloneAmount(tx.s.allowances[allowanceKey{owner, spender, asset}]), nil
}

func (tx *memTx) PutAllowance(_ context.Context, owner, spender, asset common.Address, amount *uint256.Int) error {
	if err := tx.writable(); err != nil {
		return err
	}
	put(tx, tx.s.allowances, allowanceKey{owner, spender, asset}, cloneAmount(amount))
	return nil
}

func (tx *memTx) IsAuthorizedCaller(_ context.Context, caller common.Address) (bool, error) {
	_, ok := tx.s.callers[caller]
	return ok, nil
}

func (tx *memTx) PutAuthorizedCaller(_ context.Context, caller common.Address) error {
	if err := tx.writable(); err != nil {
		return err
	}
	put(tx, tx.s.callers, caller, struct{}{})
	return nil
}

func (tx *memTx) IsEscrowWill(_ context.Context, will common.Address) (bool, error) {
	_, ok := tx.s.escrowWills[will]
	return ok, nil
}

func (tx *memTx) PutEscrowWill(_ context.Context, will common.Address) error {
	if err := tx.writable(); err != nil {
		return err
	}
	put(tx, tx.s.escrowWills, will, struct{}{})
	return nil
}

func (tx *memTx) EscrowAccount(_ context.Context, will, asset common.Address) (EscrowAccount, bool, error) {
	a, ok := tx.s.accounts[accountKey{will, asset}]
	if !ok {
		return EscrowAccount{Will: will, Asset: asset, Amount: new(uint256.Int)}, false, nil
	}
	a.Amount = cloneAmount(a.Amount)
	return a, true, nil
}

func (tx *memTx) PutEscrowAccount(_ context.Context, a EscrowAccount) error {
	if err := tx.writable(); err != nil {
		return err
	}
	a.Amount = cloneAmount(a.Amount)
	put(tx, tx.s.accounts, accountKey{a.Will, a.Asset}, a)
	return nil
}

func (tx *memTx) EscrowTotal(_ context.Context, asset common.Address) (*uint256.Int, error) {
	total := new(uint256.Int)
	for k, a := range tx.s.accounts {
		if k.asset == asset {
			total.Add(total, a.Amount)
		}
	}
	return total, nil
}

func (tx *memTx) NativeBalance(_ context.Context, will common.Address) (*uint256.Int, error) {
	return cloneAmount(tx.s.native[will]), nil
}

func (tx *memTx) PutNativeBalance(_ context.Context, will common.Address, amount *uint256.Int) error {
	if err := tx.writable(); err != nil {
		return err
	}
	put(tx, tx.s.native, will, cloneAmount(amount))
	return nil
}

func (tx *memTx) IsRegisteredWill(_ context.Context, will common.Address) (bool, error) {
	_, ok := tx.s.registered[will]
	return ok, nil
}

func (tx *memTx) PutRegisteredWill(_ context.Context, will common.Address) error {
	if err := tx.writable(); err != nil {
		return err
	}
	put(tx, tx.s.registered, will, struct{}{})
	return nil
}

func (tx *memTx) Will(_ context.Context, address common.Address) (WillRecord, bool, error) {
	w, ok := tx.s.wills[address]
	return w, ok, nil
}

func (tx *memTx) PutWill(_ context.Context, w WillRecord) error {
	if err := tx.writable(); err != nil {
		return err
	}
	put(tx, tx.s.wills, w.Address, w)
	return nil
}

func (tx *memTx) WillByTestator(_ context.Context, testator common.Address) (common.Address, bool, error) {
	w, ok := tx.s.creators[testator]
	return w, ok, nil
}

func (tx *memTx) PutTestatorWill(_ context.Context, testator, will common.Address) error {
	if err := tx.writable(); err != nil {
		return err
	}
	put(tx, tx.s.creators, testator, will)
	return nil
}

func (tx *memTx) Heir(_ context.Context, will, wallet common.Address) (HeirAllocation, bool, error) {
	for _, h := range tx.s.heirs[will] {
		if h.Wallet == wallet {
			return h.Clone(), true, nil
		}
	}
	return HeirAllocation{}, false, nil
}

func (tx *memTx) Heirs(_ context.Context, will common.Address) ([]HeirAllocation, error) {
	list := tx.s.heirs[will]
	out := make([]HeirAllocation, len(list))
	for i, h := range list {
		out[i] = h.Clone()
	}
	return out, nil
}

func (tx *memTx) InsertHeir(_ context.Context, will common.Address, h HeirAllocation) (int, error) {
	if err := tx.writable(); err != nil {
		return 0, err
	}
	list := tx.s.heirs[will]
	h = h.Clone()
	h.Index = len(list)
	next := append(slices.Clip(list), h)
	put(tx, tx.s.heirs, will, next)
	return h.Index, nil
}

func (tx *memTx) DeleteHeir(_ context.Context, will, wallet common.Address) error {
	if err := tx.writable(); err != nil {
		return err
	}
	list := tx.s.heirs[will]
	next := make([]HeirAllocation, 0, len(list))
	for _, h := range list {
		if h.Wallet == wallet {
			continue
		}
		h.Index = len(next)
		next = append(next, h)
	}
	if len(next) == len(list) {
		return nil
	}
	put(tx, tx.s.heirs, will, next)
	return nil
}

func (tx *memTx) MarkHeirExecuted(_ context.Context, will, wallet common.Address) (bool, error) {
	if err := tx.writable(); err != nil {
		return false, err
	}
	list := tx.s.heirs[will]
	for i, h := range list {
		if h.Wallet != wallet {
			continue
		}
		if h.Executed {
			return false, nil
		}
		next := slices.Clone(list)
		next[i].Executed = true
		put(tx, tx.s.heirs, will, next)
		return true, nil
	}
	return false, nil
}

func (tx *memTx) WhitelistEntry(_ context.Context, asset common.Address) (WhitelistEntry, bool, error) {
	e, ok := tx.s.whitelist[asset]
	return e, ok, nil
}

func (tx *memTx) PutWhitelistEntry(_ context.Context, e WhitelistEntry) error {
	if err := tx.writable(); err != nil {
		return err
	}
	if _, seen := tx.s.whitelist[e.Asset]; !seen {
		old := tx.s.whitelistOrder
		tx.undo = append(tx.undo, func() { tx.s.whitelistOrder = old })
		tx.s.whitelistOrder = append(slices.Clip(old), e.Asset)
	}
	put(tx, tx.s.whitelist, e.Asset, e)
	return nil
}

func (tx *memTx) Whitelist(_ context.Context) ([]WhitelistEntry, error) {
	out := make([]WhitelistEntry, 0, len(tx.s.whitelistOrder))
	for _, asset := range tx.s.whitelistOrder {
		out = append(out, tx.s.whitelist[asset])
	}
	return out, nil
}

func (tx *memTx) AddInheritance(_ context.Context, heir, will common.Address) error {
	if err := tx.writable(); err != nil {
		return err
	}
	list := tx.s.inherited[heir]
	if slices.Contains(list, will) {
		return nil
	}
	put(tx, tx.s.inherited, heir, append(slices.Clip(list), will))
	return nil
}

func (tx *memTx) RemoveInheritance(_ context.Context, heir, will common.Address) error {
	if err := tx.writable(); err != nil {
		return err
	}
	list := tx.s.inherited[heir]
	i := slices.Index(list, will)
	if i < 0 {
		return nil
	}
	next := slices.Delete(slices.Clone(list), i, i+1)
	if len(next) == 0 {
		del(tx, tx.s.inherited, heir)
		return nil
	}
	put(tx, tx.s.inherited, heir, next)
	return nil
}

func (tx *memTx) InheritedWills(_ context.Context, heir common.Address) ([]common.Address, error) {
	return slices.Clone(tx.s.inherited[heir]), nil
}

func (tx *memTx) AppendEvent(_ context.Context, e Event) error {
	if err := tx.writable(); err != nil {
		return err
	}
	old := tx.s.outbox
	tx.undo = append(tx.undo, func() { tx.s.outbox = old })
	tx.s.outbox = append(slices.Clip(old), outboxEntry{event: e})
	return nil
}
