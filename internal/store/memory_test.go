package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

var (
	willA  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	heir1  = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	heir2  = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	heir3  = common.HexToAddress("0x00000000000000000000000000000000000000b3")
	tokenX = common.HexToAddress("0x00000000000000000000000000000000000000c1")
)

func allocation(wallet common.Address, amount uint64) HeirAllocation {
	return HeirAllocation{
		Wallet:  wallet,
		Tokens:  []common.Address{tokenX},
		Amounts: []*uint256.Int{uint256.NewInt(amount)},
	}
}

func TestMemory_UpdateRollsBackOnError(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	boom := errors.New("boom")

	err := m.Update(ctx, func(tx Tx) error {
		if err := tx.PutHolding(ctx, heir1, tokenX, uint256.NewInt(50)); err != nil {
			return err
		}
		if _, err := tx.InsertHeir(ctx, willA, allocation(heir1, 50)); err != nil {
			return err
		}
		if err := tx.AddInheritance(ctx, heir1, willA); err != nil {
			return err
		}
		if err := tx.PutWhitelistEntry(ctx, WhitelistEntry{Asset: tokenX, Allowed: true}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	err = m.View(ctx, func(tx Tx) error {
		bal, _ := tx.Holding(ctx, heir1, tokenX)
		if !bal.IsZero() {
			t.Fatalf("holding survived rollback: %s", bal.Dec())
		}
		heirs, _ := tx.Heirs(ctx, willA)
		if len(heirs) != 0 {
			t.Fatalf("heir survived rollback: %+v", heirs)
		}
		wills, _ := tx.InheritedWills(ctx, heir1)
		if len(wills) != 0 {
			t.Fatalf("inheritance survived rollback: %v", wills)
		}
		list, _ := tx.Whitelist(ctx)
		if len(list) != 0 {
			t.Fatalf("whitelist survived rollback: %v", list)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestMemory_UpdateRollsBackOnPanic(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	func() {
		defer func() {
			if recover() == nil {
				t.Fatalf("expected panic to propagate")
			}
		}()
		_ = m.Update(ctx, func(tx Tx) error {
			_ = tx.PutNativeBalance(ctx, willA, uint256.NewInt(7))
			panic("bad state")
		})
	}()

	_ = m.View(ctx, func(tx Tx) error {
		bal, _ := tx.NativeBalance(ctx, willA)
		if !bal.IsZero() {
			t.Fatalf("native balance survived panic: %s", bal.Dec())
		}
		return nil
	})
}

func TestMemory_ViewIsReadOnly(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	err := m.View(ctx, func(tx Tx) error {
		return tx.PutEscrowWill(ctx, willA)
	})
	if !errors.Is(err, ErrReadOnly) {
		t.Fatalf("expected ErrReadOnly, got %v", err)
	}
}

func TestMemory_AmountsAreCopied(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	amount := uint256.NewInt(10)
	_ = m.Update(ctx, func(tx Tx) error {
		return tx.PutHolding(ctx, heir1, tokenX, amount)
	})
	amount.SetUint64(99)

	_ = m.View(ctx, func(tx Tx) error {
		got, _ := tx.Holding(ctx, heir1, tokenX)
		if got.Uint64() != 10 {
			t.Fatalf("stored amount aliased caller value: %s", got.Dec())
		}
		got.SetUint64(1)
		again, _ := tx.Holding(ctx, heir1, tokenX)
		if again.Uint64() != 10 {
			t.Fatalf("returned amount aliased stored value: %s", again.Dec())
		}
		return nil
	})
}

func TestMemory_HeirOrderingClosesGaps(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	err := m.Update(ctx, func(tx Tx) error {
		for i, w := range []common.Address{heir1, heir2, heir3} {
			idx, err := tx.InsertHeir(ctx, willA, allocation(w, uint64(i+1)))
			if err != nil {
				return err
			}
			if idx != i {
				return fmt.Errorf("heir %d got index %d", i, idx)
			}
		}
		return tx.DeleteHeir(ctx, willA, heir2)
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	_ = m.View(ctx, func(tx Tx) error {
		heirs, _ := tx.Heirs(ctx, willA)
		if len(heirs) != 2 {
			t.Fatalf("expected 2 heirs, got %d", len(heirs))
		}
		if heirs[0].Wallet != heir1 || heirs[1].Wallet != heir3 {
			t.Fatalf("unexpected order: %s, %s", heirs[0].Wallet, heirs[1].Wallet)
		}
		if heirs[1].Index != 1 {
			t.Fatalf("expected index 1 after compaction, got %d", heirs[1].Index)
		}
		return nil
	})
}

func TestMemory_MarkHeirExecutedOnce(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	_ = m.Update(ctx, func(tx Tx) error {
		_, err := tx.InsertHeir(ctx, willA, allocation(heir1, 5))
		return err
	})

	const workers = 8
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		flips int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.Update(ctx, func(tx Tx) error {
				ok, err := tx.MarkHeirExecuted(ctx, willA, heir1)
				if err != nil {
					return err
				}
				if ok {
					mu.Lock()
					flips++
					mu.Unlock()
				}
				return nil
			})
		}()
	}
	wg.Wait()

	if flips != 1 {
		t.Fatalf("expected exactly one transition, got %d", flips)
	}
}

func TestMemory_WhitelistKeepsFirstAddedOrder(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	tokenY := common.HexToAddress("0x00000000000000000000000000000000000000c2")
	_ = m.Update(ctx, func(tx Tx) error {
		_ = tx.PutWhitelistEntry(ctx, WhitelistEntry{Asset: tokenX, Allowed: true})
		_ = tx.PutWhitelistEntry(ctx, WhitelistEntry{Asset: tokenY, Allowed: true})
		return tx.PutWhitelistEntry(ctx, WhitelistEntry{Asset: tokenX, Allowed: false})
	})

	_ = m.View(ctx, func(tx Tx) error {
		list, _ := tx.Whitelist(ctx)
		if len(list) != 2 {
			t.Fatalf("expected 2 entries, got %d", len(list))
		}
		if list[0].Asset != tokenX || list[0].Allowed {
			t.Fatalf("unexpected first entry: %+v", list[0])
		}
		if list[1].Asset != tokenY || !list[1].Allowed {
			t.Fatalf("unexpected second entry: %+v", list[1])
		}
		return nil
	})
}

func TestMemory_EscrowTotalSumsAccounts(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	willB := common.HexToAddress("0x00000000000000000000000000000000000000a2")
	_ = m.Update(ctx, func(tx Tx) error {
		_ = tx.PutEscrowAccount(ctx, EscrowAccount{Will: willA, Asset: tokenX, Amount: uint256.NewInt(30)})
		return tx.PutEscrowAccount(ctx, EscrowAccount{Will: willB, Asset: tokenX, Amount: uint256.NewInt(12)})
	})
	_ = m.View(ctx, func(tx Tx) error {
		total, _ := tx.EscrowTotal(ctx, tokenX)
		if total.Uint64() != 42 {
			t.Fatalf("expected 42, got %s", total.Dec())
		}
		acc, found, _ := tx.EscrowAccount(ctx, willA, heir1)
		if found || !acc.Amount.IsZero() {
			t.Fatalf("expected empty account, got %+v found=%v", acc, found)
		}
		return nil
	})
}

func TestMemory_OutboxDelivery(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	_ = m.Update(ctx, func(tx Tx) error {
		for _, id := range ids {
			if err := tx.AppendEvent(ctx, Event{ID: id, Kind: "test", Payload: []byte(`{}`)}); err != nil {
				return err
			}
		}
		return nil
	})

	all, err := m.PendingEvents(ctx, 0)
	if err != nil || len(all) != len(ids) {
		t.Fatalf("expected every event without a limit, got %+v err=%v", all, err)
	}

	pending, _ := m.PendingEvents(ctx, 2)
	if len(pending) != 2 || pending[0].ID != ids[0] || pending[1].ID != ids[1] {
		t.Fatalf("unexpected pending batch: %+v", pending)
	}
	if err := m.MarkDelivered(ctx, []uuid.UUID{ids[0], ids[2]}); err != nil {
		t.Fatalf("mark delivered: %v", err)
	}
	pending, _ = m.PendingEvents(ctx, 10)
	if len(pending) != 1 || pending[0].ID != ids[1] {
		t.Fatalf("expected only the middle event pending, got %+v", pending)
	}
}
