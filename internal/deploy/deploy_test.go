package deploy

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartwill/lastwill/internal/apperr"
	"github.com/smartwill/lastwill/internal/store"
)

var admin = common.HexToAddress("0x00000000000000000000000000000000000000ad")

func TestBootstrapRecordsSingletons(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	sys := NewSystem(nil)

	addrs, err := Bootstrap(ctx, s, sys, admin)
	require.NoError(t, err)
	assert.Equal(t, Derive(admin), addrs)

	require.NoError(t, s.View(ctx, func(tx store.Tx) error {
		esc, err := sys.Escrow.Settings(ctx, tx)
		require.NoError(t, err)
		assert.Equal(t, addrs.Escrow, esc.Address)
		assert.Equal(t, addrs.Factory, esc.Factory)
		assert.Equal(t, admin, esc.Owner)

		reg, err := sys.Registry.Settings(ctx, tx)
		require.NoError(t, err)
		assert.Equal(t, addrs.Factory, reg.Factory)

		authorized, err := sys.Escrow.IsAuthorized(ctx, tx, addrs.Factory)
		require.NoError(t, err)
		assert.True(t, authorized)

		bank, err := sys.Bank.Address(ctx, tx)
		require.NoError(t, err)
		assert.Equal(t, addrs.Bank, bank)
		return nil
	}))
}

func TestBootstrapIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	sys := NewSystem(nil)

	first, err := Bootstrap(ctx, s, sys, admin)
	require.NoError(t, err)

	// a second run with another admin keeps the recorded deployment
	other := common.HexToAddress("0x00000000000000000000000000000000000000ee")
	second, err := Bootstrap(ctx, s, sys, other)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestBootstrapRejectsZeroAdmin(t *testing.T) {
	_, err := Bootstrap(context.Background(), store.NewMemory(), NewSystem(nil), common.Address{})
	assert.ErrorIs(t, err, apperr.ErrInvalidAddress)
}

func TestDeriveIsDistinct(t *testing.T) {
	a := Derive(admin)
	seen := map[common.Address]bool{}
	for _, addr := range []common.Address{a.Bank, a.Escrow, a.Registry, a.Factory} {
		assert.False(t, seen[addr])
		seen[addr] = true
	}
}
