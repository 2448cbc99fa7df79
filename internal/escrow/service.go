package escrow

import (
	"context"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/smartwill/lastwill/internal/metrics"
	"github.com/smartwill/lastwill/internal/store"
)

// Service exposes the escrow ledger to the API. Deposits and releases go
// through wills, never through here.
type Service struct {
	store   store.Store
	escrow  *Escrow
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewService(s store.Store, e *Escrow, logger *slog.Logger, m *metrics.Metrics) *Service {
	return &Service{store: s, escrow: e, logger: logger, metrics: m}
}

// TransferOwnership hands the administrator capability to newOwner.
func (s *Service) TransferOwnership(ctx context.Context, caller, newOwner common.Address) error {
	started := time.Now()
	err := s.store.Update(ctx, func(tx store.Tx) error {
		return s.escrow.TransferOwnership(ctx, tx, caller, newOwner)
	})
	s.metrics.ObserveOperation("escrow", "transfer_ownership", started, err)
	if err != nil {
		return err
	}
	s.logger.Info("escrow ownership transferred", "from", caller.Hex(), "to", newOwner.Hex())
	return nil
}

// Settings returns the escrow's address, owner and factory.
func (s *Service) Settings(ctx context.Context) (store.Contract, error) {
	var c store.Contract
	err := s.store.View(ctx, func(tx store.Tx) error {
		var err error
		c, err = s.escrow.Settings(ctx, tx)
		return err
	})
	return c, err
}

// TokenBalance returns the will's account of the asset.
func (s *Service) TokenBalance(ctx context.Context, will, a common.Address) (store.EscrowAccount, error) {
	var acc store.EscrowAccount
	err := s.store.View(ctx, func(tx store.Tx) error {
		var err error
		acc, err = s.escrow.TokenBalance(ctx, tx, will, a)
		return err
	})
	return acc, err
}

// NativeBalance returns the native currency booked to the will.
func (s *Service) NativeBalance(ctx context.Context, will common.Address) (*uint256.Int, error) {
	var v *uint256.Int
	err := s.store.View(ctx, func(tx store.Tx) error {
		var err error
		v, err = s.escrow.NativeBalance(ctx, tx, will)
		return err
	})
	return v, err
}

// Status reports whether addr is an authorized caller and a registered will.
func (s *Service) Status(ctx context.Context, addr common.Address) (authorized, registered bool, err error) {
	err = s.store.View(ctx, func(tx store.Tx) error {
		var err error
		if authorized, err = s.escrow.IsAuthorized(ctx, tx, addr); err != nil {
			return err
		}
		registered, err = s.escrow.IsRegistered(ctx, tx, addr)
		return err
	})
	return authorized, registered, err
}
