package asset

import (
	"context"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/smartwill/lastwill/internal/apperr"
	"github.com/smartwill/lastwill/internal/metrics"
	"github.com/smartwill/lastwill/internal/store"
)

const component = "bank"

var tracer = otel.Tracer("github.com/smartwill/lastwill/internal/asset")

// Service runs bank operations in store transactions.
type Service struct {
	store   store.Store
	bank    *Bank
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewService builds a bank service.
func NewService(s store.Store, b *Bank, logger *slog.Logger, m *metrics.Metrics) *Service {
	return &Service{store: s, bank: b, logger: logger, metrics: m}
}

func (s *Service) update(ctx context.Context, op string, a common.Address, fn func(ctx context.Context, tx store.Tx) error) error {
	ctx, span := tracer.Start(ctx, "bank."+op, trace.WithAttributes(attribute.String("asset", a.Hex())))
	defer span.End()

	started := time.Now()
	err := s.store.Update(ctx, func(tx store.Tx) error { return fn(ctx, tx) })
	s.metrics.ObserveOperation(component, op, started, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, apperr.CodeOf(err))
	}
	return err
}

// RegisterToken makes a token known to the bank.
func (s *Service) RegisterToken(ctx context.Context, caller, a common.Address, symbol string, decimals uint8) error {
	err := s.update(ctx, "register_token", a, func(ctx context.Context, tx store.Tx) error {
		return s.bank.RegisterToken(ctx, tx, caller, a, symbol, decimals)
	})
	if err != nil {
		return err
	}
	s.logger.Info("token registered", "asset", a.Hex(), "symbol", symbol, "decimals", decimals)
	return nil
}

// Mint credits newly issued units to a holder.
func (s *Service) Mint(ctx context.Context, caller, a, to common.Address, amount *uint256.Int) error {
	err := s.update(ctx, "mint", a, func(ctx context.Context, tx store.Tx) error {
		return s.bank.Mint(ctx, tx, caller, a, to, amount)
	})
	if err != nil {
		return err
	}
	s.logger.Info("minted", "asset", a.Hex(), "to", to.Hex(), "amount", amount.Dec())
	return nil
}

// Approve sets spender's allowance over the caller's balance.
func (s *Service) Approve(ctx context.Context, caller, a, spender common.Address, amount *uint256.Int) error {
	return s.update(ctx, "approve", a, func(ctx context.Context, tx store.Tx) error {
		return s.bank.Approve(ctx, tx, caller, a, spender, amount)
	})
}

// Transfer moves the caller's units to another holder.
func (s *Service) Transfer(ctx context.Context, caller, a, to common.Address, amount *uint256.Int) error {
	return s.update(ctx, "transfer", a, func(ctx context.Context, tx store.Tx) error {
		return s.bank.Transfer(ctx, tx, caller, a, to, amount)
	})
}

// Token returns the asset's metadata.
func (s *Service) Token(ctx context.Context, a common.Address) (store.Token, error) {
	var t store.Token
	err := s.store.View(ctx, func(tx store.Tx) error {
		var err error
		t, err = s.bank.Token(ctx, tx, a)
		return err
	})
	return t, err
}

// BalanceOf returns the holder's units of the asset.
func (s *Service) BalanceOf(ctx context.Context, holder, a common.Address) (*uint256.Int, error) {
	var v *uint256.Int
	err := s.store.View(ctx, func(tx store.Tx) error {
		var err error
		v, err = s.bank.BalanceOf(ctx, tx, holder, a)
		return err
	})
	return v, err
}

// Allowance returns what spender may still draw from owner.
func (s *Service) Allowance(ctx context.Context, owner, spender, a common.Address) (*uint256.Int, error) {
	var v *uint256.Int
	err := s.store.View(ctx, func(tx store.Tx) error {
		var err error
		v, err = s.bank.Allowance(ctx, tx, owner, spender, a)
		return err
	})
	return v, err
}
