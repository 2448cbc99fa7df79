package factory

import (
	"context"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/smartwill/lastwill/internal/apperr"
	"github.com/smartwill/lastwill/internal/metrics"
	"github.com/smartwill/lastwill/internal/store"
)

const component = "factory"

var tracer = otel.Tracer("github.com/smartwill/lastwill/internal/factory")

// Service runs factory operations in store transactions.
type Service struct {
	store   store.Store
	factory *Factory
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewService builds a factory service.
func NewService(s store.Store, f *Factory, logger *slog.Logger, m *metrics.Metrics) *Service {
	return &Service{store: s, factory: f, logger: logger, metrics: m}
}

func (s *Service) update(ctx context.Context, op string, attrs []attribute.KeyValue, fn func(ctx context.Context, tx store.Tx) error) error {
	ctx, span := tracer.Start(ctx, "factory."+op, trace.WithAttributes(attrs...))
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

// CreateLastWill creates the caller's will.
func (s *Service) CreateLastWill(ctx context.Context, caller common.Address, dueDate int64) (common.Address, error) {
	var address common.Address
	err := s.update(ctx, "create_last_will", []attribute.KeyValue{attribute.String("testator", caller.Hex())},
		func(ctx context.Context, tx store.Tx) error {
			var err error
			address, err = s.factory.CreateLastWill(ctx, tx, caller, dueDate)
			return err
		})
	if err != nil {
		return common.Address{}, err
	}
	s.logger.Info("will created", "will", address.Hex(), "testator", caller.Hex(), "due_date", dueDate)
	return address, nil
}

// AddToWhiteList permits an asset in new allocations.
func (s *Service) AddToWhiteList(ctx context.Context, caller, a common.Address) error {
	err := s.update(ctx, "add_token_to_whitelist", []attribute.KeyValue{attribute.String("asset", a.Hex())},
		func(ctx context.Context, tx store.Tx) error {
			return s.factory.AddTokenToWhiteList(ctx, tx, caller, a)
		})
	if err != nil {
		return err
	}
	s.logger.Info("token whitelisted", "asset", a.Hex())
	return nil
}

// RemoveFromWhiteList stops an asset from being used in new allocations.
func (s *Service) RemoveFromWhiteList(ctx context.Context, caller, a common.Address) error {
	err := s.update(ctx, "remove_token_from_whitelist", []attribute.KeyValue{attribute.String("asset", a.Hex())},
		func(ctx context.Context, tx store.Tx) error {
			return s.factory.RemoveTokenFromWhiteList(ctx, tx, caller, a)
		})
	if err != nil {
		return err
	}
	s.logger.Info("token removed from whitelist", "asset", a.Hex())
	return nil
}

// CreatedWill returns the testator's will, or the zero address.
func (s *Service) CreatedWill(ctx context.Context, testator common.Address) (common.Address, error) {
	var address common.Address
	err := s.store.View(ctx, func(tx store.Tx) error {
		var err error
		address, err = s.factory.GetCreatedWill(ctx, tx, testator)
		return err
	})
	return address, err
}

// InheritedWills lists the wills naming heir.
func (s *Service) InheritedWills(ctx context.Context, heir common.Address) ([]common.Address, error) {
	var wills []common.Address
	err := s.store.View(ctx, func(tx store.Tx) error {
		var err error
		wills, err = s.factory.GetInheritedWills(ctx, tx, heir)
		return err
	})
	return wills, err
}

// WhiteListEntry returns the whitelist entry of an asset.
func (s *Service) WhiteListEntry(ctx context.Context, a common.Address) (store.WhitelistEntry, error) {
	var entry store.WhitelistEntry
	err := s.store.View(ctx, func(tx store.Tx) error {
		var err error
		entry, err = s.factory.TokenWhiteList(ctx, tx, a)
		return err
	})
	return entry, err
}

// WhiteList returns the currently allowed assets.
func (s *Service) WhiteList(ctx context.Context) ([]store.WhitelistEntry, error) {
	var entries []store.WhitelistEntry
	err := s.store.View(ctx, func(tx store.Tx) error {
		var err error
		_, entries, err = s.factory.GetWhiteListedTokens(ctx, tx)
		return err
	})
	return entries, err
}
