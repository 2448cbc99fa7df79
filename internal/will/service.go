package will

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

const component = "will"

var tracer = otel.Tracer("github.com/smartwill/lastwill/internal/will")

// Service runs will operations in store transactions.
type Service struct {
	store   store.Store
	records *Records
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewService builds a will service.
func NewService(s store.Store, records *Records, logger *slog.Logger, m *metrics.Metrics) *Service {
	return &Service{store: s, records: records, logger: logger, metrics: m}
}

// AddHeirInput captures an allocation submitted by a testator.
type AddHeirInput struct {
	Caller  common.Address
	Will    common.Address
	Wallet  common.Address
	Tokens  []common.Address
	Amounts []*uint256.Int
	Value   *uint256.Int
}

func (s *Service) update(ctx context.Context, op string, will common.Address, fn func(ctx context.Context, tx store.Tx) error) error {
	ctx, span := tracer.Start(ctx, "will."+op, trace.WithAttributes(attribute.String("will", will.Hex())))
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

func (s *Service) view(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	return s.store.View(ctx, func(tx store.Tx) error { return fn(ctx, tx) })
}

// UpdateDueDate moves the will's due date.
func (s *Service) UpdateDueDate(ctx context.Context, caller, will common.Address, dueDate int64) error {
	err := s.update(ctx, "update_due_date", will, func(ctx context.Context, tx store.Tx) error {
		return s.records.UpdateDueDate(ctx, tx, caller, will, dueDate)
	})
	if err != nil {
		return err
	}
	s.logger.Info("due date updated", "will", will.Hex(), "due_date", dueDate)
	return nil
}

// AddHeir deposits and records an allocation.
func (s *Service) AddHeir(ctx context.Context, in AddHeirInput) error {
	err := s.update(ctx, "add_heir", in.Will, func(ctx context.Context, tx store.Tx) error {
		return s.records.AddHeir(ctx, tx, in.Caller, in.Will, in.Wallet, in.Tokens, in.Amounts, in.Value)
	})
	if err != nil {
		return err
	}
	s.logger.Info("heir added", "will", in.Will.Hex(), "heir", in.Wallet.Hex(), "assets", len(in.Tokens))
	return nil
}

// RemoveHeir withdraws an allocation and refunds the testator.
func (s *Service) RemoveHeir(ctx context.Context, caller, will, wallet common.Address) error {
	err := s.update(ctx, "remove_heir", will, func(ctx context.Context, tx store.Tx) error {
		return s.records.RemoveHeir(ctx, tx, caller, will, wallet)
	})
	if err != nil {
		return err
	}
	s.logger.Info("heir removed", "will", will.Hex(), "heir", wallet.Hex())
	return nil
}

// Execute releases an heir's allocation.
func (s *Service) Execute(ctx context.Context, caller, will, heir common.Address) error {
	err := s.update(ctx, "execute", will, func(ctx context.Context, tx store.Tx) error {
		return s.records.ExecuteLastWill(ctx, tx, caller, will, heir)
	})
	if err != nil {
		return err
	}
	s.metrics.IncrementExecution()
	s.logger.Info("heir executed", "will", will.Hex(), "heir", heir.Hex(), "executor", caller.Hex())
	return nil
}

// Get returns the will record.
func (s *Service) Get(ctx context.Context, will common.Address) (store.WillRecord, error) {
	var rec store.WillRecord
	err := s.view(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		rec, err = s.records.Get(ctx, tx, will)
		return err
	})
	return rec, err
}

// Heirs lists the will's heirs in insertion order.
func (s *Service) Heirs(ctx context.Context, will common.Address) ([]store.HeirAllocation, error) {
	var heirs []store.HeirAllocation
	err := s.view(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		heirs, err = s.records.Heirs(ctx, tx, will)
		return err
	})
	return heirs, err
}

// Heir returns one heir, failing with ErrHeirNotFound when absent.
func (s *Service) Heir(ctx context.Context, will, wallet common.Address) (HeirView, error) {
	var (
		hv HeirView
		ok bool
	)
	err := s.view(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		hv, ok, err = s.records.GetHeirByAddress(ctx, tx, will, wallet)
		return err
	})
	if err != nil {
		return HeirView{}, err
	}
	if !ok {
		return HeirView{}, apperr.ErrHeirNotFound
	}
	return hv, nil
}

// Totals aggregates the will's escrowed assets.
func (s *Service) Totals(ctx context.Context, will common.Address) (Totals, error) {
	var t Totals
	err := s.view(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		t, err = s.records.GetTotalTokenAmounts(ctx, tx, will)
		return err
	})
	return t, err
}
