package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/smartwill/lastwill/internal/metrics"
	"github.com/smartwill/lastwill/internal/store"
)

const defaultBatch = 100

// Relay moves committed outbox events to a Publisher in append order.
// Delivery is at least once: an event whose delivery mark was lost is
// published again on the next pass.
type Relay struct {
	store     store.Store
	publisher Publisher
	logger    *slog.Logger
	metrics   *metrics.Metrics
	interval  time.Duration
	batch     int
}

// NewRelay constructs a relay polling every interval.
func NewRelay(s store.Store, p Publisher, logger *slog.Logger, m *metrics.Metrics, interval time.Duration) *Relay {
	if interval <= 0 {
		interval = time.Second
	}
	return &Relay{store: s, publisher: p, logger: logger, metrics: m, interval: interval, batch: defaultBatch}
}

// Run flushes the outbox until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		if _, err := r.Flush(ctx); err != nil && ctx.Err() == nil {
			r.logger.Warn("relay flush failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Flush publishes pending events until the outbox is empty or a publish
// fails. It returns how many events were delivered.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	delivered := 0
	for {
		pending, err := r.store.PendingEvents(ctx, r.batch)
		if err != nil {
			return delivered, err
		}
		if len(pending) == 0 {
			return delivered, nil
		}

		done := make([]uuid.UUID, 0, len(pending))
		var publishErr error
		for _, e := range pending {
			if publishErr = r.publisher.Publish(ctx, e); publishErr != nil {
				r.metrics.IncrementRelayFailure()
				break
			}
			r.metrics.IncrementPublished(e.Kind)
			done = append(done, e.ID)
		}
		if err := r.store.MarkDelivered(ctx, done); err != nil {
			return delivered, err
		}
		delivered += len(done)
		if publishErr != nil {
			return delivered, publishErr
		}
		if len(pending) < r.batch {
			return delivered, nil
		}
	}
}
