package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/smartwill/lastwill/internal/apperr"
)

func TestObserveOperationLabelsOutcome(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveOperation("will", "add_heir", time.Now(), nil)
	m.ObserveOperation("will", "add_heir", time.Now(), apperr.ErrNotOwner)
	m.ObserveOperation("will", "add_heir", time.Now(), errors.New("db down"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Operations.WithLabelValues("will", "add_heir", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Operations.WithLabelValues("will", "add_heir", "NotOwner")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Operations.WithLabelValues("will", "add_heir", "error")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveOperation("will", "execute", time.Now(), nil)
	m.IncrementPublished("heir_added")
	m.IncrementRelayFailure()
	m.IncrementExecution()
}
