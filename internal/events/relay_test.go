package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/mock/gomock"

	"github.com/smartwill/lastwill/internal/events/mocks"
	"github.com/smartwill/lastwill/internal/logging"
	"github.com/smartwill/lastwill/internal/metrics"
	"github.com/smartwill/lastwill/internal/store"
)

var willAddr = common.HexToAddress("0x00000000000000000000000000000000000000a1")

func appendEvents(t *testing.T, s store.Store, kinds ...string) {
	t.Helper()
	ctx := context.Background()
	err := s.Update(ctx, func(tx store.Tx) error {
		for _, k := range kinds {
			if err := Append(ctx, tx, k, willAddr, HeirRemoved{Will: willAddr}, time.Now()); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func TestHeirAddedPayloadUsesDecimalAmounts(t *testing.T) {
	big, err := uint256.FromDecimal("1000000000000000000000")
	require.NoError(t, err)
	e, err := New(KindHeirAdded, willAddr, HeirAdded{
		Will:    willAddr,
		Heir:    willAddr,
		Tokens:  []common.Address{willAddr},
		Amounts: []*uint256.Int{big},
	}, time.Now())
	require.NoError(t, err)

	var decoded struct {
		Amounts []string `json:"amounts"`
		Will    string   `json:"will"`
	}
	require.NoError(t, json.Unmarshal(e.Payload, &decoded))
	assert.Equal(t, []string{"1000000000000000000000"}, decoded.Amounts)
	assert.Equal(t, willAddr.Hex(), common.HexToAddress(decoded.Will).Hex())
}

func TestRelayFlushPublishesInOrder(t *testing.T) {
	ctrl := gomock.NewController(t)
	pub := mocks.NewMockPublisher(ctrl)
	s := store.NewMemory()
	appendEvents(t, s, KindHeirAdded, KindHeirRemoved)

	gomock.InOrder(
		pub.EXPECT().Publish(gomock.Any(), gomock.Cond(func(x any) bool { return x.(store.Event).Kind == KindHeirAdded })).Return(nil),
		pub.EXPECT().Publish(gomock.Any(), gomock.Cond(func(x any) bool { return x.(store.Event).Kind == KindHeirRemoved })).Return(nil),
	)

	m := metrics.New(prometheus.NewRegistry())
	relay := NewRelay(s, pub, logging.Discard(), m, time.Second)
	n, err := relay.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsPublished.WithLabelValues(KindHeirAdded)))

	pending, err := s.PendingEvents(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRelayStopsAtFirstFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	pub := mocks.NewMockPublisher(ctrl)
	s := store.NewMemory()
	appendEvents(t, s, KindHeirAdded, KindHeirRemoved, KindHeirExecuted)

	sinkDown := errors.New("sink down")
	gomock.InOrder(
		pub.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil),
		pub.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(sinkDown),
	)

	relay := NewRelay(s, pub, logging.Discard(), nil, time.Second)
	n, err := relay.Flush(context.Background())
	require.ErrorIs(t, err, sinkDown)
	assert.Equal(t, 1, n)

	pending, err := s.PendingEvents(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, KindHeirRemoved, pending[0].Kind)
}

func TestRelayRunReturnsOnCancel(t *testing.T) {
	ctrl := gomock.NewController(t)
	pub := mocks.NewMockPublisher(ctrl)
	relay := NewRelay(store.NewMemory(), pub, logging.Discard(), nil, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("relay did not stop")
	}
}

func TestRedisStreamPublisher(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	e, err := New(KindHeirExecuted, willAddr, HeirExecuted{Will: willAddr, Heir: willAddr}, time.Now())
	require.NoError(t, err)
	pub := NewRedisStreamPublisher(client, "lastwill:events")
	require.NoError(t, pub.Publish(context.Background(), e))

	entries, err := client.XRange(context.Background(), "lastwill:events", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, KindHeirExecuted, entries[0].Values["kind"])
	assert.Equal(t, e.ID.String(), entries[0].Values["id"])
}

type fakeProducer struct {
	records []*kgo.Record
	err     error
}

func (f *fakeProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	f.records = append(f.records, rs...)
	out := make(kgo.ProduceResults, len(rs))
	for i, r := range rs {
		out[i] = kgo.ProduceResult{Record: r, Err: f.err}
	}
	return out
}

func TestKafkaPublisherKeysBySource(t *testing.T) {
	fake := &fakeProducer{}
	pub := &KafkaPublisher{client: fake, topic: "lastwill.events"}
	e, err := New(KindDueDateUpdated, willAddr, DueDateUpdated{Will: willAddr, DueDate: 42}, time.Now())
	require.NoError(t, err)

	require.NoError(t, pub.Publish(context.Background(), e))
	require.Len(t, fake.records, 1)
	rec := fake.records[0]
	assert.Equal(t, "lastwill.events", rec.Topic)
	assert.Equal(t, willAddr.Bytes(), rec.Key)

	var env Envelope
	require.NoError(t, json.Unmarshal(rec.Value, &env))
	assert.Equal(t, e.ID, env.ID)
	assert.Equal(t, KindDueDateUpdated, env.Kind)
	assert.JSONEq(t, string(e.Payload), string(env.Payload))
}

func TestKafkaPublisherWrapsBrokerError(t *testing.T) {
	brokerErr := errors.New("not leader")
	pub := &KafkaPublisher{client: &fakeProducer{err: brokerErr}, topic: "t"}
	e, err := New(KindHeirRemoved, willAddr, HeirRemoved{}, time.Now())
	require.NoError(t, err)
	assert.ErrorIs(t, pub.Publish(context.Background(), e), brokerErr)
}
