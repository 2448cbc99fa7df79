package events

//go:generate mockgen -source=publisher.go -destination=mocks/mocks.go -package=mocks Publisher

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/smartwill/lastwill/internal/store"
)

// Publisher delivers events to downstream systems.
type Publisher interface {
	Publish(ctx context.Context, e store.Event) error
}

// LogPublisher writes events to the structured logger.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher constructs a publisher that only logs.
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// Publish writes the event to the logger.
func (p *LogPublisher) Publish(_ context.Context, e store.Event) error {
	if p == nil || p.logger == nil {
		return nil
	}
	p.logger.Info("event", "id", e.ID, "kind", e.Kind, "source", e.Source.Hex(), "payload", string(e.Payload))
	return nil
}

// RedisStreamPublisher appends events to a Redis stream.
type RedisStreamPublisher struct {
	client *redis.Client
	stream string
}

// NewRedisStreamPublisher constructs a publisher writing to stream.
func NewRedisStreamPublisher(client *redis.Client, stream string) *RedisStreamPublisher {
	return &RedisStreamPublisher{client: client, stream: stream}
}

// Publish appends the event as one stream entry.
func (p *RedisStreamPublisher) Publish(ctx context.Context, e store.Event) error {
	err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{
			"id":         e.ID.String(),
			"kind":       e.Kind,
			"source":     e.Source.Hex(),
			"payload":    string(e.Payload),
			"created_at": e.CreatedAt.Unix(),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", p.stream, err)
	}
	return nil
}

// producer is the part of *kgo.Client the Kafka publisher needs.
type producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// KafkaPublisher produces events to a Kafka topic keyed by source address,
// so events of one will stay ordered within a partition.
type KafkaPublisher struct {
	client producer
	topic  string
}

// NewKafkaPublisher constructs a publisher producing to topic.
func NewKafkaPublisher(client *kgo.Client, topic string) *KafkaPublisher {
	return &KafkaPublisher{client: client, topic: topic}
}

// Publish produces one record and waits for the broker acknowledgement.
func (p *KafkaPublisher) Publish(ctx context.Context, e store.Event) error {
	body, err := Encode(e)
	if err != nil {
		return err
	}
	rec := &kgo.Record{
		Topic: p.topic,
		Key:   e.Source.Bytes(),
		Value: body,
		Headers: []kgo.RecordHeader{
			{Key: "kind", Value: []byte(e.Kind)},
		},
	}
	if err := p.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("produce %s: %w", p.topic, err)
	}
	return nil
}
