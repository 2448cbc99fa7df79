package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrChallengeNotFound means no live challenge exists for the address.
	ErrChallengeNotFound = errors.New("challenge not found or expired")
	// ErrInvalidSignature means the signature does not recover to the address.
	ErrInvalidSignature = errors.New("invalid signature")
)

const challengePrefix = "challenge:v1:"

// Repository keeps outstanding challenges. Consume returns the challenge
// and deletes it so each one verifies at most once.
type Repository interface {
	Save(ctx context.Context, ch Challenge, ttl time.Duration) error
	Consume(ctx context.Context, address common.Address) (Challenge, error)
}

// RedisRepository stores challenges in Redis with a TTL.
type RedisRepository struct {
	client *redis.Client
}

// NewRedisRepository builds a Redis-backed challenge repository.
func NewRedisRepository(client *redis.Client) *RedisRepository {
	return &RedisRepository{client: client}
}

func challengeKey(address common.Address) string {
	return challengePrefix + strings.ToLower(address.Hex())
}

// Save replaces any outstanding challenge for the address.
func (r *RedisRepository) Save(ctx context.Context, ch Challenge, ttl time.Duration) error {
	payload, err := json.Marshal(ch)
	if err != nil {
		return fmt.Errorf("encode challenge: %w", err)
	}
	if err := r.client.Set(ctx, challengeKey(ch.Address), payload, ttl).Err(); err != nil {
		return fmt.Errorf("store challenge: %w", err)
	}
	return nil
}

// Consume atomically reads and deletes the challenge.
func (r *RedisRepository) Consume(ctx context.Context, address common.Address) (Challenge, error) {
	raw, err := r.client.GetDel(ctx, challengeKey(address)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Challenge{}, ErrChallengeNotFound
	}
	if err != nil {
		return Challenge{}, fmt.Errorf("load challenge: %w", err)
	}
	var ch Challenge
	if err := json.Unmarshal(raw, &ch); err != nil {
		return Challenge{}, fmt.Errorf("decode challenge: %w", err)
	}
	return ch, nil
}
