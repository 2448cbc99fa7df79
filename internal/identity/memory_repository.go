package identity

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/smartwill/lastwill/internal/clock"
)

type memoryRepository struct {
	mu         sync.Mutex
	clock      clock.Clock
	challenges map[common.Address]Challenge
}

// NewMemoryRepository builds an in-process challenge store for development
// and tests. Expiry is checked against clk on Consume.
func NewMemoryRepository(clk clock.Clock) Repository {
	if clk == nil {
		clk = clock.System{}
	}
	return &memoryRepository{clock: clk, challenges: make(map[common.Address]Challenge)}
}

func (r *memoryRepository) Save(_ context.Context, ch Challenge, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch.ExpiresAt = ch.IssuedAt.Add(ttl)
	r.challenges[ch.Address] = ch
	return nil
}

func (r *memoryRepository) Consume(_ context.Context, address common.Address) (Challenge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.challenges[address]
	if !ok {
		return Challenge{}, ErrChallengeNotFound
	}
	delete(r.challenges, address)
	if !r.clock.Now().Before(ch.ExpiresAt) {
		return Challenge{}, ErrChallengeNotFound
	}
	return ch, nil
}
