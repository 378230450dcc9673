package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimit bounds how fast a single sender may publish onto the bus.
type RateLimit struct {
	PerMinute int
	Burst     int
}

// LimiterStore abstracts the storage backing per-sender rate limiting, so a
// single-node deployment can use an in-memory bucket and a multi-node
// deployment can share state through Redis.
type LimiterStore interface {
	Allow(ctx context.Context, senderPK string, limit RateLimit, cost int) (bool, error)
}

// EnforceRateLimit denies publication once a sender exceeds limit.
func EnforceRateLimit(ctx context.Context, store LimiterStore, senderPK string, limit RateLimit) error {
	if store == nil {
		return fmt.Errorf("bus: no limiter store configured")
	}
	allowed, err := store.Allow(ctx, senderPK, limit, 1)
	if err != nil {
		return fmt.Errorf("bus: rate limit check failed: %w", err)
	}
	if !allowed {
		return fmt.Errorf("bus: rate limit exceeded for sender %s", senderPK)
	}
	return nil
}

// InMemoryLimiterStore is a single-process LimiterStore, one
// golang.org/x/time/rate.Limiter per sender.
type InMemoryLimiterStore struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewInMemoryLimiterStore() *InMemoryLimiterStore {
	return &InMemoryLimiterStore{limiters: make(map[string]*rate.Limiter)}
}

func (s *InMemoryLimiterStore) Allow(ctx context.Context, senderPK string, limit RateLimit, cost int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lim, exists := s.limiters[senderPK]
	if !exists {
		perSec := float64(limit.PerMinute) / 60.0
		if perSec <= 0 {
			perSec = 1
		}
		lim = rate.NewLimiter(rate.Limit(perSec), limit.Burst)
		s.limiters[senderPK] = lim
	}
	return lim.AllowN(time.Now(), cost), nil
}
