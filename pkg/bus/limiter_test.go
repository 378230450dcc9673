package bus

import (
	"context"
	"testing"
	"time"
)

func TestTokenBucket_Throttling(t *testing.T) {
	store := NewInMemoryLimiterStore()
	limit := RateLimit{PerMinute: 60, Burst: 1}
	sender := "ed25519:test-sender"

	if allowed, err := store.Allow(context.Background(), sender, limit, 1); err != nil || !allowed {
		t.Fatalf("first request failed: allowed=%v, err=%v", allowed, err)
	}

	if allowed, _ := store.Allow(context.Background(), sender, limit, 1); allowed {
		t.Errorf("second immediate request allowed, expected rate limit")
	}

	time.Sleep(1100 * time.Millisecond)

	if allowed, err := store.Allow(context.Background(), sender, limit, 1); err != nil || !allowed {
		t.Errorf("third request after refill failed: allowed=%v, err=%v", allowed, err)
	}
}

func TestEnforceRateLimit_NoStore(t *testing.T) {
	if err := EnforceRateLimit(context.Background(), nil, "sender", RateLimit{PerMinute: 60, Burst: 1}); err == nil {
		t.Error("expected error when no limiter store is configured")
	}
}
