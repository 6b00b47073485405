package core

import (
	"context"
	"testing"
	"time"
)

func newFixedClockStore(rps float64, burst int, now *time.Time) *MemoryRateLimitStore {
	s := NewMemoryRateLimitStore(rps, burst)
	s.now = func() time.Time { return *now }
	return s
}

func TestMemoryRateLimitStore_BurstThenDeny(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s := newFixedClockStore(1, 3, &now)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := s.Allow(ctx, "10.0.0.1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !res.Allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
		if res.Limit != 3 {
			t.Errorf("expected limit 3, got %d", res.Limit)
		}
		if res.Remaining != 2-i {
			t.Errorf("request %d: expected remaining %d, got %d", i+1, 2-i, res.Remaining)
		}
	}

	res, _ := s.Allow(ctx, "10.0.0.1")
	if res.Allowed {
		t.Fatal("fourth request should be denied")
	}
	if !res.ResetAt.After(now) {
		t.Errorf("ResetAt should be in the future, got %v", res.ResetAt)
	}
}

func TestMemoryRateLimitStore_Refills(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s := newFixedClockStore(1, 1, &now)
	ctx := context.Background()

	if res, _ := s.Allow(ctx, "k"); !res.Allowed {
		t.Fatal("first request should be allowed")
	}
	if res, _ := s.Allow(ctx, "k"); res.Allowed {
		t.Fatal("second request should be denied")
	}

	now = now.Add(time.Second)
	if res, _ := s.Allow(ctx, "k"); !res.Allowed {
		t.Error("request after refill should be allowed")
	}
}

func TestMemoryRateLimitStore_KeysAreIndependent(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s := newFixedClockStore(1, 1, &now)
	ctx := context.Background()

	_, _ = s.Allow(ctx, "a")
	if res, _ := s.Allow(ctx, "b"); !res.Allowed {
		t.Error("a different key must have its own bucket")
	}
}

func TestMemoryRateLimitStore_SweepsIdleKeys(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s := newFixedClockStore(1, 1, &now)
	ctx := context.Background()

	_, _ = s.Allow(ctx, "idle")
	now = now.Add(2 * idleLimiterTTL)
	_, _ = s.Allow(ctx, "fresh")

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.limiters["idle"]; ok {
		t.Error("idle key should have been swept")
	}
	if _, ok := s.limiters["fresh"]; !ok {
		t.Error("fresh key should be kept")
	}
}

func TestNewMemoryRateLimitStore_MinimumBurst(t *testing.T) {
	s := NewMemoryRateLimitStore(5, 0)
	if s.burst != 1 {
		t.Errorf("expected burst clamped to 1, got %d", s.burst)
	}
}
