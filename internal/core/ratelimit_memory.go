package core

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// idleLimiterTTL is how long an unused client bucket is kept.
const idleLimiterTTL = 10 * time.Minute

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// MemoryRateLimitStore keeps one token bucket per key in process memory.
// Each replica limits independently.
type MemoryRateLimitStore struct {
	rps   rate.Limit
	burst int
	now   func() time.Time

	mu        sync.Mutex
	limiters  map[string]*limiterEntry
	lastSweep time.Time
}

// NewMemoryRateLimitStore allows rps sustained requests per second with
// bursts up to burst per key.
func NewMemoryRateLimitStore(rps float64, burst int) *MemoryRateLimitStore {
	if burst < 1 {
		burst = 1
	}
	return &MemoryRateLimitStore{
		rps:      rate.Limit(rps),
		burst:    burst,
		now:      time.Now,
		limiters: make(map[string]*limiterEntry),
	}
}

// Allow implements RateLimitStore.
func (m *MemoryRateLimitStore) Allow(_ context.Context, key string) (RateLimitResult, error) {
	now := m.now()

	m.mu.Lock()
	m.sweep(now)
	entry, ok := m.limiters[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(m.rps, m.burst)}
		m.limiters[key] = entry
	}
	entry.lastSeen = now
	m.mu.Unlock()

	allowed := entry.limiter.AllowN(now, 1)
	tokens := entry.limiter.TokensAt(now)

	result := RateLimitResult{
		Allowed:   allowed,
		Limit:     m.burst,
		Remaining: max(int(tokens), 0),
		ResetAt:   now,
	}
	if tokens < 1 && m.rps > 0 {
		wait := time.Duration((1 - tokens) / float64(m.rps) * float64(time.Second))
		result.ResetAt = now.Add(wait)
	}
	return result, nil
}

// sweep drops idle buckets at most once per TTL. Callers hold m.mu.
func (m *MemoryRateLimitStore) sweep(now time.Time) {
	if now.Sub(m.lastSweep) < idleLimiterTTL {
		return
	}
	for key, e := range m.limiters {
		if now.Sub(e.lastSeen) > idleLimiterTTL {
			delete(m.limiters, key)
		}
	}
	m.lastSweep = now
}
