package core

import (
	"context"
	"sync"
	"time"
)

// MockRateLimitStore implements RateLimitStore for tests in this and other
// packages. AllowFunc, when set, takes precedence over Result and Err.
//
//	store := &MockRateLimitStore{
//	    Result: RateLimitResult{Allowed: false, Limit: 40, ResetAt: time.Now().Add(time.Second)},
//	}
type MockRateLimitStore struct {
	Result    RateLimitResult
	Err       error
	AllowFunc func(ctx context.Context, key string) (RateLimitResult, error)

	mu    sync.Mutex
	Calls []string
}

// Allow records key and returns the configured outcome.
func (m *MockRateLimitStore) Allow(ctx context.Context, key string) (RateLimitResult, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, key)
	m.mu.Unlock()

	if m.AllowFunc != nil {
		return m.AllowFunc(ctx, key)
	}
	return m.Result, m.Err
}

// MockHealthProbe implements HealthProbe with a fixed outcome. Delay makes
// Check block until it elapses or ctx is done.
type MockHealthProbe struct {
	ProbeName string
	Err       error
	Delay     time.Duration
	Panic     any
}

func (p *MockHealthProbe) Name() string { return p.ProbeName }

func (p *MockHealthProbe) Check(ctx context.Context) error {
	if p.Panic != nil {
		panic(p.Panic)
	}
	if p.Delay > 0 {
		select {
		case <-time.After(p.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return p.Err
}
