package core

import (
	"context"
	"time"
)

// HealthProbe is a dependency checked by the health endpoint.
type HealthProbe interface {
	// Name identifies the probe in the health response (e.g. "mongo").
	Name() string
	// Check returns nil when the dependency is usable. It must honor ctx.
	Check(ctx context.Context) error
}

// RateLimitStore decides whether a client may make another request.
type RateLimitStore interface {
	// Allow consumes one request for key and reports the outcome.
	Allow(ctx context.Context, key string) (RateLimitResult, error)
}

// RateLimitResult contains the outcome of a rate limit check.
type RateLimitResult struct {
	Allowed bool
	// Limit is the burst size the client is held to.
	Limit int
	// Remaining is the number of requests that can be made immediately.
	Remaining int
	// ResetAt is when at least one more request becomes available.
	ResetAt time.Time
}
