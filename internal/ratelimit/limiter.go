// Package ratelimit throttles outgoing DAP commands by category so a
// caller driving the engine in a tight loop (e.g. repeated step requests
// from an editor key-repeat) cannot flood the adapter connection. Adapted
// from the teacher's internal/core/security/ratelimit.go: the same
// per-operation golang.org/x/time/rate map, repointed from
// query/process/pty categories to the command categories commands.go
// actually issues ("step", "evaluate"); "default" covers any other
// category name.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

type limit struct {
	rps   float64
	burst int
}

var limits = map[string]limit{
	"step":     {rps: 20, burst: 10}, // step/continue: frequent, low per-request cost
	"evaluate": {rps: 5, burst: 5},   // evaluate: can be expensive on the adapter side
	"default":  {rps: 10, burst: 10},
}

// Limiter manages one token-bucket limiter per command category.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// New creates an empty Limiter.
func New() *Limiter {
	return &Limiter{limiters: make(map[string]*rate.Limiter)}
}

func (l *Limiter) get(category string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if lim, ok := l.limiters[category]; ok {
		return lim
	}
	lm, ok := limits[category]
	if !ok {
		lm = limits["default"]
	}
	lim := rate.NewLimiter(rate.Limit(lm.rps), lm.burst)
	l.limiters[category] = lim
	return lim
}

// Allow reports whether a command in category may proceed immediately,
// consuming a token if so.
func (l *Limiter) Allow(category string) bool {
	return l.get(category).Allow()
}

// Wait blocks until a command in category may proceed or ctx is done,
// whichever comes first.
func (l *Limiter) Wait(ctx context.Context, category string) error {
	return l.get(category).Wait(ctx)
}
