package ratelimit

import (
	"context"
	"strings"
	"time"
)

// CounterStore is the counter capability behind the limiter. Implementations
// must make Increment atomic per key so concurrent events are not undercounted.
type CounterStore interface {
	// Count returns the number of events recorded in the key's active window,
	// or 0 when no window is open.
	Count(ctx context.Context, key string) (int, error)
	// Increment records one event. The first event for a key opens a new
	// window that expires after the given duration.
	Increment(ctx context.Context, key string, window time.Duration) error
}

// Limiter is a fixed-window rate limiter: all events within the window
// count together, and the counter resets entirely once the window elapses
// after its first event.
//
// The limiter itself never blocks an Increment at capacity; callers check
// Remaining before performing the guarded action and increment only after
// it succeeds.
type Limiter struct {
	store  CounterStore
	max    int
	window time.Duration
}

func NewLimiter(store CounterStore, max int, window time.Duration) *Limiter {
	return &Limiter{
		store:  store,
		max:    max,
		window: window,
	}
}

// Remaining returns how many events are left in the key's active window,
// clamped at zero.
func (l *Limiter) Remaining(ctx context.Context, key string) (int, error) {
	count, err := l.store.Count(ctx, key)
	if err != nil {
		return 0, err
	}

	remaining := l.max - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// Increment records one event against the key.
func (l *Limiter) Increment(ctx context.Context, key string) error {
	return l.store.Increment(ctx, key, l.window)
}

// Key builds a limiter key from an action namespace and an identifier.
// The identifier is lowercased so differently-cased emails share a window.
func Key(namespace, identifier string) string {
	return namespace + ":" + strings.ToLower(identifier)
}
