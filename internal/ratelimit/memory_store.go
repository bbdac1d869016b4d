package ratelimit

import (
	"context"
	"sync"
	"time"
)

type windowCounter struct {
	count   int
	startAt time.Time
	window  time.Duration
}

func (w *windowCounter) expired(now time.Time) bool {
	return now.Sub(w.startAt) >= w.window
}

// MemoryStore is a process-local CounterStore backed by a mutex-guarded
// map. It serves tests and single-node deployments without Redis.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]*windowCounter
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		counters: make(map[string]*windowCounter),
		now:      time.Now,
	}
}

func (s *MemoryStore) Count(ctx context.Context, key string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counter, ok := s.counters[key]
	if !ok {
		return 0, nil
	}
	if counter.expired(s.now()) {
		delete(s.counters, key)
		return 0, nil
	}
	return counter.count, nil
}

func (s *MemoryStore) Increment(ctx context.Context, key string, window time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	counter, ok := s.counters[key]
	if !ok || counter.expired(s.now()) {
		s.counters[key] = &windowCounter{count: 1, startAt: s.now(), window: window}
		return nil
	}

	counter.count++
	return nil
}
