// Package ratelimit implements fixed-window request counting over a
// pluggable store.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ayush/socialgate/internal/apperr"
)

// Store counts hits per key within fixed windows. Increment must be atomic
// per key: concurrent callers for one key observe distinct counts.
type Store interface {
	// Increment records one hit for key and returns the count in the current
	// window and the instant that window resets. The first hit after a window
	// elapses starts a new window at count 1.
	Increment(ctx context.Context, key string, window time.Duration) (count int64, resetAt time.Time, err error)
}

// Decision is the outcome of a single Allow call.
type Decision struct {
	Key       string
	Limit     int64
	Remaining int64
	ResetAt   time.Time
}

// Limiter allows at most Max requests per key per Window.
type Limiter struct {
	max    int64
	window time.Duration
	store  Store
	now    func() time.Time
}

func NewLimiter(store Store, max int, window time.Duration) (*Limiter, error) {
	if store == nil {
		return nil, fmt.Errorf("rate limiter: nil store")
	}
	if max <= 0 {
		return nil, fmt.Errorf("rate limiter: max must be positive, got %d", max)
	}
	if window <= 0 {
		return nil, fmt.Errorf("rate limiter: window must be positive, got %s", window)
	}
	return &Limiter{max: int64(max), window: window, store: store, now: time.Now}, nil
}

// Allow counts a request for key. Once the count exceeds the limit it returns
// an apperr rate-limit error carrying key and the time until the window resets.
// Store failures are returned as-is so the caller can decide to fail open.
func (l *Limiter) Allow(ctx context.Context, key string) (Decision, error) {
	count, resetAt, err := l.store.Increment(ctx, key, l.window)
	if err != nil {
		return Decision{}, fmt.Errorf("increment %q: %w", key, err)
	}

	d := Decision{Key: key, Limit: l.max, ResetAt: resetAt}
	if count > l.max {
		retryAfter := resetAt.Sub(l.now())
		if retryAfter < 0 {
			retryAfter = 0
		}
		return d, apperr.RateLimited(key, retryAfter)
	}
	d.Remaining = l.max - count
	return d, nil
}

// entry is one key's counter within its current window.
type entry struct {
	count   int64
	resetAt time.Time
}

// sweepEvery bounds stale entries to active keys plus this many.
const sweepEvery = 100

// MemoryStore is an in-process Store. It suits a single instance; use
// RedisStore when several instances must share budgets.
type MemoryStore struct {
	mu         sync.Mutex
	entries    map[string]*entry
	now        func() time.Time
	newWindows int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*entry), now: time.Now}
}

func (s *MemoryStore) Increment(_ context.Context, key string, window time.Duration) (int64, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e, ok := s.entries[key]
	// the reset instant itself belongs to the next window
	if !ok || !now.Before(e.resetAt) {
		e = &entry{count: 0, resetAt: now.Add(window)}
		s.entries[key] = e

		s.newWindows++
		if s.newWindows >= sweepEvery {
			s.sweep(now)
			s.newWindows = 0
		}
	}
	e.count++
	return e.count, e.resetAt, nil
}

// Len returns the number of tracked keys.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// sweep drops expired entries. Caller holds s.mu.
func (s *MemoryStore) sweep(now time.Time) {
	for k, e := range s.entries {
		if !now.Before(e.resetAt) {
			delete(s.entries, k)
		}
	}
}
