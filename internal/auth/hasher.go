package auth

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"

	"github.com/ayush/socialgate/internal/apperr"
	"github.com/ayush/socialgate/internal/metrics"
)

// MaxPasswordBytes is the longest input bcrypt accepts.
const MaxPasswordBytes = 72

var (
	ErrEmptyPassword  = apperr.Hashing("password must not be empty")
	ErrMalformedHash  = apperr.Verification("stored password hash is malformed")
	ErrEmptyPlaintext = apperr.Verification("password must not be empty")

	ErrPasswordTooLong = apperr.Validation("Validation failed", []apperr.FieldError{
		{Field: "password", Message: "password must be at most 72 bytes"},
	})
)

// Hasher hashes and verifies passwords with bcrypt. Work is bounded by a
// weighted semaphore so a burst of logins queues instead of saturating
// every core.
type Hasher struct {
	cost    int
	pool    *semaphore.Weighted
	metrics *metrics.Metrics
}

// NewHasher returns a Hasher using the given bcrypt cost. workers <= 0
// defaults to GOMAXPROCS.
func NewHasher(cost, workers int) (*Hasher, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost %d out of range [%d, %d]", cost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Hasher{cost: cost, pool: semaphore.NewWeighted(int64(workers))}, nil
}

// WithMetrics records hash and verify latency on m.
func (h *Hasher) WithMetrics(m *metrics.Metrics) *Hasher {
	h.metrics = m
	return h
}

// Cost returns the configured work factor.
func (h *Hasher) Cost() int { return h.cost }

// Hash returns a salted bcrypt digest. Two calls with the same input never
// return the same digest.
func (h *Hasher) Hash(ctx context.Context, plaintext string) (string, error) {
	if plaintext == "" {
		return "", ErrEmptyPassword
	}
	if len(plaintext) > MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	if err := h.pool.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("acquire hash worker: %w", err)
	}
	defer h.pool.Release(1)

	start := time.Now()
	digest, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	h.metrics.ObserveHash("hash", time.Since(start))
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", ErrPasswordTooLong.Wrap(err)
	}
	if err != nil {
		return "", apperr.Hashing("failed to hash password").Wrap(err)
	}
	return string(digest), nil
}

// Verify reports whether plaintext matches digest. A mismatch is (false, nil);
// only unusable input returns an error.
func (h *Hasher) Verify(ctx context.Context, digest, plaintext string) (bool, error) {
	if plaintext == "" {
		return false, ErrEmptyPlaintext
	}
	if digest == "" {
		return false, ErrMalformedHash
	}
	if err := h.pool.Acquire(ctx, 1); err != nil {
		return false, fmt.Errorf("acquire hash worker: %w", err)
	}
	defer h.pool.Release(1)

	start := time.Now()
	err := bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext))
	h.metrics.ObserveHash("verify", time.Since(start))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, ErrMalformedHash.Wrap(err)
	}
}
