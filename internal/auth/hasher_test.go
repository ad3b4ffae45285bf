package auth

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ayush/socialgate/internal/apperr"
	"github.com/ayush/socialgate/internal/metrics"
)

func newTestHasher(t *testing.T) *Hasher {
	t.Helper()
	h, err := NewHasher(bcrypt.MinCost, 2)
	require.NoError(t, err)
	return h
}

func TestHasher_RoundTrip(t *testing.T) {
	h := newTestHasher(t)
	ctx := context.Background()

	for _, pw := range []string{"hunter22", "correct horse battery staple", "пароль", "x"} {
		digest, err := h.Hash(ctx, pw)
		require.NoError(t, err)

		ok, err := h.Verify(ctx, digest, pw)
		require.NoError(t, err)
		assert.True(t, ok, "password %q should verify", pw)
	}
}

func TestHasher_SaltedDigestsDiffer(t *testing.T) {
	h := newTestHasher(t)
	ctx := context.Background()

	a, err := h.Hash(ctx, "same-input")
	require.NoError(t, err)
	b, err := h.Hash(ctx, "same-input")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestHasher_MismatchReturnsFalseWithoutError(t *testing.T) {
	h := newTestHasher(t)
	ctx := context.Background()

	digest, err := h.Hash(ctx, "right-password")
	require.NoError(t, err)

	ok, err := h.Verify(ctx, digest, "wrong-password")
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestHasher_EmptyInput(t *testing.T) {
	h := newTestHasher(t)
	ctx := context.Background()

	_, err := h.Hash(ctx, "")
	assert.ErrorIs(t, err, ErrEmptyPassword)

	_, err = h.Verify(ctx, "$2a$04$abc", "")
	assert.ErrorIs(t, err, ErrEmptyPlaintext)
}

func TestHasher_MalformedDigest(t *testing.T) {
	h := newTestHasher(t)
	ctx := context.Background()

	for _, digest := range []string{"", "not-a-bcrypt-hash", "$2a$"} {
		ok, err := h.Verify(ctx, digest, "whatever")
		assert.False(t, ok)
		assert.ErrorIs(t, err, ErrMalformedHash, "digest %q", digest)
	}
}

func TestHasher_CostIsConfigurable(t *testing.T) {
	h, err := NewHasher(bcrypt.MinCost+1, 1)
	require.NoError(t, err)

	digest, err := h.Hash(context.Background(), "tunable")
	require.NoError(t, err)

	cost, err := bcrypt.Cost([]byte(digest))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.MinCost+1, cost)
	assert.Equal(t, bcrypt.MinCost+1, h.Cost())
}

func TestNewHasher_RejectsOutOfRangeCost(t *testing.T) {
	_, err := NewHasher(bcrypt.MinCost-1, 1)
	assert.Error(t, err)
	_, err = NewHasher(bcrypt.MaxCost+1, 1)
	assert.Error(t, err)
}

func TestHasher_CancelledContextWhileWaiting(t *testing.T) {
	h, err := NewHasher(bcrypt.MinCost, 1)
	require.NoError(t, err)

	// occupy the only worker
	require.NoError(t, h.pool.Acquire(context.Background(), 1))
	defer h.pool.Release(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = h.Hash(ctx, "queued")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHasher_ConcurrentUse(t *testing.T) {
	h := newTestHasher(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			digest, err := h.Hash(ctx, "parallel")
			if err != nil {
				errs <- err
				return
			}
			if ok, err := h.Verify(ctx, digest, "parallel"); err != nil || !ok {
				errs <- assert.AnError
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Fatalf("concurrent hash/verify failed: %v", err)
	}
}

func TestHasher_RecordsLatency(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	h := newTestHasher(t).WithMetrics(m)

	digest, err := h.Hash(context.Background(), "hunter22")
	require.NoError(t, err)
	_, err = h.Verify(context.Background(), digest, "hunter22")
	require.NoError(t, err)

	assert.Equal(t, 2, testutil.CollectAndCount(m.HashDuration))
}

func TestHasher_RejectsPasswordOverBcryptLimit(t *testing.T) {
	h := newTestHasher(t)
	ctx := context.Background()

	_, err := h.Hash(ctx, strings.Repeat("a", MaxPasswordBytes))
	require.NoError(t, err)

	// 40 runes, 80 bytes
	_, err = h.Hash(ctx, strings.Repeat("é", 40))
	require.Error(t, err)
	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindValidation, ae.Kind)
	assert.Equal(t, http.StatusBadRequest, ae.Status)
	assert.ErrorIs(t, err, ErrPasswordTooLong)
}
