package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayush/socialgate/internal/apperr"
	"github.com/ayush/socialgate/internal/auth"
	"github.com/ayush/socialgate/internal/httperr"
	"github.com/ayush/socialgate/internal/metrics"
)

var bob = auth.Identity{ID: "user-bob", Email: "bob@example.com", Username: "bob"}

func newTestTokens(t *testing.T) *auth.TokenService {
	t.Helper()
	s, err := auth.NewTokenService(auth.TokenConfig{Secret: "test-secret-key-must-be-32-chars!"})
	require.NoError(t, err)
	return s
}

func issue(t *testing.T, s *auth.TokenService, id auth.Identity, ttl time.Duration) string {
	t.Helper()
	tok, err := s.Issue(id, ttl)
	require.NoError(t, err)
	return tok
}

// identityRecorder is a downstream handler that remembers what it saw.
type identityRecorder struct {
	called   bool
	identity auth.Identity
	found    bool
}

func (h *identityRecorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.called = true
	h.identity, h.found = IdentityFrom(r.Context())
	w.WriteHeader(http.StatusOK)
}

func serve(handler http.Handler, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) httperr.ErrorResponse {
	t.Helper()
	var body httperr.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestGate_Evaluate(t *testing.T) {
	tokens := newTestTokens(t)
	g := NewGate(tokens, nil)

	tests := []struct {
		name    string
		header  string
		outcome Outcome
	}{
		{"no header", "", Anonymous},
		{"wrong scheme", "Basic dXNlcjpwYXNz", Anonymous},
		{"valid", "Bearer " + issue(t, tokens, bob, time.Hour), Authenticated},
		{"expired", "Bearer " + issue(t, tokens, bob, -time.Second), Rejected},
		{"garbage", "Bearer not.a.token", Rejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			res := g.Evaluate(req)
			assert.Equal(t, tt.outcome, res.Outcome)
			if tt.outcome == Authenticated {
				assert.Equal(t, bob, res.Identity)
			}
			if tt.outcome == Rejected {
				assert.Error(t, res.Err)
			}
		})
	}
}

func TestRequireAuth_MissingToken(t *testing.T) {
	next := &identityRecorder{}
	rec := serve(RequireAuth(NewGate(newTestTokens(t), nil))(next), "")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, next.called)

	body := decodeError(t, rec)
	assert.False(t, body.Success)
	assert.Equal(t, "Authentication token required", body.Error)
	assert.Equal(t, apperr.CodeTokenMissing, body.Code)
	assert.Equal(t, "/api/me", body.Path)
	assert.NotEmpty(t, body.RequestID)
}

func TestRequireAuth_WrongSchemeIsMissing(t *testing.T) {
	next := &identityRecorder{}
	rec := serve(RequireAuth(NewGate(newTestTokens(t), nil))(next), "Basic abc")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Authentication token required", decodeError(t, rec).Error)
}

func TestRequireAuth_ExpiredToken(t *testing.T) {
	tokens := newTestTokens(t)
	next := &identityRecorder{}
	rec := serve(RequireAuth(NewGate(tokens, nil))(next), "Bearer "+issue(t, tokens, bob, -time.Second))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, next.called)
	body := decodeError(t, rec)
	assert.Equal(t, apperr.CodeTokenExpired, body.Code)
	assert.Equal(t, "Token has expired", body.Error)
}

func TestRequireAuth_InvalidToken(t *testing.T) {
	next := &identityRecorder{}
	rec := serve(RequireAuth(NewGate(newTestTokens(t), nil))(next), "Bearer abc")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, apperr.CodeTokenInvalid, decodeError(t, rec).Code)
}

func TestRequireAuth_ValidTokenAttachesIdentity(t *testing.T) {
	tokens := newTestTokens(t)
	next := &identityRecorder{}
	rec := serve(RequireAuth(NewGate(tokens, nil))(next), "Bearer "+issue(t, tokens, bob, time.Hour))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.True(t, next.called)
	assert.True(t, next.found)
	assert.Equal(t, bob, next.identity)
}

func TestOptionalAuth_MissingTokenContinuesAnonymously(t *testing.T) {
	next := &identityRecorder{}
	rec := serve(OptionalAuth(NewGate(newTestTokens(t), nil))(next), "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, next.called)
	assert.False(t, next.found)
	assert.Empty(t, rec.Body.String())
}

func TestOptionalAuth_InvalidTokenContinuesAnonymously(t *testing.T) {
	tokens := newTestTokens(t)
	for _, header := range []string{"Bearer garbage", "Bearer " + issue(t, tokens, bob, -time.Second)} {
		next := &identityRecorder{}
		rec := serve(OptionalAuth(NewGate(tokens, nil))(next), header)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, next.called)
		assert.False(t, next.found)
	}
}

func TestOptionalAuth_ValidTokenAttachesIdentity(t *testing.T) {
	tokens := newTestTokens(t)
	next := &identityRecorder{}
	serve(OptionalAuth(NewGate(tokens, nil))(next), "Bearer "+issue(t, tokens, bob, time.Hour))

	assert.True(t, next.found)
	assert.Equal(t, bob.ID, next.identity.ID)
}

func TestGate_RecordsOutcomes(t *testing.T) {
	tokens := newTestTokens(t)
	m := metrics.NewMetrics(prometheus.NewRegistry())
	g := NewGate(tokens, m)
	next := &identityRecorder{}

	serve(OptionalAuth(g)(next), "")
	serve(OptionalAuth(g)(next), "Bearer garbage")
	serve(RequireAuth(g)(next), "Bearer "+issue(t, tokens, bob, -time.Second))
	serve(RequireAuth(g)(next), "Bearer "+issue(t, tokens, bob, time.Hour))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuthOutcomes.WithLabelValues("optional", "anonymous")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuthOutcomes.WithLabelValues("optional", "invalid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuthOutcomes.WithLabelValues("required", "expired")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuthOutcomes.WithLabelValues("required", "authenticated")))
}

func TestIdentityFrom_EmptyContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, ok := IdentityFrom(req.Context())
	assert.False(t, ok)
	assert.Empty(t, UserID(req.Context()))
}

type countingVerifier struct {
	Verifier
	calls int
}

func (v *countingVerifier) Verify(token string) (*auth.TokenClaims, error) {
	v.calls++
	return v.Verifier.Verify(token)
}

func TestAuthenticate_ThenRequireAuthVerifiesOnce(t *testing.T) {
	tokens := newTestTokens(t)
	verifier := &countingVerifier{Verifier: tokens}
	m := metrics.NewMetrics(prometheus.NewRegistry())
	g := NewGate(verifier, m)

	var sawIdentity bool
	between := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, sawIdentity = IdentityFrom(r.Context())
			next.ServeHTTP(w, r)
		})
	}
	next := &identityRecorder{}
	h := Authenticate(g)(between(RequireAuth(g)(next)))

	rec := serve(h, "Bearer "+issue(t, tokens, bob, time.Hour))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, sawIdentity, "identity is visible to middleware between the two")
	assert.Equal(t, bob.ID, next.identity.ID)
	assert.Equal(t, 1, verifier.calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuthOutcomes.WithLabelValues("required", "authenticated")))
}

func TestAuthenticate_NeverRejects(t *testing.T) {
	tokens := newTestTokens(t)
	g := NewGate(tokens, nil)

	for _, header := range []string{"", "Bearer garbage", "Bearer " + issue(t, tokens, bob, -time.Second)} {
		next := &identityRecorder{}
		rec := serve(Authenticate(g)(next), header)
		assert.Equal(t, http.StatusOK, rec.Code, header)
		assert.True(t, next.called)
		assert.False(t, next.found)
	}
}

func TestAuthenticate_RequireAuthStillRejectsStoredFailure(t *testing.T) {
	tokens := newTestTokens(t)
	g := NewGate(tokens, nil)
	next := &identityRecorder{}

	rec := serve(Authenticate(g)(RequireAuth(g)(next)), "Bearer "+issue(t, tokens, bob, -time.Second))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, apperr.CodeTokenExpired, decodeError(t, rec).Code)
	assert.False(t, next.called)
}
