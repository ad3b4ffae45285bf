package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ayush/socialgate/internal/apperr"
	"github.com/ayush/socialgate/internal/auth"
	"github.com/ayush/socialgate/internal/httperr"
	"github.com/ayush/socialgate/internal/metrics"
)

// Outcome is the tag of a gate Result.
type Outcome int

const (
	// Anonymous: no credential was presented.
	Anonymous Outcome = iota
	// Authenticated: a token was presented and verified.
	Authenticated
	// Rejected: a token was presented and failed verification.
	Rejected
)

func (o Outcome) String() string {
	switch o {
	case Authenticated:
		return "authenticated"
	case Rejected:
		return "rejected"
	default:
		return "anonymous"
	}
}

// Result is what the gate concluded about one request.
type Result struct {
	Outcome  Outcome
	Identity auth.Identity // set when Authenticated
	Err      error         // set when Rejected
}

// Verifier verifies a bearer token.
type Verifier interface {
	Verify(token string) (*auth.TokenClaims, error)
}

// Gate runs the token pipeline shared by RequireAuth and OptionalAuth.
type Gate struct {
	tokens  Verifier
	metrics *metrics.Metrics
}

func NewGate(tokens Verifier, m *metrics.Metrics) *Gate {
	return &Gate{tokens: tokens, metrics: m}
}

// Evaluate extracts and verifies the bearer token of r.
func (g *Gate) Evaluate(r *http.Request) Result {
	token, ok := auth.ExtractFromHeader(r.Header.Get("Authorization"))
	if !ok {
		return Result{Outcome: Anonymous}
	}
	claims, err := g.tokens.Verify(token)
	if err != nil {
		return Result{Outcome: Rejected, Err: err}
	}
	return Result{Outcome: Authenticated, Identity: claims.Identity()}
}

func (g *Gate) record(gate string, res Result) {
	outcome := res.Outcome.String()
	if res.Outcome == Rejected {
		outcome = "invalid"
		if errors.Is(res.Err, auth.ErrTokenExpired) {
			outcome = "expired"
		}
	}
	g.metrics.RecordAuth(gate, outcome)
}

// Authenticate evaluates the gate once and attaches the identity when the
// token verifies, without rejecting anything. A later RequireAuth or
// OptionalAuth on the same request reuses the stored result, so a rate
// limiter can sit between them and see who the caller is.
func Authenticate(g *Gate) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res := g.Evaluate(r)
			ctx := context.WithValue(r.Context(), resultKey, res)
			if res.Outcome == Authenticated {
				ctx = withIdentity(ctx, res.Identity)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// result returns the gate result stored by Authenticate, or evaluates r.
func (g *Gate) result(r *http.Request) Result {
	if res, ok := r.Context().Value(resultKey).(Result); ok {
		return res
	}
	return g.Evaluate(r)
}

// RequireAuth rejects requests without a valid bearer token with 401 and
// attaches the identity otherwise. The rejection is written inline and never
// reaches the error classifier.
func RequireAuth(g *Gate) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res := g.result(r)
			g.record("required", res)

			switch res.Outcome {
			case Authenticated:
				next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), res.Identity)))
			case Rejected:
				ae, ok := apperr.As(res.Err)
				if !ok {
					ae = auth.ErrTokenInvalid
				}
				slog.Debug("Auth rejected: invalid token", "path", r.URL.Path, "code", ae.Code)
				httperr.Write(w, r, ae, false)
			default:
				slog.Debug("Auth rejected: no token", "path", r.URL.Path)
				httperr.Write(w, r, auth.ErrTokenMissing, false)
			}
		})
	}
}

// OptionalAuth attaches the identity when a valid bearer token is present and
// otherwise continues anonymously. A presented but invalid token is logged and
// counted separately from an absent one, but still passes through.
func OptionalAuth(g *Gate) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res := g.result(r)
			g.record("optional", res)

			switch res.Outcome {
			case Authenticated:
				next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), res.Identity)))
			case Rejected:
				slog.Debug("Auth: invalid token on optional route, continuing anonymously",
					"path", r.URL.Path, "error", res.Err)
				next.ServeHTTP(w, r)
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

// contextKey is a private type for context keys to avoid collisions
type contextKey string

const (
	identityKey contextKey = "identity"
	resultKey   contextKey = "gate_result"
)

// withIdentity is the only way an identity enters a request context; it is
// called solely after a successful Verify.
func withIdentity(ctx context.Context, id auth.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFrom returns the identity the gate attached to ctx, if any.
func IdentityFrom(ctx context.Context) (auth.Identity, bool) {
	id, ok := ctx.Value(identityKey).(auth.Identity)
	return id, ok
}

// UserID returns the authenticated user id in ctx, or "".
func UserID(ctx context.Context) string {
	id, _ := IdentityFrom(ctx)
	return id.ID
}
