package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/ayush/socialgate/internal/apperr"
	"github.com/ayush/socialgate/internal/httperr"
	"github.com/ayush/socialgate/internal/metrics"
	"github.com/ayush/socialgate/internal/ratelimit"
)

// ClientIP keys on the network origin. Behind a proxy, RealIP must run first
// so RemoteAddr holds the client rather than the proxy.
func ClientIP(r *http.Request) string {
	return "ip:" + remoteHost(r)
}

// IdentityKey keys on the authenticated user when the gate attached one
// earlier in the request, so a user shares one budget across every origin.
// Anonymous requests fall back to ClientIP.
func IdentityKey(r *http.Request) string {
	if uid := UserID(r.Context()); uid != "" {
		return "user:" + uid
	}
	return ClientIP(r)
}

func keyType(key string) string {
	if i := strings.IndexByte(key, ':'); i > 0 {
		return key[:i]
	}
	return "other"
}

// RateLimit enforces limiter per key. Excess requests are handed to the
// classifier as a rate-limit error. If the store fails the request is let
// through.
func RateLimit(
	limiter *ratelimit.Limiter,
	keyFunc func(*http.Request) string,
	errs *httperr.Classifier,
	m *metrics.Metrics,
) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Disabled mode: nil limiter or nil keyFunc
			if limiter == nil || keyFunc == nil {
				next.ServeHTTP(w, r)
				return
			}
			key := keyFunc(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			d, err := limiter.Allow(r.Context(), key)
			if err != nil {
				if ae, ok := apperr.As(err); ok && ae.Kind == apperr.KindRateLimit {
					m.RecordRateLimit(keyType(key), "rejected")
					setLimitHeaders(w, d)
					errs.Respond(w, r, ae)
					return
				}
				m.RecordRateLimit(keyType(key), "store_error")
				slog.Error("Rate limit store failed, allowing request", "key", key, "error", err)
				next.ServeHTTP(w, r)
				return
			}

			m.RecordRateLimit(keyType(key), "allowed")
			setLimitHeaders(w, d)
			next.ServeHTTP(w, r)
		})
	}
}

func setLimitHeaders(w http.ResponseWriter, d ratelimit.Decision) {
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.FormatInt(d.Limit, 10))
	h.Set("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining, 10))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
}
