// Package middleware provides the HTTP gating layer: bearer-token
// authentication, identity-aware rate limiting, request logging and panic
// recovery.
package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/ayush/socialgate/internal/apperr"
	"github.com/ayush/socialgate/internal/httperr"
)

// LogRequest logs each request with timing and the chi request id, and
// echoes the id back in X-Request-ID.
func LogRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := httperr.RequestID(r)
		w.Header().Set(httperr.RequestIDHeader, requestID)

		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		attrs := []any{
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"latency_ms", time.Since(start).Milliseconds(),
		}
		slog.Info("Request completed", attrs...)
	})
}

// Rescue recovers handler panics and renders them through the classifier as
// internal errors.
func Rescue(errs *httperr.Classifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if p := recover(); p != nil {
					if p == http.ErrAbortHandler {
						panic(p)
					}
					slog.Error("Request panic",
						slog.Group("http", "uri", r.RequestURI, "method", r.Method),
						slog.Group("error", "panic", p, "stack", string(debug.Stack())),
					)
					errs.Respond(w, r, apperr.Internal(fmt.Errorf("panic: %v", p)))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
