// Package server assembles the HTTP router.
package server

import (
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ayush/socialgate/internal/apperr"
	"github.com/ayush/socialgate/internal/auth"
	"github.com/ayush/socialgate/internal/httperr"
	"github.com/ayush/socialgate/internal/media"
	"github.com/ayush/socialgate/internal/metrics"
	"github.com/ayush/socialgate/internal/middleware"
	"github.com/ayush/socialgate/internal/posts"
	"github.com/ayush/socialgate/internal/ratelimit"
)

// Deps are the collaborators the router wires together.
type Deps struct {
	Users  auth.UserStore
	Posts  posts.PostStore
	Files  media.FileStore
	Hasher auth.PasswordHasher
	Tokens *auth.TokenService

	// Limiter throttles the API by identity; AuthLimiter throttles
	// register and login by origin. Either may be nil to disable it.
	Limiter     *ratelimit.Limiter
	AuthLimiter *ratelimit.Limiter

	Errors   *httperr.Classifier
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer

	AllowedOrigins []string
	MaxUploadBytes int64
	// TrustedProxies may report the client address in X-Forwarded-For.
	TrustedProxies []*net.IPNet
}

// NewRouter builds the HTTP handler. Inside every API group the token is
// verified before the rate limiter so authenticated callers are throttled by
// identity rather than by address. Required routes reject only after the
// limiter, so anonymous and forged-token traffic spends its origin's budget.
func NewRouter(d Deps) http.Handler {
	errs := d.Errors
	gate := middleware.NewGate(d.Tokens, d.Metrics)
	limit := middleware.RateLimit(d.Limiter, middleware.IdentityKey, errs, d.Metrics)
	authLimit := middleware.RateLimit(d.AuthLimiter, middleware.ClientIP, errs, d.Metrics)
	required := chi.Chain(middleware.Authenticate(gate), limit, middleware.RequireAuth(gate))

	authHandler := auth.NewHandler(d.Users, d.Hasher, d.Tokens, middleware.IdentityFrom)
	postHandler := posts.NewHandler(d.Posts, middleware.IdentityFrom)
	mediaHandler := media.NewHandler(d.Files, d.MaxUploadBytes, middleware.IdentityFrom)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.RealIP(d.TrustedProxies))
	r.Use(middleware.LogRequest)
	r.Use(middleware.Rescue(errs))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: d.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		ExposedHeaders: []string{
			httperr.RequestIDHeader, "Retry-After",
			"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset",
		},
		MaxAge: 300,
	}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		errs.Respond(w, r, apperr.NotFound("Route not found"))
	})

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(authLimit)
			r.Post("/register", errs.Handle(authHandler.Register))
			r.Post("/login", errs.Handle(authHandler.Login))
		})
		r.With(required...).Get("/me", errs.Handle(authHandler.Me))
	})

	r.Route("/api/posts", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.OptionalAuth(gate), limit)
			r.Get("/", errs.Handle(postHandler.List))
			r.Get("/{id}", errs.Handle(postHandler.Get))
		})
		r.With(required...).Post("/", errs.Handle(postHandler.Create))
	})

	r.With(required...).Post("/api/media", errs.Handle(mediaHandler.Upload))

	return r
}
