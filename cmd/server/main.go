package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ayush/socialgate/internal/auth"
	"github.com/ayush/socialgate/internal/config"
	"github.com/ayush/socialgate/internal/httperr"
	"github.com/ayush/socialgate/internal/logger"
	"github.com/ayush/socialgate/internal/metrics"
	"github.com/ayush/socialgate/internal/middleware"
	"github.com/ayush/socialgate/internal/ratelimit"
	"github.com/ayush/socialgate/internal/server"
	"github.com/ayush/socialgate/internal/store"
)

func main() {
	logger.Init()

	cfg, err := config.Load()
	if err != nil {
		fatal("config", err)
	}
	ctx := context.Background()

	// ── Metrics ──────────────────────────────────────────────
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(reg)

	// ── PostgreSQL ────────────────────────────────────────────
	pgPool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		fatal("postgres connect", err)
	}
	defer pgPool.Close()
	pgStore := store.NewPostgresStore(pgPool)
	if err := pgStore.Migrate(ctx); err != nil {
		fatal("postgres migrate", err)
	}

	// ── MongoDB ──────────────────────────────────────────────
	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		fatal("mongo connect", err)
	}
	defer func() { _ = mongoClient.Disconnect(context.Background()) }()
	mongoStore := store.NewMongoStore(mongoClient.Database(cfg.MongoDB))
	if err := mongoStore.EnsureIndexes(ctx); err != nil {
		fatal("mongo indexes", err)
	}

	// ── MinIO ────────────────────────────────────────────────
	minioStore, err := store.NewMinioStore(
		ctx, cfg.MinioEndpoint, cfg.MinioAccessKey,
		cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL,
	)
	if err != nil {
		fatal("minio connect", err)
	}

	// ── Rate limiting ────────────────────────────────────────
	var limitStore, authLimitStore ratelimit.Store
	switch cfg.RateLimitStore {
	case "redis":
		var rdb *redis.Client
		rdb, err = store.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			fatal("redis connect", err)
		}
		defer rdb.Close()
		limitStore = ratelimit.NewRedisStore(rdb, "ratelimit:api:")
		authLimitStore = ratelimit.NewRedisStore(rdb, "ratelimit:auth:")
	default:
		limitStore = ratelimit.NewMemoryStore()
		authLimitStore = ratelimit.NewMemoryStore()
	}
	limiter, err := ratelimit.NewLimiter(limitStore, cfg.RateLimitMax, cfg.RateLimitWindow)
	if err != nil {
		fatal("rate limiter", err)
	}
	authLimiter, err := ratelimit.NewLimiter(authLimitStore, cfg.RateLimitAuthMax, cfg.RateLimitWindow)
	if err != nil {
		fatal("auth rate limiter", err)
	}

	// ── Auth ─────────────────────────────────────────────────
	hasher, err := auth.NewHasher(cfg.BcryptCost, cfg.HashWorkers)
	if err != nil {
		fatal("hasher", err)
	}
	tokens, err := auth.NewTokenService(auth.TokenConfig{
		Secret:   cfg.JWTSecret,
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
	})
	if err != nil {
		fatal("token service", err)
	}

	// ── Router ───────────────────────────────────────────────
	errs := httperr.NewClassifier(httperr.Options{
		ExposeDetails: cfg.IsDevelopment(),
		UserID:        middleware.UserID,
		Metrics:       m,
	})
	handler := server.NewRouter(server.Deps{
		Users:          pgStore,
		Posts:          mongoStore,
		Files:          minioStore,
		Hasher:         hasher.WithMetrics(m),
		Tokens:         tokens,
		Limiter:        limiter,
		AuthLimiter:    authLimiter,
		Errors:         errs,
		Metrics:        m,
		Gatherer:       reg,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		MaxUploadBytes: cfg.MaxUploadBytes,
		TrustedProxies: cfg.TrustedProxies,
	})

	// ── Server ───────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       time.Minute,
		WriteTimeout:      time.Minute,
	}

	go func() {
		slog.Info("Backend listening", "port", cfg.Port, "env", cfg.AppEnv, "rate_limit_store", cfg.RateLimitStore)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal("server error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down...")
	shutCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		slog.Error("Shutdown failed", "error", err)
	}
}

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}
