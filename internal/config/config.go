package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

// Config holds all service configuration loaded from environment variables.
type Config struct {
	Port   string
	AppEnv string // development, production, test

	PostgresDSN    string
	MongoURI       string
	MongoDB        string
	RedisAddr      string
	RedisPassword  string
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	// Tokens
	JWTSecret   string
	JWTIssuer   string
	JWTAudience string
	JWTTTL      time.Duration

	// Password hashing
	BcryptCost  int
	HashWorkers int // 0 = GOMAXPROCS

	// Rate limiting
	RateLimitWindow  time.Duration
	RateLimitMax     int
	RateLimitAuthMax int
	RateLimitStore   string // memory, redis

	MaxUploadBytes     int64
	CORSAllowedOrigins []string
	// Peers allowed to report the client address via X-Forwarded-For.
	TrustedProxies []*net.IPNet
}

// IsDevelopment reports whether error details may be shown to clients.
func (c *Config) IsDevelopment() bool { return c.AppEnv == "development" }

// Load reads configuration from the environment, after merging an optional
// .env file from the working directory.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var e env
	cfg := &Config{
		Port:   getenv("PORT", "8080"),
		AppEnv: strings.ToLower(getenv("APP_ENV", "production")),

		PostgresDSN:    getenv("POSTGRES_DSN", ""),
		MongoURI:       getenv("MONGO_URI", ""),
		MongoDB:        getenv("MONGO_DB", "socialgate"),
		RedisAddr:      getenv("REDIS_ADDR", "redis:6379"),
		RedisPassword:  getenv("REDIS_PASSWORD", ""),
		MinioEndpoint:  getenv("MINIO_ENDPOINT", "minio:9000"),
		MinioAccessKey: getenv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getenv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getenv("MINIO_BUCKET", "socialgate-media"),
		MinioUseSSL:    e.boolean("MINIO_USE_SSL", false),

		JWTSecret:   getenv("JWT_SECRET", ""),
		JWTIssuer:   getenv("JWT_ISSUER", "socialgate"),
		JWTAudience: getenv("JWT_AUDIENCE", ""),
		JWTTTL:      e.duration("JWT_TTL", time.Hour),

		BcryptCost:  e.integer("BCRYPT_COST", bcrypt.DefaultCost),
		HashWorkers: e.integer("HASH_WORKERS", 0),

		RateLimitWindow:  e.duration("RATE_LIMIT_WINDOW", 15*time.Minute),
		RateLimitMax:     e.integer("RATE_LIMIT_MAX", 100),
		RateLimitAuthMax: e.integer("RATE_LIMIT_AUTH_MAX", 5),
		RateLimitStore:   strings.ToLower(getenv("RATE_LIMIT_STORE", "memory")),

		MaxUploadBytes:     int64(e.integer("MAX_UPLOAD_BYTES", 5<<20)),
		CORSAllowedOrigins: getenvList("CORS_ALLOWED_ORIGINS", "http://localhost:5173", "http://localhost:3000"),
		TrustedProxies:     e.networks("TRUSTED_PROXIES"),
	}
	if err := errors.Join(e.errs...); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.AppEnv {
	case "development", "production", "test":
	default:
		return fmt.Errorf("APP_ENV must be development, production or test, got %q", c.AppEnv)
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}
	if c.JWTTTL <= 0 {
		return fmt.Errorf("JWT_TTL must be positive, got %s", c.JWTTTL)
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("BCRYPT_COST must be between %d and %d, got %d", bcrypt.MinCost, bcrypt.MaxCost, c.BcryptCost)
	}
	if c.HashWorkers < 0 {
		return fmt.Errorf("HASH_WORKERS must not be negative, got %d", c.HashWorkers)
	}
	if c.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be positive, got %s", c.RateLimitWindow)
	}
	for _, rl := range []struct {
		name  string
		value int
	}{
		{"RATE_LIMIT_MAX", c.RateLimitMax},
		{"RATE_LIMIT_AUTH_MAX", c.RateLimitAuthMax},
	} {
		if rl.value < 1 || rl.value > 100000 {
			return fmt.Errorf("%s must be between 1 and 100000, got %d", rl.name, rl.value)
		}
	}
	if c.RateLimitStore != "memory" && c.RateLimitStore != "redis" {
		return fmt.Errorf("RATE_LIMIT_STORE must be memory or redis, got %q", c.RateLimitStore)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", c.MaxUploadBytes)
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// env collects malformed values so Load can report all of them at once.
type env struct {
	errs []error
}

func (e *env) fail(key, v string, err error) {
	e.errs = append(e.errs, fmt.Errorf("%s: invalid value %q: %w", key, v, err))
}

func (e *env) integer(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, v, err)
		return fallback
	}
	return n
}

func (e *env) boolean(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(key, v, err)
		return fallback
	}
	return b
}

// duration accepts Go durations ("15m") or bare seconds ("900").
func (e *env) duration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, v, errors.New("want a duration like 15m or whole seconds"))
		return fallback
	}
	return time.Duration(n) * time.Second
}

// networks parses a list of IPs and CIDRs; a bare IP becomes a single-host network.
func (e *env) networks(key string) []*net.IPNet {
	var out []*net.IPNet
	for _, v := range getenvList(key) {
		if _, n, err := net.ParseCIDR(v); err == nil {
			out = append(out, n)
			continue
		}
		ip := net.ParseIP(v)
		if ip == nil {
			e.fail(key, v, errors.New("not an IP or CIDR"))
			continue
		}
		bits := 8 * net.IPv6len
		if v4 := ip.To4(); v4 != nil {
			ip, bits = v4, 8*net.IPv4len
		}
		out = append(out, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
	}
	return out
}

func getenvList(key string, fallback ...string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
