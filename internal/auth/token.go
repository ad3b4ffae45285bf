package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/ayush/socialgate/internal/apperr"
)

// Token verification failures. Expired and not-yet-active are distinct from
// ErrTokenInvalid so clients can tell "log in again" apart from "bad token".
var (
	ErrTokenMissing   = apperr.Authentication(apperr.CodeTokenMissing, "Authentication token required")
	ErrTokenInvalid   = apperr.Authentication(apperr.CodeTokenInvalid, "Invalid token")
	ErrTokenExpired   = apperr.Authentication(apperr.CodeTokenExpired, "Token has expired")
	ErrTokenNotActive = apperr.Authentication(apperr.CodeTokenNotActive, "Token is not yet active")

	ErrSecretTooShort = errors.New("JWT secret must be at least 32 characters")
)

const bearerPrefix = "Bearer "

// TokenConfig configures TokenService.
type TokenConfig struct {
	// Secret is the HMAC signing key. Must be at least 32 characters.
	Secret string

	// Issuer is the iss claim. Default: "socialgate"
	Issuer string

	// Audience is the optional aud claim. When set, tokens without it are rejected.
	Audience string

	// TTL is the default token lifetime. Default: 1 hour.
	TTL time.Duration
}

// TokenClaims is the claim set carried by access tokens.
type TokenClaims struct {
	jwt.RegisteredClaims

	Email    string `json:"email"`
	Username string `json:"username"`
}

// SubjectID returns the user id the token was issued for.
func (c *TokenClaims) SubjectID() string { return c.Subject }

// Identity returns the identity the claims prove.
func (c *TokenClaims) Identity() Identity {
	return Identity{ID: c.Subject, Email: c.Email, Username: c.Username}
}

// TokenService issues and verifies HS256 access tokens.
type TokenService struct {
	config TokenConfig
	parser *jwt.Parser
	now    func() time.Time
}

func NewTokenService(config TokenConfig) (*TokenService, error) {
	if len(config.Secret) < 32 {
		return nil, ErrSecretTooShort
	}
	if config.Issuer == "" {
		config.Issuer = "socialgate"
	}
	if config.TTL == 0 {
		config.TTL = time.Hour
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(config.Issuer),
		jwt.WithIssuedAt(),
	}
	if config.Audience != "" {
		opts = append(opts, jwt.WithAudience(config.Audience))
	}

	return &TokenService{config: config, parser: jwt.NewParser(opts...), now: time.Now}, nil
}

// TTL returns the default token lifetime.
func (s *TokenService) TTL() time.Duration { return s.config.TTL }

// Issue signs a token for id valid for ttl. A zero ttl uses the configured
// default; a negative ttl produces a token that is already expired.
func (s *TokenService) Issue(id Identity, ttl time.Duration) (string, error) {
	if id.ID == "" {
		return "", fmt.Errorf("issue token: empty subject")
	}
	if ttl == 0 {
		ttl = s.config.TTL
	}

	now := s.now()
	issuedAt := now
	if ttl < 0 {
		// keep iat <= exp so the parser reports expiry rather than a bad iat
		issuedAt = now.Add(ttl)
	}

	claims := &TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.config.Issuer,
			Subject:   id.ID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email:    id.Email,
		Username: id.Username,
	}
	if s.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{s.config.Audience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.config.Secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates token and returns its claims.
func (s *TokenService) Verify(token string) (*TokenClaims, error) {
	claims := &TokenClaims{}
	parsed, err := s.parser.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(s.config.Secret), nil
	})
	if err != nil {
		return nil, classifyJWTError(err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

func classifyJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired.Wrap(err)
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return ErrTokenNotActive.Wrap(err)
	default:
		return ErrTokenInvalid.Wrap(err)
	}
}

// ExtractFromHeader returns the token from an Authorization header value of
// the exact form "Bearer <token>". Anything else yields no token.
func ExtractFromHeader(value string) (string, bool) {
	if !strings.HasPrefix(value, bearerPrefix) {
		return "", false
	}
	token := value[len(bearerPrefix):]
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", false
	}
	return token, true
}
