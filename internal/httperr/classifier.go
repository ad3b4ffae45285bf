package httperr

import (
	"context"
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"

	"github.com/ayush/socialgate/internal/apperr"
	"github.com/ayush/socialgate/internal/metrics"
	"github.com/ayush/socialgate/internal/store"
)

// Options configures a Classifier.
type Options struct {
	// ExposeDetails renders ErrorResponse.details. Enable only in development.
	ExposeDetails bool

	// Logger receives one record per classified error. Default: slog.Default().
	Logger *slog.Logger

	// UserID returns the authenticated user id for the request, if any.
	UserID func(ctx context.Context) string

	Metrics *metrics.Metrics
}

// Classifier maps any error to the public error contract.
type Classifier struct {
	exposeDetails bool
	log           *slog.Logger
	userID        func(ctx context.Context) string
	metrics       *metrics.Metrics
}

func NewClassifier(opts Options) *Classifier {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.UserID == nil {
		opts.UserID = func(context.Context) string { return "" }
	}
	return &Classifier{
		exposeDetails: opts.ExposeDetails,
		log:           opts.Logger,
		userID:        opts.UserID,
		metrics:       opts.Metrics,
	}
}

// Classify resolves err to an application error. The first matching rule
// wins: typed application errors, request validation, uploads, tokens,
// storage, then a generic internal error.
func (c *Classifier) Classify(err error) *apperr.Error {
	if ae, ok := apperr.As(err); ok {
		cp := *ae
		return &cp
	}
	if ae, ok := fromValidator(err); ok {
		return ae
	}
	if ae, ok := fromUpload(err); ok {
		return ae
	}
	if ae, ok := fromJWT(err); ok {
		return ae
	}
	if ae, ok := store.AsStorageError(err); ok {
		return ae
	}
	return apperr.Internal(err)
}

// Respond classifies err, logs it and writes the error response.
func (c *Classifier) Respond(w http.ResponseWriter, r *http.Request, err error) {
	ae := c.Classify(err)
	requestID := RequestID(r)

	if c.exposeDetails && ae.Details == nil && ae.Err != nil {
		ae.Details = map[string]string{"cause": ae.Err.Error()}
	}

	level := slog.LevelWarn
	if ae.Status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	attrs := []any{
		"request_id", requestID,
		"method", r.Method,
		"path", r.URL.Path,
		"status", ae.Status,
		"code", ae.Code,
		"error", err.Error(),
	}
	if uid := c.userID(r.Context()); uid != "" {
		attrs = append(attrs, "user_id", uid)
	}
	if ae.Kind == apperr.KindRateLimit {
		attrs = append(attrs, "key", ae.Key, "retry_after", ae.RetryAfter.String())
	}
	c.log.Log(r.Context(), level, "Request failed", attrs...)
	c.metrics.RecordError(ae.Code, ae.Status)

	write(w, r, ae, requestID, c.exposeDetails)
}

// HandlerFunc is an http.HandlerFunc that returns its failure.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

// Handle adapts fn so any returned error is rendered by c.
func (c *Classifier) Handle(fn HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(w, r); err != nil {
			c.Respond(w, r, err)
		}
	}
}

func fromValidator(err error) (*apperr.Error, bool) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil, false
	}
	fields := make([]apperr.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, apperr.FieldError{Field: fe.Field(), Message: fieldMessage(fe)})
	}
	return apperr.Validation("Validation failed", fields), true
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "email":
		return fe.Field() + " must be a valid email address"
	case "min":
		return fe.Field() + " must be at least " + fe.Param() + " characters"
	case "max":
		return fe.Field() + " must be at most " + fe.Param() + " characters"
	case "maxbytes":
		return fe.Field() + " must be at most " + fe.Param() + " bytes"
	case "alphanum":
		return fe.Field() + " must contain only letters and digits"
	default:
		return fe.Field() + " is invalid"
	}
}

func fromUpload(err error) (*apperr.Error, bool) {
	var tooBig *http.MaxBytesError
	switch {
	case errors.As(err, &tooBig), errors.Is(err, multipart.ErrMessageTooLarge):
		return apperr.Upload(apperr.UploadFileTooLarge, "File too large"), true
	case errors.Is(err, http.ErrMissingFile):
		return apperr.Upload(apperr.UploadMissingFile, "No file uploaded"), true
	case errors.Is(err, http.ErrNotMultipart), errors.Is(err, http.ErrMissingBoundary):
		return apperr.Upload(apperr.UploadInvalid, "Request is not a valid multipart upload"), true
	}
	return nil, false
}

func fromJWT(err error) (*apperr.Error, bool) {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return apperr.Authentication(apperr.CodeTokenExpired, "Token has expired"), true
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return apperr.Authentication(apperr.CodeTokenNotActive, "Token is not yet active"), true
	case errors.Is(err, jwt.ErrTokenMalformed),
		errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable),
		errors.Is(err, jwt.ErrTokenInvalidClaims),
		errors.Is(err, jwt.ErrTokenInvalidIssuer),
		errors.Is(err, jwt.ErrTokenInvalidAudience),
		errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return apperr.Authentication(apperr.CodeTokenInvalid, "Invalid token"), true
	}
	return nil, false
}
