// Package httperr turns failures into the single JSON error contract the
// API exposes.
package httperr

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/ayush/socialgate/internal/apperr"
)

// RequestIDHeader carries the correlation id back to the caller.
const RequestIDHeader = "X-Request-ID"

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Success   bool      `json:"success"`
	Error     string    `json:"error"`
	Code      string    `json:"code"`
	Timestamp time.Time `json:"timestamp"`
	Path      string    `json:"path"`
	Method    string    `json:"method"`
	RequestID string    `json:"request_id"`
	Details   any       `json:"details,omitempty"`
}

// RequestID returns the id chi's RequestID middleware assigned, or a fresh
// one when the request did not pass through it.
func RequestID(r *http.Request) string {
	if id := chimw.GetReqID(r.Context()); id != "" {
		return id
	}
	return uuid.NewString()
}

// Write renders ae as an ErrorResponse. Details are only included when
// withDetails is set.
func Write(w http.ResponseWriter, r *http.Request, ae *apperr.Error, withDetails bool) ErrorResponse {
	return write(w, r, ae, RequestID(r), withDetails)
}

func write(w http.ResponseWriter, r *http.Request, ae *apperr.Error, requestID string, withDetails bool) ErrorResponse {
	resp := ErrorResponse{
		Success:   false,
		Error:     ae.Message,
		Code:      ae.Code,
		Timestamp: time.Now().UTC(),
		Path:      r.URL.Path,
		Method:    r.Method,
		RequestID: requestID,
	}
	if withDetails {
		resp.Details = ae.Details
	}

	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set(RequestIDHeader, requestID)
	if ae.Kind == apperr.KindRateLimit {
		h.Set("Retry-After", strconv.Itoa(int(math.Ceil(ae.RetryAfter.Seconds()))))
	}
	w.WriteHeader(ae.Status)
	_ = json.NewEncoder(w).Encode(resp)
	return resp
}
