package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayush/socialgate/internal/apperr"
	"github.com/ayush/socialgate/internal/httperr"
)

func TestLogRequest_EchoesChiRequestID(t *testing.T) {
	var seen string
	h := chimw.RequestID(LogRequest(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = chimw.GetReqID(r.Context())
		w.WriteHeader(http.StatusAccepted)
	})))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/posts", nil))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(httperr.RequestIDHeader))
}

func TestRescue_PanicBecomesInternalError(t *testing.T) {
	h := Rescue(newQuietClassifier())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("nil map write")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/explode", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, apperr.CodeInternal, body.Code)
	assert.Equal(t, "/explode", body.Path)
	assert.NotContains(t, rec.Body.String(), "nil map write")
}

func TestRescue_ReraisesAbortHandler(t *testing.T) {
	h := Rescue(newQuietClassifier())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}
