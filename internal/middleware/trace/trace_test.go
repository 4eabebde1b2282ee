package trace

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	applog "spesa/internal/log"
)

func newLogger(buf *bytes.Buffer) *applog.Logger {
	return applog.New(applog.Config{Level: slog.LevelDebug, Component: "test", Output: buf})
}

func TestMiddleware_AssignsRequestID(t *testing.T) {
	var buf bytes.Buffer
	var seen string
	h := NewMiddleware(newLogger(&buf), func(*http.Request) string { return "10.0.0.1" }).
		Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = GetRequestID(r.Context())
			w.WriteHeader(http.StatusTeapot)
		}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/report?year=2024", nil))

	_, err := uuid.Parse(seen)
	require.NoError(t, err)
	assert.Equal(t, seen, rec.Header().Get(HeaderRequestID))
	assert.Contains(t, buf.String(), "HTTP request completed")
	assert.Contains(t, buf.String(), "status_code=418")
	assert.Contains(t, buf.String(), "client_ip=10.0.0.1")
}

func TestMiddleware_KeepsValidIncomingID(t *testing.T) {
	var buf bytes.Buffer
	id := uuid.NewString()
	h := NewMiddleware(newLogger(&buf), nil).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, id, GetRequestID(r.Context()))
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, id)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, id, rec.Header().Get(HeaderRequestID))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "not-a-uuid")
	rec = httptest.NewRecorder()
	NewMiddleware(newLogger(&buf), nil).Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).ServeHTTP(rec, req)
	assert.NotEqual(t, "not-a-uuid", rec.Header().Get(HeaderRequestID))
}

func TestGetRequestID_Empty(t *testing.T) {
	assert.Empty(t, GetRequestID(httptest.NewRequest(http.MethodGet, "/", nil).Context()))
}
