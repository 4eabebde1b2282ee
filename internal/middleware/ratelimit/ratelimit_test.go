package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllow_BurstThenRefill(t *testing.T) {
	rl := NewLimiter(Config{RequestsPerSecond: 1, Burst: 2})
	defer rl.Stop()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("1.1.1.1"))
	assert.True(t, rl.Allow("1.1.1.1"))
	assert.False(t, rl.Allow("1.1.1.1"))
	assert.True(t, rl.Allow("2.2.2.2"), "clients have separate buckets")

	now = now.Add(time.Second)
	assert.True(t, rl.Allow("1.1.1.1"))
	assert.False(t, rl.Allow("1.1.1.1"))
}

func TestCleanupStaleEntries(t *testing.T) {
	rl := NewLimiter(Config{RequestsPerSecond: 5, Burst: 5, IdleTimeout: time.Minute, CleanupInterval: time.Hour})
	defer rl.Stop()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	rl.Allow("old")
	now = now.Add(2 * time.Minute)
	rl.Allow("new")
	rl.cleanupStaleEntries()

	assert.Equal(t, 1, rl.ActiveClients())
}

func TestMiddleware(t *testing.T) {
	rl := NewLimiter(Config{RequestsPerSecond: 1, Burst: 1})
	defer rl.Stop()
	h := rl.Middleware(func(*http.Request) string { return "ip" }, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) }))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestMiddleware_CustomOnLimit(t *testing.T) {
	rl := NewLimiter(Config{RequestsPerSecond: 1, Burst: 1})
	defer rl.Stop()
	called := 0
	h := rl.Middleware(func(*http.Request) string { return "ip" }, func(w http.ResponseWriter, _ *http.Request) {
		called++
		w.WriteHeader(http.StatusServiceUnavailable)
	})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, 1, called)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStopIsIdempotent(t *testing.T) {
	rl := NewLimiter(DefaultConfig())
	rl.Stop()
	rl.Stop()
}
