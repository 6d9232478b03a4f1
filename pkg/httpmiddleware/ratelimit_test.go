package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_Allow(t *testing.T) {
	rl := newRateLimiter(RateLimitConfig{Max: 2, Window: time.Minute})
	now := time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC)

	remaining, _, allowed := rl.allow("k", now)
	require.True(t, allowed)
	assert.Equal(t, 1, remaining)

	remaining, _, allowed = rl.allow("k", now.Add(time.Second))
	require.True(t, allowed)
	assert.Equal(t, 0, remaining)

	_, resetAt, allowed := rl.allow("k", now.Add(2*time.Second))
	assert.False(t, allowed)
	assert.Equal(t, now.Add(time.Minute), resetAt)
}

func TestRateLimiter_WindowResets(t *testing.T) {
	rl := newRateLimiter(RateLimitConfig{Max: 1, Window: time.Minute})
	now := time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC)

	_, _, allowed := rl.allow("k", now)
	require.True(t, allowed)
	_, _, allowed = rl.allow("k", now.Add(30*time.Second))
	require.False(t, allowed)

	// A fresh window starts once the old one has fully elapsed.
	_, _, allowed = rl.allow("k", now.Add(time.Minute))
	assert.True(t, allowed)
}

func TestRateLimiter_KeysAreIndependent(t *testing.T) {
	rl := newRateLimiter(RateLimitConfig{Max: 1, Window: time.Minute})
	now := time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC)

	_, _, allowed := rl.allow("a", now)
	require.True(t, allowed)
	_, _, allowed = rl.allow("b", now)
	assert.True(t, allowed)
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := newRateLimiter(RateLimitConfig{Max: 1, Window: time.Minute})
	now := time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC)

	rl.allow("old", now)
	rl.allow("fresh", now.Add(50*time.Second))
	rl.cleanup(now.Add(70 * time.Second))

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.NotContains(t, rl.windows, "old")
	assert.Contains(t, rl.windows, "fresh")
}

func TestRateLimit_Middleware(t *testing.T) {
	handler := Wrap(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
		RateLimit(RateLimitConfig{
			Max:     1,
			Window:  time.Minute,
			KeyFunc: func(*http.Request) string { return "test" },
		}),
	)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestRequestID_GeneratedAndEchoed(t *testing.T) {
	var seen string
	handler := Wrap(
		http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			seen = RequestIDFromContext(r.Context())
		}),
		RequestID(),
	)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get("X-Request-ID"))
}

func TestRequestID_InvalidHeaderReplaced(t *testing.T) {
	handler := Wrap(
		http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}),
		RequestID(),
	)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "bad\x00id")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.NotEqual(t, "bad\x00id", rec.Header().Get("X-Request-ID"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}
