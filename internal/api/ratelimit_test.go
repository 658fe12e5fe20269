package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterAllow(t *testing.T) {
	t.Run("exhausts the window", func(t *testing.T) {
		rl := NewRateLimiter(3, time.Hour)
		for i := 0; i < 3; i++ {
			assert.True(t, rl.Allow("10.0.0.1"), "request %d", i+1)
		}
		assert.False(t, rl.Allow("10.0.0.1"))
	})

	t.Run("clients have independent windows", func(t *testing.T) {
		rl := NewRateLimiter(1, time.Hour)
		require.True(t, rl.Allow("10.0.0.1"))
		assert.False(t, rl.Allow("10.0.0.1"))
		assert.True(t, rl.Allow("10.0.0.2"))
	})

	t.Run("lapsed window reopens", func(t *testing.T) {
		rl := NewRateLimiter(1, 10*time.Millisecond)
		require.True(t, rl.Allow("10.0.0.1"))
		require.False(t, rl.Allow("10.0.0.1"))
		time.Sleep(15 * time.Millisecond)
		assert.True(t, rl.Allow("10.0.0.1"))
	})
}

func TestRateLimiterRetryAfter(t *testing.T) {
	rl := NewRateLimiter(1, time.Hour)

	assert.Zero(t, rl.RetryAfter("10.0.0.1"), "unknown client has nothing to wait for")

	rl.Allow("10.0.0.1")
	assert.Greater(t, rl.RetryAfter("10.0.0.1"), 0)
}

func TestClientIP(t *testing.T) {
	t.Run("strips the port from the remote address", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		r.RemoteAddr = "192.168.1.9:54321"
		assert.Equal(t, "192.168.1.9", clientIP(r))
	})

	t.Run("prefers the first forwarded hop", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		r.RemoteAddr = "10.0.0.1:80"
		r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
		assert.Equal(t, "203.0.113.7", clientIP(r))
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	rl := NewRateLimiter(2, time.Hour)
	handler := RateLimitMiddleware(rl, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	do := func() *httptest.ResponseRecorder {
		r := httptest.NewRequest("GET", "/api/v1/sync/report", nil)
		r.RemoteAddr = "192.0.2.4:1234"
		w := httptest.NewRecorder()
		handler(w, r)
		return w
	}

	assert.Equal(t, http.StatusOK, do().Code)
	assert.Equal(t, http.StatusOK, do().Code)

	limited := do()
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.NotEmpty(t, limited.Header().Get("Retry-After"))
}
