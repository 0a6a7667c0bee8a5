package ratelimit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/verisource/internal/config"
)

var ok = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func hit(h http.Handler, path, remote string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", path, nil)
	req.RemoteAddr = remote
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestLimiter_BurstThenBlock(t *testing.T) {
	l := New(config.RateLimitConfig{RequestsPerMin: 60, BurstSize: 2, CleanupMinutes: 1})
	defer l.Stop()
	h := l.Handler(ok)

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, hit(h, "/api/v1/sources/x", "192.168.1.100:1").Code, "request %d", i+1)
	}

	rr := hit(h, "/api/v1/sources/x", "192.168.1.100:1")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)

	retry, err := strconv.Atoi(rr.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, retry, 1)
	assert.LessOrEqual(t, retry, 2)

	var body map[string]map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", body["error"]["code"])
}

func TestLimiter_RejectedRequestsDoNotConsumeTokens(t *testing.T) {
	l := New(config.RateLimitConfig{RequestsPerMin: 60, BurstSize: 1, CleanupMinutes: 1})
	defer l.Stop()

	now := time.Now()
	l.now = func() time.Time { return now }
	h := l.Handler(ok)

	assert.Equal(t, http.StatusOK, hit(h, "/x", "10.0.0.1:1").Code)
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusTooManyRequests, hit(h, "/x", "10.0.0.1:1").Code)
	}

	now = now.Add(1100 * time.Millisecond)
	assert.Equal(t, http.StatusOK, hit(h, "/x", "10.0.0.1:1").Code)
}

func TestLimiter_SeparateClients(t *testing.T) {
	l := New(config.RateLimitConfig{RequestsPerMin: 60, BurstSize: 1, CleanupMinutes: 1})
	defer l.Stop()
	h := l.Handler(ok)

	hit(h, "/x", "192.168.1.100:1")
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "/x", "192.168.1.100:1").Code)
	assert.Equal(t, http.StatusOK, hit(h, "/x", "192.168.1.101:1").Code)
}

func TestLimiter_ExemptPaths(t *testing.T) {
	l := New(config.RateLimitConfig{RequestsPerMin: 60, BurstSize: 1, CleanupMinutes: 1})
	defer l.Stop()
	h := l.Handler(ok)

	for _, path := range []string{"/health", "/healthz", "/readyz", "/metrics"} {
		for i := 0; i < 10; i++ {
			assert.Equal(t, http.StatusOK, hit(h, path, "192.168.1.100:1").Code, "%s request %d", path, i+1)
		}
	}
}

func TestMiddleware_Disabled(t *testing.T) {
	mw, stop := Middleware(config.RateLimitConfig{Enabled: false, RequestsPerMin: 1, BurstSize: 1})
	defer stop()
	h := mw(ok)

	for i := 0; i < 50; i++ {
		assert.Equal(t, http.StatusOK, hit(h, "/x", "192.168.1.100:1").Code)
	}
}

func TestLimiter_Concurrent(t *testing.T) {
	mw, stop := Middleware(config.RateLimitConfig{Enabled: true, RequestsPerMin: 6000, BurstSize: 100, CleanupMinutes: 1})
	defer stop()
	h := mw(ok)

	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				hit(h, "/x", "192.168.1.100:1")
			}
		}()
	}
	wg.Wait()
}

func TestLimiter_Sweep(t *testing.T) {
	l := New(config.RateLimitConfig{RequestsPerMin: 60, BurstSize: 5, CleanupMinutes: 1})
	defer l.Stop()

	l.reserve("stale")
	l.reserve("fresh")

	l.mu.Lock()
	l.buckets["stale"].lastSeen = time.Now().Add(-2 * time.Minute)
	l.mu.Unlock()

	l.sweep()

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.NotContains(t, l.buckets, "stale")
	assert.Contains(t, l.buckets, "fresh")
}

func TestLimiter_StopTwice(t *testing.T) {
	l := New(config.RateLimitConfig{RequestsPerMin: 60, BurstSize: 5})
	l.Stop()
	l.Stop()
}
