package ratelimit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"tauben-gateway/internal/logger"
	"tauben-gateway/middleware/ratelimit/domain"
	"tauben-gateway/middleware/ratelimit/infra"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func okHandler(calls *atomic.Int32) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	})
}

func serve(h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestMiddleware_TwoPerMinute(t *testing.T) {
	clk := &clock{now: t0}
	var calls atomic.Int32

	h := Middleware(Options{
		Policy: MustPolicy("test", time.Minute, 2),
		Store:  infra.NewWindowStore(),
		Now:    clk.Now,
	})(okHandler(&calls))

	req := func() *http.Request {
		return newRequest(http.MethodGet, "http://example/api/pigeons", "10.0.0.1:1234")
	}

	w1 := serve(h, req())
	require.Equal(t, http.StatusOK, w1.Code)
	assert.Equal(t, "2", w1.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", w1.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "60s", w1.Header().Get("X-RateLimit-Window"))

	w2 := serve(h, req())
	require.Equal(t, http.StatusOK, w2.Code)
	assert.Equal(t, "0", w2.Header().Get("X-RateLimit-Remaining"))

	w3 := serve(h, req())
	require.Equal(t, http.StatusTooManyRequests, w3.Code)
	assert.Equal(t, "60", w3.Header().Get("Retry-After"))
	assert.Equal(t, "2", w3.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", w3.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "2026-03-01T12:01:00.000Z", w3.Header().Get("X-RateLimit-Reset"))
	assert.Equal(t, "application/json; charset=utf-8", w3.Header().Get("Content-Type"))
	assert.Empty(t, w3.Header().Get("X-RateLimit-Window"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(w3.Body.Bytes(), &body))
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", body["error"])
	assert.Equal(t, "Rate limit exceeded. Try again in 60 seconds.", body["message"])
	assert.EqualValues(t, 60, body["retryAfter"])

	assert.EqualValues(t, 2, calls.Load())

	// janela expira exatamente em ResetAt
	clk.Advance(time.Minute)
	w4 := serve(h, req())
	require.Equal(t, http.StatusOK, w4.Code)
	assert.Equal(t, "1", w4.Header().Get("X-RateLimit-Remaining"))
}

func TestMiddleware_RetryAfterRoundsUp(t *testing.T) {
	clk := &clock{now: t0}
	var calls atomic.Int32

	h := Middleware(Options{
		Policy: MustPolicy("test", 10*time.Second, 1),
		Store:  infra.NewWindowStore(),
		Now:    clk.Now,
	})(okHandler(&calls))

	require.Equal(t, http.StatusOK, serve(h, newRequest(http.MethodGet, "http://example/", "10.0.0.1:1")).Code)

	clk.Advance(2500 * time.Millisecond)
	w := serve(h, newRequest(http.MethodGet, "http://example/", "10.0.0.1:1"))
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "8", w.Header().Get("Retry-After"))
	assert.Equal(t, "2026-03-01T12:00:10.000Z", w.Header().Get("X-RateLimit-Reset"))
}

func TestMiddleware_CredentialIdentity(t *testing.T) {
	store := infra.NewWindowStore()
	var calls atomic.Int32

	h := Middleware(Options{
		Policy: MustPolicy("test", time.Minute, 5),
		Store:  store,
		Now:    func() time.Time { return t0 },
	})(okHandler(&calls))

	r := newRequest(http.MethodGet, "http://example/api/pigeons", "10.0.0.1:1234")
	r.Header.Set("X-API-Key", "k1")
	r.Header.Set("Authorization", "Bearer k2")
	require.Equal(t, http.StatusOK, serve(h, r).Code)

	e, ok := store.Get("api:k1")
	require.True(t, ok)
	assert.Equal(t, 1, e.Count)

	_, ok = store.Get("api:k2")
	assert.False(t, ok)
}

func TestMiddleware_KeysAreIsolated(t *testing.T) {
	var calls atomic.Int32

	h := Middleware(Options{
		Policy: MustPolicy("test", time.Minute, 1),
		Store:  infra.NewWindowStore(),
		Now:    func() time.Time { return t0 },
	})(okHandler(&calls))

	for _, remote := range []string{"10.0.0.1:1", "10.0.0.2:1"} {
		assert.Equal(t, http.StatusOK, serve(h, newRequest(http.MethodGet, "http://example/a", remote)).Code)
	}
	// mesmo IP, outro path => outra identidade
	assert.Equal(t, http.StatusOK, serve(h, newRequest(http.MethodGet, "http://example/b", "10.0.0.1:1")).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(h, newRequest(http.MethodGet, "http://example/a", "10.0.0.1:1")).Code)
}

func TestMiddleware_PoliciesDoNotShareState(t *testing.T) {
	var calls atomic.Int32
	now := func() time.Time { return t0 }

	general := Middleware(Options{Policy: MustPolicy(PolicyGeneral, time.Minute, 1), Store: infra.NewWindowStore(), Now: now})
	upload := Middleware(Options{Policy: MustPolicy(PolicyUpload, time.Minute, 1), Store: infra.NewWindowStore(), Now: now})
	h := general(upload(okHandler(&calls)))

	r := func() *http.Request {
		return newRequest(http.MethodPost, "http://example/api/images", "10.0.0.1:1")
	}
	require.Equal(t, http.StatusOK, serve(h, r()).Code)
	require.Equal(t, http.StatusTooManyRequests, serve(h, r()).Code)
	assert.EqualValues(t, 1, calls.Load())
}

func TestMiddleware_EmptyKeyFailsClosed(t *testing.T) {
	store := infra.NewWindowStore()
	var calls atomic.Int32

	h := Middleware(Options{
		Policy: MustPolicy("test", time.Minute, 1, WithKeyFunc(func(*http.Request) string { return "" })),
		Store:  store,
		Now:    func() time.Time { return t0 },
	})(okHandler(&calls))

	require.Equal(t, http.StatusOK, serve(h, newRequest(http.MethodGet, "http://example/", "10.0.0.1:1")).Code)
	require.Equal(t, http.StatusTooManyRequests, serve(h, newRequest(http.MethodGet, "http://example/", "10.0.0.2:1")).Code)

	_, ok := store.Get(UnknownClient)
	assert.True(t, ok)
}

func TestMiddleware_ZeroQuotaAlwaysDenies(t *testing.T) {
	store := infra.NewWindowStore()
	var calls atomic.Int32

	h := Middleware(Options{
		Policy: MustPolicy("closed", time.Minute, 0),
		Store:  store,
		Now:    func() time.Time { return t0 },
	})(okHandler(&calls))

	w := serve(h, newRequest(http.MethodGet, "http://example/", "10.0.0.1:1"))
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.Zero(t, calls.Load())
	assert.Zero(t, store.Len())
}

func TestMiddleware_CustomDenyHandlerOwnsResponse(t *testing.T) {
	var calls atomic.Int32
	var got domain.Decision

	deny := DenyHandlerFunc(func(w http.ResponseWriter, r *http.Request, dec domain.Decision) {
		got = dec
		w.Header().Set("X-Custom", "yes")
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	h := Middleware(Options{
		Policy: MustPolicy("test", time.Minute, 1, WithDenyHandler(deny)),
		Store:  infra.NewWindowStore(),
		Now:    func() time.Time { return t0 },
	})(okHandler(&calls))

	serve(h, newRequest(http.MethodGet, "http://example/", "10.0.0.1:1"))
	w := serve(h, newRequest(http.MethodGet, "http://example/", "10.0.0.1:1"))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "yes", w.Header().Get("X-Custom"))
	assert.Empty(t, w.Header().Get("Retry-After"))
	assert.Empty(t, w.Body.String())
	assert.False(t, got.Allowed)
	assert.Equal(t, time.Minute, got.RetryAfter)
}

func TestMiddleware_ConcurrentRequestsNeverExceedQuota(t *testing.T) {
	var calls atomic.Int32

	h := Middleware(Options{
		Policy: MustPolicy("test", time.Minute, 25),
		Store:  infra.NewWindowStore(),
		Now:    func() time.Time { return t0 },
	})(okHandler(&calls))

	var wg sync.WaitGroup
	for range 200 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			serve(h, newRequest(http.MethodGet, "http://example/x", "10.0.0.1:1"))
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 25, calls.Load())
}

type recordingStats struct {
	mu     sync.Mutex
	events []domain.StatsEvent
}

func (s *recordingStats) Record(_ context.Context, ev domain.StatsEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return errors.New("sink down")
}

func TestMiddleware_RecordsStatsBestEffort(t *testing.T) {
	stats := &recordingStats{}
	var calls atomic.Int32

	h := Middleware(Options{
		Policy: MustPolicy(PolicyAuth, time.Minute, 1, WithKeyFunc(AddressKeyFunc("auth"))),
		Store:  infra.NewWindowStore(),
		Stats:  stats,
		Now:    func() time.Time { return t0 },
	})(okHandler(&calls))

	assert.Equal(t, http.StatusOK, serve(h, newRequest(http.MethodPost, "http://example/api/auth/login", "10.0.0.1:1")).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(h, newRequest(http.MethodPost, "http://example/api/auth/login", "10.0.0.1:1")).Code)

	require.Len(t, stats.events, 2)
	assert.True(t, stats.events[0].Allowed)
	assert.False(t, stats.events[1].Allowed)
	assert.Equal(t, PolicyAuth, stats.events[1].Policy)
	assert.Equal(t, domain.Key("auth:10.0.0.1"), stats.events[1].Key)
	assert.Equal(t, "/api/auth/login", stats.events[1].Path)
	assert.Equal(t, t0, stats.events[1].At)
}

func TestMiddleware_DenyLogIsThrottledAndHidesCredential(t *testing.T) {
	var buf bytes.Buffer
	var calls atomic.Int32

	h := Middleware(Options{
		Policy: MustPolicy("test", time.Minute, 0),
		Store:  infra.NewWindowStore(),
		Logger: logger.NewWriter(&buf, zapcore.InfoLevel),
		Now:    func() time.Time { return t0 },
	})(okHandler(&calls))

	for range 5 {
		r := newRequest(http.MethodGet, "http://example/api/pigeons", "10.0.0.1:1")
		r.Header.Set("X-API-Key", "secret-key")
		serve(h, r)
	}

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)
	assert.NotContains(t, buf.String(), "secret-key")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "rate limit exceeded", entry["msg"])
	assert.Equal(t, "test", entry["policy"])
	assert.Equal(t, "/api/pigeons", entry["path"])
	assert.Equal(t, "10.0.0.1", entry["client_addr"])
}

func TestMiddleware_PanicsOnInvalidSetup(t *testing.T) {
	assert.Panics(t, func() { Middleware(Options{Store: infra.NewWindowStore()}) })
	assert.Panics(t, func() { Middleware(Options{Policy: GeneralPolicy()}) })
}

func TestMiddleware_WithClientIPAndTrustedProxy(t *testing.T) {
	store := infra.NewWindowStore()
	var calls atomic.Int32

	h := ClientIP(true)(Middleware(Options{
		Policy: AuthPolicy(),
		Store:  store,
		Logger: slog.New(slog.DiscardHandler),
		Now:    func() time.Time { return t0 },
	})(okHandler(&calls)))

	r := newRequest(http.MethodPost, "http://example/api/auth/login", "10.0.0.9:5555")
	r.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.9")
	require.Equal(t, http.StatusOK, serve(h, r).Code)

	_, ok := store.Get("auth:203.0.113.5")
	assert.True(t, ok)
}
