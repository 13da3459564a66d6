package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tauben-gateway/middleware/ratelimit/domain"
)

func TestNewPolicy_Validation(t *testing.T) {
	_, err := NewPolicy("bad", 0, 10)
	require.ErrorIs(t, err, domain.ErrInvalidWindow)
	assert.ErrorContains(t, err, `policy "bad"`)

	_, err = NewPolicy("bad", time.Minute, -1)
	require.ErrorIs(t, err, domain.ErrInvalidMaxRequests)

	p, err := NewPolicy("closed", time.Minute, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, p.Quota().MaxRequests)
	assert.NotNil(t, p.KeyFn())
	assert.Nil(t, p.DenyHandler())
}

func TestMustPolicy_Panics(t *testing.T) {
	assert.Panics(t, func() { MustPolicy("bad", -time.Second, 1) })
}

func TestWithKeyFunc_NilKeepsDefault(t *testing.T) {
	p := MustPolicy("p", time.Minute, 1, WithKeyFunc(nil))

	r := newRequest(http.MethodGet, "http://example/x", "10.0.0.1:1")
	assert.Equal(t, "ip:10.0.0.1:/x", p.KeyFn()(r))
}

func TestDefaultPolicies(t *testing.T) {
	ps := DefaultPolicies()
	require.Len(t, ps, 5)

	want := map[string]domain.Quota{
		PolicyGeneral: {Window: 15 * time.Minute, MaxRequests: 100},
		PolicyStrict:  {Window: 15 * time.Minute, MaxRequests: 20},
		PolicyUpload:  {Window: 5 * time.Minute, MaxRequests: 10},
		PolicyAuth:    {Window: time.Minute, MaxRequests: 5},
		PolicyHealth:  {Window: time.Minute, MaxRequests: 30},
	}
	for name, q := range want {
		p, ok := ps[name]
		require.True(t, ok, name)
		assert.Equal(t, name, p.Name())
		assert.Equal(t, q, p.Quota(), name)
	}

	r := newRequest(http.MethodGet, "http://example/api/pigeons", "10.0.0.1:1")
	r.Header.Set("X-API-Key", "k1")
	assert.Equal(t, "api:k1", ps[PolicyGeneral].KeyFn()(r))
	assert.Equal(t, "auth:10.0.0.1", ps[PolicyAuth].KeyFn()(r))
	assert.Equal(t, "health:10.0.0.1", ps[PolicyHealth].KeyFn()(r))
}

func TestWriteAllowHeaders_FractionalWindow(t *testing.T) {
	w := httptest.NewRecorder()
	writeAllowHeaders(w, domain.Decision{Allowed: true, Limit: 3, Remaining: 2}, 1500*time.Millisecond)

	assert.Equal(t, "3", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "1.5s", w.Header().Get("X-RateLimit-Window"))
}
