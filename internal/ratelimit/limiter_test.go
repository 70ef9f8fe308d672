package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-tips-go/internal/ratelimit/repo"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newLimiter(store Store) (*Limiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)}
	return New(store, zap.NewNop().Sugar()).WithClock(clock.Now), clock
}

func TestCheckWindow(t *testing.T) {
	l, clock := newLimiter(repo.NewMemoryRepo())
	p := Policy{Window: 60 * time.Second, MaxRequests: 3}
	ctx := context.Background()

	var allowed []bool
	var remaining []int
	for i := 0; i < 4; i++ {
		res := l.Check(ctx, "203.0.113.7", "create-payment-intent", p)
		allowed = append(allowed, res.Allowed)
		remaining = append(remaining, res.Remaining)
		clock.Advance(time.Second)
	}
	assert.Equal(t, []bool{true, true, true, false}, allowed)
	assert.Equal(t, []int{2, 1, 0, 0}, remaining)

	clock.Advance(60 * time.Second)
	res := l.Check(ctx, "203.0.113.7", "create-payment-intent", p)
	assert.True(t, res.Allowed)
	assert.Equal(t, 2, res.Remaining)
}

func TestCheckKeysAreIndependent(t *testing.T) {
	l, _ := newLimiter(repo.NewMemoryRepo())
	p := Policy{Window: time.Minute, MaxRequests: 1}
	ctx := context.Background()

	assert.True(t, l.Check(ctx, "10.0.0.1", "create-payment-intent", p).Allowed)
	assert.False(t, l.Check(ctx, "10.0.0.1", "create-payment-intent", p).Allowed)
	assert.True(t, l.Check(ctx, "10.0.0.2", "create-payment-intent", p).Allowed)
	assert.True(t, l.Check(ctx, "10.0.0.1", "check-account-status", p).Allowed)
}

func TestCheckFailsOpen(t *testing.T) {
	store := repo.NewMemoryRepo()
	store.Err = errors.New("connection refused")
	l, _ := newLimiter(store)
	p := Policy{Window: time.Minute, MaxRequests: 1}
	for i := 0; i < 5; i++ {
		assert.True(t, l.Check(context.Background(), "10.0.0.1", "create-connect-account", p).Allowed)
	}
}

func TestRetryAfter(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 30, Result{ResetAt: now.Add(29500 * time.Millisecond)}.RetryAfter(now))
	assert.Equal(t, 1, Result{ResetAt: now.Add(-time.Second)}.RetryAfter(now))
}

func TestSweepReclaimsExpired(t *testing.T) {
	store := repo.NewMemoryRepo()
	l, clock := newLimiter(store)
	ctx := context.Background()
	l.Check(ctx, "a", "x", Policy{Window: time.Minute, MaxRequests: 5})
	l.Check(ctx, "b", "x", Policy{Window: time.Hour, MaxRequests: 5})
	clock.Advance(2 * time.Minute)

	n, err := l.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 1, store.Len())
}

func TestSanitizeAddress(t *testing.T) {
	assert.Equal(t, "203_0_113_7", SanitizeAddress("203.0.113.7"))
	assert.Equal(t, "2001_db8__1", SanitizeAddress("2001:db8::1"))
	assert.Equal(t, "a_b_c", SanitizeAddress("a/b\\c"))
	assert.Equal(t, "unknown", SanitizeAddress("  "))
	assert.Equal(t, "create-payment-intent_10_0_0_1", Key("create-payment-intent", "10.0.0.1"))
}

func TestClientAddress(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r.RemoteAddr = "192.0.2.10:5555"
	assert.Equal(t, "192.0.2.10", ClientAddress(r))

	r.Header.Set("X-Forwarded-For", "198.51.100.1, 10.0.0.1")
	assert.Equal(t, "198.51.100.1", ClientAddress(r))
}

func TestSetHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SetHeaders(rec, Result{Allowed: false, Limit: 5, Remaining: 0}, 42)
	assert.Equal(t, "5", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "42", rec.Header().Get("Retry-After"))

	rec = httptest.NewRecorder()
	SetHeaders(rec, Result{Allowed: true, Limit: 5, Remaining: 4}, 0)
	assert.Empty(t, rec.Header().Get("Retry-After"))
}
