// Package ratelimit throttles requests per (action, client address) with fixed
// windows persisted in the Account Store.
package ratelimit

import (
	"context"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-tips-go/internal/ratelimit/entity"
	"github.com/ovaphlow/pitchfork/service-tips-go/internal/ratelimit/repo"
)

// Policy is a window length and the number of requests allowed inside it.
type Policy struct {
	Window      time.Duration
	MaxRequests int
}

// Result is the verdict for one request.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter is the whole number of seconds until the window resets, at least 1.
func (r Result) RetryAfter(now time.Time) int {
	secs := int(math.Ceil(r.ResetAt.Sub(now).Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

// Store counts hits atomically per key.
type Store interface {
	Hit(ctx context.Context, key string, now time.Time, window time.Duration) (entity.Record, error)
	Sweep(ctx context.Context, now time.Time) (int64, error)
}

var (
	_ Store = (*repo.Repo)(nil)
	_ Store = (*repo.MemoryRepo)(nil)
)

type Limiter struct {
	store  Store
	logger *zap.SugaredLogger
	now    func() time.Time
}

func New(store Store, logger *zap.SugaredLogger) *Limiter {
	return &Limiter{store: store, logger: logger, now: time.Now}
}

// WithClock replaces the time source; used by tests.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Now is the limiter's current time.
func (l *Limiter) Now() time.Time { return l.now() }

// Check counts one request for (action, clientAddress) under p. Storage errors
// fail open: the request is allowed and the error is logged.
func (l *Limiter) Check(ctx context.Context, clientAddress, action string, p Policy) Result {
	now := l.now()
	key := Key(action, clientAddress)
	rec, err := l.store.Hit(ctx, key, now, p.Window)
	if err != nil {
		l.logger.Warnw("rate limit store failed, allowing request", "key", key, "action", action, "err", err)
		return Result{Allowed: true, Limit: p.MaxRequests, Remaining: p.MaxRequests, ResetAt: now.Add(p.Window)}
	}
	remaining := p.MaxRequests - rec.Count
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   rec.Count <= p.MaxRequests,
		Limit:     p.MaxRequests,
		Remaining: remaining,
		ResetAt:   rec.ResetAt,
	}
}

// Sweep reclaims windows that have ended. Correctness never depends on it.
func (l *Limiter) Sweep(ctx context.Context) (int64, error) {
	return l.store.Sweep(ctx, l.now())
}

// Key builds the storage key for an action and client address.
func Key(action, clientAddress string) string {
	return action + "_" + SanitizeAddress(clientAddress)
}

var addressReplacer = strings.NewReplacer("/", "_", "\\", "_", ".", "_", ":", "_", "%", "_", " ", "_")

// SanitizeAddress turns an IPv4/IPv6 address (or whatever the client sent)
// into a key fragment without path or domain separators.
func SanitizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "unknown"
	}
	return addressReplacer.Replace(addr)
}
