// Package ratelimit implements the fixed-window, per-user upload limiter
// (spec §4.C). The window counter lives in Redis so the limit is enforced
// consistently across every HTTP instance.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"wallpaperdb/internal/kv"
	"wallpaperdb/internal/logging"
)

type Config struct {
	MaxUploads int
	Window     time.Duration
}

// Decision is the outcome of a rate-limit check. Limit/Remaining/ResetAtMs
// are reported on every response via X-RateLimit-* headers (spec §4.D);
// RetryAfterSeconds is additionally surfaced as Retry-After on denial.
type Decision struct {
	Allowed           bool
	Limit             int64
	Remaining         int64
	ResetAtMs         int64
	RetryAfterSeconds int64
}

type Limiter struct {
	store  kv.Store
	cfg    Config
	logger *logging.StructuredLogger
}

func New(store kv.Store, cfg Config, logger *logging.StructuredLogger) *Limiter {
	return &Limiter{store: store, cfg: cfg, logger: logger}
}

// Allow increments the caller's fixed-window counter and reports whether the
// request is within budget.
//
// Fail-open: when Redis is unreachable, the request is allowed and the
// degradation is logged rather than rejecting uploads on an unrelated
// dependency outage (spec §4.C "degraded mode").
func (l *Limiter) Allow(ctx context.Context, userID string) (Decision, error) {
	key, resetAtMs := windowKey(userID, l.cfg.Window, time.Now())
	limit := int64(l.cfg.MaxUploads)

	count, err := l.store.IncrWithExpiry(ctx, key, l.cfg.Window)
	if err != nil {
		l.logger.Warn(ctx, "rate limiter degraded, failing open", map[string]interface{}{
			"error": err.Error(),
		})
		return Decision{Allowed: true, Limit: limit, Remaining: limit, ResetAtMs: resetAtMs}, nil
	}

	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}

	if count > limit {
		return Decision{
			Allowed:           false,
			Limit:             limit,
			Remaining:         0,
			ResetAtMs:         resetAtMs,
			RetryAfterSeconds: int64(l.cfg.Window.Seconds()),
		}, nil
	}

	return Decision{Allowed: true, Limit: limit, Remaining: remaining, ResetAtMs: resetAtMs}, nil
}

// windowKey buckets the counter by the current fixed window so it resets on
// window boundaries without needing a separate reset job, and reports the
// millisecond timestamp the window closes at for the X-RateLimit-Reset
// header.
func windowKey(userID string, window time.Duration, now time.Time) (key string, resetAtMs int64) {
	windowNanos := window.Nanoseconds()
	bucket := now.UnixNano() / windowNanos
	key = fmt.Sprintf("ratelimit:upload:%s:%d", userID, bucket)
	resetAtMs = ((bucket + 1) * windowNanos) / int64(time.Millisecond)
	return key, resetAtMs
}
