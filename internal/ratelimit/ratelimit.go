// Package ratelimit spaces outgoing notifications so that all sources
// together stay under the bot API's per-chat limits.
package ratelimit

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// SendLimiter enforces a minimum delay between two sends. One limiter is
// shared by every source loop that posts to the same chat.
type SendLimiter struct {
	limiter  *rate.Limiter
	minDelay time.Duration
	waits    atomic.Int64
}

// NewSendLimiter returns a limiter allowing one send per minDelay.
// A zero or negative delay disables limiting.
func NewSendLimiter(minDelay time.Duration) *SendLimiter {
	lim := rate.NewLimiter(rate.Inf, 1)
	if minDelay > 0 {
		lim = rate.NewLimiter(rate.Every(minDelay), 1)
	}
	return &SendLimiter{limiter: lim, minDelay: minDelay}
}

// Wait blocks until the next send is allowed or ctx is done.
func (l *SendLimiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	if !l.limiter.Allow() {
		l.waits.Add(1)
		return l.limiter.Wait(ctx)
	}
	return nil
}

// MinDelay returns the configured spacing.
func (l *SendLimiter) MinDelay() time.Duration { return l.minDelay }

// Throttled returns how many sends had to wait so far.
func (l *SendLimiter) Throttled() int64 { return l.waits.Load() }
