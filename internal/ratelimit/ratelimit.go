package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Limiter enforces the inter-page politeness delay. This is a throttling
// policy toward the target, not a correctness requirement.
type Limiter interface {
	Wait(ctx context.Context) error
}

// PageLimiter spaces successive calls by a base delay plus random jitter,
// so page fetches do not land at a machine-regular cadence.
type PageLimiter struct {
	baseDelay  time.Duration
	jitter     time.Duration
	lastAction time.Time
	mu         sync.Mutex
}

func NewPageLimiter(baseDelay, jitter time.Duration) *PageLimiter {
	return &PageLimiter{
		baseDelay: baseDelay,
		jitter:    jitter,
	}
}

func (l *PageLimiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delay := l.baseDelay
	if l.jitter > 0 {
		delay += time.Duration(rand.Int63n(int64(l.jitter)))
	}

	elapsed := time.Since(l.lastAction)
	if elapsed < delay {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay - elapsed):
		}
	}

	l.lastAction = time.Now()
	return nil
}

// NopLimiter waits for nothing. Used in tests.
type NopLimiter struct{}

func (NopLimiter) Wait(ctx context.Context) error { return ctx.Err() }
