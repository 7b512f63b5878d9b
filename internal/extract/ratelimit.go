package extract

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter gates outbound requests so at least minDelay elapses between any
// two of them, globally across all goroutines sharing it. A token bucket
// with burst 1 provides the base spacing; the previous permit time, jitter
// included, is tracked under the mutex so the guarantee holds even when
// concurrent callers draw different jitters.
type Limiter struct {
	limiter  *rate.Limiter
	minDelay time.Duration
	jitter   time.Duration

	mu   sync.Mutex
	rng  *rand.Rand
	last time.Time
}

// NewLimiter creates a limiter enforcing minDelay between requests plus a
// uniform random extra wait in [0, jitter) to avoid a detectable fixed
// cadence. minDelay <= 0 disables the gate entirely.
func NewLimiter(minDelay, jitter time.Duration) *Limiter {
	l := &Limiter{
		minDelay: minDelay,
		jitter:   jitter,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec // pacing, not crypto
	}
	if minDelay > 0 {
		l.limiter = rate.NewLimiter(rate.Every(minDelay), 1)
	}
	return l
}

// Wait blocks until the caller may issue the next request, or until ctx is
// done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l.limiter == nil {
		return ctx.Err()
	}
	if err := l.limiter.Wait(ctx); err != nil {
		return err
	}

	// The bucket spaces grants by minDelay but knows nothing about jitter.
	// Claim a permit slot at least minDelay+jitter after the previous one so
	// the spacing between actual requests never dips below minDelay.
	l.mu.Lock()
	var j time.Duration
	if l.jitter > 0 {
		j = time.Duration(l.rng.Int63n(int64(l.jitter)))
	}
	now := time.Now()
	permit := now
	if target := l.last.Add(l.minDelay + j); target.After(now) {
		permit = target
	}
	l.last = permit
	l.mu.Unlock()

	if wait := permit.Sub(now); wait > 0 {
		slog.Debug("rate limit wait", slog.Duration("wait", wait))
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
