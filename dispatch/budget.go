package dispatch

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Budget is the outbound rate budget shared by every delivery queue: one
// global limiter, one limiter per target channel, and a pause that a
// rate-limit response from the platform imposes on everybody.
type Budget struct {
	global      *rate.Limiter
	targetLimit rate.Limit

	mu          sync.Mutex
	targets     map[string]*rate.Limiter
	pausedUntil time.Time
}

func limit(perSecond float64) rate.Limit {
	if perSecond <= 0 {
		return rate.Inf
	}
	return rate.Limit(perSecond)
}

// NewBudget creates a budget. A non-positive rate means unlimited.
func NewBudget(globalRate float64, burst int, targetRate float64) *Budget {
	if burst < 1 {
		burst = 1
	}
	return &Budget{
		global:      rate.NewLimiter(limit(globalRate), burst),
		targetLimit: limit(targetRate),
		targets:     make(map[string]*rate.Limiter),
	}
}

func (b *Budget) target(id string) *rate.Limiter {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.targets[id]
	if !ok {
		l = rate.NewLimiter(b.targetLimit, 1)
		b.targets[id] = l
	}
	return l
}

// Pause stops all sends for d. Overlapping pauses extend to the latest end.
func (b *Budget) Pause(d time.Duration) {
	if d <= 0 {
		return
	}
	until := time.Now().Add(d)
	b.mu.Lock()
	if until.After(b.pausedUntil) {
		b.pausedUntil = until
	}
	b.mu.Unlock()
}

// PausedFor returns how long the budget stays paused.
func (b *Budget) PausedFor() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return time.Until(b.pausedUntil)
}

// Wait blocks until a message to target may be sent.
func (b *Budget) Wait(ctx context.Context, target string) error {
	for {
		d := b.PausedFor()
		if d <= 0 {
			break
		}
		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	if err := b.target(target).Wait(ctx); err != nil {
		return err
	}
	return b.global.Wait(ctx)
}
