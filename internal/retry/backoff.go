package retry

import (
	"sync"
	"time"
)

// Backoff tracks consecutive failures of a periodic job and tells the caller
// whether the next tick should run. It never gives up.
type Backoff struct {
	policy Policy

	mu       sync.Mutex
	failures int
	notUntil time.Time
}

func NewBackoff(p Policy) *Backoff {
	return &Backoff{policy: p}
}

// Ready reports whether the backoff window has elapsed at now.
func (b *Backoff) Ready(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !now.Before(b.notUntil)
}

// Failure records a failed attempt at now and returns the delay before the
// next attempt is allowed.
func (b *Backoff) Failure(now time.Time) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	d := b.policy.Delay(b.failures)
	b.notUntil = now.Add(d)
	return d
}

// Success resets the failure streak.
func (b *Backoff) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.notUntil = time.Time{}
}

// Failures returns the current consecutive failure count.
func (b *Backoff) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}
