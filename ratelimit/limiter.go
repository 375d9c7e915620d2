// Package ratelimit implements the adaptive sliding-window token bucket
// shared by every worker driving one Looker instance.
//
// Two windows are enforced simultaneously: a per-minute and a per-second
// budget. A backoff multiplier scales the effective capacity of both
// windows down when the API returns 429s and relaxes back toward 1.0 as
// calls succeed, so the whole worker pool slows and recovers together.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Defaults per the extraction contract.
const (
	DefaultPerMinute = 100
	DefaultPerSecond = 10

	// backoffGrowth is applied to the multiplier on each observed 429.
	backoffGrowth = 1.5
	// recoveryDecay is applied every recoveryInterval consecutive successes.
	recoveryDecay    = 0.9
	recoveryInterval = 10
)

// Limiter is the shared adaptive limiter. A single mutex protects both
// windows and the multiplier; critical sections do no I/O.
type Limiter struct {
	mu sync.Mutex

	perMinute int
	perSecond int

	minuteWindow []time.Time
	secondWindow []time.Time

	multiplier           float64
	consecutiveSuccesses int
	total429             int64

	// now is swappable for tests.
	now func() time.Time
}

// New creates a limiter with the given nominal capacities.
// Non-positive capacities fall back to the defaults.
func New(perMinute, perSecond int) *Limiter {
	if perMinute <= 0 {
		perMinute = DefaultPerMinute
	}
	if perSecond <= 0 {
		perSecond = DefaultPerSecond
	}
	return &Limiter{
		perMinute:  perMinute,
		perSecond:  perSecond,
		multiplier: 1.0,
		now:        time.Now,
	}
}

// Acquire blocks until a token is available in both windows, then consumes
// one from each. Returns the context error if ctx is cancelled first.
func (l *Limiter) Acquire(ctx context.Context) error {
	for {
		wait, ok := l.tryAcquire()
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// tryAcquire consumes a token when both windows have room. Otherwise it
// returns how long to wait before the earliest token could free up.
func (l *Limiter) tryAcquire() (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.minuteWindow = prune(l.minuteWindow, now.Add(-time.Minute))
	l.secondWindow = prune(l.secondWindow, now.Add(-time.Second))

	minuteCap := effective(l.perMinute, l.multiplier)
	secondCap := effective(l.perSecond, l.multiplier)

	if len(l.minuteWindow) < minuteCap && len(l.secondWindow) < secondCap {
		l.minuteWindow = append(l.minuteWindow, now)
		l.secondWindow = append(l.secondWindow, now)
		return 0, true
	}

	wait := 50 * time.Millisecond
	if len(l.secondWindow) >= secondCap && len(l.secondWindow) > 0 {
		if d := l.secondWindow[0].Add(time.Second).Sub(now); d > wait {
			wait = d
		}
	}
	if len(l.minuteWindow) >= minuteCap && len(l.minuteWindow) > 0 {
		if d := l.minuteWindow[0].Add(time.Minute).Sub(now); d > wait {
			wait = d
		}
	}
	// Cap the sleep so cancellation and multiplier recovery are observed
	// promptly even when the minute window is the constraint.
	if wait > time.Second {
		wait = time.Second
	}
	return wait, false
}

// On429 records a rate-limit response: capacity shrinks and the success
// streak resets.
func (l *Limiter) On429() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.multiplier *= backoffGrowth
	l.consecutiveSuccesses = 0
	l.total429++
}

// OnSuccess records a successful call. Every tenth consecutive success
// relaxes the multiplier toward 1.0.
func (l *Limiter) OnSuccess() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.consecutiveSuccesses++
	if l.consecutiveSuccesses >= recoveryInterval {
		l.multiplier *= recoveryDecay
		if l.multiplier < 1.0 {
			l.multiplier = 1.0
		}
		l.consecutiveSuccesses = 0
	}
}

// Stats is a point-in-time view of the limiter state.
type Stats struct {
	Multiplier float64
	Total429   int64
}

// Stats returns the current multiplier and 429 count.
func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Stats{Multiplier: l.multiplier, Total429: l.total429}
}

func effective(nominal int, multiplier float64) int {
	capacity := int(float64(nominal) / multiplier)
	if capacity < 1 {
		capacity = 1
	}
	return capacity
}

func prune(window []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(window) && !window[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return window
	}
	return append(window[:0], window[i:]...)
}
