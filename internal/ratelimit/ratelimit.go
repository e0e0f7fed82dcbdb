// Package ratelimit provides per-source sliding-window call admission.
//
// Each price source gets a quota of calls per 60-second window. Admit records
// the call and tells the caller how long to wait; the limiter itself never
// queues or sleeps, so a blocked caller only blocks its own goroutine.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Window is the quota window applied to every source key.
const Window = 60 * time.Second

// Limiter enforces a max-calls-per-window quota per source key.
// Safe for concurrent use; a single mutex guards the timestamp lists.
type Limiter struct {
	maxCalls int
	window   time.Duration
	now      func() time.Time

	mu    sync.Mutex
	calls map[string][]time.Time
}

// New creates a limiter allowing maxCalls per Window for each source key.
func New(maxCalls int) *Limiter {
	return &Limiter{
		maxCalls: maxCalls,
		window:   Window,
		now:      time.Now,
		calls:    make(map[string][]time.Time),
	}
}

// Admit checks the quota for key. If the call is admitted it is recorded and
// zero is returned. Otherwise the returned duration is how long the caller
// must wait before trying again; nothing is recorded for a denied call.
func (l *Limiter) Admit(key string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	// Purge timestamps that have left the window.
	recent := l.calls[key][:0]
	for _, ts := range l.calls[key] {
		if ts.After(cutoff) {
			recent = append(recent, ts)
		}
	}
	l.calls[key] = recent

	if len(recent) < l.maxCalls {
		l.calls[key] = append(recent, now)
		return 0
	}

	// Quota exhausted: wait until the oldest in-window call expires.
	return recent[0].Add(l.window).Sub(now)
}

// Wait blocks until key is admitted or ctx is done. It loops on Admit,
// sleeping for the returned delay between attempts.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	for {
		delay := l.Admit(key)
		if delay <= 0 {
			return nil
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// InFlight returns how many calls are currently recorded in the window for
// key. Used by status reporting.
func (l *Limiter) InFlight(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.window)
	n := 0
	for _, ts := range l.calls[key] {
		if ts.After(cutoff) {
			n++
		}
	}
	return n
}
