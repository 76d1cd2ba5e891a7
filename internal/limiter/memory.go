package limiter

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter is a mutex-guarded sliding-window limiter for
// single-instance deployments or when Redis is unavailable. The lock
// covers the whole check-and-record sequence, so concurrent attempts
// from one source can never exceed the ceiling.
type MemoryLimiter struct {
	mu        sync.Mutex
	limit     int
	window    time.Duration
	attempts  map[string][]time.Time
	lastSweep time.Time
	now       func() time.Time // overridable in tests
}

func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		limit:    limit,
		window:   window,
		attempts: make(map[string][]time.Time),
		now:      time.Now,
	}
}

// Allow records an attempt for key and reports whether it stays
// within the window ceiling.
func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)
	l.sweep(now, cutoff, key)

	kept := l.attempts[key][:0]
	for _, t := range l.attempts[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= l.limit {
		l.attempts[key] = kept
		retry := kept[0].Add(l.window).Sub(now)
		if retry < 0 {
			retry = 0
		}
		return false, retry, nil
	}

	l.attempts[key] = append(kept, now)
	return true, 0, nil
}

// sweep drops keys whose attempts have all aged out of the window, at
// most once per window, so sources that probe once and disappear do
// not grow the map forever. The current key is left for the caller's
// own prune.
func (l *MemoryLimiter) sweep(now, cutoff time.Time, current string) {
	if now.Sub(l.lastSweep) < l.window {
		return
	}
	l.lastSweep = now
	for k, ts := range l.attempts {
		if k == current {
			continue
		}
		if len(ts) == 0 || !ts[len(ts)-1].After(cutoff) {
			delete(l.attempts, k)
		}
	}
}
