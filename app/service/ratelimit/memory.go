package ratelimit

import (
	"context"
	"sync"
	"time"
)

// memoryLimiter keeps a sliding log of admission times per key.
type memoryLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	windows map[string][]time.Time
}

func newMemoryLimiter(o *options) *memoryLimiter {
	return &memoryLimiter{
		limit:   o.limit,
		window:  o.window,
		now:     o.now,
		windows: make(map[string][]time.Time),
	}
}

func (l *memoryLimiter) Admit(_ context.Context, key string) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	hits := prune(l.windows[key], now.Add(-l.window))

	if len(hits) >= l.limit {
		l.windows[key] = hits
		return Decision{
			Allowed:    false,
			Remaining:  0,
			RetryAfter: hits[0].Add(l.window).Sub(now),
		}, nil
	}

	hits = append(hits, now)
	l.windows[key] = hits

	return Decision{
		Allowed:   true,
		Remaining: l.limit - len(hits),
	}, nil
}

// Cleanup drops keys whose whole log has left the window.
func (l *memoryLimiter) Cleanup() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.window)
	removed := 0

	for key, hits := range l.windows {
		hits = prune(hits, cutoff)
		if len(hits) == 0 {
			delete(l.windows, key)
			removed++
			continue
		}
		l.windows[key] = hits
	}

	return removed
}

func (l *memoryLimiter) keys() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.windows)
}

func (l *memoryLimiter) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.windows = make(map[string][]time.Time)
	return nil
}

// prune removes timestamps at or before cutoff; hits are kept in ascending order.
func prune(hits []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}

	if i == 0 {
		return hits
	}

	return append(hits[:0], hits[i:]...)
}
