// Package ratelimit provides per-user request rate limiting.
// It uses a sliding window algorithm and supports both in-memory (single
// instance) and Redis (distributed) backends. On any failure to reach the
// backing store the limiter fails closed: the check is reported as denied
// rather than silently allowing unlimited traffic.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limit is a point budget over a rolling window.
type Limit struct {
	Points   int
	Duration time.Duration
}

// Per-route limits. Routes not listed here use Default.
var (
	Default       = Limit{Points: 20, Duration: time.Minute}
	JobParse      = Limit{Points: 10, Duration: time.Minute}
	ResumeAnalyze = Limit{Points: 30, Duration: time.Minute}
)

type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	Reset      time.Time
	RetryAfter time.Duration
}

// Limiter checks a sliding-window counter for an identifier. A non-nil
// error always comes with a fail-closed Result so callers can log the
// infrastructure failure and still deny the request.
type Limiter interface {
	Check(ctx context.Context, identifier string, limit Limit) (Result, error)
}

// failClosed is the Result returned whenever the counter store is
// unreachable.
func failClosed(limit Limit) Result {
	return Result{
		Allowed:    false,
		Limit:      limit.Points,
		Remaining:  0,
		Reset:      time.Now().Add(limit.Duration),
		RetryAfter: limit.Duration,
	}
}

type memoryWindow struct {
	events   []time.Time
	duration time.Duration
}

// InMemoryLimiter implements sliding windows with process-local state.
type InMemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*memoryWindow
	now     func() time.Time
}

func NewInMemoryLimiter() *InMemoryLimiter {
	l := &InMemoryLimiter{
		windows: make(map[string]*memoryWindow),
		now:     time.Now,
	}
	go l.cleanup()
	return l
}

func (l *InMemoryLimiter) Check(ctx context.Context, identifier string, limit Limit) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-limit.Duration)

	window := l.windows[identifier]
	if window == nil {
		window = &memoryWindow{}
		l.windows[identifier] = window
	}
	window.duration = limit.Duration

	kept := window.events[:0]
	for _, t := range window.events {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= limit.Points {
		window.events = kept
		reset := kept[0].Add(limit.Duration)
		return Result{
			Allowed:    false,
			Limit:      limit.Points,
			Remaining:  0,
			Reset:      reset,
			RetryAfter: reset.Sub(now),
		}, nil
	}

	kept = append(kept, now)
	window.events = kept

	return Result{
		Allowed:   true,
		Limit:     limit.Points,
		Remaining: limit.Points - len(kept),
		Reset:     now.Add(limit.Duration),
	}, nil
}

func (l *InMemoryLimiter) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		l.evictIdle()
	}
}

// evictIdle drops identifiers whose newest event has aged out of its
// window, keeping the map bounded by active users.
func (l *InMemoryLimiter) evictIdle() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for id, window := range l.windows {
		if len(window.events) == 0 || now.Sub(window.events[len(window.events)-1]) > window.duration {
			delete(l.windows, id)
		}
	}
}
