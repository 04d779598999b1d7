// Package ratelimit implements a fixed-window request limiter keyed by client and route.
package ratelimit

import (
	"sync"
	"time"
)

// Decision is the outcome of a single Allow call.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int

	// Reset is when the current window ends.
	Reset time.Time

	// At is the limiter clock reading the decision was made at.
	At time.Time
}

// RetryAfter returns how long until the window resets, relative to now.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	if wait := d.Reset.Sub(now); wait > 0 {
		return wait
	}
	return 0
}

// Wait returns how long until the window resets, measured from when the decision was made.
func (d Decision) Wait() time.Duration {
	return d.RetryAfter(d.At)
}

type window struct {
	start time.Time
	count int
}

// Limiter counts requests per key in windows aligned by flooring the current time to the window size.
// NewLimiter should be used to create instances of Limiter.
type Limiter struct {
	opts Options

	mu      sync.Mutex
	windows map[string]*window
}

// NewLimiter creates a Limiter.
func NewLimiter(opt ...Option) (*Limiter, error) {
	opts, err := NewOptions(opt...)
	if err != nil {
		return nil, err
	}

	return &Limiter{
		opts:    opts,
		windows: make(map[string]*window),
	}, nil
}

// Key combines a client identity and a route into a limiter key.
func Key(client string, route string) string {
	return client + "|" + route
}

// Allow counts a request for key and reports whether it fits in the current window.
// Rejected requests are not counted.
func (l *Limiter) Allow(key string) Decision {
	now := l.opts.Clock()
	start := windowStart(now, l.opts.Window)

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || !w.start.Equal(start) {
		w = &window{start: start}
		l.windows[key] = w
	}

	d := Decision{
		Limit: l.opts.Requests,
		Reset: start.Add(l.opts.Window),
		At:    now,
	}
	if w.count >= l.opts.Requests {
		return d
	}

	w.count++
	d.Allowed = true
	d.Remaining = l.opts.Requests - w.count

	return d
}

// windowStart floors now to a multiple of size since the Unix epoch.
func windowStart(now time.Time, size time.Duration) time.Time {
	ms := now.UnixMilli()
	sizeMs := size.Milliseconds()
	if sizeMs <= 0 {
		return now
	}
	floored := ms / sizeMs * sizeMs
	if ms < 0 && ms%sizeMs != 0 {
		floored -= sizeMs
	}
	return time.UnixMilli(floored)
}

// Prune deletes windows that have ended and returns how many were removed.
func (l *Limiter) Prune() int {
	now := l.opts.Clock()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, w := range l.windows {
		if !now.Before(w.start.Add(l.opts.Window)) {
			delete(l.windows, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// Limit returns the configured requests per window.
func (l *Limiter) Limit() int {
	return l.opts.Requests
}

// Window returns the configured window size.
func (l *Limiter) Window() time.Duration {
	return l.opts.Window
}
