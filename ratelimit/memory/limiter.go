// Package memorylimiter is a single-node fallback for the Redis limiter.
package memorylimiter

import (
	"fmt"
	"sync"
	"time"
)

// Limit caps how many calls a key may make per window.
type Limit struct {
	Max    int
	Window time.Duration
}

type window struct {
	start time.Time
	count int
}

// Limiter is an in-memory fixed-window limiter. Fixed windows are a little
// coarser than the Redis sliding window but need no per-call allocations and
// no background pruning.
type Limiter struct {
	mu      sync.Mutex
	limits  map[string]Limit
	windows map[string]window
	now     func() time.Time
}

func New(limits map[string]Limit) *Limiter {
	if limits == nil {
		limits = map[string]Limit{}
	}
	return &Limiter{
		limits:  limits,
		windows: make(map[string]window),
		now:     time.Now,
	}
}

func (l *Limiter) limitFor(bucket string) Limit {
	if v, ok := l.limits[bucket]; ok {
		return v
	}
	if v, ok := l.limits["default"]; ok {
		return v
	}
	return Limit{Max: 60, Window: time.Minute}
}

// AllowNamed records one call and reports whether the caller is within the
// bucket's limit.
func (l *Limiter) AllowNamed(bucket, key string) (bool, error) {
	if l == nil {
		return true, nil
	}
	if bucket == "" || key == "" {
		return false, fmt.Errorf("bucket and key required")
	}

	lim := l.limitFor(bucket)
	now := l.now()
	mapKey := bucket + ":" + key

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[mapKey]
	if !ok || now.Sub(w.start) >= lim.Window {
		l.windows[mapKey] = window{start: now, count: 1}
		return true, nil
	}
	if w.count >= lim.Max {
		return false, nil
	}
	w.count++
	l.windows[mapKey] = w
	return true, nil
}
