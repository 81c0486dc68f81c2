package handlers

import (
	"strings"
	"sync"
	"time"
)

type rateLimiter interface {
	Allow(key string) bool
}

// fixedWindowLimiter counts requests per key in coarse fixed windows. Windows
// do not slide, so a burst straddling a boundary can briefly see up to twice
// the limit; for abuse damping on a public lookup that trade is fine.
type fixedWindowLimiter struct {
	limit  int
	window time.Duration
	clock  func() time.Time

	mu      sync.Mutex
	windows map[string]requestWindow
}

type requestWindow struct {
	hits    int
	resetAt time.Time
}

func newFixedWindowLimiter(limit int, window time.Duration, clock func() time.Time) rateLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &fixedWindowLimiter{
		limit:   limit,
		window:  window,
		clock:   clock,
		windows: make(map[string]requestWindow),
	}
}

func (l *fixedWindowLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "anonymous"
	}
	now := l.clock()

	l.mu.Lock()
	defer l.mu.Unlock()

	current, ok := l.windows[key]
	if !ok || now.After(current.resetAt) {
		l.dropExpiredLocked(now)
		l.windows[key] = requestWindow{hits: 1, resetAt: now.Add(l.window)}
		return true
	}
	if current.hits >= l.limit {
		return false
	}
	current.hits++
	l.windows[key] = current
	return true
}

// dropExpiredLocked keeps the map bounded by the set of keys seen within the
// last window. Called only when a key rolls over, so steady traffic from a
// fixed client set never pays for a full sweep.
func (l *fixedWindowLimiter) dropExpiredLocked(now time.Time) {
	for key, w := range l.windows {
		if now.After(w.resetAt) {
			delete(l.windows, key)
		}
	}
}
