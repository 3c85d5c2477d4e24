package handlers

import (
	"strings"
	"sync"
	"time"
)

// failureLimiter locks a key out once it accumulates limit failures inside window.
// Successful attempts clear the key.
type failureLimiter struct {
	limit  int
	window time.Duration
	clock  func() time.Time
	mu     sync.Mutex
	store  map[string]failureEntry
}

type failureEntry struct {
	failures int
	reset    time.Time
}

func newFailureLimiter(limit int, window time.Duration, clock func() time.Time) *failureLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &failureLimiter{
		limit:  limit,
		window: window,
		clock:  clock,
		store:  make(map[string]failureEntry),
	}
}

func normalizeLimiterKey(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return "anonymous"
	}
	return key
}

// Locked reports whether key has exhausted its failures for the current window.
func (l *failureLimiter) Locked(key string) bool {
	if l == nil {
		return false
	}
	key = normalizeLimiterKey(key)
	now := l.clock()
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.store[key]
	if !ok {
		return false
	}
	if now.After(entry.reset) {
		delete(l.store, key)
		return false
	}
	return entry.failures >= l.limit
}

func (l *failureLimiter) Fail(key string) {
	if l == nil {
		return
	}
	key = normalizeLimiterKey(key)
	now := l.clock()
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.store[key]
	if !ok || now.After(entry.reset) {
		l.store[key] = failureEntry{failures: 1, reset: now.Add(l.window)}
		l.pruneExpiredLocked(now)
		return
	}
	entry.failures++
	l.store[key] = entry
}

func (l *failureLimiter) Succeed(key string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	delete(l.store, normalizeLimiterKey(key))
	l.mu.Unlock()
}

func (l *failureLimiter) pruneExpiredLocked(now time.Time) {
	for key, entry := range l.store {
		if now.After(entry.reset) {
			delete(l.store, key)
		}
	}
}
