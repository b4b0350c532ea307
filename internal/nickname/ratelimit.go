package nickname

import (
	"sync"
	"time"
)

const (
	maxAttempts   = 10
	attemptWindow = 10 * time.Minute
	sweepInterval = 60 * time.Second
)

// bucket tracks login attempts for one nickname|ip pair
type bucket struct {
	windowStart time.Time
	attempts    int
}

// RateLimiter bounds PIN verification attempts per (nickname, ip) pair.
// State is process-local and in-memory: it limits abuse within one
// instance's lifetime, not across horizontally scaled instances.
type RateLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
	now       func() time.Time
}

// NewRateLimiter creates an empty rate limiter
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

func bucketKey(nick, ip string) string {
	return nick + "|" + ip
}

// Allow records an attempt for the pair and reports whether it is within
// the window's budget. The window resets on expiry rather than sliding.
func (l *RateLimiter) Allow(nick, ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	key := bucketKey(nick, ip)
	b, ok := l.buckets[key]
	if !ok || now.Sub(b.windowStart) >= attemptWindow {
		b = &bucket{windowStart: now}
		l.buckets[key] = b
	}

	if b.attempts >= maxAttempts {
		return false
	}
	b.attempts++
	return true
}

// Clear removes the pair's bucket, typically after a successful login
func (l *RateLimiter) Clear(nick, ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, bucketKey(nick, ip))
}

// sweep drops expired buckets, at most once per sweepInterval. Called with
// the lock held; bounds memory without a background timer.
func (l *RateLimiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < sweepInterval {
		return
	}
	l.lastSweep = now

	for key, b := range l.buckets {
		if now.Sub(b.windowStart) >= attemptWindow {
			delete(l.buckets, key)
		}
	}
}
