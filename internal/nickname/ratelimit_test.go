package nickname

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterBudget(t *testing.T) {
	l := NewRateLimiter()

	for i := 0; i < maxAttempts; i++ {
		assert.True(t, l.Allow("ACE", "1.2.3.4"), "attempt %d", i+1)
	}
	assert.False(t, l.Allow("ACE", "1.2.3.4"))

	// Other pairs are unaffected
	assert.True(t, l.Allow("ACE", "5.6.7.8"))
	assert.True(t, l.Allow("BEE", "1.2.3.4"))
}

func TestRateLimiterClear(t *testing.T) {
	l := NewRateLimiter()

	for i := 0; i < maxAttempts; i++ {
		l.Allow("ACE", "1.2.3.4")
	}
	assert.False(t, l.Allow("ACE", "1.2.3.4"))

	l.Clear("ACE", "1.2.3.4")
	assert.True(t, l.Allow("ACE", "1.2.3.4"))
}

func TestRateLimiterWindowReset(t *testing.T) {
	now := time.Unix(0, 0)
	l := NewRateLimiter()
	l.now = func() time.Time { return now }

	for i := 0; i < maxAttempts; i++ {
		l.Allow("ACE", "1.2.3.4")
	}
	assert.False(t, l.Allow("ACE", "1.2.3.4"))

	// Window expiry resets the budget
	now = now.Add(attemptWindow)
	assert.True(t, l.Allow("ACE", "1.2.3.4"))
}

func TestRateLimiterSweep(t *testing.T) {
	now := time.Unix(0, 0)
	l := NewRateLimiter()
	l.now = func() time.Time { return now }

	l.Allow("ACE", "1.2.3.4")
	l.Allow("BEE", "1.2.3.4")
	assert.Len(t, l.buckets, 2)

	// Expired buckets are dropped lazily on the next attempt
	now = now.Add(attemptWindow + time.Second)
	l.Allow("CEE", "1.2.3.4")
	assert.Len(t, l.buckets, 1)
}
