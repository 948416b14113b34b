package auth

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LoginLimiter throttles login attempts per normalized email. Buckets that
// go unused are pruned lazily so the map does not grow without bound.
type LoginLimiter struct {
	mu      sync.Mutex
	buckets map[string]*loginBucket
	limit   rate.Limit
	burst   int
	now     func() time.Time
}

type loginBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const loginBucketIdle = 10 * time.Minute

// NewLoginLimiter constructs a limiter allowing perMinute attempts with the
// given burst per email.
func NewLoginLimiter(perMinute float64, burst int) *LoginLimiter {
	if perMinute <= 0 {
		perMinute = 10
	}
	if burst <= 0 {
		burst = 5
	}
	return &LoginLimiter{
		buckets: make(map[string]*loginBucket),
		limit:   rate.Limit(perMinute / 60.0),
		burst:   burst,
		now:     time.Now,
	}
}

// WithLimiterClock overrides the time source used for pruning.
func (l *LoginLimiter) WithLimiterClock(fn func() time.Time) *LoginLimiter {
	if fn != nil {
		l.now = fn
	}
	return l
}

// Allow reports whether another attempt for the email may proceed now.
func (l *LoginLimiter) Allow(email string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	b, ok := l.buckets[email]
	if !ok {
		b = &loginBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[email] = b
	}
	b.lastSeen = now
	if len(l.buckets) > 1024 {
		l.pruneLocked(now)
	}
	return b.limiter.Allow()
}

func (l *LoginLimiter) pruneLocked(now time.Time) {
	for email, b := range l.buckets {
		if now.Sub(b.lastSeen) > loginBucketIdle {
			delete(l.buckets, email)
		}
	}
}
