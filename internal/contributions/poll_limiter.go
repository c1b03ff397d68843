package contributions

import (
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

const (
	pollLimitWindow = 1 * time.Second
	// Poll keys idle this long are evicted.
	pollKeyIdleTTL = 5 * time.Minute
)

type pollLimiter struct {
	mu      sync.Mutex
	lastHit *cache.Cache
	now     func() time.Time
	window  time.Duration
}

func newPollLimiter(window time.Duration, now func() time.Time) *pollLimiter {
	if now == nil {
		now = time.Now
	}
	if window <= 0 {
		window = pollLimitWindow
	}
	return &pollLimiter{
		lastHit: cache.New(pollKeyIdleTTL, pollKeyIdleTTL),
		now:     now,
		window:  window,
	}
}

// Allow admits one status poll per submitter and contribution per window.
func (l *pollLimiter) Allow(submitterID, contributionID string) bool {
	if l == nil {
		return true
	}
	key := submitterID + "|" + contributionID
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	if v, ok := l.lastHit.Get(key); ok && now.Sub(v.(time.Time)) < l.window {
		return false
	}
	l.lastHit.SetDefault(key, now)
	return true
}

func (l *pollLimiter) RetryAfterSeconds() int {
	if l == nil {
		return int(pollLimitWindow.Seconds())
	}
	return int(l.window.Seconds())
}
