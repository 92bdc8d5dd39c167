package telegram

import (
	"sync"
	"time"

	"github.com/m3rciful/weatherbot/core/telegram/router"
)

// RateLimitOptions configures the per-user flood guard.
type RateLimitOptions struct {
	// Interval is the minimum gap between two handled updates of one user.
	Interval time.Duration
	// Exclude lists update kinds that are never limited.
	Exclude map[router.Kind]struct{}
	Now     func() time.Time
}

const rateLimitPruneAt = 4096

type rateLimiter struct {
	opts     RateLimitOptions
	mu       sync.Mutex
	lastSeen map[int64]time.Time
}

func newRateLimiter(opts RateLimitOptions) *rateLimiter {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &rateLimiter{opts: opts, lastSeen: make(map[int64]time.Time)}
}

// allow records upd and reports whether it may be handled.
func (l *rateLimiter) allow(upd router.Update) bool {
	if l == nil || l.opts.Interval <= 0 || upd.UserID == 0 {
		return true
	}
	if _, skip := l.opts.Exclude[upd.Kind]; skip {
		return true
	}
	now := l.opts.Now()

	l.mu.Lock()
	defer l.mu.Unlock()
	if last, ok := l.lastSeen[upd.UserID]; ok && now.Sub(last) < l.opts.Interval {
		return false
	}
	l.lastSeen[upd.UserID] = now
	if len(l.lastSeen) > rateLimitPruneAt {
		for id, seen := range l.lastSeen {
			if now.Sub(seen) >= l.opts.Interval {
				delete(l.lastSeen, id)
			}
		}
	}
	return true
}
