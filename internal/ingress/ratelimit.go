package ingress

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// chatLimiter enforces both a per-minute cap and a burst-within-5s cap per
// chat (spec.md §4.6), evicting idle entries so long-running ingress loops
// don't accumulate one limiter pair per chat forever.
type chatLimiter struct {
	mu           sync.Mutex
	perMinute    rate.Limit
	minuteBurst  int
	burstLimit   rate.Limit
	burstBurst   int
	entries      map[int64]*limiterPair
	idleEviction time.Duration
}

type limiterPair struct {
	minute   *rate.Limiter
	burst    *rate.Limiter
	lastSeen time.Time
}

// newChatLimiter builds a chatLimiter from the configured per-minute cap
// and 5-second burst cap.
func newChatLimiter(perMinute, burstCap int) *chatLimiter {
	return &chatLimiter{
		perMinute:    rate.Limit(float64(perMinute) / 60.0),
		minuteBurst:  perMinute,
		burstLimit:   rate.Limit(float64(burstCap) / 5.0),
		burstBurst:   burstCap,
		entries:      map[int64]*limiterPair{},
		idleEviction: 30 * time.Minute,
	}
}

// Allow reports whether chatID may send another message right now, and
// reserves the slot if so. Both caps must pass.
func (c *chatLimiter) Allow(chatID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.evictIdleLocked()

	pair, ok := c.entries[chatID]
	if !ok {
		pair = &limiterPair{
			minute: rate.NewLimiter(c.perMinute, c.minuteBurst),
			burst:  rate.NewLimiter(c.burstLimit, c.burstBurst),
		}
		c.entries[chatID] = pair
	}
	pair.lastSeen = time.Now()

	if !pair.minute.Allow() {
		return false
	}
	if !pair.burst.Allow() {
		return false
	}
	return true
}

func (c *chatLimiter) evictIdleLocked() {
	cutoff := time.Now().Add(-c.idleEviction)
	for chatID, pair := range c.entries {
		if pair.lastSeen.Before(cutoff) {
			delete(c.entries, chatID)
		}
	}
}
