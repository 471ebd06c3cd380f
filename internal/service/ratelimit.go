package service

import (
	"sync"
	"time"

	"github.com/affiliatehq/outreach-backend/internal/model"
)

// RateLimiter is a per-channel sliding-window limiter. It is an injected
// instance with its own lock, never module-level state, so tests get
// isolated counters and a distributed deployment can swap in a shared
// store behind the same surface.
type RateLimiter struct {
	mu           sync.Mutex
	window       time.Duration
	defaultLimit int
	limits       map[model.Channel]int
	stamps       map[model.Channel][]time.Time
	backoffUntil map[model.Channel]time.Time
	now          func() time.Time
}

func NewRateLimiter(window time.Duration, defaultLimit int) *RateLimiter {
	return &RateLimiter{
		window:       window,
		defaultLimit: defaultLimit,
		limits:       make(map[model.Channel]int),
		stamps:       make(map[model.Channel][]time.Time),
		backoffUntil: make(map[model.Channel]time.Time),
		now:          time.Now,
	}
}

// SetLimit overrides the per-window quota for one channel.
func (rl *RateLimiter) SetLimit(ch model.Channel, limit int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.limits[ch] = limit
}

// Allow records and permits one operation, or reports that the caller
// must defer. A deferral is not a failure: retry next cycle.
func (rl *RateLimiter) Allow(ch model.Channel) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if until, ok := rl.backoffUntil[ch]; ok {
		if now.Before(until) {
			return false
		}
		delete(rl.backoffUntil, ch)
	}

	rl.prune(ch, now)

	limit := rl.defaultLimit
	if l, ok := rl.limits[ch]; ok {
		limit = l
	}
	if len(rl.stamps[ch]) >= limit {
		return false
	}
	rl.stamps[ch] = append(rl.stamps[ch], now)
	return true
}

// Backoff blocks a channel until the deadline, e.g. after a provider
// 429.
func (rl *RateLimiter) Backoff(ch model.Channel, d time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.backoffUntil[ch] = rl.now().Add(d)
}

// Status returns the used and allowed counts for the current window.
func (rl *RateLimiter) Status(ch model.Channel) (used, limit int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.prune(ch, rl.now())
	limit = rl.defaultLimit
	if l, ok := rl.limits[ch]; ok {
		limit = l
	}
	return len(rl.stamps[ch]), limit
}

func (rl *RateLimiter) prune(ch model.Channel, now time.Time) {
	cutoff := now.Add(-rl.window)
	stamps := rl.stamps[ch]
	i := 0
	for i < len(stamps) && stamps[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		rl.stamps[ch] = stamps[i:]
	}
}
