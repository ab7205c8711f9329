package session

import (
	"sync"
	"time"
)

// userRate is the RateState of a single user.
type userRate struct {
	mu       sync.Mutex
	lastSeen time.Time
	evicted  bool
}

// RateLimiter enforces a minimum interval between admitted messages per user.
// The map lock only guards entry creation and eviction; the admit decision
// holds the per-user lock, so unrelated users never wait on each other.
type RateLimiter struct {
	minInterval time.Duration
	users       map[int64]*userRate
	mu          sync.RWMutex
}

// NewRateLimiter creates a limiter with the given minimum interval.
func NewRateLimiter(minInterval time.Duration) *RateLimiter {
	if minInterval <= 0 {
		minInterval = DefaultMinInterval
	}
	return &RateLimiter{
		minInterval: minInterval,
		users:       make(map[int64]*userRate),
	}
}

func (rl *RateLimiter) entry(userID int64) *userRate {
	rl.mu.RLock()
	u, ok := rl.users[userID]
	rl.mu.RUnlock()
	if ok {
		return u
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if u, ok = rl.users[userID]; ok {
		return u
	}
	u = &userRate{}
	rl.users[userID] = u
	return u
}

// TryAdmit admits a message from userID at now unless the previous admitted
// message is less than the minimum interval old. A rejection leaves the
// stored timestamp untouched.
func (rl *RateLimiter) TryAdmit(userID int64, now time.Time) bool {
	return rl.admit(userID, now, rl.entry(userID))
}

// admit decides on u, fetching the live entry again whenever u was evicted
// between lookup and lock.
func (rl *RateLimiter) admit(userID int64, now time.Time, u *userRate) bool {
	for {
		u.mu.Lock()
		if !u.evicted {
			break
		}
		u.mu.Unlock()
		u = rl.entry(userID)
	}
	defer u.mu.Unlock()

	if !u.lastSeen.IsZero() && now.Sub(u.lastSeen) < rl.minInterval {
		return false
	}
	u.lastSeen = now
	return true
}

// EvictIdle drops users whose last admitted message is older than idle.
// idle is clamped to the minimum interval so eviction never turns a
// rejection into an admission.
func (rl *RateLimiter) EvictIdle(now time.Time, idle time.Duration) int {
	if idle < rl.minInterval {
		idle = rl.minInterval
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	for id, u := range rl.users {
		u.mu.Lock()
		stale := now.Sub(u.lastSeen) > idle
		if stale {
			u.evicted = true
		}
		u.mu.Unlock()
		if stale {
			delete(rl.users, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked users.
func (rl *RateLimiter) Len() int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return len(rl.users)
}
