package ratelimit

import (
	"strconv"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// Reason explains why a request was rejected.
type Reason string

const (
	ReasonCooldown Reason = "cooldown"
	ReasonQuota    Reason = "quota"
)

// Result is the outcome of a Check.
type Result struct {
	Allowed   bool
	Reason    Reason
	Remaining time.Duration
}

type entry struct {
	lastRequestAt   time.Time
	windowStartedAt time.Time
	windowCount     int
}

// Limiter throttles manual refresh requests per user with a minimum cooldown
// between requests and a maximum count per window. State is in-memory only;
// idle entries expire from the cache once their window has passed.
type Limiter struct {
	mu       sync.Mutex
	entries  *cache.Cache
	cooldown time.Duration
	window   time.Duration
	max      int
	now      func() time.Time
}

// New creates a Limiter.
func New(cooldown, window time.Duration, maxPerWindow int) *Limiter {
	ttl := window
	if cooldown > ttl {
		ttl = cooldown
	}
	return &Limiter{
		entries:  cache.New(ttl, 2*ttl),
		cooldown: cooldown,
		window:   window,
		max:      maxPerWindow,
		now:      time.Now,
	}
}

// Check records a request for userID if it is allowed.
func (l *Limiter) Check(userID int64) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := strconv.FormatInt(userID, 10)
	now := l.now()

	var e entry
	if v, found := l.entries.Get(key); found {
		e = v.(entry)
	}

	if !e.lastRequestAt.IsZero() {
		if elapsed := now.Sub(e.lastRequestAt); elapsed < l.cooldown {
			return Result{Allowed: false, Reason: ReasonCooldown, Remaining: l.cooldown - elapsed}
		}
	}

	if e.windowStartedAt.IsZero() || now.Sub(e.windowStartedAt) >= l.window {
		e.windowStartedAt = now
		e.windowCount = 0
	}

	if e.windowCount >= l.max {
		return Result{Allowed: false, Reason: ReasonQuota, Remaining: l.window - now.Sub(e.windowStartedAt)}
	}

	e.windowCount++
	e.lastRequestAt = now
	l.entries.Set(key, e, cache.DefaultExpiration)
	return Result{Allowed: true}
}

// Reset forgets all recorded requests for userID.
func (l *Limiter) Reset(userID int64) {
	l.entries.Delete(strconv.FormatInt(userID, 10))
}

// Len returns the number of users currently tracked.
func (l *Limiter) Len() int {
	return l.entries.ItemCount()
}
