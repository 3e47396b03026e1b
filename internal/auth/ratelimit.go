package auth

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"

	apperrors "github.com/spec-kit/task-manager/pkg/util"
)

// LoginLimiter throttles credential endpoints per client IP.
type LoginLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	ttl     time.Duration
	now     func() time.Time
	entries map[string]*limiterEntry

	// lastSweep bounds idle-entry eviction to once per ttl.
	lastSweep time.Time
}

type limiterEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// NewLoginLimiter allows perMinute attempts per key with the given burst.
// perMinute <= 0 disables throttling.
func NewLoginLimiter(perMinute, burst int, ttl time.Duration) *LoginLimiter {
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Limit(float64(perMinute) / 60)
	}
	if burst <= 0 {
		burst = 1
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &LoginLimiter{
		limit:   limit,
		burst:   burst,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]*limiterEntry),
	}
}

// Allow consumes one attempt for key.
func (l *LoginLimiter) Allow(key string) bool {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := l.entries[key]
	if entry == nil {
		entry = &limiterEntry{lim: rate.NewLimiter(l.limit, l.burst)}
		l.entries[key] = entry
	}
	entry.lastSeen = now

	if now.Sub(l.lastSweep) >= l.ttl {
		l.sweep(now)
	}
	return entry.lim.AllowN(now, 1)
}

func (l *LoginLimiter) sweep(now time.Time) {
	for k, v := range l.entries {
		if now.Sub(v.lastSeen) > l.ttl {
			delete(l.entries, k)
		}
	}
	l.lastSweep = now
}

// Handle is the fiber middleware form of Allow, keyed by client IP.
func (l *LoginLimiter) Handle(c *fiber.Ctx) error {
	if !l.Allow(c.IP()) {
		return apperrors.NewRateLimited("too many authentication attempts")
	}
	return c.Next()
}
