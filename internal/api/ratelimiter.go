package api

import (
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// IPRateLimiter keeps one token bucket per client IP. Buckets idle longer
// than idleTTL are purged once the table grows past maxVisitors.
type IPRateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor

	r       rate.Limit
	b       int
	idleTTL time.Duration
	now     func() time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const maxVisitors = 1000

// NewIPRateLimiter allows perSecond requests per IP with the given burst.
func NewIPRateLimiter(perSecond float64, burst int) *IPRateLimiter {
	return &IPRateLimiter{
		visitors: make(map[string]*visitor),
		r:        rate.Limit(perSecond),
		b:        burst,
		idleTTL:  10 * time.Minute,
		now:      time.Now,
	}
}

// Allow reports whether a request from remoteAddr (host:port) may proceed.
func (rl *IPRateLimiter) Allow(remoteAddr string) bool {
	ip, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		ip = remoteAddr
	}

	rl.mu.Lock()
	now := rl.now()
	v, ok := rl.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.r, rl.b)}
		rl.visitors[ip] = v
	}
	v.lastSeen = now
	if len(rl.visitors) > maxVisitors {
		rl.purge(now)
	}
	lim := v.limiter
	rl.mu.Unlock()

	return lim.AllowN(now, 1)
}

// Visitors returns the number of tracked client IPs.
func (rl *IPRateLimiter) Visitors() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.visitors)
}

func (rl *IPRateLimiter) purge(now time.Time) {
	cutoff := now.Add(-rl.idleTTL)
	for k, v := range rl.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(rl.visitors, k)
		}
	}
}
