package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/transport-university/chatbot/backend/pkg/utils"
)

type limiterEntry struct {
	l        *rate.Limiter
	lastSeen time.Time
}

// RateLimiter hands out one token bucket per key and forgets keys that have
// been idle for longer than ttl.
type RateLimiter struct {
	mu    sync.Mutex
	m     map[string]*limiterEntry
	rps   rate.Limit
	burst int
	ttl   time.Duration
	now   func() time.Time
}

// NewRateLimiter allows rps requests per second per key with the given burst.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{
		m:     make(map[string]*limiterEntry),
		rps:   rate.Limit(rps),
		burst: burst,
		ttl:   10 * time.Minute,
		now:   time.Now,
	}
}

// Allow reports whether key may proceed now.
func (p *RateLimiter) Allow(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	e, ok := p.m[key]
	if !ok {
		e = &limiterEntry{l: rate.NewLimiter(p.rps, p.burst)}
		p.m[key] = e
	}
	e.lastSeen = now
	return e.l.AllowN(now, 1)
}

// Sweep drops limiters unused for longer than the ttl.
func (p *RateLimiter) Sweep() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	cutoff := p.now().Add(-p.ttl)
	removed := 0
	for k, e := range p.m {
		if e.lastSeen.Before(cutoff) {
			delete(p.m, k)
			removed++
		}
	}
	return removed
}

// Run sweeps periodically until stop is closed.
func (p *RateLimiter) Run(period time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.Sweep()
		case <-stop:
			return
		}
	}
}

// Limit throttles requests per authenticated user, falling back to the
// remote address. It must run after RequireAuth to key by user.
func (p *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.RemoteAddr
		if u, ok := UserFromContext(r.Context()); ok {
			key = "user:" + u.ID
		}

		if !p.Allow(key) {
			w.Header().Set("Retry-After", strconv.Itoa(p.retryAfter()))
			utils.RespondError(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (p *RateLimiter) retryAfter() int {
	if p.rps <= 0 {
		return 1
	}
	return max(1, int(1/float64(p.rps)+0.5))
}
