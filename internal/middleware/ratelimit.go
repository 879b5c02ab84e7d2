// Package middleware holds per-connection admission policies applied outside
// the socket message loop proper: the per-IP rate limiter and client IP
// extraction.
package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// refillWindow is the time a drained bucket takes to refill completely.
const refillWindow = 10 * time.Second

// staleAfter is how long an IP may stay idle before its bucket is evicted.
const staleAfter = 60 * time.Second

// sweepEvery is the fallback sweep interval, for when the backend heartbeat
// that normally drives eviction goes quiet.
const sweepEvery = 30 * time.Second

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter admits inbound client messages per IP. Each IP gets a token
// bucket of the configured capacity that refills linearly over ten seconds.
// An empty IP (trust boundary stripped it, or a UNIX socket) bypasses
// limiting entirely.
type RateLimiter struct {
	credits int

	mu      sync.Mutex
	buckets map[string]*bucket

	fallback *time.Ticker
	done     chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter starts the limiter and its fallback sweeper.
func NewRateLimiter(credits int) *RateLimiter {
	rl := &RateLimiter{
		credits:  credits,
		buckets:  make(map[string]*bucket),
		fallback: time.NewTicker(sweepEvery),
		done:     make(chan struct{}),
	}

	go func() {
		for {
			select {
			case <-rl.fallback.C:
				rl.Sweep()
			case <-rl.done:
				return
			}
		}
	}()

	return rl
}

// Stop halts the fallback sweeper.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		rl.fallback.Stop()
		close(rl.done)
	})
}

// Allow charges one token against the IP's bucket.
func (rl *RateLimiter) Allow(ip string) bool {
	if ip == "" {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[ip]
	if !ok {
		b = &bucket{
			limiter: rate.NewLimiter(rate.Limit(float64(rl.credits)/refillWindow.Seconds()), rl.credits),
		}
		rl.buckets[ip] = b
	}
	b.lastSeen = time.Now()
	return b.limiter.Allow()
}

// Sweep evicts buckets idle for over a minute. Normally driven by the
// backend's mlat heartbeat, with the internal ticker as a backstop.
func (rl *RateLimiter) Sweep() {
	cutoff := time.Now().Add(-staleAfter)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ip, b := range rl.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(rl.buckets, ip)
		}
	}
}

// Tracked reports the number of live buckets.
func (rl *RateLimiter) Tracked() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

// GetClientIP extracts the real client IP from the request.
func GetClientIP(r *http.Request) string {
	// X-Forwarded-For is set by fronting proxies; take the first hop.
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := xff
		if i := strings.IndexByte(xff, ','); i >= 0 {
			first = xff[:i]
		}
		first = strings.TrimSpace(first)
		if ip, _, err := net.SplitHostPort(first); err == nil {
			return ip
		}
		if net.ParseIP(first) != nil {
			return first
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if net.ParseIP(xri) != nil {
			return xri
		}
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
