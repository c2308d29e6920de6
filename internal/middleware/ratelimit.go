package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dukerupert/kidquest/internal/auth"
)

// RealIP extracts the client's real IP address, preferring Cloudflare's
// CF-Connecting-IP header, then X-Forwarded-For, and falling back to RemoteAddr.
func RealIP(r *http.Request) string {
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		return ip
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i > 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ByIP keys a limiter on the client address.
func ByIP(r *http.Request) string {
	return "ip:" + RealIP(r)
}

// ByFamily keys a limiter on the authenticated family, falling back to the
// client address. PIN guessing is limited per family so that rotating IPs
// does not help.
func ByFamily(r *http.Request) string {
	if id := auth.FamilyID(r.Context()); id != "" {
		return "family:" + id
	}
	return ByIP(r)
}

type window struct {
	count   int
	resetAt time.Time
}

// RateLimiter is a fixed-window counter kept in memory.
type RateLimiter struct {
	mu      sync.Mutex
	entries map[string]*window
	now     func() time.Time
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		entries: make(map[string]*window),
		now:     time.Now,
	}
}

// Allow returns true if the key has not exceeded limit in the given window.
func (rl *RateLimiter) Allow(key string, limit int, d time.Duration) bool {
	ok, _ := rl.take(key, limit, d)
	return ok
}

func (rl *RateLimiter) take(key string, limit int, d time.Duration) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	e, ok := rl.entries[key]
	if !ok || now.After(e.resetAt) {
		rl.entries[key] = &window{count: 1, resetAt: now.Add(d)}
		return true, 0
	}
	e.count++
	return e.count <= limit, e.resetAt.Sub(now)
}

// Cleanup removes expired windows and reports how many were dropped.
func (rl *RateLimiter) Cleanup() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	n := 0
	for key, e := range rl.entries {
		if now.After(e.resetAt) {
			delete(rl.entries, key)
			n++
		}
	}
	return n
}

// RateLimit returns middleware that rate-limits requests by a key function.
func RateLimit(limiter *RateLimiter, keyFunc func(*http.Request) string, limit int, d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, retry := limiter.take(keyFunc(r), limit, d)
			if !ok {
				secs := int(retry.Round(time.Second) / time.Second)
				w.Header().Set("Retry-After", strconv.Itoa(max(secs, 1)))
				writeError(w, http.StatusTooManyRequests, "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
