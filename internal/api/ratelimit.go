package api

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	rateLimiterCleanupInterval = 5 * time.Minute
	rateLimiterStaleThreshold  = 10 * time.Minute
)

// rateLimiter implements per-IP rate limiting with golang.org/x/time/rate.
// Stale client buckets are pruned inline during allow calls; no background
// goroutine to manage.
type rateLimiter struct {
	mu          sync.Mutex
	clients     map[string]*client
	limit       rate.Limit
	burst       int
	lastCleanup time.Time
}

// client holds the token bucket and last-seen time for a single IP.
type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// newRateLimiter creates a limiter refilling r tokens per second with the
// given burst (maximum and initial allowance) per IP.
func newRateLimiter(r float64, burst int) *rateLimiter {
	return &rateLimiter{
		clients:     make(map[string]*client),
		limit:       rate.Limit(r),
		burst:       burst,
		lastCleanup: time.Now(),
	}
}

// allow reports whether a request from ip may proceed, consuming one token.
func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	rl.pruneStaleLocked(now)

	c, ok := rl.clients[ip]
	if !ok {
		c = &client{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[ip] = c
	}
	c.lastSeen = now
	return c.limiter.Allow()
}

// pruneStaleLocked drops buckets idle past the stale threshold. Runs at most
// once per cleanup interval. Caller holds mu.
func (rl *rateLimiter) pruneStaleLocked(now time.Time) {
	if now.Sub(rl.lastCleanup) < rateLimiterCleanupInterval {
		return
	}
	for ip, c := range rl.clients {
		if now.Sub(c.lastSeen) > rateLimiterStaleThreshold {
			delete(rl.clients, ip)
		}
	}
	rl.lastCleanup = now
}

// rateLimitMiddleware limits requests per client IP using a token bucket:
// each IP starts with burst tokens, refilling at the configured rate.
func rateLimitMiddleware(rl *rateLimiter, trustProxy bool, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r, trustProxy)
			if !rl.allow(ip) {
				logger.Warn("rate limit exceeded",
					"ip", ip,
					"path", r.URL.Path,
					"method", r.Method,
				)
				w.Header().Set("Retry-After", "1")
				WriteError(w, http.StatusTooManyRequests, "rate_limited", "too many requests", logger)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP extracts the client IP from the request.
//
// When trustProxy is true, X-Real-IP is checked first, then the first entry
// of X-Forwarded-For. Header values are validated with net.ParseIP so
// arbitrary strings cannot become rate limiter keys. When trustProxy is
// false only RemoteAddr is used.
func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			if ip := net.ParseIP(strings.TrimSpace(xri)); ip != nil {
				return ip.String()
			}
		}

		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			raw := xff
			if first, _, ok := strings.Cut(xff, ","); ok {
				raw = first
			}
			if ip := net.ParseIP(strings.TrimSpace(raw)); ip != nil {
				return ip.String()
			}
		}
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
