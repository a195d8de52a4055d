package server

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"resumerecon/internal/errors"

	"golang.org/x/time/rate"
)

const defaultLimiterIdle = 10 * time.Minute

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client key (API key or IP).
// Buckets idle for longer than the eviction age are dropped.
type RateLimiter struct {
	mu         sync.Mutex
	entries    map[string]*limiterEntry
	rate       rate.Limit
	burst      int
	evictAfter time.Duration
	done       chan struct{}
	closeOnce  sync.Once
	logger     *errors.Logger
}

// NewRateLimiter creates a limiter allowing requestsPerMin per client with
// burstCapacity tokens. idle is how long an unused bucket is kept; zero
// means ten minutes.
func NewRateLimiter(requestsPerMin int, idle time.Duration, burstCapacity int, logger *errors.Logger) *RateLimiter {
	if idle <= 0 {
		idle = defaultLimiterIdle
	}
	if burstCapacity <= 0 {
		burstCapacity = 1
	}

	m := &RateLimiter{
		entries:    make(map[string]*limiterEntry),
		rate:       rate.Limit(float64(requestsPerMin) / 60.0),
		burst:      burstCapacity,
		evictAfter: idle,
		done:       make(chan struct{}),
		logger:     logger,
	}

	go m.cleanupRoutine(idle)
	return m
}

func (m *RateLimiter) entry(key string) *limiterEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(m.rate, m.burst)}
		m.entries[key] = e
	}
	e.lastSeen = time.Now()
	return e
}

// Allow reports whether a request for key may proceed now. When it may not,
// the returned duration is how long until the next token.
func (m *RateLimiter) Allow(key string) (bool, time.Duration) {
	limiter := m.entry(key).limiter

	res := limiter.Reserve()
	if !res.OK() {
		return false, 0
	}
	if delay := res.Delay(); delay > 0 {
		res.Cancel()
		return false, delay
	}
	return true, 0
}

// GetStats returns current rate limiter statistics
func (m *RateLimiter) GetStats() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()

	return map[string]any{
		"active_limiters": len(m.entries),
		"rate_per_minute": float64(m.rate) * 60.0,
		"burst_capacity":  m.burst,
		"evict_after":     m.evictAfter.String(),
	}
}

func (m *RateLimiter) cleanupRoutine(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.cleanup(time.Now())
		case <-m.done:
			return
		}
	}
}

// cleanup drops buckets not seen since now minus the eviction age
func (m *RateLimiter) cleanup(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, e := range m.entries {
		if now.Sub(e.lastSeen) > m.evictAfter {
			delete(m.entries, key)
			removed++
		}
	}

	if m.logger != nil && removed > 0 {
		m.logger.Debug("Rate limiter cleanup completed",
			"removed", removed,
			"remaining_limiters", len(m.entries))
	}
	return removed
}

// Close stops the cleanup goroutine. Safe to call more than once.
func (m *RateLimiter) Close() {
	m.closeOnce.Do(func() { close(m.done) })
}

// rateLimitMiddleware rejects requests over the per-client budget with 429
// and a Retry-After header
func (s *Server) rateLimitMiddleware() func(http.HandlerFunc) http.HandlerFunc {
	if s.RateLimit == nil || !s.RateLimit.Enabled || s.RateLimiter == nil {
		return func(next http.HandlerFunc) http.HandlerFunc { return next }
	}

	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			key := getRateLimitKey(r, s.RateLimit.ByAPIKey, s.RateLimit.ByIP)
			if key == "" {
				next(w, r)
				return
			}

			allowed, retryAfter := s.RateLimiter.Allow(key)
			if !allowed {
				s.Logger.Info("Rate limit exceeded",
					"key_type", rateLimitKeyType(key),
					"endpoint", r.URL.Path,
					"client_ip", getClientIP(r))
				if retryAfter > 0 {
					w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
				}
				writeErrorResponse(w, "Rate limit exceeded", "Too many requests", http.StatusTooManyRequests)
				return
			}

			next(w, r)
		}
	}
}

// getRateLimitKey picks the bucket for a request. API keys are hashed so
// raw secrets never sit in the limiter map.
func getRateLimitKey(r *http.Request, byAPIKey, byIP bool) string {
	if byAPIKey {
		if apiKey := requestAPIKey(r); apiKey != "" {
			sum := sha256.Sum256([]byte(apiKey))
			return "api:" + hex.EncodeToString(sum[:8])
		}
	}

	if byIP {
		return "ip:" + getClientIP(r)
	}

	return ""
}

func rateLimitKeyType(key string) string {
	keyType, _, _ := strings.Cut(key, ":")
	return keyType
}

// requestAPIKey reads X-API-Key, falling back to an Authorization bearer token
func requestAPIKey(r *http.Request) string {
	if apiKey := r.Header.Get("X-API-Key"); apiKey != "" {
		return apiKey
	}
	if after, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(after)
	}
	return ""
}

// getClientIP extracts the client IP address from the request
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if ip := parseFirstIP(xff); ip != "" {
			return ip
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		if net.ParseIP(xri) != nil {
			return xri
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func parseFirstIP(ips string) string {
	for ip := range strings.SplitSeq(ips, ",") {
		ip = strings.TrimSpace(ip)
		if net.ParseIP(ip) != nil {
			return ip
		}
	}
	return ""
}
