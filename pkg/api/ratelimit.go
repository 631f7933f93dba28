package api

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// limiterEntry wraps a rate limiter with last access time
type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
	mu         sync.Mutex
}

// rateLimiter limits API requests per client IP
type rateLimiter struct {
	limiters map[string]*limiterEntry
	mu       sync.RWMutex
	rps      int
	burst    int
	ttl      time.Duration
	stopCh   chan struct{}
}

// newRateLimiter creates a per-client limiter with idle cleanup
func newRateLimiter(rps, burst int) *rateLimiter {
	rl := &rateLimiter{
		limiters: make(map[string]*limiterEntry),
		rps:      rps,
		burst:    burst,
		ttl:      5 * time.Minute,
		stopCh:   make(chan struct{}),
	}

	go rl.cleanup()

	return rl
}

// Middleware returns the middleware handler
func (rl *rateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := getClientIP(r)
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}

		if !rl.getLimiter(key).Allow() {
			respondErrorWithCode(w, http.StatusTooManyRequests, "Rate limit exceeded", "rate_limited")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// getLimiter returns a limiter for the given key
func (rl *rateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.RLock()
	entry, exists := rl.limiters[key]
	rl.mu.RUnlock()

	if exists {
		entry.mu.Lock()
		entry.lastAccess = time.Now()
		entry.mu.Unlock()
		return entry.limiter
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Double-check
	if entry, exists := rl.limiters[key]; exists {
		entry.mu.Lock()
		entry.lastAccess = time.Now()
		entry.mu.Unlock()
		return entry.limiter
	}

	entry = &limiterEntry{
		limiter:    rate.NewLimiter(rate.Limit(rl.rps), rl.burst),
		lastAccess: time.Now(),
	}
	rl.limiters[key] = entry

	return entry.limiter
}

// cleanup periodically removes idle limiters
func (rl *rateLimiter) cleanup() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanupStale()
		case <-rl.stopCh:
			return
		}
	}
}

// cleanupStale removes limiters that have not been used recently
func (rl *rateLimiter) cleanupStale() {
	now := time.Now()
	expiredKeys := make([]string, 0)

	rl.mu.RLock()
	for key, entry := range rl.limiters {
		entry.mu.Lock()
		if now.Sub(entry.lastAccess) > rl.ttl {
			expiredKeys = append(expiredKeys, key)
		}
		entry.mu.Unlock()
	}
	rl.mu.RUnlock()

	if len(expiredKeys) > 0 {
		rl.mu.Lock()
		for _, key := range expiredKeys {
			if entry, exists := rl.limiters[key]; exists {
				entry.mu.Lock()
				if now.Sub(entry.lastAccess) > rl.ttl {
					delete(rl.limiters, key)
				}
				entry.mu.Unlock()
			}
		}
		rl.mu.Unlock()
	}
}

// Stop stops the cleanup goroutine
func (rl *rateLimiter) Stop() {
	close(rl.stopCh)
}

// getClientIP extracts the client IP from a request
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if net.ParseIP(ip) != nil {
				return ip
			}
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
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
