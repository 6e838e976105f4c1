package shield

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// RateLimitConfig defines the limit for one endpoint.
type RateLimitConfig struct {
	MaxRequests int
	Window      time.Duration
}

type bucket struct {
	count   int
	resetAt time.Time
}

// RateLimiter provides per-IP, per-endpoint rate limiting with fixed
// windows. Rules are keyed "METHOD /path"; endpoints without a rule pass
// through. Expired buckets are garbage collected in the background.
type RateLimiter struct {
	rules   map[string]RateLimitConfig
	buckets sync.Map
}

// DefaultAPIRules limits the endpoints whose cost is out of proportion to
// the request: a search can trigger a crawl, a scrape start always does.
func DefaultAPIRules() map[string]RateLimitConfig {
	return map[string]RateLimitConfig{
		"POST /api/search":       {MaxRequests: 30, Window: time.Minute},
		"POST /api/scrape/start": {MaxRequests: 5, Window: time.Minute},
		"POST /api/cache/clear":  {MaxRequests: 10, Window: time.Minute},
	}
}

// NewRateLimiter creates a rate limiter with the given rules.
func NewRateLimiter(rules map[string]RateLimitConfig) *RateLimiter {
	if rules == nil {
		rules = make(map[string]RateLimitConfig)
	}
	return &RateLimiter{rules: rules}
}

// StartGC starts a background goroutine that drops expired buckets every
// 5 minutes. Stops when done is closed.
func (rl *RateLimiter) StartGC(done <-chan struct{}) {
	tick := time.NewTicker(5 * time.Minute)
	go func() {
		defer tick.Stop()
		for {
			select {
			case <-done:
				return
			case <-tick.C:
				rl.gc()
			}
		}
	}()
}

func (rl *RateLimiter) gc() {
	now := time.Now()
	rl.buckets.Range(func(key, value any) bool {
		if now.After(value.(*bucket).resetAt) {
			rl.buckets.Delete(key)
		}
		return true
	})
}

func (rl *RateLimiter) allow(ip, endpoint string) bool {
	cfg, ok := rl.rules[endpoint]
	if !ok {
		return true
	}

	key := ip + ":" + endpoint
	now := time.Now()

	val, loaded := rl.buckets.LoadOrStore(key, &bucket{
		count:   1,
		resetAt: now.Add(cfg.Window),
	})
	if !loaded {
		return true
	}

	b := val.(*bucket)
	if now.After(b.resetAt) {
		b.count = 1
		b.resetAt = now.Add(cfg.Window)
		return true
	}

	b.count++
	return b.count <= cfg.MaxRequests
}

// Middleware enforces the limits. Blocked requests get a 429 JSON body
// with Retry-After.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		endpoint := r.Method + " " + r.URL.Path
		ip := ExtractIP(r)

		if rl.allow(ip, endpoint) {
			next.ServeHTTP(w, r)
			return
		}

		slog.Warn("shield: request blocked", "ip", ip, "endpoint", endpoint)
		w.Header().Set("Retry-After", "60")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]string{"error": "rate limit exceeded"})
	})
}
