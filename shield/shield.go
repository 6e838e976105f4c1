// Package shield provides HTTP hardening middleware for the discovery API:
// security headers, request body limits, and per-IP rate limiting. The rate
// limiter exists mainly to protect the endpoints that can launch a browser
// or a long crawl behind a single request.
//
// Usage:
//
//	r := chi.NewRouter()
//	r.Use(shield.SecurityHeaders(shield.DefaultHeaders()))
//	r.Use(shield.MaxJSONBody(64 * 1024))
//	rl := shield.NewRateLimiter(shield.DefaultAPIRules())
//	rl.StartGC(done)
//	r.Use(rl.Middleware)
package shield

import (
	"net"
	"net/http"
	"strings"
)

// ExtractIP returns the client IP from X-Forwarded-For or RemoteAddr.
func ExtractIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i >= 0 {
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
