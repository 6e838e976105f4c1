package shield

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestSecurityHeaders(t *testing.T) {
	h := SecurityHeaders(DefaultHeaders())(okHandler())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/stats", nil))

	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("X-Content-Type-Options = %q", got)
	}
	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Fatalf("X-Frame-Options = %q", got)
	}
	if got := rec.Header().Get("Content-Security-Policy"); got == "" {
		t.Fatal("CSP not set")
	}
}

func TestRateLimiter_BlocksAfterLimit(t *testing.T) {
	// WHAT: Requests beyond the window limit get a 429; a different IP is
	// unaffected.
	rl := NewRateLimiter(map[string]RateLimitConfig{
		"POST /api/scrape/start": {MaxRequests: 2, Window: time.Minute},
	})
	h := rl.Middleware(okHandler())

	req := func(ip string) int {
		r := httptest.NewRequest("POST", "/api/scrape/start", nil)
		r.RemoteAddr = ip + ":4242"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		return rec.Code
	}

	if req("10.0.0.1") != 200 || req("10.0.0.1") != 200 {
		t.Fatal("requests within the limit were blocked")
	}
	if code := req("10.0.0.1"); code != http.StatusTooManyRequests {
		t.Fatalf("third request: %d, want 429", code)
	}
	if code := req("10.0.0.2"); code != 200 {
		t.Fatalf("other IP blocked: %d", code)
	}
}

func TestRateLimiter_UnruledEndpointPasses(t *testing.T) {
	rl := NewRateLimiter(DefaultAPIRules())
	h := rl.Middleware(okHandler())
	for i := 0; i < 100; i++ {
		r := httptest.NewRequest("GET", "/health", nil)
		r.RemoteAddr = "10.0.0.1:4242"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		if rec.Code != 200 {
			t.Fatalf("unruled endpoint blocked on request %d", i)
		}
	}
}

func TestRateLimiter_WindowResets(t *testing.T) {
	rl := NewRateLimiter(map[string]RateLimitConfig{
		"POST /api/search": {MaxRequests: 1, Window: 10 * time.Millisecond},
	})
	h := rl.Middleware(okHandler())

	req := func() int {
		r := httptest.NewRequest("POST", "/api/search", nil)
		r.RemoteAddr = "10.0.0.1:4242"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		return rec.Code
	}

	if req() != 200 {
		t.Fatal("first request blocked")
	}
	if req() != http.StatusTooManyRequests {
		t.Fatal("second request not blocked")
	}
	time.Sleep(20 * time.Millisecond)
	if req() != 200 {
		t.Fatal("window did not reset")
	}
}

func TestExtractIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "192.168.1.5:1234"
	if got := ExtractIP(r); got != "192.168.1.5" {
		t.Fatalf("remote addr: %q", got)
	}

	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if got := ExtractIP(r); got != "203.0.113.7" {
		t.Fatalf("forwarded: %q", got)
	}
}

func TestMaxJSONBody(t *testing.T) {
	h := MaxJSONBody(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			http.Error(w, "too large", http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/api/search", strings.NewReader(`{"modules":["CS2040","MA1001"]}`)))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("oversized body: %d", rec.Code)
	}
}
