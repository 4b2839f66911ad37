package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiter_AllowsWithinBurst(t *testing.T) {
	rl := newRateLimiter(1.0, 5)

	for i := range 5 {
		if !rl.allow("1.2.3.4") {
			t.Fatalf("allow() returned false on request %d (within burst of 5)", i+1)
		}
	}
}

func TestRateLimiter_BlocksAfterBurst(t *testing.T) {
	rl := newRateLimiter(1.0, 3)

	for range 3 {
		rl.allow("1.2.3.4")
	}

	if rl.allow("1.2.3.4") {
		t.Error("allow() should return false after burst exhausted")
	}
}

func TestRateLimiter_SeparateIPs(t *testing.T) {
	rl := newRateLimiter(1.0, 2)

	rl.allow("1.1.1.1")
	rl.allow("1.1.1.1")

	if !rl.allow("2.2.2.2") {
		t.Error("allow() should allow a different IP")
	}
}

func TestRateLimiter_RefillsOverTime(t *testing.T) {
	rl := newRateLimiter(100.0, 1) // 100 tokens/sec so the test stays fast

	rl.allow("1.2.3.4")
	if rl.allow("1.2.3.4") {
		t.Error("allow() should be blocked immediately after burst exhausted")
	}

	time.Sleep(20 * time.Millisecond)

	if !rl.allow("1.2.3.4") {
		t.Error("allow() should be allowed after token refill")
	}
}

func TestRateLimiter_PrunesStaleClients(t *testing.T) {
	rl := newRateLimiter(1.0, 1)
	rl.allow("1.2.3.4")

	// Age the entry and the last cleanup beyond both thresholds
	rl.mu.Lock()
	rl.clients["1.2.3.4"].lastSeen = time.Now().Add(-rateLimiterStaleThreshold - time.Minute)
	rl.lastCleanup = time.Now().Add(-rateLimiterCleanupInterval - time.Minute)
	rl.mu.Unlock()

	rl.allow("5.6.7.8")

	rl.mu.Lock()
	_, exists := rl.clients["1.2.3.4"]
	rl.mu.Unlock()
	if exists {
		t.Error("stale client entry should have been pruned")
	}
}

func TestRateLimitMiddleware_Returns429(t *testing.T) {
	rl := newRateLimiter(0.001, 1)

	handler := rateLimitMiddleware(rl, false, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:12345"
	handler.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want %d", w.Code, http.StatusOK)
	}

	w = httptest.NewRecorder()
	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:12345"
	handler.ServeHTTP(w, r)

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("rate limited request status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if got := w.Header().Get("Retry-After"); got != "1" {
		t.Errorf("Retry-After = %q, want %q", got, "1")
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		trustProxy bool
		remoteAddr string
		xff        string
		xri        string
		want       string
	}{
		{
			name:       "remote addr with port",
			trustProxy: true,
			remoteAddr: "10.0.0.1:12345",
			want:       "10.0.0.1",
		},
		{
			name:       "X-Forwarded-For first entry when trusted",
			trustProxy: true,
			remoteAddr: "127.0.0.1:80",
			xff:        "203.0.113.50, 70.41.3.18",
			want:       "203.0.113.50",
		},
		{
			name:       "X-Real-IP takes precedence when trusted",
			trustProxy: true,
			remoteAddr: "127.0.0.1:80",
			xff:        "203.0.113.50",
			xri:        "198.51.100.1",
			want:       "198.51.100.1",
		},
		{
			name:       "untrusted ignores proxy headers",
			trustProxy: false,
			remoteAddr: "10.0.0.1:12345",
			xff:        "203.0.113.50",
			xri:        "198.51.100.1",
			want:       "10.0.0.1",
		},
		{
			name:       "invalid X-Real-IP falls through to XFF",
			trustProxy: true,
			remoteAddr: "127.0.0.1:80",
			xri:        "not-an-ip",
			xff:        "203.0.113.50",
			want:       "203.0.113.50",
		},
		{
			name:       "invalid XFF falls through to RemoteAddr",
			trustProxy: true,
			remoteAddr: "127.0.0.1:80",
			xff:        "not-an-ip",
			want:       "127.0.0.1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				r.Header.Set("X-Real-IP", tt.xri)
			}

			if got := clientIP(r, tt.trustProxy); got != tt.want {
				t.Errorf("clientIP(r, %v) = %q, want %q", tt.trustProxy, got, tt.want)
			}
		})
	}
}

func BenchmarkRateLimiterAllow(b *testing.B) {
	rl := newRateLimiter(1e9, 1<<30)
	for b.Loop() {
		rl.allow("1.2.3.4")
	}
}
