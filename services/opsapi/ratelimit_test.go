package opsapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiterPerClient(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	limiter := newRateLimiter(60, 2)
	limiter.now = func() time.Time { return now }

	if !limiter.allow("a") || !limiter.allow("a") {
		t.Fatalf("burst should admit two requests")
	}
	if limiter.allow("a") {
		t.Fatalf("third request within the same second must be throttled")
	}
	if !limiter.allow("b") {
		t.Fatalf("other clients keep their own bucket")
	}
	now = now.Add(time.Second)
	if !limiter.allow("a") {
		t.Fatalf("bucket should refill after a second")
	}
}

func TestRateLimiterEvictsIdleClients(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	limiter := newRateLimiter(60, 1)
	limiter.now = func() time.Time { return now }
	limiter.allow("a")
	now = now.Add(visitorIdle + time.Second)
	limiter.allow("b")
	if _, ok := limiter.visitors["a"]; ok {
		t.Fatalf("idle visitor should be evicted")
	}
}

func TestClientID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/farms", nil)
	req.RemoteAddr = "10.0.0.1:5000"
	if got := clientID(req); got != "10.0.0.1" {
		t.Fatalf("remote addr: got %q", got)
	}
	req.Header.Set("X-Forwarded-For", "192.0.2.4, 10.0.0.1")
	if got := clientID(req); got != "192.0.2.4" {
		t.Fatalf("forwarded: got %q", got)
	}
	req.Header.Set("X-Real-IP", "198.51.100.7")
	if got := clientID(req); got != "198.51.100.7" {
		t.Fatalf("real ip: got %q", got)
	}
}

func TestServerThrottlesV1Routes(t *testing.T) {
	srv := newTestServer(t, func(cfg *Config) {
		cfg.RequestsPerMinute = 1
		cfg.Burst = 1
	})
	if code, _ := get(t, srv, "/v1/farms"); code != http.StatusOK {
		t.Fatalf("first request: got %d", code)
	}
	if code, _ := get(t, srv, "/v1/farms"); code != http.StatusTooManyRequests {
		t.Fatalf("second request: got %d", code)
	}
	if code, _ := get(t, srv, "/healthz"); code != http.StatusOK {
		t.Fatalf("healthz must not be throttled: got %d", code)
	}
}
