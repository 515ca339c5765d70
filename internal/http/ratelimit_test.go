package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiterAllowsBurstThenBlocks(t *testing.T) {
	rl := newRateLimiter(3)
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if !rl.allow("1.2.3.4") {
			t.Fatalf("request %d rejected", i+1)
		}
	}
	if rl.allow("1.2.3.4") {
		t.Fatal("fourth request allowed")
	}
	if !rl.allow("5.6.7.8") {
		t.Fatal("other client rejected")
	}

	now = now.Add(time.Minute)
	if !rl.allow("1.2.3.4") {
		t.Error("request rejected after refill")
	}
}

func TestRateLimiterCleanExpired(t *testing.T) {
	rl := newRateLimiter(0)
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	rl.allow("old")
	now = now.Add(11 * time.Minute)
	rl.allow("fresh")

	if removed := rl.CleanExpired(); removed != 1 {
		t.Errorf("CleanExpired() = %d, want 1", removed)
	}
	if n := rl.activeClients(); n != 1 {
		t.Errorf("activeClients() = %d, want 1", n)
	}
}

func TestExtractClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		want       string
	}{
		{"direct", "203.0.113.9:4000", "", "203.0.113.9"},
		{"untrusted proxy ignored", "203.0.113.9:4000", "198.51.100.1", "203.0.113.9"},
		{"trusted proxy", "10.0.0.2:4000", "198.51.100.1, 10.0.0.2", "198.51.100.1"},
		{"trusted proxy bad header", "127.0.0.1:4000", "not-an-ip", "127.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := extractClientIP(r); got != tt.want {
				t.Errorf("extractClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
