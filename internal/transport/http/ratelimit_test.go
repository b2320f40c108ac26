package http

import (
	"testing"
	"time"
)

func TestFrameLimiter(t *testing.T) {
	if !newFrameLimiter(0).allow() {
		t.Fatalf("disabled limiter must allow")
	}

	lim := newFrameLimiter(6)
	if !lim.allow() {
		t.Fatalf("first frame must pass")
	}
	// Burst of one at 6/min; the second immediate frame is rejected.
	if lim.allow() {
		t.Fatalf("expected second immediate frame to be limited")
	}
}

func TestIPRateLimiter(t *testing.T) {
	l := NewIPRateLimiter(60)
	now := time.Unix(0, 0)
	l.now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		if !l.allow("1.2.3.4") {
			t.Fatalf("request %d within burst rejected", i+1)
		}
	}
	if l.allow("1.2.3.4") {
		t.Fatalf("expected burst to be exhausted")
	}
	if !l.allow("5.6.7.8") {
		t.Fatalf("other IPs have their own budget")
	}

	now = now.Add(time.Second)
	if !l.allow("1.2.3.4") {
		t.Fatalf("token should refill after a second")
	}

	now = now.Add(time.Hour)
	l.allow("9.9.9.9")
	if len(l.visitors) != 1 {
		t.Fatalf("idle visitors not evicted: %d", len(l.visitors))
	}
}
