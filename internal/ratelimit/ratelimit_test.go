package ratelimit

import (
	"testing"
	"time"
)

func TestLimiterBurst(t *testing.T) {
	l := NewLimiter(10, 5)

	for i := 0; i < 5; i++ {
		if !l.Allow() {
			t.Fatalf("Request %d within burst should be allowed", i)
		}
	}
	if l.Allow() {
		t.Error("Request beyond burst should be denied")
	}
}

func TestLimiterRefill(t *testing.T) {
	l := NewLimiter(100, 1)

	if !l.Allow() {
		t.Fatal("First request should be allowed")
	}
	if l.Allow() {
		t.Fatal("Second immediate request should be denied")
	}

	time.Sleep(20 * time.Millisecond)
	if !l.Allow() {
		t.Error("Request after refill should be allowed")
	}
}

func TestAllowN(t *testing.T) {
	l := NewLimiter(1, 10)

	if !l.AllowN(10) {
		t.Error("AllowN within burst should succeed")
	}
	if l.AllowN(1) {
		t.Error("AllowN past burst should fail")
	}
}
