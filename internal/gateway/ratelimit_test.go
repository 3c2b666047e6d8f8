package gateway

import (
	"testing"
	"time"
)

func TestRateLimiter(t *testing.T) {
	now := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(60, 2)
	rl.now = func() time.Time { return now }

	if !rl.Allow("a") || !rl.Allow("a") {
		t.Fatal("burst rejected")
	}
	if rl.Allow("a") {
		t.Error("third request inside the burst window allowed")
	}
	if !rl.Allow("b") {
		t.Error("separate key limited")
	}

	now = now.Add(time.Second)
	if !rl.Allow("a") {
		t.Error("token not refilled after one second at 60 rpm")
	}

	now = now.Add(limiterIdleTTL + time.Second)
	rl.Allow("c")
	if n := rl.size(); n != 1 {
		t.Errorf("tracked keys after idle sweep = %d, want 1", n)
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	for _, rpm := range []int{0, -1} {
		rl := NewRateLimiter(rpm, 1)
		if rl.Enabled() {
			t.Errorf("rpm %d: Enabled() = true", rpm)
		}
		for i := 0; i < 10; i++ {
			if !rl.Allow("k") {
				t.Fatalf("rpm %d: request %d limited", rpm, i)
			}
		}
	}
}
