package cooldown

import (
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestTracker_ArmAndExpire(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	tr := NewWithClock(clock.Now)

	if tr.IsOnCooldown("s1", "3") {
		t.Fatal("unarmed rule must not be on cooldown")
	}
	tr.Arm("s1", "3", 5)
	if !tr.IsOnCooldown("s1", "3") {
		t.Fatal("expected cooldown right after arm")
	}
	if tr.IsOnCooldown("s2", "3") || tr.IsOnCooldown("s1", "4") {
		t.Error("cooldown must be scoped to (session, rule)")
	}

	clock.Advance(4999 * time.Millisecond)
	if !tr.IsOnCooldown("s1", "3") {
		t.Error("still inside the window")
	}
	clock.Advance(time.Millisecond)
	if tr.IsOnCooldown("s1", "3") {
		t.Error("window of 5s elapsed, want false")
	}
}

func TestTracker_ZeroNeverGates(t *testing.T) {
	tr := New()
	tr.Arm("s", "1", 0)
	if tr.IsOnCooldown("s", "1") || tr.Len() != 0 {
		t.Error("zero cooldown must not arm")
	}
}

func TestTracker_ClearAndPrune(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	tr := NewWithClock(clock.Now)
	tr.Arm("a", "1", 1)
	tr.Arm("b", "1", 60)

	clock.Advance(2 * time.Second)
	if n := tr.Prune(); n != 1 {
		t.Errorf("Prune = %d, want 1", n)
	}
	if !tr.IsOnCooldown("b", "1") {
		t.Error("unexpired entry must survive prune")
	}

	tr.Clear()
	if tr.Len() != 0 || tr.IsOnCooldown("b", "1") {
		t.Error("Clear must drop every entry")
	}
}
