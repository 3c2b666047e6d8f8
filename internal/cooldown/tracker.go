// Package cooldown tracks per (session, rule) firing windows.
package cooldown

import (
	"sync"
	"time"
)

// Tracker maps "sessionID:ruleID" to the instant the rule may fire again.
// Entries are process-local and never persisted. Safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

// New creates a Tracker using the wall clock.
func New() *Tracker {
	return NewWithClock(time.Now)
}

// NewWithClock creates a Tracker with an injectable clock (tests).
func NewWithClock(now func() time.Time) *Tracker {
	return &Tracker{entries: make(map[string]time.Time), now: now}
}

func key(sessionID, ruleID string) string {
	return sessionID + ":" + ruleID
}

// IsOnCooldown reports whether the rule fired for the session less than its
// cooldown ago.
func (t *Tracker) IsOnCooldown(sessionID, ruleID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	exp, ok := t.entries[key(sessionID, ruleID)]
	if !ok {
		return false
	}
	return t.now().Before(exp)
}

// Arm starts a cooldown window of the given length. Non-positive lengths are ignored.
func (t *Tracker) Arm(sessionID, ruleID string, seconds int) {
	if seconds <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[key(sessionID, ruleID)] = t.now().Add(time.Duration(seconds) * time.Second)
}

// Clear drops every armed cooldown (master stop).
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = make(map[string]time.Time)
}

// Prune removes expired entries and returns how many were dropped.
func (t *Tracker) Prune() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	n := 0
	for k, exp := range t.entries {
		if !now.Before(exp) {
			delete(t.entries, k)
			n++
		}
	}
	return n
}

// Len returns the number of tracked entries.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
