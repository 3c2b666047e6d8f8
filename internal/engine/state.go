package engine

import (
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nextlevelbuilder/autoreply/internal/rules"
	"github.com/nextlevelbuilder/autoreply/internal/store"
)

// snapshot is the read-mostly configuration loaded from the store. It is never
// mutated after publication; Reload swaps in a fresh one.
type snapshot struct {
	automation []*rules.AutomationRule
	owner      []*rules.OwnerRule
	normal     []*rules.NormalRule
	variables  map[string]string
	settings   store.Settings
}

func emptySnapshot() *snapshot {
	return &snapshot{variables: map[string]string{}, settings: store.DefaultSettings()}
}

// State is the engine's mutable runtime state.
type State struct {
	snap              atomic.Pointer[snapshot]
	automationEnabled atomic.Bool

	mu             sync.Mutex
	ignored        []store.IgnoredUser
	specific       []string
	welcomeLogs    map[string]struct{}
	welcomedUsers  map[string]struct{}
	global         store.GlobalStats
	history        []store.HistoryEntry // newest first
	historyLimit   int
	lastReplyTimes map[string]time.Time

	// Per-session processing locks, dropped once no caller holds or waits on them.
	sessionMu    sync.Mutex
	sessionLocks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func newState(historyLimit int) *State {
	if historyLimit <= 0 {
		historyLimit = store.DefaultHistoryLimit
	}
	s := &State{
		welcomeLogs:    make(map[string]struct{}),
		welcomedUsers:  make(map[string]struct{}),
		historyLimit:   historyLimit,
		lastReplyTimes: make(map[string]time.Time),
		sessionLocks:   make(map[string]*sessionLock),
	}
	s.snap.Store(emptySnapshot())
	s.automationEnabled.Store(true)
	return s
}

func (s *State) snapshot() *snapshot { return s.snap.Load() }

// lockSession serializes processing per session. The returned func unlocks and
// releases the entry when it was the last reference.
func (s *State) lockSession(sessionID string) func() {
	s.sessionMu.Lock()
	l, ok := s.sessionLocks[sessionID]
	if !ok {
		l = &sessionLock{}
		s.sessionLocks[sessionID] = l
	}
	l.refs++
	s.sessionMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.sessionMu.Lock()
		if l.refs--; l.refs == 0 {
			delete(s.sessionLocks, sessionID)
		}
		s.sessionMu.Unlock()
	}
}

// passesSpecific reports whether the sender clears the specific-override allowlist.
// An empty list lets everyone through.
func (s *State) passesSpecific(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.specific) == 0 || rules.MatchAny(s.specific, name)
}

// isIgnoredIn reports whether the sender is muted in the given context.
func (s *State) isIgnoredIn(name, context string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.ignored {
		if rules.WildcardMatch(u.Name, name) && rules.WildcardMatch(u.Context, context) {
			return true
		}
	}
	return false
}

// isIgnoredAnywhere reports whether the sender is muted in any context.
func (s *State) isIgnoredAnywhere(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.ignored {
		if rules.WildcardMatch(u.Name, name) {
			return true
		}
	}
	return false
}

// addIgnored appends (name, context) unless an identical entry exists. Names or
// contexts containing the wildcard are never stored, since stored entries are read
// back as patterns. It returns the list to persist and whether anything changed.
func (s *State) addIgnored(name, context string) ([]store.IgnoredUser, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.Contains(name, "*") || strings.Contains(context, "*") {
		return slices.Clone(s.ignored), false
	}
	for _, u := range s.ignored {
		if strings.EqualFold(u.Name, name) && strings.EqualFold(u.Context, context) {
			return slices.Clone(s.ignored), false
		}
	}
	s.ignored = append(s.ignored, store.IgnoredUser{Name: name, Context: context})
	return slices.Clone(s.ignored), true
}

// removeIgnored drops every entry whose patterns match (name, context) and returns
// the remaining list and the number removed.
func (s *State) removeIgnored(name, context string) ([]store.IgnoredUser, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.ignored[:0:0]
	for _, u := range s.ignored {
		if rules.WildcardMatch(u.Name, name) && rules.WildcardMatch(u.Context, context) {
			continue
		}
		kept = append(kept, u)
	}
	removed := len(s.ignored) - len(kept)
	s.ignored = kept
	return slices.Clone(kept), removed
}

func (s *State) setOverrides(ignored []store.IgnoredUser, specific []string) {
	s.mu.Lock()
	s.ignored = ignored
	s.specific = specific
	s.mu.Unlock()
}

func (s *State) hasWelcomeLog(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.welcomeLogs[key]
	return ok
}

func (s *State) addWelcomeLog(key string) {
	s.mu.Lock()
	s.welcomeLogs[key] = struct{}{}
	s.mu.Unlock()
}

func (s *State) isWelcomed(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.welcomedUsers[name]
	return ok
}

func (s *State) addWelcomed(name string) {
	s.mu.Lock()
	s.welcomedUsers[name] = struct{}{}
	s.mu.Unlock()
}

// countMessage applies an inbound message to the global counters, rolling the
// daily fields first when the date changed. It returns a copy to persist.
func (s *State) countMessage(sender, today string) store.GlobalStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	rolloverGlobal(&s.global, today)
	s.global.TotalMsgs++
	s.global.TodayMsgs++
	if !slices.Contains(s.global.TotalUsers, sender) {
		s.global.TotalUsers = append(s.global.TotalUsers, sender)
	}
	if !slices.Contains(s.global.TodayUsers, sender) {
		s.global.TodayUsers = append(s.global.TodayUsers, sender)
	}
	return cloneGlobal(s.global)
}

// rollover resets the daily global counters if today differs from the last reset.
func (s *State) rollover(today string) (store.GlobalStats, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := rolloverGlobal(&s.global, today)
	return cloneGlobal(s.global), changed
}

func rolloverGlobal(g *store.GlobalStats, today string) bool {
	if g.LastResetDate == today {
		return false
	}
	g.TodayUsers = nil
	g.TodayMsgs = 0
	g.LastResetDate = today
	return true
}

func (s *State) globalStats() store.GlobalStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneGlobal(s.global)
}

func cloneGlobal(g store.GlobalStats) store.GlobalStats {
	g.TotalUsers = slices.Clone(g.TotalUsers)
	g.TodayUsers = slices.Clone(g.TodayUsers)
	return g
}

// recordReply prepends a history entry (bounded) and stamps the sender's last reply.
func (s *State) recordReply(e store.HistoryEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastReplyTimes[e.SenderName] = e.Timestamp
	s.history = append([]store.HistoryEntry{e}, s.history...)
	if len(s.history) > s.historyLimit {
		s.history = s.history[:s.historyLimit]
	}
}

func (s *State) recentHistory() []store.HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.history)
}

func (s *State) lastReply(name string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.lastReplyTimes[name]
	return t, ok
}
