package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nextlevelbuilder/autoreply/internal/bus"
	"github.com/nextlevelbuilder/autoreply/internal/rules"
	"github.com/nextlevelbuilder/autoreply/internal/store"
)

// memStore is an in-memory implementation of every store interface.
type memStore struct {
	mu        sync.Mutex
	rules     map[rules.Flavor][]rules.Record
	vars      map[string]string
	settings  *store.Settings
	ignored   []store.IgnoredUser
	specific  []string
	stats     map[string]store.MessageStats
	global    *store.GlobalStats
	logs      []string
	welcomed  []string
	users     map[string]time.Time
	history   []store.HistoryEntry
	saveCalls int
}

func newMemStore() *memStore {
	return &memStore{
		rules: make(map[rules.Flavor][]rules.Record),
		vars:  make(map[string]string),
		stats: make(map[string]store.MessageStats),
		users: make(map[string]time.Time),
	}
}

func (m *memStore) stores() *store.Stores {
	return &store.Stores{
		Rules: m, Variables: m, Settings: m, Overrides: m,
		Stats: m, Welcome: m, History: m,
		Close: func() error { return nil },
	}
}

func (m *memStore) List(_ context.Context, f rules.Flavor) ([]rules.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]rules.Record(nil), m.rules[f]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (m *memStore) Get(_ context.Context, f rules.Flavor, n int) (*rules.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rules[f] {
		if r.Number == n {
			return &r, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memStore) Create(_ context.Context, rec *rules.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules[rec.Flavor] = append(m.rules[rec.Flavor], *rec)
	return nil
}

func (m *memStore) Update(_ context.Context, rec *rules.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.rules[rec.Flavor] {
		if r.Number == rec.Number {
			m.rules[rec.Flavor][i] = *rec
			return nil
		}
	}
	return store.ErrNotFound
}

func (m *memStore) Delete(_ context.Context, f rules.Flavor, n int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.rules[f]
	for i, r := range list {
		if r.Number == n {
			m.rules[f] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

func (m *memStore) ListVariables(context.Context) ([]store.Variable, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Variable
	for k, v := range m.vars {
		out = append(out, store.Variable{Name: k, Value: v})
	}
	return out, nil
}

func (m *memStore) SetVariable(_ context.Context, v store.Variable) error {
	m.mu.Lock()
	m.vars[v.Name] = v.Value
	m.mu.Unlock()
	return nil
}

func (m *memStore) DeleteVariable(_ context.Context, name string) error {
	m.mu.Lock()
	delete(m.vars, name)
	m.mu.Unlock()
	return nil
}

func (m *memStore) GetSettings(context.Context) (*store.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settings == nil {
		return nil, store.ErrNotFound
	}
	s := *m.settings
	return &s, nil
}

func (m *memStore) SaveSettings(_ context.Context, s *store.Settings) error {
	m.mu.Lock()
	c := *s
	m.settings = &c
	m.mu.Unlock()
	return nil
}

func (m *memStore) ListIgnored(context.Context) ([]store.IgnoredUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]store.IgnoredUser(nil), m.ignored...), nil
}

func (m *memStore) SaveIgnored(_ context.Context, users []store.IgnoredUser) error {
	m.mu.Lock()
	m.ignored = append([]store.IgnoredUser(nil), users...)
	m.mu.Unlock()
	return nil
}

func (m *memStore) ListSpecific(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.specific...), nil
}

func (m *memStore) SaveSpecific(_ context.Context, p []string) error {
	m.mu.Lock()
	m.specific = append([]string(nil), p...)
	m.mu.Unlock()
	return nil
}

func (m *memStore) GetMessageStats(_ context.Context, id string) (*store.MessageStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.stats[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	st = cloneStats(&st)
	return &st, nil
}

func (m *memStore) SaveMessageStats(_ context.Context, s *store.MessageStats) error {
	m.mu.Lock()
	m.stats[s.SessionID] = cloneStats(s)
	m.saveCalls++
	m.mu.Unlock()
	return nil
}

func (m *memStore) ListMessageStats(_ context.Context, limit, offset int) ([]store.MessageStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.MessageStats
	for _, s := range m.stats {
		out = append(out, s)
	}
	return out, nil
}

func (m *memStore) GetGlobalStats(context.Context) (*store.GlobalStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.global == nil {
		return nil, store.ErrNotFound
	}
	g := cloneGlobal(*m.global)
	return &g, nil
}

func (m *memStore) SaveGlobalStats(_ context.Context, g *store.GlobalStats) error {
	m.mu.Lock()
	c := cloneGlobal(*g)
	m.global = &c
	m.saveCalls++
	m.mu.Unlock()
	return nil
}

func (m *memStore) ListWelcomeLogs(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.logs...), nil
}

func (m *memStore) AddWelcomeLog(_ context.Context, key string) error {
	m.mu.Lock()
	m.logs = append(m.logs, key)
	m.mu.Unlock()
	return nil
}

func (m *memStore) ListWelcomedUsers(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.welcomed...), nil
}

func (m *memStore) AddWelcomedUser(_ context.Context, name string) error {
	m.mu.Lock()
	m.welcomed = append(m.welcomed, name)
	m.mu.Unlock()
	return nil
}

func (m *memStore) SaveUser(_ context.Context, name string, firstSeen time.Time) error {
	m.mu.Lock()
	if _, ok := m.users[name]; !ok {
		m.users[name] = firstSeen
	}
	m.mu.Unlock()
	return nil
}

func (m *memStore) AppendHistory(_ context.Context, e store.HistoryEntry, keep int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append([]store.HistoryEntry{e}, m.history...)
	if len(m.history) > keep {
		m.history = m.history[:keep]
	}
	return nil
}

func (m *memStore) ListHistory(_ context.Context, limit int) ([]store.HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.history) > limit {
		return append([]store.HistoryEntry(nil), m.history[:limit]...), nil
	}
	return append([]store.HistoryEntry(nil), m.history...), nil
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// recordingScheduler captures deferred replies.
type recordingScheduler struct {
	mu   sync.Mutex
	msgs []bus.OutboundMessage
	dls  []time.Duration
}

func (s *recordingScheduler) Schedule(msg bus.OutboundMessage, delay time.Duration) {
	s.mu.Lock()
	s.msgs = append(s.msgs, msg)
	s.dls = append(s.dls, delay)
	s.mu.Unlock()
}

// recordingSleep captures requested delays without sleeping.
type recordingSleep struct {
	mu     sync.Mutex
	waited []time.Duration
}

func (s *recordingSleep) Sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waited = append(s.waited, d)
	s.mu.Unlock()
	return nil
}
