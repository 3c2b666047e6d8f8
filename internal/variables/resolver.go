// Package variables expands the reply templating DSL (%name%, %rndm_*%,
// %prev_message_*%, %capturing_group_N%, date/time, counters, static variables).
//
// Resolution runs every pass in a fixed order and repeats until a round produces
// no change or the iteration cap is reached, so variables may expand into text that
// contains further variables.
package variables

import (
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/nextlevelbuilder/autoreply/internal/rules"
	"github.com/nextlevelbuilder/autoreply/internal/store"
)

// DefaultMaxIterations bounds the fixed-point loop.
const DefaultMaxIterations = 10

// Context is everything a template may refer to.
type Context struct {
	SenderName    string
	Message       string
	ReceivedAt    time.Time
	IsGroup       bool
	GroupName     string
	Captures      *rules.Captures // nil unless an EXPERT rule matched
	RuleID        string
	TotalMessages int
	Stats         *store.MessageStats // nil when no per-session stats are available
	History       []store.HistoryEntry
	Variables     map[string]string
	Location      *time.Location

	// Now and IntN are overridable for tests.
	Now  func() time.Time
	IntN func(n int) int
}

func (c *Context) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Context) loc() *time.Location {
	if c.Location != nil {
		return c.Location
	}
	return time.UTC
}

func (c *Context) intN(n int) int {
	if n <= 0 {
		return 0
	}
	if c.IntN != nil {
		return c.IntN(n)
	}
	return rand.IntN(n)
}

// Pass rewrites one category of tokens.
type Pass func(s string, c *Context) string

// Passes is the fixed substitution order.
var Passes = []Pass{
	MessagePass,
	HistoryPass,
	ProcessingTimePass,
	DateTimePass,
	ContextPass,
	RandomPass,
	CapturePass,
	StaticPass,
}

// Outcome describes a resolution run.
type Outcome struct {
	Text       string
	Iterations int
	Capped     bool
}

// Resolver expands templates to a fixed point.
type Resolver struct {
	maxIterations int
	passes        []Pass
}

// NewResolver creates a resolver with the default passes and iteration cap.
func NewResolver() *Resolver {
	return &Resolver{maxIterations: DefaultMaxIterations, passes: Passes}
}

// Resolve expands every token it can and leaves unknown tokens verbatim.
func (r *Resolver) Resolve(template string, c *Context) string {
	return r.ResolveOutcome(template, c).Text
}

// ResolveOutcome is Resolve plus iteration bookkeeping.
func (r *Resolver) ResolveOutcome(template string, c *Context) Outcome {
	if c == nil {
		c = &Context{}
	}
	cur := template
	for i := 1; i <= r.maxIterations; i++ {
		next := cur
		for _, p := range r.passes {
			next = p(next, c)
		}
		if next == cur {
			return Outcome{Text: cur, Iterations: i}
		}
		cur = next
	}
	slog.Warn("variables.iteration_cap",
		"max", r.maxIterations,
		"template_len", len(template),
		"rule_id", c.RuleID,
	)
	return Outcome{Text: cur, Iterations: r.maxIterations, Capped: true}
}

// DateKey formats t as a calendar day in loc ("2006-01-02").
func DateKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("2006-01-02")
}
