package rules

import (
	"fmt"
	"regexp"
	"strings"
)

// Captures holds the submatches of an EXPERT rule. Group 0 is the whole match.
type Captures struct {
	groups  []string
	present []bool
}

// Group returns capture group n and whether it participated in the match.
func (c *Captures) Group(n int) (string, bool) {
	if c == nil || n < 0 || n >= len(c.groups) || !c.present[n] {
		return "", false
	}
	return c.groups[n], true
}

// Len returns the number of groups including group 0.
func (c *Captures) Len() int {
	if c == nil {
		return 0
	}
	return len(c.groups)
}

// Input is what the matcher needs to know about the inbound message.
type Input struct {
	Message string
	IsGroup bool
	// Welcomed reports whether the sender already received this WELCOME rule.
	// The caller decides which welcome state applies.
	Welcomed bool
}

// Result is the outcome of matching a single rule.
type Result struct {
	Matched  bool
	Captures *Captures // only set for EXPERT rules
}

// Match decides whether the message satisfies the rule's keyword specification.
func Match(rule *Base, in Input) Result {
	switch rule.Type {
	case TypeDefault:
		return Result{Matched: true}
	case TypeWelcome:
		return Result{Matched: !in.Welcomed}
	case TypeIgnored:
		return Result{}
	}

	for _, alt := range SplitKeywords(rule.Keywords) {
		pattern, ok := contextFilter(alt, in.IsGroup)
		if !ok {
			continue
		}
		if pattern == "" {
			// The alternative was only a context marker.
			return Result{Matched: true}
		}
		if res := matchAlternative(rule.Type, pattern, in.Message); res.Matched {
			return res
		}
	}
	return Result{}
}

// MatchTrigger matches a gate trigger (master stop, hide, unhide) using the rule
// matching strategies. An empty trigger never matches.
func MatchTrigger(trigger string, t Type, message string) bool {
	if strings.TrimSpace(trigger) == "" {
		return false
	}
	switch t {
	case TypePattern, TypeExpert:
	default:
		t = TypeExact
	}
	for _, alt := range SplitKeywords(trigger) {
		if matchAlternative(t, alt, message).Matched {
			return true
		}
	}
	return false
}

func matchAlternative(t Type, pattern, message string) Result {
	switch t {
	case TypeExact:
		return Result{Matched: strings.EqualFold(pattern, message)}
	case TypePattern:
		re, err := compileWildcard(pattern, true)
		if err != nil {
			return Result{}
		}
		return Result{Matched: re.MatchString(message)}
	case TypeExpert:
		re, err := CompilePattern(pattern)
		if err != nil {
			return Result{}
		}
		idx := re.FindStringSubmatchIndex(message)
		if idx == nil {
			return Result{}
		}
		return Result{Matched: true, Captures: capturesFromIndex(message, idx)}
	}
	return Result{}
}

// CompilePattern compiles a user-authored EXPERT expression case-insensitively.
func CompilePattern(expr string) (*regexp.Regexp, error) {
	re, err := regexp.Compile("(?i)" + expr)
	if err != nil {
		return nil, fmt.Errorf("compile pattern %q: %w", expr, err)
	}
	return re, nil
}

func capturesFromIndex(s string, idx []int) *Captures {
	n := len(idx) / 2
	c := &Captures{groups: make([]string, n), present: make([]bool, n)}
	for i := 0; i < n; i++ {
		start, end := idx[2*i], idx[2*i+1]
		if start < 0 {
			continue
		}
		c.groups[i] = s[start:end]
		c.present[i] = true
	}
	return c
}

var contextMarkerRe = regexp.MustCompile(`(?i)\b(DM_ONLY|GROUP_ONLY)\b`)

// contextFilter strips DM_ONLY / GROUP_ONLY markers from an alternative and reports
// whether the alternative applies in the current context.
func contextFilter(alt string, isGroup bool) (string, bool) {
	markers := contextMarkerRe.FindAllString(alt, -1)
	if len(markers) == 0 {
		return alt, true
	}
	for _, m := range markers {
		dmOnly := strings.EqualFold(m, "DM_ONLY")
		if dmOnly == isGroup {
			return "", false
		}
	}
	return strings.TrimSpace(contextMarkerRe.ReplaceAllString(alt, "")), true
}
