package rules

import (
	"regexp"
	"strings"
)

// compileWildcard turns a "*" wildcard pattern into an anchored case-insensitive
// regular expression. dotAll lets "*" span newlines.
func compileWildcard(pattern string, dotAll bool) (*regexp.Regexp, error) {
	parts := strings.Split(pattern, "*")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	flags := "(?i)"
	if dotAll {
		flags = "(?is)"
	}
	return regexp.Compile(flags + "^" + strings.Join(parts, ".*") + "$")
}

// WildcardMatch reports whether value matches pattern, where "*" matches any run of
// characters. Matching is case-insensitive and anchored at both ends.
func WildcardMatch(pattern, value string) bool {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return false
	}
	if !strings.Contains(pattern, "*") {
		return strings.EqualFold(pattern, strings.TrimSpace(value))
	}
	re, err := compileWildcard(pattern, false)
	if err != nil {
		return false
	}
	return re.MatchString(strings.TrimSpace(value))
}

// MatchAny reports whether value matches any of the wildcard patterns.
func MatchAny(patterns []string, value string) bool {
	for _, p := range patterns {
		if WildcardMatch(p, value) {
			return true
		}
	}
	return false
}
