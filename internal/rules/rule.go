// Package rules holds the rule model for the three rule tiers (automation, owner,
// normal) and the trigger matcher that decides whether a message satisfies a rule.
package rules

import (
	"fmt"
	"strconv"
	"strings"
)

// Type is the matching strategy of a rule.
type Type string

const (
	TypeExact   Type = "EXACT"
	TypePattern Type = "PATTERN"
	TypeExpert  Type = "EXPERT"
	TypeWelcome Type = "WELCOME"
	TypeDefault Type = "DEFAULT"
	TypeIgnored Type = "IGNORED" // rule is parked and never fires
)

// RepliesMode controls how many reply alternatives are sent.
type RepliesMode string

const (
	RepliesAll    RepliesMode = "ALL"
	RepliesOne    RepliesMode = "ONE"
	RepliesRandom RepliesMode = "RANDOM"
)

// TargetType scopes a normal rule to a set of senders.
type TargetType string

const (
	TargetAll      TargetType = "ALL"
	TargetSpecific TargetType = "SPECIFIC" // only senders in TargetUsers
	TargetIgnored  TargetType = "IGNORED"  // everyone except senders in TargetUsers
)

// AccessType gates who may run an automation or owner rule.
type AccessType string

const (
	AccessAll          AccessType = "ALL"
	AccessOwner        AccessType = "OWNER"
	AccessOwnerIgnored AccessType = "OWNER_IGNORED"
	AccessOwnerDefined AccessType = "OWNER_DEFINED"
	AccessIgnored      AccessType = "IGNORED"
	AccessDefined      AccessType = "DEFINED"
)

// Flavor identifies the tier a rule belongs to.
type Flavor string

const (
	FlavorNormal     Flavor = "normal"
	FlavorOwner      Flavor = "owner"
	FlavorAutomation Flavor = "automation"
)

// ParseFlavor validates a flavor name coming from the admin API or CLI.
func ParseFlavor(s string) (Flavor, error) {
	switch f := Flavor(strings.ToLower(strings.TrimSpace(s))); f {
	case FlavorNormal, FlavorOwner, FlavorAutomation:
		return f, nil
	}
	return "", fmt.Errorf("unknown rule flavor %q", s)
}

// Base is the part shared by every rule flavor.
type Base struct {
	Number          int         `json:"number"`
	Name            string      `json:"name"`
	Type            Type        `json:"type"`
	Keywords        string      `json:"keywords"`
	RepliesMode     RepliesMode `json:"replies_mode"`
	Template        string      `json:"reply_template"`
	CooldownSeconds int         `json:"cooldown_seconds"`
	MinDelaySeconds int         `json:"min_delay_seconds"`
	MaxDelaySeconds int         `json:"max_delay_seconds"`
}

// Rule is implemented by NormalRule, OwnerRule and AutomationRule.
type Rule interface {
	Flavor() Flavor
	Common() *Base
	// ID is the identifier used by history filters, per-rule counters and %rule_id%.
	ID() string
}

// NormalRule answers non-owner senders.
type NormalRule struct {
	Base
	TargetType  TargetType `json:"target_type"`
	TargetUsers []string   `json:"target_users,omitempty"`
}

func (r *NormalRule) Flavor() Flavor { return FlavorNormal }
func (r *NormalRule) Common() *Base  { return &r.Base }
func (r *NormalRule) ID() string     { return RuleID(FlavorNormal, r.Number) }

// OwnerRule answers bot owners only.
type OwnerRule struct {
	Base
	Access AccessType `json:"access_type"`
}

func (r *OwnerRule) Flavor() Flavor { return FlavorOwner }
func (r *OwnerRule) Common() *Base  { return &r.Base }
func (r *OwnerRule) ID() string     { return RuleID(FlavorOwner, r.Number) }

// AutomationRule runs on slash commands.
type AutomationRule struct {
	Base
	Access       AccessType `json:"access_type"`
	DefinedUsers []string   `json:"defined_users,omitempty"`
}

func (r *AutomationRule) Flavor() Flavor { return FlavorAutomation }
func (r *AutomationRule) Common() *Base  { return &r.Base }
func (r *AutomationRule) ID() string     { return RuleID(FlavorAutomation, r.Number) }

// RuleID builds the rule identifier: "5" for normal rules, "O5" for owner rules,
// "A5" for automation rules.
func RuleID(f Flavor, number int) string {
	n := strconv.Itoa(number)
	switch f {
	case FlavorOwner:
		return "O" + n
	case FlavorAutomation:
		return "A" + n
	default:
		return n
	}
}

// Record is the flat storage shape of a rule of any flavor.
type Record struct {
	Flavor          Flavor      `json:"flavor"`
	Number          int         `json:"number"`
	Name            string      `json:"name"`
	Type            Type        `json:"type"`
	Keywords        string      `json:"keywords"`
	RepliesMode     RepliesMode `json:"replies_mode"`
	Template        string      `json:"reply_template"`
	TargetType      TargetType  `json:"target_type,omitempty"`
	TargetUsers     []string    `json:"target_users,omitempty"`
	Access          AccessType  `json:"access_type,omitempty"`
	DefinedUsers    []string    `json:"defined_users,omitempty"`
	CooldownSeconds int         `json:"cooldown_seconds"`
	MinDelaySeconds int         `json:"min_delay_seconds"`
	MaxDelaySeconds int         `json:"max_delay_seconds"`
}

// Normalize fills defaults and validates enum fields.
func (r *Record) Normalize() error {
	if _, err := ParseFlavor(string(r.Flavor)); err != nil {
		return err
	}
	r.Type = Type(strings.ToUpper(string(r.Type)))
	switch r.Type {
	case TypeExact, TypePattern, TypeExpert, TypeWelcome, TypeDefault, TypeIgnored:
	case "":
		r.Type = TypeExact
	default:
		return fmt.Errorf("unknown rule type %q", r.Type)
	}
	r.RepliesMode = RepliesMode(strings.ToUpper(string(r.RepliesMode)))
	switch r.RepliesMode {
	case RepliesAll, RepliesOne, RepliesRandom:
	case "":
		r.RepliesMode = RepliesRandom
	default:
		return fmt.Errorf("unknown replies mode %q", r.RepliesMode)
	}
	r.TargetType = TargetType(strings.ToUpper(string(r.TargetType)))
	switch r.TargetType {
	case TargetAll, TargetSpecific, TargetIgnored:
	case "":
		r.TargetType = TargetAll
	default:
		return fmt.Errorf("unknown target type %q", r.TargetType)
	}
	r.Access = AccessType(strings.ToUpper(string(r.Access)))
	switch r.Access {
	case AccessAll, AccessOwner, AccessOwnerIgnored, AccessOwnerDefined, AccessIgnored, AccessDefined:
	case "":
		if r.Flavor == FlavorOwner {
			r.Access = AccessOwner
		} else {
			r.Access = AccessAll
		}
	default:
		return fmt.Errorf("unknown access type %q", r.Access)
	}
	if r.CooldownSeconds < 0 || r.MinDelaySeconds < 0 || r.MaxDelaySeconds < 0 {
		return fmt.Errorf("cooldown and delays must be >= 0")
	}
	return nil
}

// Rule converts the record into its flavor-specific type.
func (r Record) Rule() Rule {
	base := Base{
		Number:          r.Number,
		Name:            r.Name,
		Type:            r.Type,
		Keywords:        r.Keywords,
		RepliesMode:     r.RepliesMode,
		Template:        r.Template,
		CooldownSeconds: r.CooldownSeconds,
		MinDelaySeconds: r.MinDelaySeconds,
		MaxDelaySeconds: r.MaxDelaySeconds,
	}
	switch r.Flavor {
	case FlavorOwner:
		return &OwnerRule{Base: base, Access: r.Access}
	case FlavorAutomation:
		return &AutomationRule{Base: base, Access: r.Access, DefinedUsers: r.DefinedUsers}
	default:
		targetType := r.TargetType
		if targetType == "" {
			targetType = TargetAll
		}
		return &NormalRule{Base: base, TargetType: targetType, TargetUsers: r.TargetUsers}
	}
}

// RecordOf flattens a rule into its storage shape.
func RecordOf(rule Rule) Record {
	b := rule.Common()
	rec := Record{
		Flavor:          rule.Flavor(),
		Number:          b.Number,
		Name:            b.Name,
		Type:            b.Type,
		Keywords:        b.Keywords,
		RepliesMode:     b.RepliesMode,
		Template:        b.Template,
		CooldownSeconds: b.CooldownSeconds,
		MinDelaySeconds: b.MinDelaySeconds,
		MaxDelaySeconds: b.MaxDelaySeconds,
	}
	switch r := rule.(type) {
	case *NormalRule:
		rec.TargetType = r.TargetType
		rec.TargetUsers = r.TargetUsers
	case *OwnerRule:
		rec.Access = r.Access
	case *AutomationRule:
		rec.Access = r.Access
		rec.DefinedUsers = r.DefinedUsers
	}
	return rec
}

// SplitKeywords splits a "//"-delimited keyword spec into trimmed, non-empty alternatives.
func SplitKeywords(spec string) []string {
	return splitTrim(spec, "//")
}

// SplitReplies splits a "<#>"-delimited reply template into trimmed, non-empty alternatives.
func SplitReplies(template string) []string {
	return splitTrim(template, "<#>")
}

func splitTrim(s, sep string) []string {
	parts := strings.Split(s, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
