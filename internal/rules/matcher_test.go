package rules

import "testing"

func TestMatch_Types(t *testing.T) {
	tests := []struct {
		name    string
		rule    Base
		in      Input
		matched bool
	}{
		{"exact case-insensitive", Base{Type: TypeExact, Keywords: "hi//hello"}, Input{Message: "HELLO"}, true},
		{"exact needs full string", Base{Type: TypeExact, Keywords: "hi"}, Input{Message: "hi there"}, false},
		{"pattern wildcard", Base{Type: TypePattern, Keywords: "order *"}, Input{Message: "Order 42"}, true},
		{"pattern anchored", Base{Type: TypePattern, Keywords: "order *"}, Input{Message: "my order 42"}, false},
		{"pattern quotes metachars", Base{Type: TypePattern, Keywords: "what?"}, Input{Message: "what"}, false},
		{"pattern spans newlines", Base{Type: TypePattern, Keywords: "a*b"}, Input{Message: "a\nx\nb"}, true},
		{"expert regex", Base{Type: TypeExpert, Keywords: `^price (\d+)$`}, Input{Message: "PRICE 10"}, true},
		{"expert malformed is no match", Base{Type: TypeExpert, Keywords: `([a-`}, Input{Message: "([a-"}, false},
		{"expert malformed then valid", Base{Type: TypeExpert, Keywords: `([a- // ^ok$`}, Input{Message: "ok"}, true},
		{"default always", Base{Type: TypeDefault}, Input{Message: "anything"}, true},
		{"welcome new sender", Base{Type: TypeWelcome}, Input{Message: "hi"}, true},
		{"welcome already welcomed", Base{Type: TypeWelcome}, Input{Message: "hi", Welcomed: true}, false},
		{"ignored never", Base{Type: TypeIgnored, Keywords: "hi"}, Input{Message: "hi"}, false},
		{"empty keywords", Base{Type: TypeExact, Keywords: " // "}, Input{Message: ""}, false},
		{"dm only in dm", Base{Type: TypeExact, Keywords: "DM_ONLY hi"}, Input{Message: "hi"}, true},
		{"dm only in group", Base{Type: TypeExact, Keywords: "DM_ONLY hi"}, Input{Message: "hi", IsGroup: true}, false},
		{"group only in group", Base{Type: TypeExact, Keywords: "hi group_only"}, Input{Message: "hi", IsGroup: true}, true},
		{"bare marker matches any", Base{Type: TypeExact, Keywords: "GROUP_ONLY"}, Input{Message: "whatever", IsGroup: true}, true},
		{"bare marker wrong context", Base{Type: TypeExact, Keywords: "GROUP_ONLY//hey"}, Input{Message: "whatever"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := tt.rule
			if got := Match(&rule, tt.in).Matched; got != tt.matched {
				t.Errorf("Match(%q, %q) = %v, want %v", tt.rule.Keywords, tt.in.Message, got, tt.matched)
			}
		})
	}
}

func TestMatch_ExpertCaptures(t *testing.T) {
	rule := &Base{Type: TypeExpert, Keywords: `^order (\d+)(?: for (\w+))?$`}
	res := Match(rule, Input{Message: "order 42"})
	if !res.Matched {
		t.Fatal("expected match")
	}
	if g, ok := res.Captures.Group(1); !ok || g != "42" {
		t.Errorf("group 1 = %q, %v; want 42, true", g, ok)
	}
	if _, ok := res.Captures.Group(2); ok {
		t.Error("group 2 did not participate, want ok=false")
	}
	if _, ok := res.Captures.Group(5); ok {
		t.Error("group 5 out of range, want ok=false")
	}
}

func TestMatch_PatternHasNoCaptures(t *testing.T) {
	res := Match(&Base{Type: TypePattern, Keywords: "order *"}, Input{Message: "order 42"})
	if !res.Matched || res.Captures != nil {
		t.Errorf("Match = %+v, want matched with nil captures", res)
	}
}

func TestMatch_FirstAlternativeWins(t *testing.T) {
	rule := &Base{Type: TypeExpert, Keywords: `(a)(b)? // (a)`}
	res := Match(rule, Input{Message: "ab"})
	if g, _ := res.Captures.Group(2); g != "b" {
		t.Errorf("expected captures from the first alternative, got group2=%q", g)
	}
}

func TestWildcardMatch(t *testing.T) {
	tests := []struct {
		pattern, value string
		want           bool
	}{
		{"alice*", "Alice Smith", true},
		{"alice*", "bob", false},
		{"*", "anyone", true},
		{"Bob", "bob", true},
		{"b.b", "bob", false},
		{"", "bob", false},
		{"*team*", "The Team Chat", true},
	}
	for _, tt := range tests {
		if got := WildcardMatch(tt.pattern, tt.value); got != tt.want {
			t.Errorf("WildcardMatch(%q, %q) = %v, want %v", tt.pattern, tt.value, got, tt.want)
		}
	}
}

func TestMatchTrigger(t *testing.T) {
	if !MatchTrigger("stop bot//halt", TypeExact, "HALT") {
		t.Error("expected exact trigger match")
	}
	if MatchTrigger("", TypeExact, "") {
		t.Error("empty trigger must never match")
	}
	if !MatchTrigger("hide *", TypePattern, "hide me please") {
		t.Error("expected pattern trigger match")
	}
	if MatchTrigger("(", TypeExpert, "(") {
		t.Error("malformed expert trigger must not match")
	}
}

func TestSplitReplies(t *testing.T) {
	got := SplitReplies(" A <#>B<#> <#>C ")
	want := []string{"A", "B", "C"}
	if len(got) != len(want) {
		t.Fatalf("SplitReplies = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("SplitReplies[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRecord_RoundTripFlavors(t *testing.T) {
	recs := []Record{
		{Flavor: FlavorNormal, Number: 1, Type: TypeExact, TargetType: TargetSpecific, TargetUsers: []string{"a"}},
		{Flavor: FlavorOwner, Number: 2, Type: TypeWelcome},
		{Flavor: FlavorAutomation, Number: 3, Type: TypeExpert, Access: AccessDefined, DefinedUsers: []string{"x"}},
	}
	wantIDs := []string{"1", "O2", "A3"}
	for i := range recs {
		rec := &recs[i]
		if err := rec.Normalize(); err != nil {
			t.Fatalf("Normalize(%d): %v", i, err)
		}
		r := rec.Rule()
		if r.ID() != wantIDs[i] {
			t.Errorf("ID = %q, want %q", r.ID(), wantIDs[i])
		}
		if back := RecordOf(r); back.Flavor != rec.Flavor || back.Number != rec.Number {
			t.Errorf("RecordOf mismatch: %+v vs %+v", back, rec)
		}
	}
	if owner := recs[1].Rule().(*OwnerRule); owner.Access != AccessOwner {
		t.Errorf("owner default access = %q, want OWNER", owner.Access)
	}
}

func TestRecord_NormalizeRejectsUnknown(t *testing.T) {
	rec := Record{Flavor: FlavorNormal, Type: "FUZZY"}
	if err := rec.Normalize(); err == nil {
		t.Error("expected error for unknown type")
	}
	rec = Record{Flavor: "weird"}
	if err := rec.Normalize(); err == nil {
		t.Error("expected error for unknown flavor")
	}
}
