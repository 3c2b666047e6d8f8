package variables

import (
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/nextlevelbuilder/autoreply/internal/rules"
	"github.com/nextlevelbuilder/autoreply/internal/store"
)

var fixedNow = time.Date(2024, time.March, 5, 14, 7, 9, 0, time.UTC)

func newCtx() *Context {
	return &Context{
		SenderName: "Alice Smith",
		Message:    "hello there",
		Now:        func() time.Time { return fixedNow },
		Location:   time.UTC,
	}
}

func TestResolve_Idempotent(t *testing.T) {
	r := NewResolver()
	c := newCtx()
	c.Variables = map[string]string{"shop": "Acme"}
	tmpl := "Hi %name%, welcome to %shop%. You said: %message%"

	first := r.Resolve(tmpl, c)
	second := r.Resolve(tmpl, c)
	if first != second {
		t.Errorf("non-random template resolved differently: %q vs %q", first, second)
	}
	if want := "Hi Alice Smith, welcome to Acme. You said: hello there"; first != want {
		t.Errorf("Resolve = %q, want %q", first, want)
	}
}

func TestResolve_StaticFixedPointWithinTwoIterations(t *testing.T) {
	r := NewResolver()
	c := newCtx()
	c.Variables = map[string]string{"a": "alpha", "b": "beta"}

	out := r.ResolveOutcome("%a% and %b%", c)
	if out.Text != "alpha and beta" {
		t.Errorf("Text = %q", out.Text)
	}
	if out.Iterations > 2 || out.Capped {
		t.Errorf("Iterations = %d capped=%v, want <= 2", out.Iterations, out.Capped)
	}
}

func TestResolve_NestedStaticVariables(t *testing.T) {
	r := NewResolver()
	c := newCtx()
	c.Variables = map[string]string{
		"greeting": "Hello %who%",
		"who":      "%name%",
	}
	if got := r.Resolve("%greeting%!", c); got != "Hello Alice Smith!" {
		t.Errorf("Resolve = %q", got)
	}
}

func TestResolve_CircularHitsCap(t *testing.T) {
	r := NewResolver()
	c := newCtx()
	c.Variables = map[string]string{"a": "%b%", "b": "%a%"}

	out := r.ResolveOutcome("%a%", c)
	if !out.Capped || out.Iterations != DefaultMaxIterations {
		t.Errorf("expected cap, got %+v", out)
	}
	if out.Text != "%a%" && out.Text != "%b%" {
		t.Errorf("best-effort result = %q", out.Text)
	}
}

func TestResolve_UnknownTokensKept(t *testing.T) {
	r := NewResolver()
	got := r.Resolve("50% off %unknown% and %capturing_group_1%", newCtx())
	if got != "50% off %unknown% and %capturing_group_1%" {
		t.Errorf("Resolve = %q", got)
	}
}

func TestMessagePass(t *testing.T) {
	c := newCtx()
	c.Message = "héllo world"
	if got := MessagePass("[%message_5%]", c); got != "[héllo]" {
		t.Errorf("truncate = %q", got)
	}
	if got := MessagePass("%message_99%", c); got != "héllo world" {
		t.Errorf("long truncate = %q", got)
	}
}

func TestHistoryPass(t *testing.T) {
	c := newCtx()
	c.History = []store.HistoryEntry{
		{UserMessage: "m3", BotReply: "r3", RuleID: "2"},
		{UserMessage: "m2", BotReply: "r2", RuleID: "1"},
		{UserMessage: "m1", BotReply: "r1", RuleID: "2"},
	}
	tests := []struct {
		tmpl, want string
	}{
		{"%prev_message_2_0%", "m3"},
		{"%prev_message_2_1%", "m1"},
		{"%prev_reply_1_0%", "r2"},
		{"%prev_reply_1,2_2%", "r1"},
		{"%prev_message_all_1%", "m2"},
		{"%prev_message_9_0%", ""},
		{"%prev_message_2_5%", ""},
	}
	for _, tt := range tests {
		if got := HistoryPass(tt.tmpl, c); got != tt.want {
			t.Errorf("HistoryPass(%q) = %q, want %q", tt.tmpl, got, tt.want)
		}
	}
}

func TestDateTimePass(t *testing.T) {
	c := newCtx()
	tests := []struct {
		tmpl, want string
	}{
		{"%date%", "05/03/2024"},
		{"%time%", "14:07:09"},
		{"%hour%:%minute%:%second%", "14:07:09"},
		{"%hour_12% %am_pm%", "2 PM"},
		{"%day_of_week% %month_name% %year%", "Tuesday March 2024"},
		{"%day_of_year%", "65"},
		{"%week_of_year%", "10"},
	}
	for _, tt := range tests {
		if got := DateTimePass(tt.tmpl, c); got != tt.want {
			t.Errorf("DateTimePass(%q) = %q, want %q", tt.tmpl, got, tt.want)
		}
	}
}

func TestDateTimePass_Timezone(t *testing.T) {
	c := newCtx()
	c.Location = time.FixedZone("UTC+10", 10*3600)
	if got := DateTimePass("%hour%", c); got != "00" {
		t.Errorf("hour in UTC+10 = %q, want 00", got)
	}
}

func TestCountdown(t *testing.T) {
	c := newCtx()
	target := fixedNow.Add(2*24*time.Hour + 3*time.Hour + 4*time.Minute + 5*time.Second).Unix()
	tmpl := "%countdown_" + itoa(target) + "% / %countdown_days_" + itoa(target) + "%"
	if got := DateTimePass(tmpl, c); got != "2d 3h 4m 5s / 2" {
		t.Errorf("countdown = %q", got)
	}
	past := fixedNow.Add(-time.Hour).Unix()
	if got := DateTimePass("%countdown_"+itoa(past)+"%", c); got != "0d 0h 0m 0s" {
		t.Errorf("past countdown = %q", got)
	}
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }

func TestContextPass(t *testing.T) {
	c := newCtx()
	c.RuleID = "O3"
	c.TotalMessages = 42
	if got := ContextPass("%first_name%/%last_name%/%gc%/%rule_id%/%reply_count_overall%", c); got != "Alice/Smith/CHAT/O3/42" {
		t.Errorf("ContextPass = %q", got)
	}

	// Without stats the per-session counters stay untouched.
	if got := ContextPass("%received_count%", c); got != "%received_count%" {
		t.Errorf("no-stats counter = %q", got)
	}

	c.IsGroup = true
	c.GroupName = "Team"
	c.Stats = &store.MessageStats{
		IsGroup:         true,
		ReceivedCount:   4,
		ReplyCount:      7,
		TodayReplyCount: 2,
		RuleReplyCounts: map[string]int{"1": 3, "2": 1, "O3": 5},
		LastActiveDate:  "2024-03-05",
	}
	tests := []struct {
		tmpl, want string
	}{
		{"%gc%", "Team"},
		{"%received_count%", "4"},
		{"%reply_count%", "7"},
		{"%reply_count_day%", "2"},
		{"%reply_count_groups%", "7"},
		{"%reply_count_contacts%", "0"},
		{"%reply_count_1,2%", "4"},
		{"%reply_count_o3%", "5"},
		{"%reply_count_9%", "0"},
	}
	for _, tt := range tests {
		if got := ContextPass(tt.tmpl, c); got != tt.want {
			t.Errorf("ContextPass(%q) = %q, want %q", tt.tmpl, got, tt.want)
		}
	}

	c.Stats.LastActiveDate = "2024-03-04"
	if got := ContextPass("%reply_count_day%", c); got != "0" {
		t.Errorf("stale reply_count_day = %q, want 0", got)
	}
}

func TestRandomPass(t *testing.T) {
	c := newCtx()
	tests := []struct {
		tmpl string
		re   string
	}{
		{"%rndm_num_5_7%", `^[5-7]$`},
		{"%rndm_num_9_1%", `^[1-9]$`},
		{"%rndm_abc_lower_6%", `^[a-z]{6}$`},
		{"%rndm_abc_upper_4%", `^[A-Z]{4}$`},
		{"%rndm_abc_8%", `^[a-zA-Z]{8}$`},
		{"%rndm_abcnum_lower_5%", `^[a-z0-9]{5}$`},
		{"%rndm_abcnum_upper_5%", `^[A-Z0-9]{5}$`},
		{"%rndm_abcnum_5%", `^[a-zA-Z0-9]{5}$`},
		{"%rndm_ascii_10%", `^[!-~]{10}$`},
		{"%rndm_grawlix_3%", `^[@#$%&!*]{3}$`},
	}
	for _, tt := range tests {
		got := RandomPass(tt.tmpl, c)
		if !regexp.MustCompile(tt.re).MatchString(got) {
			t.Errorf("RandomPass(%q) = %q, want match %s", tt.tmpl, got, tt.re)
		}
	}
}

func TestPickCustom(t *testing.T) {
	c := newCtx()
	got := RandomPass("%rndm_custom_2_red,green,blue%", c)
	parts := strings.Split(got, ", ")
	if len(parts) != 2 || parts[0] == parts[1] {
		t.Fatalf("custom pick = %q, want two distinct items", got)
	}
	for _, p := range parts {
		if p != "red" && p != "green" && p != "blue" {
			t.Errorf("unexpected item %q", p)
		}
	}
	if got := PickCustom(c, []string{"a", "b"}, 5); len(strings.Split(got, ", ")) != 2 {
		t.Errorf("n larger than pool = %q", got)
	}
}

func TestCapturePass(t *testing.T) {
	c := newCtx()
	res := rules.Match(&rules.Base{Type: rules.TypeExpert, Keywords: `^order (\d+)(x)?$`}, rules.Input{Message: "order 77"})
	c.Captures = res.Captures

	if got := CapturePass("Got it: %capturing_group_1%", c); got != "Got it: 77" {
		t.Errorf("CapturePass = %q", got)
	}
	if got := CapturePass("%capturing_group_2%|%capturing_group_9%", c); got != "%capturing_group_2%|%capturing_group_9%" {
		t.Errorf("undefined groups must be kept, got %q", got)
	}
}

func TestResolve_PatternRuleLeavesCaptureToken(t *testing.T) {
	res := rules.Match(&rules.Base{Type: rules.TypePattern, Keywords: "order *"}, rules.Input{Message: "order 5"})
	c := newCtx()
	c.Captures = res.Captures
	if got := NewResolver().Resolve("Got it: %capturing_group_1%", c); got != "Got it: %capturing_group_1%" {
		t.Errorf("Resolve = %q", got)
	}
}

func TestProcessingTimePass(t *testing.T) {
	c := newCtx()
	c.ReceivedAt = fixedNow.Add(-250 * time.Millisecond)
	if got := ProcessingTimePass("%processing_time%ms", c); got != "250ms" {
		t.Errorf("ProcessingTimePass = %q", got)
	}
}
