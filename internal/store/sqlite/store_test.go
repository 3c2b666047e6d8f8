package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/nextlevelbuilder/autoreply/internal/rules"
	"github.com/nextlevelbuilder/autoreply/internal/store"
)

func openTest(t *testing.T) *store.Stores {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "autoreply.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func ruleNames(t *testing.T, s *store.Stores, f rules.Flavor) string {
	t.Helper()
	list, err := s.Rules.List(context.Background(), f)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	out := ""
	for i, r := range list {
		if r.Number != i+1 {
			t.Errorf("rule %q has number %d, want %d", r.Name, r.Number, i+1)
		}
		out += r.Name
	}
	return out
}

func TestRuleStore_CreateInsertsAndDeleteRenumbers(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)

	for _, name := range []string{"a", "b", "c"} {
		if err := s.Rules.Create(ctx, &rules.Record{Flavor: rules.FlavorNormal, Name: name, Type: rules.TypeExact}); err != nil {
			t.Fatalf("Create %s: %v", name, err)
		}
	}
	rec := &rules.Record{Flavor: rules.FlavorNormal, Number: 2, Name: "x", Type: rules.TypeExact}
	if err := s.Rules.Create(ctx, rec); err != nil {
		t.Fatalf("Create at 2: %v", err)
	}
	if rec.Number != 2 {
		t.Errorf("Number = %d, want 2", rec.Number)
	}
	if got := ruleNames(t, s, rules.FlavorNormal); got != "axbc" {
		t.Errorf("after insert = %q, want %q", got, "axbc")
	}

	if err := s.Rules.Delete(ctx, rules.FlavorNormal, 1); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got := ruleNames(t, s, rules.FlavorNormal); got != "xbc" {
		t.Errorf("after delete = %q, want %q", got, "xbc")
	}
	if err := s.Rules.Delete(ctx, rules.FlavorNormal, 9); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Delete missing = %v, want ErrNotFound", err)
	}

	// Flavors are numbered independently.
	if err := s.Rules.Create(ctx, &rules.Record{Flavor: rules.FlavorOwner, Name: "o"}); err != nil {
		t.Fatalf("Create owner: %v", err)
	}
	if got, err := s.Rules.Get(ctx, rules.FlavorOwner, 1); err != nil || got.Name != "o" {
		t.Errorf("Get owner 1 = %+v, %v", got, err)
	}
}

func TestRuleStore_UpdateKeepsLists(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)

	rec := &rules.Record{
		Flavor:       rules.FlavorAutomation,
		Name:         "cmd",
		Type:         rules.TypeExpert,
		Keywords:     `^/ping$`,
		RepliesMode:  rules.RepliesAll,
		Template:     "pong",
		Access:       rules.AccessDefined,
		DefinedUsers: []string{"alice", "bob*"},
	}
	if err := s.Rules.Create(ctx, rec); err != nil {
		t.Fatalf("Create: %v", err)
	}
	rec.Template = "pong<#>PONG"
	rec.CooldownSeconds = 30
	if err := s.Rules.Update(ctx, rec); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, err := s.Rules.Get(ctx, rules.FlavorAutomation, 1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Template != "pong<#>PONG" || got.CooldownSeconds != 30 {
		t.Errorf("Get = %+v", got)
	}
	if len(got.DefinedUsers) != 2 || got.DefinedUsers[1] != "bob*" {
		t.Errorf("DefinedUsers = %v", got.DefinedUsers)
	}
	if got.TargetUsers != nil {
		t.Errorf("TargetUsers = %v, want nil", got.TargetUsers)
	}

	missing := *rec
	missing.Number = 5
	if err := s.Rules.Update(ctx, &missing); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Update missing = %v, want ErrNotFound", err)
	}
}

func TestSettingsAndOverrides(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)

	if _, err := s.Settings.GetSettings(ctx); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("GetSettings on empty db = %v, want ErrNotFound", err)
	}
	want := store.DefaultSettings()
	want.PreventRepeating = store.PreventRepeatingSettings{Enabled: true, CooldownSeconds: 60}
	if err := s.Settings.SaveSettings(ctx, &want); err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}
	got, err := s.Settings.GetSettings(ctx)
	if err != nil {
		t.Fatalf("GetSettings: %v", err)
	}
	if *got != want {
		t.Errorf("GetSettings = %+v, want %+v", *got, want)
	}

	ignored := []store.IgnoredUser{{Name: "bob", Context: "DM"}, {Name: "*", Context: "Team"}, {Name: "bob", Context: "DM"}}
	if err := s.Overrides.SaveIgnored(ctx, ignored); err != nil {
		t.Fatalf("SaveIgnored: %v", err)
	}
	list, err := s.Overrides.ListIgnored(ctx)
	if err != nil {
		t.Fatalf("ListIgnored: %v", err)
	}
	if len(list) != 2 || list[0].Name != "bob" || list[1].Context != "Team" {
		t.Errorf("ListIgnored = %+v", list)
	}

	if err := s.Overrides.SaveSpecific(ctx, []string{"vip*", "alice"}); err != nil {
		t.Fatalf("SaveSpecific: %v", err)
	}
	if err := s.Overrides.SaveSpecific(ctx, []string{"alice"}); err != nil {
		t.Fatalf("SaveSpecific: %v", err)
	}
	spec, err := s.Overrides.ListSpecific(ctx)
	if err != nil || len(spec) != 1 || spec[0] != "alice" {
		t.Errorf("ListSpecific = %v, %v", spec, err)
	}
}

func TestVariables(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)

	s.Variables.SetVariable(ctx, store.Variable{Name: "shop", Value: "Acme"})
	s.Variables.SetVariable(ctx, store.Variable{Name: "shop", Value: "Acme Ltd"})
	s.Variables.SetVariable(ctx, store.Variable{Name: "hours", Value: "9-5"})

	vars, err := s.Variables.ListVariables(ctx)
	if err != nil {
		t.Fatalf("ListVariables: %v", err)
	}
	if len(vars) != 2 || vars[0].Name != "hours" || vars[1].Value != "Acme Ltd" {
		t.Errorf("ListVariables = %+v", vars)
	}
	if err := s.Variables.DeleteVariable(ctx, "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("DeleteVariable missing = %v, want ErrNotFound", err)
	}
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)

	if _, err := s.Stats.GetMessageStats(ctx, "s1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("GetMessageStats = %v, want ErrNotFound", err)
	}
	st := &store.MessageStats{
		SessionID:       "s1",
		SenderName:      "alice",
		IsGroup:         true,
		GroupName:       "Team",
		ReceivedCount:   3,
		ReplyCount:      2,
		TodayReplyCount: 1,
		RuleReplyCounts: map[string]int{"1": 2, "O3": 1},
		LastActiveDate:  "2024-03-05",
	}
	if err := s.Stats.SaveMessageStats(ctx, st); err != nil {
		t.Fatalf("SaveMessageStats: %v", err)
	}
	got, err := s.Stats.GetMessageStats(ctx, "s1")
	if err != nil {
		t.Fatalf("GetMessageStats: %v", err)
	}
	if !got.IsGroup || got.RuleReplyCounts["O3"] != 1 || got.LastActiveDate != "2024-03-05" {
		t.Errorf("GetMessageStats = %+v", got)
	}

	g := &store.GlobalStats{TotalUsers: []string{"alice", "bob"}, TodayUsers: []string{"bob"}, TotalMsgs: 9, TodayMsgs: 2, LastResetDate: "2024-03-05"}
	if err := s.Stats.SaveGlobalStats(ctx, g); err != nil {
		t.Fatalf("SaveGlobalStats: %v", err)
	}
	gg, err := s.Stats.GetGlobalStats(ctx)
	if err != nil {
		t.Fatalf("GetGlobalStats: %v", err)
	}
	if len(gg.TotalUsers) != 2 || gg.TodayUsers[0] != "bob" || gg.TotalMsgs != 9 {
		t.Errorf("GetGlobalStats = %+v", gg)
	}

	list, err := s.Stats.ListMessageStats(ctx, 10, 0)
	if err != nil || len(list) != 1 {
		t.Errorf("ListMessageStats = %v, %v", list, err)
	}
}

func TestHistoryKeepsNewest(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	base := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		e := store.HistoryEntry{
			ID:          fmt.Sprintf("id-%d", i),
			SessionID:   "s1",
			SenderName:  "alice",
			UserMessage: fmt.Sprintf("m%d", i),
			BotReply:    "ok",
			RuleID:      "1",
			Timestamp:   base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.History.AppendHistory(ctx, e, 3); err != nil {
			t.Fatalf("AppendHistory: %v", err)
		}
	}
	list, err := s.History.ListHistory(ctx, 10)
	if err != nil {
		t.Fatalf("ListHistory: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("len = %d, want 3", len(list))
	}
	if list[0].UserMessage != "m4" || list[2].UserMessage != "m2" {
		t.Errorf("order = %q..%q, want m4..m2", list[0].UserMessage, list[2].UserMessage)
	}
	if !list[0].Timestamp.Equal(base.Add(4 * time.Minute)) {
		t.Errorf("Timestamp = %v", list[0].Timestamp)
	}
}

func TestWelcome(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)

	s.Welcome.AddWelcomeLog(ctx, "alice-1-DM")
	s.Welcome.AddWelcomeLog(ctx, "alice-1-DM")
	s.Welcome.AddWelcomedUser(ctx, "bob")
	if err := s.Welcome.SaveUser(ctx, "bob", time.Now()); err != nil {
		t.Fatalf("SaveUser: %v", err)
	}
	if err := s.Welcome.SaveUser(ctx, "bob", time.Now()); err != nil {
		t.Fatalf("SaveUser twice: %v", err)
	}

	logs, _ := s.Welcome.ListWelcomeLogs(ctx)
	if len(logs) != 1 || logs[0] != "alice-1-DM" {
		t.Errorf("ListWelcomeLogs = %v", logs)
	}
	users, _ := s.Welcome.ListWelcomedUsers(ctx)
	if len(users) != 1 || users[0] != "bob" {
		t.Errorf("ListWelcomedUsers = %v", users)
	}
}
