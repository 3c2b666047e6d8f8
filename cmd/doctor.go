package cmd

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/adhocore/gronx"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/autoreply/internal/config"
	"github.com/nextlevelbuilder/autoreply/internal/rules"
	"github.com/nextlevelbuilder/autoreply/internal/store"
	"github.com/nextlevelbuilder/autoreply/internal/store/pg"
	"github.com/nextlevelbuilder/autoreply/internal/upgrade"
	"github.com/nextlevelbuilder/autoreply/pkg/protocol"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, storage and rule health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("autoreply doctor")
	fmt.Printf("  Version:  %s (protocol %d)\n", Version, protocol.ProtocolVersion)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND, using defaults)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	fmt.Println()
	fmt.Println("  Gateway:")
	fmt.Printf("    %-12s %s:%d\n", "Listen:", cfg.Gateway.Host, cfg.Gateway.Port)
	if cfg.Gateway.Token == "" {
		fmt.Printf("    %-12s NOT SET (admin API and webhook are open)\n", "Token:")
	} else {
		fmt.Printf("    %-12s set\n", "Token:")
	}

	fmt.Println()
	fmt.Println("  Bot:")
	bot := cfg.BotSnapshot()
	loc := bot.Location()
	if bot.Timezone != "" && loc.String() != bot.Timezone {
		fmt.Printf("    %-12s %q unknown, falling back to UTC\n", "Timezone:", bot.Timezone)
	} else {
		fmt.Printf("    %-12s %s (now %s)\n", "Timezone:", loc, time.Now().In(loc).Format("2006-01-02 15:04"))
	}
	fmt.Printf("    %-12s %v\n", "Owners:", []string(bot.Owners))
	fmt.Printf("    %-12s %q\n", "Admin mark:", bot.AdminMarker)

	fmt.Println()
	fmt.Println("  Cron:")
	checkCron("Rollover:", cfg.Cron.StatsRollover)
	checkCron("Prune:", cfg.Cron.CooldownPrune)

	fmt.Println()
	fmt.Println("  Delivery:")
	if cfg.Delivery.CallbackURL == "" {
		fmt.Printf("    %-12s bus only (dashboard feed)\n", "Mode:")
	} else {
		fmt.Printf("    %-12s %s\n", "Callback:", cfg.Delivery.CallbackURL)
	}

	fmt.Println()
	fmt.Println("  Database:")
	if cfg.IsManagedMode() {
		fmt.Printf("    %-12s managed\n", "Mode:")
		checkManagedSchema(cfg.Database.PostgresDSN)
	} else {
		fmt.Printf("    %-12s standalone (%s)\n", "Mode:", sqlitePath(cfg))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	stores, err := openStores(ctx, cfg)
	if err != nil {
		fmt.Printf("    %-12s OPEN FAILED (%s)\n", "Status:", err)
	} else {
		defer stores.Close()
		fmt.Printf("    %-12s OK\n", "Status:")
		fmt.Println()
		fmt.Println("  Rules:")
		checkRules(ctx, stores)
	}

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

func checkCron(label, expr string) {
	switch {
	case expr == "":
		fmt.Printf("    %-12s disabled\n", label)
	case !gronx.New().IsValid(expr):
		fmt.Printf("    %-12s %q INVALID\n", label, expr)
	default:
		fmt.Printf("    %-12s %s\n", label, expr)
	}
}

func checkManagedSchema(dsn string) {
	db, err := pg.OpenDB(dsn)
	if err != nil {
		fmt.Printf("    %-12s CONNECT FAILED (%s)\n", "Status:", err)
		return
	}
	defer db.Close()

	s, err := upgrade.CheckSchema(context.Background(), db)
	switch {
	case err != nil:
		fmt.Printf("    %-12s CHECK FAILED (%s)\n", "Schema:", err)
	case s.State() == upgrade.StateCurrent:
		fmt.Printf("    %-12s v%d (up to date)\n", "Schema:", s.Current)
	default:
		fmt.Printf("    %-12s v%d %s (requires v%d, run: autoreply upgrade --status)\n", "Schema:", s.Current, s.State(), s.Required)
	}

	if pending, err := upgrade.PendingHooks(context.Background(), db); err == nil {
		if len(pending) > 0 {
			fmt.Printf("    %-12s %d pending\n", "Data hooks:", len(pending))
		} else {
			fmt.Printf("    %-12s all applied\n", "Data hooks:")
		}
	}
}

// checkRules counts rules per tier and flags EXPERT keywords that do not compile.
func checkRules(ctx context.Context, stores *store.Stores) {
	for _, f := range []rules.Flavor{rules.FlavorAutomation, rules.FlavorOwner, rules.FlavorNormal} {
		list, err := stores.Rules.List(ctx, f)
		if err != nil {
			fmt.Printf("    %-12s LIST FAILED (%s)\n", string(f)+":", err)
			continue
		}
		broken := 0
		for _, r := range list {
			if r.Type != rules.TypeExpert {
				continue
			}
			for _, kw := range rules.SplitKeywords(r.Keywords) {
				if _, err := rules.CompilePattern(kw); err != nil {
					fmt.Printf("    %-12s %s: %s\n", "Bad keyword:", rules.RuleID(f, r.Number), err)
					broken++
				}
			}
		}
		fmt.Printf("    %-12s %d rule(s)", string(f)+":", len(list))
		if broken > 0 {
			fmt.Printf(", %d bad keyword(s)", broken)
		}
		fmt.Println()
	}
}
