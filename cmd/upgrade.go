package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/autoreply/internal/config"
	"github.com/nextlevelbuilder/autoreply/internal/store/pg"
	"github.com/nextlevelbuilder/autoreply/internal/upgrade"
	"github.com/nextlevelbuilder/autoreply/pkg/protocol"
)

// ErrUpgradeFailed is returned when the schema cannot be brought up to date.
var ErrUpgradeFailed = errors.New("upgrade cannot proceed")

func upgradeCmd() *cobra.Command {
	var dryRun, status bool

	cmd := &cobra.Command{
		Use:   "upgrade",
		Short: "Apply pending schema migrations and data hooks",
		Long:  "Brings a managed (Postgres) database up to the schema this binary requires, then runs pending data hooks. Safe to re-run.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpgrade(cmd.Context(), dryRun || status, status)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the plan without applying it")
	cmd.Flags().BoolVar(&status, "status", false, "print schema status only")
	return cmd
}

func runUpgrade(ctx context.Context, planOnly, statusOnly bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	fmt.Printf("  %-16s %s (protocol %d)\n", "App version:", Version, protocol.ProtocolVersion)
	if !cfg.IsManagedMode() {
		fmt.Printf("  %-16s standalone (sqlite: %s), schema is created on open\n", "Mode:", sqlitePath(cfg))
		return nil
	}

	dsn := cfg.Database.PostgresDSN
	db, err := pg.OpenDB(dsn)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer db.Close()

	s, err := upgrade.CheckSchema(ctx, db)
	if err != nil {
		return err
	}
	fmt.Printf("  %-16s v%d (requires v%d)\n", "Schema:", s.Current, s.Required)
	fmt.Printf("  %-16s %s\n", "Status:", s.State())

	pending, hookErr := upgrade.PendingHooks(ctx, db)
	if hookErr != nil {
		slog.Debug("upgrade.pending_hooks", "error", hookErr)
	}
	if len(pending) > 0 {
		fmt.Printf("  %-16s %d\n", "Pending hooks:", len(pending))
		for _, name := range pending {
			fmt.Printf("    - %s\n", name)
		}
	}

	switch s.State() {
	case upgrade.StateDirty, upgrade.StateAhead:
		fmt.Println()
		fmt.Print(s.Advice())
		if statusOnly {
			return nil
		}
		return ErrUpgradeFailed
	}
	if planOnly {
		if s.NeedsMigration() && !statusOnly {
			fmt.Printf("\n  Would migrate v%d -> v%d and run pending hooks.\n", s.Current, s.Required)
		}
		return nil
	}

	if err := applyUpgrade(ctx, dsn, s); err != nil {
		return err
	}
	fmt.Println("\n  Upgrade complete.")
	return nil
}

// applyUpgrade runs `migrate up` when needed, then the pending data hooks.
func applyUpgrade(ctx context.Context, dsn string, s *upgrade.Status) error {
	if s.NeedsMigration() {
		m, err := newMigrator(dsn)
		if err != nil {
			return fmt.Errorf("create migrator: %w", err)
		}
		defer m.Close()

		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migrate up: %w", err)
		}
		v, _, _ := m.Version()
		slog.Info("upgrade.migrated", "from", s.Current, "to", v)
	}

	db, err := pg.OpenDB(dsn)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer db.Close()

	count, err := upgrade.RunPendingHooks(ctx, db)
	if err != nil {
		return fmt.Errorf("data hooks: %w", err)
	}
	slog.Info("upgrade.hooks_applied", "count", count)
	return nil
}

// checkSchemaOrAutoUpgrade gates gateway startup on a compatible schema. With
// AUTOREPLY_AUTO_UPGRADE=true an outdated schema is upgraded in place.
func checkSchemaOrAutoUpgrade(ctx context.Context, dsn string) error {
	db, err := pg.OpenDB(dsn)
	if err != nil {
		return fmt.Errorf("schema check: %w", err)
	}
	s, err := upgrade.CheckSchema(ctx, db)
	db.Close()
	if err != nil {
		return fmt.Errorf("schema check: %w", err)
	}

	if s.State() == upgrade.StateCurrent {
		slog.Info("upgrade.schema_ok", "version", s.Current)
		return nil
	}
	if !s.NeedsMigration() || os.Getenv("AUTOREPLY_AUTO_UPGRADE") != "true" {
		return fmt.Errorf("%w\n%s", s.Err(), s.Advice())
	}

	slog.Info("upgrade.auto", "from", s.Current, "to", s.Required)
	return applyUpgrade(ctx, dsn, s)
}
