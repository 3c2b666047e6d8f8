package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/autoreply/internal/config"
	"github.com/nextlevelbuilder/autoreply/internal/store/pg"
	"github.com/nextlevelbuilder/autoreply/internal/upgrade"
)

var migrationsDir string

// resolveMigrationsDir picks --migrations-dir, AUTOREPLY_MIGRATIONS_DIR,
// ./migrations, or the migrations dir next to the executable, in that order.
func resolveMigrationsDir() string {
	if migrationsDir != "" {
		return migrationsDir
	}
	if v := os.Getenv("AUTOREPLY_MIGRATIONS_DIR"); v != "" {
		return v
	}
	if st, err := os.Stat("migrations"); err == nil && st.IsDir() {
		return "migrations"
	}
	if exe, err := os.Executable(); err == nil {
		return filepath.Join(filepath.Dir(exe), "migrations")
	}
	return "migrations"
}

func newMigrator(dsn string) (*migrate.Migrate, error) {
	m, err := migrate.New("file://"+resolveMigrationsDir(), dsn)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return m, nil
}

// migrateAction is one `autoreply migrate` subcommand body.
type migrateAction func(ctx context.Context, m *migrate.Migrate, dsn string, args []string) error

// runMigrateAction loads the DSN (env only, never config.json), opens a
// migrator and runs fn.
func runMigrateAction(cmd *cobra.Command, args []string, fn migrateAction) error {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Database.PostgresDSN == "" {
		return errors.New("AUTOREPLY_POSTGRES_DSN is not set")
	}
	m, err := newMigrator(cfg.Database.PostgresDSN)
	if err != nil {
		return err
	}
	defer m.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return fn(ctx, m, cfg.Database.PostgresDSN, args)
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the Postgres schema (managed mode)",
	}
	cmd.PersistentFlags().StringVar(&migrationsDir, "migrations-dir", "", "migrations directory (default ./migrations)")

	var steps int
	var yes bool

	subs := []struct {
		use, short string
		nargs      int
		run        migrateAction
		flags      func(c *cobra.Command)
	}{
		{use: "up", short: "Apply pending migrations, then data hooks", run: migrateUp},
		{
			use: "down", short: "Roll back migrations (default 1 step)",
			run: func(_ context.Context, m *migrate.Migrate, _ string, _ []string) error {
				if steps <= 0 {
					steps = 1
				}
				return logVersion(m, "migrate.down", ignoreNoChange(m.Steps(-steps)))
			},
			flags: func(c *cobra.Command) { c.Flags().IntVarP(&steps, "steps", "n", 1, "steps to roll back") },
		},
		{
			use: "version", short: "Print the current schema version",
			run: func(_ context.Context, m *migrate.Migrate, _ string, _ []string) error {
				v, dirty, err := m.Version()
				if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
					return fmt.Errorf("version: %w", err)
				}
				fmt.Printf("version: %d, dirty: %v (binary requires %d)\n", v, dirty, upgrade.RequiredSchemaVersion)
				return nil
			},
		},
		{
			use: "force <version>", short: "Set the recorded version without migrating", nargs: 1,
			run: func(_ context.Context, m *migrate.Migrate, _ string, args []string) error {
				v, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid version %q: %w", args[0], err)
				}
				return logVersion(m, "migrate.force", m.Force(v))
			},
		},
		{
			use: "goto <version>", short: "Migrate up or down to a version", nargs: 1,
			run: func(_ context.Context, m *migrate.Migrate, _ string, args []string) error {
				v, err := strconv.ParseUint(args[0], 10, 32)
				if err != nil {
					return fmt.Errorf("invalid version %q: %w", args[0], err)
				}
				return logVersion(m, "migrate.goto", ignoreNoChange(m.Migrate(uint(v))))
			},
		},
		{
			use: "drop", short: "Drop every table (irreversible)",
			run: func(_ context.Context, m *migrate.Migrate, _ string, _ []string) error {
				if !yes {
					return errors.New("refusing to drop without --yes")
				}
				if err := m.Drop(); err != nil {
					return fmt.Errorf("drop: %w", err)
				}
				slog.Warn("migrate.dropped")
				return nil
			},
			flags: func(c *cobra.Command) { c.Flags().BoolVar(&yes, "yes", false, "confirm dropping every table") },
		},
	}

	for _, sub := range subs {
		run := sub.run
		c := &cobra.Command{
			Use:   sub.use,
			Short: sub.short,
			Args:  cobra.ExactArgs(sub.nargs),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runMigrateAction(cmd, args, run)
			},
		}
		if sub.flags != nil {
			sub.flags(c)
		}
		cmd.AddCommand(c)
	}
	return cmd
}

// migrateUp applies SQL migrations, then runs data hooks. Hook failures are
// logged, not returned: `autoreply upgrade` retries them.
func migrateUp(ctx context.Context, m *migrate.Migrate, dsn string, _ []string) error {
	if err := logVersion(m, "migrate.up", ignoreNoChange(m.Up())); err != nil {
		return err
	}
	db, err := pg.OpenDB(dsn)
	if err != nil {
		slog.Warn("migrate.hooks_skipped", "error", err)
		return nil
	}
	defer db.Close()

	count, err := upgrade.RunPendingHooks(ctx, db)
	if err != nil {
		slog.Warn("migrate.hooks_failed", "applied", count, "error", err)
		return nil
	}
	slog.Info("migrate.hooks_applied", "count", count)
	return nil
}

func ignoreNoChange(err error) error {
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}

func logVersion(m *migrate.Migrate, event string, err error) error {
	if err != nil {
		return fmt.Errorf("%s: %w", event, err)
	}
	v, dirty, _ := m.Version()
	slog.Info(event, "version", v, "dirty", dirty)
	return nil
}
