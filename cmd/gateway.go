package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/autoreply/internal/bus"
	"github.com/nextlevelbuilder/autoreply/internal/config"
	"github.com/nextlevelbuilder/autoreply/internal/cron"
	"github.com/nextlevelbuilder/autoreply/internal/engine"
	"github.com/nextlevelbuilder/autoreply/internal/gateway"
	"github.com/nextlevelbuilder/autoreply/internal/scheduler"
	"github.com/nextlevelbuilder/autoreply/internal/tracing"
	"github.com/nextlevelbuilder/autoreply/pkg/protocol"
)

func engineOptions(b config.BotConfig) engine.Options {
	return engine.Options{
		Owners:      b.Owners,
		AdminMarker: b.AdminMarker,
		Location:    b.Location(),
	}
}

func runGateway() {
	setupLogging()

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if _, statErr := os.Stat(cfgPath); os.IsNotExist(statErr) {
		slog.Info("no config file, using defaults", "path", cfgPath, "hint", "run ./autoreply onboard")
	}

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, cfg.Telemetry, Version)
	if err != nil {
		slog.Warn("tracing disabled", "error", err)
		shutdownTracing = func(context.Context) error { return nil }
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		shutdownTracing(flushCtx)
	}()

	stores, err := openStores(ctx, cfg)
	if err != nil {
		slog.Error("failed to open stores", "error", err)
		os.Exit(1)
	}
	defer stores.Close()

	msgBus := bus.New()
	sched := scheduler.New(msgBus, msgBus)

	bot := cfg.BotSnapshot()
	eng := engine.New(engine.Config{
		Stores:       stores,
		Events:       msgBus,
		Scheduler:    sched,
		Options:      engineOptions(bot),
		HistoryLimit: bot.HistoryLimit,
	})
	if err := eng.Load(ctx); err != nil {
		slog.Error("failed to load engine state", "error", err)
		os.Exit(1)
	}

	jobs, err := cron.New(bot.Location(),
		cron.Job{Name: "stats_rollover", Expr: cfg.Cron.StatsRollover, Run: func(ctx context.Context) error {
			rolled, err := eng.RolloverDaily(ctx)
			if rolled {
				slog.Info("stats.rolled_over")
			}
			return err
		}},
		cron.Job{Name: "cooldown_prune", Expr: cfg.Cron.CooldownPrune, Run: func(context.Context) error {
			if n := eng.PruneCooldowns(); n > 0 {
				slog.Debug("cooldown.pruned", "count", n)
			}
			return nil
		}},
	)
	if err != nil {
		slog.Error("invalid cron config", "error", err)
		os.Exit(1)
	}

	// Hot reload: owners, admin marker and timezone apply without a restart.
	watcher := config.NewWatcher(cfgPath, cfg)
	watcher.OnChange(func(c *config.Config) {
		eng.UpdateOptions(engineOptions(c.BotSnapshot()))
		msgBus.Broadcast(bus.Event{
			Name:    protocol.EventCacheInvalidate,
			Payload: bus.CacheInvalidatePayload{Kind: bus.CacheKindConfig},
		})
	})

	server := gateway.NewServer(cfg, msgBus, eng, stores)
	dispatcher := scheduler.NewDispatcher(msgBus, scheduler.NewDeliverer(cfg.Delivery))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Start(gctx) })
	g.Go(func() error { return sched.Run(gctx) })
	g.Go(func() error { return dispatcher.Run(gctx) })
	g.Go(func() error { return jobs.Run(gctx) })
	g.Go(func() error {
		if err := watcher.Run(gctx); err != nil {
			slog.Warn("config watcher unavailable", "error", err)
		}
		return nil
	})

	mode := "standalone"
	if cfg.IsManagedMode() {
		mode = "managed"
	}
	slog.Info("autoreply gateway starting",
		"version", Version,
		"protocol", protocol.ProtocolVersion,
		"mode", mode,
		"automation", eng.AutomationEnabled(),
		"delivery", deliveryMode(cfg.Delivery),
	)

	if err := g.Wait(); err != nil {
		slog.Error("gateway error", "error", err)
		os.Exit(1)
	}
	slog.Info("gateway stopped")
}

func deliveryMode(d config.DeliveryConfig) string {
	if d.CallbackURL == "" {
		return "bus"
	}
	return fmt.Sprintf("callback (%.0f/s)", d.RatePerSecond)
}
