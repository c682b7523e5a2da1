package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"hookGuard/internal/replay"
	"hookGuard/internal/storage"
	"hookGuard/internal/storage/postgres"
)

func runReplay(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Requests == "" {
		return fmt.Errorf("input path is required")
	}
	if len(cfg.Pools) == 0 {
		return fmt.Errorf("at least one pool is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	requests, err := storage.ReadRequests(cfg.Requests)
	if err != nil {
		return err
	}

	env, cleanup, err := newEnvironment(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	sinks := storage.Multi{storage.NewJsonlStorage(cfg.Out, cfg.StatsOut)}
	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
		if err := store.Migrate(ctx); err != nil {
			return err
		}
		sinks = append(sinks, postgres.NewSink(ctx, store))
	}

	runner := replay.NewRunner(replay.RunConfig{
		Workers:         cfg.Workers,
		BatchSize:       cfg.BatchSize,
		OnlyPools:       cfg.OnlyPools,
		SnapshotPath:    cfg.Snapshot,
		SnapshotEnabled: cfg.SnapshotEnabled,
	}, env, sinks, logger)

	logger.Info("replay start",
		zap.String("in", cfg.Requests),
		zap.Int("requests", len(requests)),
		zap.Int("pools", len(env.Pools)),
		zap.String("router", env.DefaultRouter),
		zap.Uint32("max_extension_take_bps", cfg.MaxExtensionTakeBps),
		zap.Int("workers", cfg.Workers),
		zap.Int("batch_size", cfg.BatchSize),
		zap.String("out", cfg.Out),
		zap.Bool("postgres", cfg.PGDSN != ""),
		zap.Bool("snapshot_enabled", cfg.SnapshotEnabled),
	)

	summary, err := runner.Run(ctx, requests)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "requests=%d settled=%d rejected=%d overreach=%d\n",
		summary.Requests, summary.Settled, summary.Rejected, summary.Overreach)
	return nil
}
