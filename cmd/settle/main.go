package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"hookGuard/internal/chain"
	"hookGuard/internal/config"
	"hookGuard/internal/replay"
)

func main() {
	root := &cobra.Command{
		Use:          "settle",
		Short:        "Hook-extended swap settlement engine",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	replayCmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay swap requests from a JSONL file",
		RunE:  runReplay,
	}

	replayCmd.Flags().String("in", "", "input swap requests JSONL")
	replayCmd.Flags().String("out", "./data/outcomes.jsonl", "output outcomes JSONL")
	replayCmd.Flags().String("stats-out", "./data/pool_stats.jsonl", "output pool stats JSONL (empty disables)")
	replayCmd.Flags().String("pg-dsn", "", "optional Postgres DSN")
	replayCmd.Flags().Int("workers", 4, "pools replayed concurrently")
	replayCmd.Flags().Int("batch-size", 500, "outcomes per storage write")
	replayCmd.Flags().StringSlice("only-pools", nil, "restrict replay to these pool names (comma-separated)")
	replayCmd.Flags().String("snapshot", "./data/ledger.json", "ledger snapshot path")
	replayCmd.Flags().Bool("snapshot-enabled", false, "write a ledger snapshot after the replay")
	addEngineFlags(replayCmd)

	root.AddCommand(replayCmd)

	swapCmd := &cobra.Command{
		Use:   "swap",
		Short: "Execute a single swap and print the outcome",
		RunE:  runSwap,
	}

	swapCmd.Flags().String("pool", "", "pool name")
	swapCmd.Flags().String("party", "", "party address")
	swapCmd.Flags().String("amount", "", "amount specified (negative for exact input)")
	swapCmd.Flags().Bool("zero-for-one", true, "swap currency0 for currency1")
	swapCmd.Flags().String("price-limit", "", "price limit (Q96), empty disables")
	addEngineFlags(swapCmd)

	root.AddCommand(swapCmd)

	balancesCmd := &cobra.Command{
		Use:   "balances",
		Short: "Print ledger balances",
		RunE:  runBalances,
	}

	balancesCmd.Flags().String("snapshot", "./data/ledger.json", "ledger snapshot path")
	balancesCmd.Flags().Bool("from-snapshot", false, "read balances from the snapshot instead of the configured state")
	addEngineFlags(balancesCmd)

	root.AddCommand(balancesCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addEngineFlags(cmd *cobra.Command) {
	cmd.Flags().String("router", "safe", "default router (safe, unchecked)")
	cmd.Flags().Uint32("max-extension-take-bps", 0, "extension allowance for the safe router, in basis points")
	cmd.Flags().String("custody", "", "custody account address")
	cmd.Flags().String("rpc", "", "RPC URL for pools seeded from a source pool")
	cmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	cmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
}

func loadConfig(cmd *cobra.Command) (config.Config, *zap.Logger, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return config.Config{}, nil, err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

// newEnvironment connects to the chain only when a pool needs live reserves.
func newEnvironment(ctx context.Context, cfg config.Config, logger *zap.Logger) (*replay.Environment, func(), error) {
	cleanup := func() {}

	var source replay.ReserveSource
	if needsChain(cfg) {
		if cfg.RPCURL == "" {
			return nil, cleanup, fmt.Errorf("rpc url is required for source pools")
		}
		chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
		if err != nil {
			return nil, cleanup, fmt.Errorf("connect rpc: %w", err)
		}
		cleanup = chainClient.Close

		head, err := chainClient.Head(ctx)
		if err != nil {
			cleanup()
			return nil, func() {}, fmt.Errorf("read chain head: %w", err)
		}
		logger.Info("reserves pinned",
			zap.String("chain_id", head.ChainID.String()),
			zap.Uint64("block", head.Number),
			zap.String("hash", head.Hash.Hex()),
			zap.Uint64("time", head.Time),
		)

		reader := chain.NewReserveReader(chainClient, cfg.MaxRetries, cfg.RetryBackoff, logger.Named("chain"))
		source = reader.AtBlock(head.Block())
	}

	env, err := replay.NewEnvironment(ctx, cfg, source, logger)
	if err != nil {
		cleanup()
		return nil, func() {}, err
	}
	return env, cleanup, nil
}

func needsChain(cfg config.Config) bool {
	for _, p := range cfg.Pools {
		if p.SourcePool != "" {
			return true
		}
	}
	return false
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
