package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"hookGuard/internal/ledger"
)

func runBalances(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	fromSnapshot, _ := cmd.Flags().GetBool("from-snapshot")

	var balances []ledger.Balance
	if fromSnapshot {
		snap, ok, err := ledger.NewSnapshotStore(cfg.Snapshot, true).Load()
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("no snapshot at %s", cfg.Snapshot)
		}
		l := ledger.NewMemoryLedger(common.HexToAddress(snap.Custody), logger.Named("ledger"))
		if err := l.Restore(snap.Balances); err != nil {
			return fmt.Errorf("restore snapshot: %w", err)
		}
		balances = l.Balances()
	} else {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		env, cleanup, err := newEnvironment(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer cleanup()
		balances = env.Ledger.Balances()
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	for _, b := range balances {
		if err := enc.Encode(b); err != nil {
			return err
		}
	}
	return nil
}
