package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"hookGuard/internal/model"
)

func runSwap(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	pool, _ := cmd.Flags().GetString("pool")
	party, _ := cmd.Flags().GetString("party")
	amount, _ := cmd.Flags().GetString("amount")
	zeroForOne, _ := cmd.Flags().GetBool("zero-for-one")
	priceLimit, _ := cmd.Flags().GetString("price-limit")
	if pool == "" || party == "" || amount == "" {
		return fmt.Errorf("pool, party and amount are required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env, cleanup, err := newEnvironment(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	outcome, swapErr := env.Execute(ctx, model.SwapRequest{
		ID:              "cli",
		Pool:            pool,
		Party:           party,
		ZeroForOne:      zeroForOne,
		AmountSpecified: amount,
		PriceLimitX96:   priceLimit,
	})

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(outcome); err != nil {
		return err
	}
	return swapErr
}
