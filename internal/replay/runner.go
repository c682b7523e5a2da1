package replay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"hookGuard/internal/ledger"
	"hookGuard/internal/model"
	"hookGuard/internal/router"
	"hookGuard/internal/storage"
)

// RunConfig holds runtime settings for a replay.
type RunConfig struct {
	Workers         int
	BatchSize       int
	OnlyPools       []string
	SnapshotPath    string
	SnapshotEnabled bool
}

// Summary counts what a replay did.
type Summary struct {
	Requests  int
	Settled   int
	Rejected  int
	Overreach int
}

// Runner replays swap requests against an environment and writes the
// outcomes to storage. Requests for the same pool run in input order;
// distinct pools run concurrently.
type Runner struct {
	cfg      RunConfig
	env      *Environment
	storage  storage.Storage
	logger   *zap.Logger
	snapshot *ledger.SnapshotStore
}

// NewRunner builds a Runner with its dependencies.
func NewRunner(cfg RunConfig, env *Environment, storageSink storage.Storage, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:      cfg,
		env:      env,
		storage:  storageSink,
		logger:   logger,
		snapshot: ledger.NewSnapshotStore(cfg.SnapshotPath, cfg.SnapshotEnabled),
	}
}

type poolRequests struct {
	pool     string
	requests []model.SwapRequest
	acc      *Accumulator
}

// Run executes every request and returns the totals.
func (r *Runner) Run(ctx context.Context, requests []model.SwapRequest) (Summary, error) {
	if r.env == nil {
		return Summary{}, fmt.Errorf("environment is nil")
	}
	if r.storage == nil {
		return Summary{}, fmt.Errorf("storage is nil")
	}
	if r.cfg.BatchSize <= 0 {
		return Summary{}, fmt.Errorf("batch size must be greater than zero")
	}
	workers := r.cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	groups := r.group(requests)
	if len(groups) == 0 {
		r.logger.Info("nothing to replay", zap.Int("requests", len(requests)))
		return Summary{}, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, group := range groups {
		group := group
		g.Go(func() error {
			return r.runPool(gctx, group)
		})
	}
	if err := g.Wait(); err != nil {
		return Summary{}, err
	}

	var summary Summary
	stats := make([]model.PoolStats, 0, len(groups))
	now := time.Now()
	for _, group := range groups {
		summary.Requests += len(group.requests)
		acc := group.acc
		if acc == nil {
			summary.Rejected += len(group.requests)
			continue
		}
		summary.Settled += int(acc.SwapCount)
		summary.Rejected += int(acc.RejectedCount)
		summary.Overreach += int(acc.OverreachCount)

		reserve0, reserve1, err := r.env.Manager.Reserves(acc.Key)
		if err != nil {
			return Summary{}, err
		}
		stats = append(stats, acc.Stats(reserve0, reserve1, now))
	}

	if err := r.storage.PutPoolStats(stats); err != nil {
		return Summary{}, fmt.Errorf("store pool stats: %w", err)
	}
	if err := r.snapshot.Save(r.env.Ledger); err != nil {
		return Summary{}, err
	}

	r.logger.Info("replay complete",
		zap.Int("requests", summary.Requests),
		zap.Int("settled", summary.Settled),
		zap.Int("rejected", summary.Rejected),
		zap.Int("overreach", summary.Overreach),
	)
	return summary, nil
}

// group buckets requests by pool in order of first appearance.
func (r *Runner) group(requests []model.SwapRequest) []*poolRequests {
	allowed := make(map[string]struct{}, len(r.cfg.OnlyPools))
	for _, name := range r.cfg.OnlyPools {
		allowed[name] = struct{}{}
	}

	index := make(map[string]*poolRequests)
	groups := make([]*poolRequests, 0)
	for _, req := range requests {
		if len(allowed) > 0 {
			if _, ok := allowed[req.Pool]; !ok {
				continue
			}
		}
		group := index[req.Pool]
		if group == nil {
			group = &poolRequests{pool: req.Pool}
			if key, ok := r.env.Pools[req.Pool]; ok {
				group.acc = NewAccumulator(req.Pool, key)
			}
			index[req.Pool] = group
			groups = append(groups, group)
		}
		group.requests = append(group.requests, req)
	}
	return groups
}

func (r *Runner) runPool(ctx context.Context, group *poolRequests) error {
	batches, err := SplitBatches(len(group.requests), r.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, batch := range batches {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		outcomes := make([]model.SwapOutcome, 0, batch.To-batch.From)
		for _, req := range group.requests[batch.From:batch.To] {
			outcome, swapErr := r.env.Execute(ctx, req)
			if swapErr != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				r.logger.Debug("request rejected", zap.String("id", req.ID), zap.String("pool", req.Pool), zap.Error(swapErr))
			}
			if group.acc != nil {
				overreach := errors.Is(swapErr, router.ErrUnauthorizedExtensionOverreach)
				if err := group.acc.Add(outcome, overreach); err != nil {
					return fmt.Errorf("accumulate %s: %w", req.ID, err)
				}
			}
			outcomes = append(outcomes, outcome)
		}

		if err := r.storage.PutOutcomes(outcomes); err != nil {
			return fmt.Errorf("store outcomes: %w", err)
		}
		r.logger.Info("batch complete",
			zap.String("pool", group.pool),
			zap.Int("outcomes", len(outcomes)),
			zap.Int("from", batch.From),
			zap.Int("to", batch.To),
		)
	}
	return nil
}
