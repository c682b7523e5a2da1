package replay

import (
	"context"
	"fmt"
	"time"

	"hookGuard/internal/config"
	"hookGuard/internal/dex"
	"hookGuard/internal/model"
)

// Execute runs one request through its router. The returned outcome is
// always populated; err is the swap failure, if any.
func (e *Environment) Execute(ctx context.Context, req model.SwapRequest) (model.SwapOutcome, error) {
	outcome := model.SwapOutcome{
		RequestID: req.ID,
		Pool:      req.Pool,
		Party:     req.Party,
		Router:    req.Router,
		Status:    model.StatusRejected,
		Amount0:   "0",
		Amount1:   "0",
	}

	delta, err := e.swap(ctx, req, &outcome)
	outcome.ProcessedAt = time.Now().UTC().Format(time.RFC3339Nano)
	if err != nil {
		outcome.Error = err.Error()
		if stage, ok := dex.FailedStage(err); ok {
			outcome.Stage = stage.String()
		}
		return outcome, err
	}

	outcome.Status = model.StatusSettled
	outcome.Stage = dex.StageUnlocked.String()
	outcome.Amount0 = delta.Amount0.String()
	outcome.Amount1 = delta.Amount1.String()
	return outcome, nil
}

func (e *Environment) swap(ctx context.Context, req model.SwapRequest, outcome *model.SwapOutcome) (dex.SignedDelta, error) {
	key, ok := e.Pools[req.Pool]
	if !ok {
		return dex.SignedDelta{}, fmt.Errorf("%w: %s", dex.ErrPoolNotFound, req.Pool)
	}
	outcome.PoolID = key.ID().String()

	r, name, err := e.Router(req.Router)
	outcome.Router = name
	if err != nil {
		return dex.SignedDelta{}, err
	}

	party, err := config.ParseAddress(req.Party)
	if err != nil {
		return dex.SignedDelta{}, fmt.Errorf("party: %w", err)
	}
	amount, err := config.ParseAmount(req.AmountSpecified)
	if err != nil {
		return dex.SignedDelta{}, fmt.Errorf("amount_specified: %w", err)
	}
	limit, err := config.ParseNonNegative(req.PriceLimitX96)
	if err != nil {
		return dex.SignedDelta{}, fmt.Errorf("price_limit_x96: %w", err)
	}

	return r.Swap(ctx, key, party, dex.SwapParams{
		ZeroForOne:      req.ZeroForOne,
		AmountSpecified: amount,
		PriceLimitX96:   limit,
	})
}
