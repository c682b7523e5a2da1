package replay

import (
	"fmt"
	"math/big"
	"time"

	"hookGuard/internal/dex"
	"hookGuard/internal/model"
)

// Accumulator holds running totals for one pool during a replay.
type Accumulator struct {
	Pool           string
	Key            dex.PoolKey
	SwapCount      uint64
	RejectedCount  uint64
	OverreachCount uint64
	Volume0        *big.Int
	Volume1        *big.Int
}

func NewAccumulator(pool string, key dex.PoolKey) *Accumulator {
	return &Accumulator{
		Pool:    pool,
		Key:     key,
		Volume0: big.NewInt(0),
		Volume1: big.NewInt(0),
	}
}

// Add folds one outcome into the totals.
func (a *Accumulator) Add(outcome model.SwapOutcome, overreach bool) error {
	if outcome.Status != model.StatusSettled {
		a.RejectedCount++
		if overreach {
			a.OverreachCount++
		}
		return nil
	}

	amount0, err := parseBigInt(outcome.Amount0)
	if err != nil {
		return err
	}
	amount1, err := parseBigInt(outcome.Amount1)
	if err != nil {
		return err
	}
	absAdd(a.Volume0, amount0)
	absAdd(a.Volume1, amount1)
	a.SwapCount++
	return nil
}

// Stats renders the totals with the pool's current reserves.
func (a *Accumulator) Stats(reserve0, reserve1 *big.Int, now time.Time) model.PoolStats {
	return model.PoolStats{
		Pool:           a.Pool,
		PoolID:         a.Key.ID().String(),
		Currency0:      a.Key.Currency0.String(),
		Currency1:      a.Key.Currency1.String(),
		SwapCount:      a.SwapCount,
		RejectedCount:  a.RejectedCount,
		OverreachCount: a.OverreachCount,
		Volume0:        a.Volume0.String(),
		Volume1:        a.Volume1.String(),
		Reserve0:       bigString(reserve0),
		Reserve1:       bigString(reserve1),
		UpdatedAt:      now.UTC().Format(time.RFC3339Nano),
	}
}

func parseBigInt(value string) (*big.Int, error) {
	if value == "" {
		return big.NewInt(0), nil
	}
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid int: %s", value)
	}
	return parsed, nil
}

func absAdd(target *big.Int, value *big.Int) {
	if value == nil || target == nil {
		return
	}
	target.Add(target, new(big.Int).Abs(value))
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
