package router

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"hookGuard/internal/dex"
)

// ErrUnauthorizedExtensionOverreach is returned when an extension leaves the
// party worse off in the unspecified currency than the unextended quote allows.
var ErrUnauthorizedExtensionOverreach = errors.New("unauthorized extension overreach")

// bpsDenominator is 100% in basis points.
const bpsDenominator = 10_000

// Router is the public swap entry point.
type Router interface {
	Swap(ctx context.Context, key dex.PoolKey, party common.Address, params dex.SwapParams) (dex.SignedDelta, error)
}

// Unlocker opens a transaction on a pool.
type Unlocker interface {
	Unlock(ctx context.Context, key dex.PoolKey, caller common.Address, fn func(ctx context.Context, tx *dex.Tx) error) error
}

// Unchecked settles whatever the core returns.
type Unchecked struct {
	core   Unlocker
	logger *zap.Logger
}

func NewUnchecked(core Unlocker, logger *zap.Logger) *Unchecked {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Unchecked{core: core, logger: logger.With(zap.String("router", "unchecked"))}
}

func (r *Unchecked) Swap(ctx context.Context, key dex.PoolKey, party common.Address, params dex.SwapParams) (dex.SignedDelta, error) {
	return run(ctx, r.core, r.logger, key, party, params, nil)
}

// Safe bounds the unspecified-currency outcome by the unextended price of
// the swapped amount before settling.
type Safe struct {
	core   Unlocker
	logger *zap.Logger
	// maxTakeBps is the share of the honest unspecified amount an
	// extension may take, in basis points.
	maxTakeBps uint32
}

// SafeOption customises a Safe router.
type SafeOption func(*Safe)

// WithMaxExtensionTakeBps allows extensions to worsen the unspecified
// outcome by up to bps of the honest amount.
func WithMaxExtensionTakeBps(bps uint32) SafeOption {
	return func(s *Safe) {
		if bps > bpsDenominator {
			bps = bpsDenominator
		}
		s.maxTakeBps = bps
	}
}

func NewSafe(core Unlocker, logger *zap.Logger, opts ...SafeOption) *Safe {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Safe{core: core, logger: logger.With(zap.String("router", "safe"))}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (r *Safe) Swap(ctx context.Context, key dex.PoolKey, party common.Address, params dex.SwapParams) (dex.SignedDelta, error) {
	return run(ctx, r.core, r.logger, key, party, params, r.check)
}

// check bounds the unspecified amount of the final delta by the unextended
// price of the amount the pool actually swapped. Specified-currency fees move
// that amount and are priced in; anything taken in the unspecified currency,
// or through a dynamic fee override, counts against the allowance.
func (r *Safe) check(tx *dex.Tx, params dex.SwapParams, final dex.SignedDelta) error {
	breakdown, ok := tx.LastSwap()
	if !ok || !breakdown.HasReference {
		return fmt.Errorf("%w: no unextended price for the swapped amount", ErrUnauthorizedExtensionOverreach)
	}
	specifiedIs0 := params.SpecifiedIsCurrency0()
	reference := breakdown.Reference.Get(!specifiedIs0)
	floor := MinUnspecified(reference, r.maxTakeBps)
	if got := final.Get(!specifiedIs0); got.Cmp(floor) < 0 {
		return fmt.Errorf("%w: unspecified %s below bound %s (unextended %s)",
			ErrUnauthorizedExtensionOverreach, got, floor, reference)
	}
	return nil
}

// MinUnspecified is the least favourable unspecified amount a party accepts
// given the honest amount and an allowance in basis points.
func MinUnspecified(honest *big.Int, bps uint32) *big.Int {
	allowance := new(big.Int).Abs(honest)
	allowance.Mul(allowance, big.NewInt(int64(bps)))
	allowance.Quo(allowance, big.NewInt(bpsDenominator))
	return allowance.Sub(honest, allowance)
}

type checkFunc func(tx *dex.Tx, params dex.SwapParams, final dex.SignedDelta) error

func run(ctx context.Context, core Unlocker, logger *zap.Logger, key dex.PoolKey, party common.Address, params dex.SwapParams, check checkFunc) (dex.SignedDelta, error) {
	var (
		result dex.SignedDelta
		stage  = dex.StageIdle
	)
	err := core.Unlock(ctx, key, party, func(ctx context.Context, tx *dex.Tx) error {
		delta, err := tx.Swap(ctx, key, params)
		stage = tx.Stage()
		if err != nil {
			return err
		}
		if check != nil {
			if err := check(tx, params, delta); err != nil {
				return &dex.StageError{Stage: stage, Pool: key.ID(), Err: err}
			}
		}
		if err := settle(tx, key, party, delta); err != nil {
			return &dex.StageError{Stage: stage, Pool: key.ID(), Err: err}
		}
		result = delta
		return nil
	})
	if err != nil {
		logger.Warn("swap failed",
			zap.String("pool", key.ID().String()),
			zap.String("party", party.Hex()),
			zap.String("stage", stage.String()),
			zap.Error(err),
		)
		return dex.SignedDelta{}, err
	}

	logger.Info("swap settled",
		zap.String("pool", key.ID().String()),
		zap.String("party", party.Hex()),
		zap.String("delta", result.String()),
	)
	return result, nil
}

// settle collects negative components from party first, then pays out
// positive ones.
func settle(tx *dex.Tx, key dex.PoolKey, party common.Address, delta dex.SignedDelta) error {
	legs := []struct {
		currency dex.Currency
		amount   *big.Int
	}{
		{key.Currency0, delta.Amount0},
		{key.Currency1, delta.Amount1},
	}
	for _, leg := range legs {
		if leg.amount.Sign() < 0 {
			if err := tx.Settle(leg.currency, party, new(big.Int).Neg(leg.amount)); err != nil {
				return err
			}
		}
	}
	for _, leg := range legs {
		if leg.amount.Sign() > 0 {
			if err := tx.Take(leg.currency, party, leg.amount); err != nil {
				return err
			}
		}
	}
	return nil
}
