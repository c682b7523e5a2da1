package dex

import (
	"context"
	"fmt"
	"math/big"
)

// Q96 is 2^96, the fixed-point scale of price limits.
var Q96 = new(big.Int).Lsh(big.NewInt(1), 96)

var pipsDenominator = new(big.Int).SetUint64(uint64(MaxLPFee))

// Quoter prices a swap against a pool. The returned delta uses the party's
// perspective: the input side is negative and the output side is positive.
type Quoter interface {
	Quote(ctx context.Context, state PoolState, params SwapParams) (SignedDelta, error)
}

// FlatQuoter prices currency0 and currency1 one-to-one, less the LP fee.
type FlatQuoter struct{}

func (FlatQuoter) Quote(_ context.Context, state PoolState, params SwapParams) (SignedDelta, error) {
	if params.AmountSpecified.Sign() == 0 {
		return ZeroDelta(), nil
	}
	if err := checkPriceLimit(Q96, params); err != nil {
		return SignedDelta{}, err
	}

	amount := new(big.Int).Abs(params.AmountSpecified)
	keep := new(big.Int).Sub(pipsDenominator, big.NewInt(int64(state.Fee)))

	var amountIn, amountOut *big.Int
	if params.IsExactInput() {
		amountIn = amount
		amountOut = new(big.Int).Mul(amount, keep)
		amountOut.Quo(amountOut, pipsDenominator)
	} else {
		if keep.Sign() == 0 {
			return SignedDelta{}, fmt.Errorf("%w: exact output at 100%% fee", ErrInsufficientLiquidity)
		}
		amountOut = amount
		amountIn = ceilDiv(new(big.Int).Mul(amount, pipsDenominator), keep)
	}

	reserveOut := state.Reserve1
	if !params.ZeroForOne {
		reserveOut = state.Reserve0
	}
	if amountOut.Cmp(reserveOut) > 0 {
		return SignedDelta{}, fmt.Errorf("%w: out %s > reserve %s", ErrInsufficientLiquidity, amountOut, reserveOut)
	}

	return swapDelta(params.ZeroForOne, amountIn, amountOut)
}

// ConstantProductQuoter prices along x*y=k with the fee charged on input.
type ConstantProductQuoter struct{}

func (ConstantProductQuoter) Quote(_ context.Context, state PoolState, params SwapParams) (SignedDelta, error) {
	if params.AmountSpecified.Sign() == 0 {
		return ZeroDelta(), nil
	}

	reserveIn, reserveOut := state.Reserve0, state.Reserve1
	if !params.ZeroForOne {
		reserveIn, reserveOut = state.Reserve1, state.Reserve0
	}
	if reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return SignedDelta{}, fmt.Errorf("%w: empty reserves", ErrInsufficientLiquidity)
	}

	amount := new(big.Int).Abs(params.AmountSpecified)
	keep := new(big.Int).Sub(pipsDenominator, big.NewInt(int64(state.Fee)))
	if keep.Sign() == 0 {
		return SignedDelta{}, fmt.Errorf("%w: 100%% fee", ErrInsufficientLiquidity)
	}

	var amountIn, amountOut *big.Int
	if params.IsExactInput() {
		amountIn = amount
		inAfterFee := new(big.Int).Mul(amount, keep)
		numerator := new(big.Int).Mul(inAfterFee, reserveOut)
		denominator := new(big.Int).Mul(reserveIn, pipsDenominator)
		denominator.Add(denominator, inAfterFee)
		amountOut = numerator.Quo(numerator, denominator)
	} else {
		if amount.Cmp(reserveOut) >= 0 {
			return SignedDelta{}, fmt.Errorf("%w: out %s >= reserve %s", ErrInsufficientLiquidity, amount, reserveOut)
		}
		amountOut = amount
		numerator := new(big.Int).Mul(reserveIn, amount)
		numerator.Mul(numerator, pipsDenominator)
		denominator := new(big.Int).Sub(reserveOut, amount)
		denominator.Mul(denominator, keep)
		amountIn = ceilDiv(numerator, denominator)
	}

	newIn := new(big.Int).Add(reserveIn, amountIn)
	newOut := new(big.Int).Sub(reserveOut, amountOut)
	if newOut.Sign() <= 0 {
		return SignedDelta{}, fmt.Errorf("%w: swap drains reserve", ErrInsufficientLiquidity)
	}

	var price *big.Int
	if params.ZeroForOne {
		price = spotPriceX96(newIn, newOut)
	} else {
		price = spotPriceX96(newOut, newIn)
	}
	if err := checkPriceLimit(price, params); err != nil {
		return SignedDelta{}, err
	}

	return swapDelta(params.ZeroForOne, amountIn, amountOut)
}

// spotPriceX96 returns reserve1/reserve0 scaled by 2^96.
func spotPriceX96(reserve0, reserve1 *big.Int) *big.Int {
	price := new(big.Int).Mul(reserve1, Q96)
	return price.Quo(price, reserve0)
}

// checkPriceLimit fails when the post-swap price crosses the request's limit.
// zeroForOne swaps push the price down, so the limit is a floor; the other
// direction treats it as a ceiling.
func checkPriceLimit(price *big.Int, params SwapParams) error {
	limit := params.PriceLimitX96
	if limit == nil || limit.Sign() == 0 {
		return nil
	}
	if params.ZeroForOne && price.Cmp(limit) < 0 {
		return fmt.Errorf("%w: price %s below limit %s", ErrPriceLimitExceeded, price, limit)
	}
	if !params.ZeroForOne && price.Cmp(limit) > 0 {
		return fmt.Errorf("%w: price %s above limit %s", ErrPriceLimitExceeded, price, limit)
	}
	return nil
}

func swapDelta(zeroForOne bool, amountIn, amountOut *big.Int) (SignedDelta, error) {
	in := new(big.Int).Neg(amountIn)
	out := new(big.Int).Set(amountOut)
	delta := SignedDelta{Amount0: in, Amount1: out}
	if !zeroForOne {
		delta = SignedDelta{Amount0: out, Amount1: in}
	}
	if err := delta.Validate(); err != nil {
		return SignedDelta{}, err
	}
	return delta, nil
}

func ceilDiv(numerator, denominator *big.Int) *big.Int {
	q, r := new(big.Int).QuoRem(numerator, denominator, new(big.Int))
	if r.Sign() != 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}
