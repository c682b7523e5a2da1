package dex

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func flatState(fee uint32, r0, r1 int64) PoolState {
	return PoolState{Reserve0: big.NewInt(r0), Reserve1: big.NewInt(r1), Fee: fee}
}

func TestFlatQuoter(t *testing.T) {
	ctx := context.Background()
	q := FlatQuoter{}

	tests := []struct {
		name       string
		fee        uint32
		zeroForOne bool
		amount     int64
		want0      int64
		want1      int64
	}{
		{"exact input one percent", 10_000, true, -100, -100, 99},
		{"exact input rounds down", 3_000, true, -100, -100, 99},
		{"exact output rounds up", 10_000, true, 99, -100, 99},
		{"one for zero exact input", 10_000, false, -100, 99, -100},
		{"zero fee", 0, true, -100, -100, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := q.Quote(ctx, flatState(tt.fee, 1_000, 1_000), SwapParams{
				ZeroForOne:      tt.zeroForOne,
				AmountSpecified: big.NewInt(tt.amount),
			})
			require.NoError(t, err)
			require.Equal(t, tt.want0, got.Amount0.Int64())
			require.Equal(t, tt.want1, got.Amount1.Int64())
		})
	}
}

func TestFlatQuoterErrors(t *testing.T) {
	ctx := context.Background()
	q := FlatQuoter{}

	_, err := q.Quote(ctx, flatState(0, 1_000, 10), SwapParams{ZeroForOne: true, AmountSpecified: big.NewInt(-100)})
	require.ErrorIs(t, err, ErrInsufficientLiquidity)

	_, err = q.Quote(ctx, flatState(MaxLPFee, 1_000, 1_000), SwapParams{ZeroForOne: true, AmountSpecified: big.NewInt(10)})
	require.ErrorIs(t, err, ErrInsufficientLiquidity)

	limit := new(big.Int).Add(Q96, big.NewInt(1))
	_, err = q.Quote(ctx, flatState(0, 1_000, 1_000), SwapParams{ZeroForOne: true, AmountSpecified: big.NewInt(-1), PriceLimitX96: limit})
	require.ErrorIs(t, err, ErrPriceLimitExceeded)

	got, err := q.Quote(ctx, flatState(0, 1_000, 1_000), SwapParams{ZeroForOne: true, AmountSpecified: big.NewInt(0)})
	require.NoError(t, err)
	require.True(t, got.IsZero())
}

func TestConstantProductQuoter(t *testing.T) {
	ctx := context.Background()
	q := ConstantProductQuoter{}
	state := flatState(3_000, 1_000_000, 1_000_000)

	in, err := q.Quote(ctx, state, SwapParams{ZeroForOne: true, AmountSpecified: big.NewInt(-1_000)})
	require.NoError(t, err)
	require.Equal(t, int64(-1_000), in.Amount0.Int64())
	require.Equal(t, int64(996), in.Amount1.Int64())

	out, err := q.Quote(ctx, state, SwapParams{ZeroForOne: true, AmountSpecified: big.NewInt(996)})
	require.NoError(t, err)
	require.Equal(t, int64(996), out.Amount1.Int64())
	require.LessOrEqual(t, out.Amount0.Int64(), int64(-999))
	require.GreaterOrEqual(t, out.Amount0.Int64(), int64(-1_000))

	_, err = q.Quote(ctx, state, SwapParams{ZeroForOne: true, AmountSpecified: big.NewInt(1_000_000)})
	require.ErrorIs(t, err, ErrInsufficientLiquidity)

	_, err = q.Quote(ctx, flatState(3_000, 0, 0), SwapParams{ZeroForOne: true, AmountSpecified: big.NewInt(-1)})
	require.ErrorIs(t, err, ErrInsufficientLiquidity)
}

func TestConstantProductPriceLimit(t *testing.T) {
	ctx := context.Background()
	q := ConstantProductQuoter{}
	state := flatState(0, 1_000_000, 1_000_000)

	// Selling currency0 lowers the price below 1.0; a floor at 1.0 rejects it.
	_, err := q.Quote(ctx, state, SwapParams{ZeroForOne: true, AmountSpecified: big.NewInt(-1_000), PriceLimitX96: Q96})
	require.ErrorIs(t, err, ErrPriceLimitExceeded)

	half := new(big.Int).Rsh(Q96, 1)
	_, err = q.Quote(ctx, state, SwapParams{ZeroForOne: true, AmountSpecified: big.NewInt(-1_000), PriceLimitX96: half})
	require.NoError(t, err)

	_, err = q.Quote(ctx, state, SwapParams{ZeroForOne: false, AmountSpecified: big.NewInt(-1_000), PriceLimitX96: Q96})
	require.ErrorIs(t, err, ErrPriceLimitExceeded)
}
