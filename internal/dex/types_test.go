package dex

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

var (
	testCurrency0 = NewCurrency("0x1000000000000000000000000000000000000001")
	testCurrency1 = NewCurrency("0x2000000000000000000000000000000000000002")
)

func TestSpecifiedCurrencyResolution(t *testing.T) {
	key := PoolKey{Currency0: testCurrency0, Currency1: testCurrency1, Fee: 3000}

	tests := []struct {
		name            string
		zeroForOne      bool
		amount          int64
		wantSpecified   Currency
		wantUnspecified Currency
	}{
		{"zero for one exact input", true, -100, testCurrency0, testCurrency1},
		{"zero for one exact output", true, 100, testCurrency1, testCurrency0},
		{"one for zero exact input", false, -100, testCurrency1, testCurrency0},
		{"one for zero exact output", false, 100, testCurrency0, testCurrency1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := SwapParams{ZeroForOne: tt.zeroForOne, AmountSpecified: big.NewInt(tt.amount)}
			specified, unspecified := params.SpecifiedCurrency(key)
			require.Equal(t, tt.wantSpecified, specified)
			require.Equal(t, tt.wantUnspecified, unspecified)
			require.Equal(t, tt.wantSpecified == testCurrency0, params.SpecifiedIsCurrency0())
		})
	}
}

func TestPoolKeyID(t *testing.T) {
	key := PoolKey{Currency0: testCurrency0, Currency1: testCurrency1, Fee: 3000, TickSpacing: 60}
	require.Equal(t, key.ID(), key.ID())

	other := key
	other.Fee = 500
	require.NotEqual(t, key.ID(), other.ID())

	other = key
	other.Hooks = NewHookAddress(BeforeSwap, "hook")
	require.NotEqual(t, key.ID(), other.ID())
}

func TestSwapParamsValidate(t *testing.T) {
	require.ErrorIs(t, SwapParams{AmountSpecified: big.NewInt(0)}.validate(), ErrZeroAmount)
	require.ErrorIs(t, SwapParams{}.validate(), ErrZeroAmount)
	require.ErrorIs(t, SwapParams{AmountSpecified: big.NewInt(1), PriceLimitX96: big.NewInt(-1)}.validate(), ErrPriceLimitExceeded)

	tooLarge := new(big.Int).Lsh(big.NewInt(1), 127)
	require.ErrorIs(t, SwapParams{AmountSpecified: tooLarge}.validate(), ErrArithmeticOverflow)
	require.NoError(t, SwapParams{AmountSpecified: new(big.Int).Neg(tooLarge)}.validate())
}

func TestSignedDeltaBounds(t *testing.T) {
	require.NoError(t, NewSignedDelta(maxInt128, minInt128).Validate())

	over := new(big.Int).Add(maxInt128, big.NewInt(1))
	require.ErrorIs(t, SignedDelta{Amount0: over, Amount1: big.NewInt(0)}.Validate(), ErrArithmeticOverflow)
	require.ErrorIs(t, SignedDelta{Amount0: big.NewInt(0)}.Validate(), ErrArithmeticOverflow)

	_, err := addInt128(maxInt128, big.NewInt(1))
	require.ErrorIs(t, err, ErrArithmeticOverflow)
	_, err = subInt128(minInt128, big.NewInt(1))
	require.ErrorIs(t, err, ErrArithmeticOverflow)

	sum, err := addInt128(big.NewInt(-5), big.NewInt(7))
	require.NoError(t, err)
	require.Equal(t, int64(2), sum.Int64())
}

func TestStageErrorUnwrap(t *testing.T) {
	err := &StageError{Stage: StageExtendingBefore, Err: ErrFeeExceedsSwapAmount}
	require.ErrorIs(t, err, ErrFeeExceedsSwapAmount)

	stage, ok := FailedStage(err)
	require.True(t, ok)
	require.Equal(t, StageExtendingBefore, stage)
	require.Equal(t, "extending(before)", stage.String())

	_, ok = FailedStage(ErrZeroAmount)
	require.False(t, ok)
}
