package dex

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestHookAddressEncodesFlags(t *testing.T) {
	flags := BeforeSwap | BeforeSwapReturnsDelta
	addr := NewHookAddress(flags, "fee-hook")

	require.Equal(t, flags, FlagsFromAddress(addr))
	require.NoError(t, ValidateHookAddress(addr, flags))
	require.ErrorIs(t, ValidateHookAddress(addr, flags|AfterSwap), ErrHookAddressMismatch)
	require.Equal(t, addr, NewHookAddress(flags, "fee-hook"))
	require.NotEqual(t, addr, NewHookAddress(flags, "other"))
}

func TestHookFlagsValidate(t *testing.T) {
	require.NoError(t, ConfigurableHookFlags.Validate())
	require.NoError(t, HookFlags(0).Validate())
	require.ErrorIs(t, BeforeSwapReturnsDelta.Validate(), ErrHookAddressMismatch)
	require.ErrorIs(t, AfterSwapReturnsDelta.Validate(), ErrHookAddressMismatch)
	require.ErrorIs(t, HookFlags(1<<15).Validate(), ErrHookAddressMismatch)
}

func TestHookRegistry(t *testing.T) {
	reg := NewHookRegistry()
	hook := NewConfigurableHook()
	addr := NewHookAddress(ConfigurableHookFlags, "registry")

	require.NoError(t, reg.Register(addr, hook))
	require.NoError(t, reg.Register(addr, hook))
	require.Error(t, reg.Register(addr, NewConfigurableHook()))
	require.ErrorIs(t, reg.Register(addr, nil), ErrHookNotRegistered)
	require.ErrorIs(t, reg.Register(NewHookAddress(BeforeSwap, "registry"), hook), ErrHookAddressMismatch)

	got, ok := reg.Get(addr)
	require.True(t, ok)
	require.Same(t, hook, got)

	_, ok = reg.Get(common.Address{})
	require.False(t, ok)
}

func TestConfigurableHookReturnsCopies(t *testing.T) {
	hook := NewConfigurableHook()
	hook.SetFees(big.NewInt(1), big.NewInt(2), nil)

	res, err := hook.BeforeSwap(context.Background(), common.Address{}, PoolKey{}, SwapParams{})
	require.NoError(t, err)
	require.Equal(t, int64(1), res.SpecifiedFee.Int64())
	require.Equal(t, int64(2), res.UnspecifiedFee.Int64())

	res.SpecifiedFee.SetInt64(50)
	again, err := hook.BeforeSwap(context.Background(), common.Address{}, PoolKey{}, SwapParams{})
	require.NoError(t, err)
	require.Equal(t, int64(1), again.SpecifiedFee.Int64())

	after, err := hook.AfterSwap(context.Background(), common.Address{}, PoolKey{}, SwapParams{}, ZeroDelta())
	require.NoError(t, err)
	require.Zero(t, after.Sign())
}
