package dex

import (
	"errors"
	"fmt"
)

// Settlement errors.
var (
	ErrReentrancyDenied     = errors.New("reentrancy denied")
	ErrFeeExceedsSwapAmount = errors.New("fee exceeds swap amount")
	ErrGlobalImbalance      = errors.New("global imbalance")
	ErrArithmeticOverflow   = errors.New("arithmetic overflow")
	ErrPoolNotLocked        = errors.New("pool not locked by this transaction")
	ErrTxClosed             = errors.New("transaction closed")
)

// Pool and swap errors.
var (
	ErrPoolNotFound          = errors.New("pool not found")
	ErrPoolExists            = errors.New("pool already exists")
	ErrCurrencyNotSorted     = errors.New("currencies not sorted")
	ErrInvalidFee            = errors.New("invalid fee")
	ErrZeroAmount            = errors.New("amount specified is zero")
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrPriceLimitExceeded    = errors.New("price limit exceeded")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
)

// Hook errors.
var (
	ErrHookAddressMismatch   = errors.New("hook address does not match permissions")
	ErrHookNotRegistered     = errors.New("hook not registered")
	ErrHookDeltaNotPermitted = errors.New("hook returned a delta without permission")
	ErrNegativeFee           = errors.New("negative hook fee")
)

// StageError records the lifecycle stage at which a swap failed.
type StageError struct {
	Stage Stage
	Pool  PoolID
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("pool %s: %s: %v", e.Pool, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// FailedStage extracts the stage from a StageError chain.
func FailedStage(err error) (Stage, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage, true
	}
	return StageIdle, false
}
