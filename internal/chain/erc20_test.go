package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fakeCaller struct {
	balances map[common.Address]*big.Int
	failures int
	failWith error
	calls    int
	block    *big.Int
}

// revertError is shaped like the error a node returns for a reverted call.
type revertError struct{}

func (revertError) Error() string          { return "execution reverted: paused" }
func (revertError) ErrorCode() int         { return 3 }
func (revertError) ErrorData() interface{} { return "0x08c379a0" }

// outageError carries a JSON-RPC code that is not a revert.
type outageError struct{}

func (outageError) Error() string  { return "header not found" }
func (outageError) ErrorCode() int { return -32000 }

func (f *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	f.calls++
	f.block = block
	if f.failures > 0 {
		f.failures--
		if f.failWith != nil {
			return nil, f.failWith
		}
		return nil, errors.New("rpc unavailable")
	}
	balance, ok := f.balances[*msg.To]
	if !ok {
		balance = big.NewInt(0)
	}
	return math.U256Bytes(new(big.Int).Set(balance)), nil
}

func TestReserveReader(t *testing.T) {
	token0 := common.HexToAddress("0x1000000000000000000000000000000000000001")
	token1 := common.HexToAddress("0x2000000000000000000000000000000000000002")
	pool := common.HexToAddress("0x3000000000000000000000000000000000000003")

	caller := &fakeCaller{
		balances: map[common.Address]*big.Int{
			token0: big.NewInt(1_000),
			token1: new(big.Int).Lsh(big.NewInt(1), 100),
		},
		failures: 2,
	}
	core, logs := observer.New(zapcore.InfoLevel)
	reader := NewReserveReader(caller, 3, time.Millisecond, zap.New(core))

	r0, r1, err := reader.Reserves(context.Background(), pool, token0, token1, nil)
	if err != nil {
		t.Fatalf("reserves: %v", err)
	}
	if r0.Int64() != 1_000 {
		t.Fatalf("reserve0 = %s", r0)
	}
	if r1.Cmp(new(big.Int).Lsh(big.NewInt(1), 100)) != 0 {
		t.Fatalf("reserve1 = %s", r1)
	}
	if caller.calls != 4 {
		t.Fatalf("expected 4 calls with 2 retries, got %d", caller.calls)
	}

	failed := logs.FilterMessage("balanceOf call failed").All()
	if len(failed) != 2 {
		t.Fatalf("expected 2 failure logs, got %d", len(failed))
	}
	for i, entry := range failed {
		if got := entry.ContextMap()["attempt"]; got != int64(i+1) {
			t.Fatalf("failure %d logged attempt %v", i, got)
		}
	}
	recovered := logs.FilterMessage("balanceOf recovered").All()
	if len(recovered) != 1 || recovered[0].ContextMap()["attempts"] != int64(3) {
		t.Fatalf("expected one recovery after 3 attempts, got %v", recovered)
	}
}

func TestReserveReaderDoesNotRetryRevert(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"revert code", revertError{}},
		{"revert message", errors.New("execution reverted")},
		{"wrapped revert", fmt.Errorf("eth_call: %w", revertError{})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			caller := &fakeCaller{failures: 10, failWith: tt.err}
			reader := NewReserveReader(caller, 3, time.Millisecond, nil)

			_, err := reader.BalanceOf(context.Background(), common.Address{1}, common.Address{2}, nil)
			if err == nil {
				t.Fatalf("expected revert to fail the read")
			}
			if caller.calls != 1 {
				t.Fatalf("expected a single call for a revert, got %d", caller.calls)
			}
		})
	}
}

func TestReserveReaderRetriesOutage(t *testing.T) {
	caller := &fakeCaller{failures: 1, failWith: outageError{}}
	reader := NewReserveReader(caller, 2, time.Millisecond, nil)

	if _, err := reader.BalanceOf(context.Background(), common.Address{1}, common.Address{2}, nil); err != nil {
		t.Fatalf("balanceOf: %v", err)
	}
	if caller.calls != 2 {
		t.Fatalf("expected 2 calls, got %d", caller.calls)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"transport", errors.New("connection refused"), true},
		{"outage code", outageError{}, true},
		{"revert code", revertError{}, false},
		{"revert message", errors.New("Execution reverted: paused"), false},
		{"canceled", fmt.Errorf("call: %w", context.Canceled), false},
		{"deadline", context.DeadlineExceeded, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRetryable(tt.err); got != tt.want {
				t.Fatalf("isRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestReserveReaderGivesUp(t *testing.T) {
	caller := &fakeCaller{failures: 10}
	reader := NewReserveReader(caller, 1, time.Millisecond, nil)

	if _, err := reader.BalanceOf(context.Background(), common.Address{1}, common.Address{2}, nil); err == nil {
		t.Fatalf("expected error after retries")
	}
	if caller.calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", caller.calls)
	}
}

func TestWithRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	attempts, err := withRetry(ctx, 5, time.Hour, func(context.Context, int) error {
		calls++
		cancel()
		return errors.New("fail")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 || attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d calls and %d attempts", calls, attempts)
	}
}

func TestWithRetryStopsOnCanceledError(t *testing.T) {
	calls := 0
	attempts, err := withRetry(context.Background(), 5, time.Millisecond, func(context.Context, int) error {
		calls++
		return fmt.Errorf("call: %w", context.Canceled)
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 || attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d calls and %d attempts", calls, attempts)
	}
}

func TestReserveReaderAtBlock(t *testing.T) {
	caller := &fakeCaller{}
	reader := NewReserveReader(caller, 0, time.Millisecond, nil)
	pinned := reader.AtBlock(big.NewInt(42))

	if _, err := pinned.BalanceOf(context.Background(), common.Address{1}, common.Address{2}, nil); err != nil {
		t.Fatalf("balanceOf: %v", err)
	}
	if caller.block == nil || caller.block.Int64() != 42 {
		t.Fatalf("expected pinned block 42, got %v", caller.block)
	}

	if _, err := pinned.BalanceOf(context.Background(), common.Address{1}, common.Address{2}, big.NewInt(7)); err != nil {
		t.Fatalf("balanceOf: %v", err)
	}
	if caller.block.Int64() != 7 {
		t.Fatalf("explicit block should win, got %v", caller.block)
	}

	if _, err := reader.BalanceOf(context.Background(), common.Address{1}, common.Address{2}, nil); err != nil {
		t.Fatalf("balanceOf: %v", err)
	}
	if caller.block != nil {
		t.Fatalf("unpinned reader should read latest, got %v", caller.block)
	}
}
