package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

const erc20ABIJSON = `[
  {"inputs": [{"name": "account", "type": "address"}], "name": "balanceOf", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"}
]`

var (
	erc20ABI     abi.ABI
	erc20ABIOnce sync.Once
	erc20ABIErr  error
)

func erc20ABIInstance() (abi.ABI, error) {
	erc20ABIOnce.Do(func() {
		erc20ABI, erc20ABIErr = abi.JSON(strings.NewReader(erc20ABIJSON))
	})
	return erc20ABI, erc20ABIErr
}

// ContractCaller is the eth_call subset used for token reads.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// ReserveReader reads pool reserves as ERC20 balances held by a pool contract.
type ReserveReader struct {
	caller       ContractCaller
	maxRetries   int
	retryBackoff time.Duration
	logger       *zap.Logger
	// block is used when a read passes a nil block.
	block *big.Int
}

func NewReserveReader(caller ContractCaller, maxRetries int, retryBackoff time.Duration, logger *zap.Logger) *ReserveReader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReserveReader{caller: caller, maxRetries: maxRetries, retryBackoff: retryBackoff, logger: logger}
}

// AtBlock returns a reader whose reads default to block instead of latest.
func (r *ReserveReader) AtBlock(block *big.Int) *ReserveReader {
	pinned := *r
	pinned.block = block
	return &pinned
}

// BalanceOf returns token's balance of holder at block (nil means latest).
func (r *ReserveReader) BalanceOf(ctx context.Context, token, holder common.Address, block *big.Int) (*big.Int, error) {
	parsed, err := erc20ABIInstance()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	if block == nil {
		block = r.block
	}
	data, err := parsed.Pack("balanceOf", holder)
	if err != nil {
		return nil, fmt.Errorf("pack balanceOf: %w", err)
	}

	var resp []byte
	attempts, err := withRetry(ctx, r.maxRetries, r.retryBackoff, func(ctx context.Context, attempt int) error {
		var err error
		resp, err = r.caller.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, block)
		if err != nil {
			r.logger.Warn("balanceOf call failed",
				zap.String("token", token.Hex()),
				zap.String("holder", holder.Hex()),
				zap.Int("attempt", attempt),
				zap.Bool("retryable", isRetryable(err)),
				zap.Error(err),
			)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("call balanceOf after %d attempts: %w", attempts, err)
	}
	if attempts > 1 {
		r.logger.Info("balanceOf recovered",
			zap.String("token", token.Hex()),
			zap.Int("attempts", attempts),
		)
	}

	values, err := parsed.Unpack("balanceOf", resp)
	if err != nil {
		return nil, fmt.Errorf("unpack balanceOf: %w", err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("unpack balanceOf: %d values", len(values))
	}
	balance, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected balanceOf type %T", values[0])
	}
	return balance, nil
}

// Reserves returns the balances of token0 and token1 held by pool.
func (r *ReserveReader) Reserves(ctx context.Context, pool, token0, token1 common.Address, block *big.Int) (*big.Int, *big.Int, error) {
	reserve0, err := r.BalanceOf(ctx, token0, pool, block)
	if err != nil {
		return nil, nil, fmt.Errorf("token0 %s: %w", token0.Hex(), err)
	}
	reserve1, err := r.BalanceOf(ctx, token1, pool, block)
	if err != nil {
		return nil, nil, fmt.Errorf("token1 %s: %w", token1.Hex(), err)
	}
	r.logger.Info("reserves loaded",
		zap.String("pool", pool.Hex()),
		zap.String("reserve0", reserve0.String()),
		zap.String("reserve1", reserve1.String()),
	)
	return reserve0, reserve1, nil
}
