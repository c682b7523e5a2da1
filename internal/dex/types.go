package dex

import (
	"bytes"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Fee constants are expressed in pips (1e6 = 100%).
const (
	MaxLPFee       uint32 = 1_000_000
	DynamicFeeFlag uint32 = 0x800000
)

// Currency is an opaque token identifier.
type Currency struct {
	Address common.Address
}

// NewCurrency returns the currency for a hex address.
func NewCurrency(hex string) Currency {
	return Currency{Address: common.HexToAddress(hex)}
}

func (c Currency) String() string {
	return c.Address.Hex()
}

// Less reports whether c sorts before other.
func (c Currency) Less(other Currency) bool {
	return bytes.Compare(c.Address.Bytes(), other.Address.Bytes()) < 0
}

// PoolKey identifies a pool. Currency0 must sort before Currency1.
type PoolKey struct {
	Currency0   Currency
	Currency1   Currency
	Fee         uint32
	TickSpacing int32
	Hooks       common.Address
}

// PoolID is keccak256 of the ABI-encoded pool key.
type PoolID common.Hash

func (id PoolID) String() string {
	return common.Hash(id).Hex()
}

var (
	poolKeyArgs     abi.Arguments
	poolKeyArgsOnce sync.Once
	poolKeyArgsErr  error
)

func poolKeyArguments() (abi.Arguments, error) {
	poolKeyArgsOnce.Do(func() {
		addressT, err := abi.NewType("address", "", nil)
		if err != nil {
			poolKeyArgsErr = err
			return
		}
		uint24T, err := abi.NewType("uint24", "", nil)
		if err != nil {
			poolKeyArgsErr = err
			return
		}
		int24T, err := abi.NewType("int24", "", nil)
		if err != nil {
			poolKeyArgsErr = err
			return
		}
		poolKeyArgs = abi.Arguments{
			{Name: "currency0", Type: addressT},
			{Name: "currency1", Type: addressT},
			{Name: "fee", Type: uint24T},
			{Name: "tickSpacing", Type: int24T},
			{Name: "hooks", Type: addressT},
		}
	})
	return poolKeyArgs, poolKeyArgsErr
}

// ID returns the pool identifier.
func (k PoolKey) ID() PoolID {
	args, err := poolKeyArguments()
	if err != nil {
		panic(fmt.Sprintf("pool key abi: %v", err))
	}
	// uint24 and int24 pack from *big.Int.
	encoded, err := args.Pack(
		k.Currency0.Address,
		k.Currency1.Address,
		new(big.Int).SetUint64(uint64(k.Fee)),
		big.NewInt(int64(k.TickSpacing)),
		k.Hooks,
	)
	if err != nil {
		panic(fmt.Sprintf("pack pool key: %v", err))
	}
	return PoolID(crypto.Keccak256Hash(encoded))
}

// IsDynamicFee reports whether the pool fee may be overridden by its hook.
func (k PoolKey) IsDynamicFee() bool {
	return k.Fee == DynamicFeeFlag
}

// HasHook reports whether the pool is bound to an extension.
func (k PoolKey) HasHook() bool {
	return k.Hooks != (common.Address{})
}

func (k PoolKey) String() string {
	return fmt.Sprintf("%s/%s fee=%d hooks=%s", k.Currency0, k.Currency1, k.Fee, k.Hooks.Hex())
}

// SwapParams is a swap request against a single pool.
type SwapParams struct {
	ZeroForOne bool
	// AmountSpecified is negative for exact input and positive for exact output.
	AmountSpecified *big.Int
	// PriceLimitX96 is the worst acceptable post-swap price (currency1 per currency0, Q96).
	// Nil or zero disables the limit.
	PriceLimitX96 *big.Int
}

// IsExactInput reports whether the specified amount is an input amount.
func (p SwapParams) IsExactInput() bool {
	return p.AmountSpecified.Sign() < 0
}

// SpecifiedIsCurrency0 resolves which pool currency the specified amount refers to.
//
//	zeroForOne exact input  -> currency0
//	zeroForOne exact output -> currency1
//	oneForZero exact input  -> currency1
//	oneForZero exact output -> currency0
func (p SwapParams) SpecifiedIsCurrency0() bool {
	return p.IsExactInput() == p.ZeroForOne
}

// SpecifiedCurrency returns the specified and unspecified currencies of the request.
func (p SwapParams) SpecifiedCurrency(key PoolKey) (specified, unspecified Currency) {
	if p.SpecifiedIsCurrency0() {
		return key.Currency0, key.Currency1
	}
	return key.Currency1, key.Currency0
}

func (p SwapParams) validate() error {
	if p.AmountSpecified == nil || p.AmountSpecified.Sign() == 0 {
		return ErrZeroAmount
	}
	if p.PriceLimitX96 != nil && p.PriceLimitX96.Sign() < 0 {
		return fmt.Errorf("%w: negative price limit", ErrPriceLimitExceeded)
	}
	return checkInt128(p.AmountSpecified)
}

// Pool is the mutable state of a registered pool.
type Pool struct {
	Key      PoolKey
	Reserve0 *big.Int
	Reserve1 *big.Int
}

// PoolState is the read-only view handed to a Quoter.
type PoolState struct {
	Key      PoolKey
	Reserve0 *big.Int
	Reserve1 *big.Int
	// Fee is the effective LP fee in pips for this swap.
	Fee uint32
}
