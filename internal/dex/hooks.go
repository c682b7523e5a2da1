package dex

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// HookFlags is the permission bitmap carried in the low bits of a hook address.
type HookFlags uint16

const (
	AfterRemoveLiquidityReturnsDelta HookFlags = 1 << iota
	AfterAddLiquidityReturnsDelta
	AfterSwapReturnsDelta
	BeforeSwapReturnsDelta
	AfterDonate
	BeforeDonate
	AfterSwap
	BeforeSwap
	AfterRemoveLiquidity
	BeforeRemoveLiquidity
	AfterAddLiquidity
	BeforeAddLiquidity
	AfterInitialize
	BeforeInitialize

	AllHookFlags HookFlags = 1<<14 - 1
)

// Has reports whether every bit of flag is set.
func (f HookFlags) Has(flag HookFlags) bool {
	return f&flag == flag
}

// Validate rejects flag sets where a delta-returning bit lacks its base bit.
func (f HookFlags) Validate() error {
	if f&^AllHookFlags != 0 {
		return fmt.Errorf("%w: unknown flags %#x", ErrHookAddressMismatch, uint16(f))
	}
	if f.Has(BeforeSwapReturnsDelta) && !f.Has(BeforeSwap) {
		return fmt.Errorf("%w: beforeSwapReturnsDelta without beforeSwap", ErrHookAddressMismatch)
	}
	if f.Has(AfterSwapReturnsDelta) && !f.Has(AfterSwap) {
		return fmt.Errorf("%w: afterSwapReturnsDelta without afterSwap", ErrHookAddressMismatch)
	}
	return nil
}

// FlagsFromAddress decodes the permission bits of a hook address.
func FlagsFromAddress(addr common.Address) HookFlags {
	low := uint16(addr[common.AddressLength-2])<<8 | uint16(addr[common.AddressLength-1])
	return HookFlags(low) & AllHookFlags
}

// NewHookAddress derives a deterministic address from seed whose low bits
// encode flags.
func NewHookAddress(flags HookFlags, seed string) common.Address {
	hash := crypto.Keccak256([]byte(seed))
	var addr common.Address
	copy(addr[:], hash[12:])
	low := uint16(addr[common.AddressLength-2])<<8 | uint16(addr[common.AddressLength-1])
	low = low&^uint16(AllHookFlags) | uint16(flags&AllHookFlags)
	addr[common.AddressLength-2] = byte(low >> 8)
	addr[common.AddressLength-1] = byte(low)
	return addr
}

// ValidateHookAddress checks that addr encodes exactly the declared flags.
func ValidateHookAddress(addr common.Address, flags HookFlags) error {
	if err := flags.Validate(); err != nil {
		return err
	}
	if got := FlagsFromAddress(addr); got != flags {
		return fmt.Errorf("%w: address %s encodes %#x, hook declares %#x",
			ErrHookAddressMismatch, addr.Hex(), uint16(got), uint16(flags))
	}
	return nil
}

// BeforeSwapResult is what an extension declares before pricing.
// Fees are magnitudes; the pool manager takes them from custody on the
// extension's behalf.
type BeforeSwapResult struct {
	SpecifiedFee   *big.Int
	UnspecifiedFee *big.Int
	// FeeOverride replaces the LP fee of a dynamic-fee pool when non-zero.
	FeeOverride uint32
}

// Hook is a fee extension invoked around swap pricing.
type Hook interface {
	Flags() HookFlags
	BeforeSwap(ctx context.Context, sender common.Address, key PoolKey, params SwapParams) (BeforeSwapResult, error)
	AfterSwap(ctx context.Context, sender common.Address, key PoolKey, params SwapParams, raw SignedDelta) (*big.Int, error)
}

// NullHook declares no permissions and never takes anything.
type NullHook struct{}

func (NullHook) Flags() HookFlags { return 0 }

func (NullHook) BeforeSwap(context.Context, common.Address, PoolKey, SwapParams) (BeforeSwapResult, error) {
	return BeforeSwapResult{}, nil
}

func (NullHook) AfterSwap(context.Context, common.Address, PoolKey, SwapParams, SignedDelta) (*big.Int, error) {
	return nil, nil
}

// ConfigurableHook returns fixed fee magnitudes at both extension points.
type ConfigurableHook struct {
	mu                sync.RWMutex
	beforeSpecified   *big.Int
	beforeUnspecified *big.Int
	afterUnspecified  *big.Int
	feeOverride       uint32
}

// ConfigurableHookFlags are the permissions a ConfigurableHook needs.
const ConfigurableHookFlags = BeforeSwap | AfterSwap | BeforeSwapReturnsDelta | AfterSwapReturnsDelta

func NewConfigurableHook() *ConfigurableHook {
	return &ConfigurableHook{
		beforeSpecified:   big.NewInt(0),
		beforeUnspecified: big.NewInt(0),
		afterUnspecified:  big.NewInt(0),
	}
}

// SetFees sets the three fee magnitudes. Nil means zero.
func (h *ConfigurableHook) SetFees(beforeSpecified, beforeUnspecified, afterUnspecified *big.Int) {
	h.mu.Lock()
	h.beforeSpecified = new(big.Int).Set(orZero(beforeSpecified))
	h.beforeUnspecified = new(big.Int).Set(orZero(beforeUnspecified))
	h.afterUnspecified = new(big.Int).Set(orZero(afterUnspecified))
	h.mu.Unlock()
}

// SetFeeOverride sets the LP fee override reported before each swap.
func (h *ConfigurableHook) SetFeeOverride(fee uint32) {
	h.mu.Lock()
	h.feeOverride = fee
	h.mu.Unlock()
}

func (h *ConfigurableHook) Flags() HookFlags {
	return ConfigurableHookFlags
}

func (h *ConfigurableHook) BeforeSwap(context.Context, common.Address, PoolKey, SwapParams) (BeforeSwapResult, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return BeforeSwapResult{
		SpecifiedFee:   new(big.Int).Set(h.beforeSpecified),
		UnspecifiedFee: new(big.Int).Set(h.beforeUnspecified),
		FeeOverride:    h.feeOverride,
	}, nil
}

func (h *ConfigurableHook) AfterSwap(context.Context, common.Address, PoolKey, SwapParams, SignedDelta) (*big.Int, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return new(big.Int).Set(h.afterUnspecified), nil
}

// HookRegistry maps hook addresses to their implementations.
type HookRegistry struct {
	mu    sync.RWMutex
	hooks map[common.Address]Hook
}

func NewHookRegistry() *HookRegistry {
	return &HookRegistry{hooks: make(map[common.Address]Hook)}
}

// Register binds hook to addr after checking the address permission bits.
func (r *HookRegistry) Register(addr common.Address, hook Hook) error {
	if hook == nil {
		return fmt.Errorf("%w: nil hook for %s", ErrHookNotRegistered, addr.Hex())
	}
	if err := ValidateHookAddress(addr, hook.Flags()); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.hooks[addr]; ok && existing != hook {
		return fmt.Errorf("hook %s already registered", addr.Hex())
	}
	r.hooks[addr] = hook
	return nil
}

// Get returns the hook registered at addr.
func (r *HookRegistry) Get(addr common.Address) (Hook, bool) {
	r.mu.RLock()
	hook, ok := r.hooks[addr]
	r.mu.RUnlock()
	return hook, ok
}
