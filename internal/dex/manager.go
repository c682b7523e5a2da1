package dex

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Ledger moves balances between accounts and the pool manager's custody.
type Ledger interface {
	// Take pays amount of currency from custody to an account.
	Take(currency Currency, to common.Address, amount *big.Int) error
	// Settle pulls amount of currency from an account into custody.
	Settle(currency Currency, from common.Address, amount *big.Int) error
	BalanceOf(currency Currency, account common.Address) *big.Int
}

// PoolOption customises a pool at initialization.
type PoolOption func(*poolEntry)

// WithQuoter prices the pool with q instead of the manager default.
func WithQuoter(q Quoter) PoolOption {
	return func(p *poolEntry) {
		if q != nil {
			p.quoter = q
		}
	}
}

type poolEntry struct {
	key    PoolKey
	hook   Hook
	quoter Quoter
	// slot admits one open transaction at a time.
	slot chan struct{}
	// extending is set while the open transaction runs an extension callback.
	extending atomic.Bool

	mu       sync.RWMutex
	reserve0 *big.Int
	reserve1 *big.Int
}

func (p *poolEntry) reserves() (*big.Int, *big.Int) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return new(big.Int).Set(p.reserve0), new(big.Int).Set(p.reserve1)
}

func (p *poolEntry) setReserves(r0, r1 *big.Int) {
	p.mu.Lock()
	p.reserve0 = r0
	p.reserve1 = r1
	p.mu.Unlock()
}

// PoolManager owns pool state and runs transactions against it.
type PoolManager struct {
	ledger Ledger
	quoter Quoter
	hooks  *HookRegistry
	logger *zap.Logger

	mu    sync.RWMutex
	pools map[PoolID]*poolEntry
}

func NewPoolManager(ledger Ledger, quoter Quoter, logger *zap.Logger) *PoolManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if quoter == nil {
		quoter = FlatQuoter{}
	}
	return &PoolManager{
		ledger: ledger,
		quoter: quoter,
		hooks:  NewHookRegistry(),
		logger: logger,
		pools:  make(map[PoolID]*poolEntry),
	}
}

// Hooks returns the registry of hooks bound to pools.
func (m *PoolManager) Hooks() *HookRegistry {
	return m.hooks
}

// Initialize registers a pool with empty reserves. A zero hook address means
// the pool has no extension; otherwise hook must be non-nil and its flags
// must match the address.
func (m *PoolManager) Initialize(ctx context.Context, key PoolKey, hook Hook, opts ...PoolOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !key.Currency0.Less(key.Currency1) {
		return fmt.Errorf("%w: %s >= %s", ErrCurrencyNotSorted, key.Currency0, key.Currency1)
	}
	if key.Fee > MaxLPFee && !key.IsDynamicFee() {
		return fmt.Errorf("%w: %d pips", ErrInvalidFee, key.Fee)
	}

	if key.HasHook() {
		if err := m.hooks.Register(key.Hooks, hook); err != nil {
			return fmt.Errorf("initialize %s: %w", key, err)
		}
	} else if hook != nil && hook.Flags() != 0 {
		return fmt.Errorf("%w: hook with permissions %#x on a pool without hook address",
			ErrHookAddressMismatch, uint16(hook.Flags()))
	} else {
		hook = nil
	}

	entry := &poolEntry{
		key:      key,
		hook:     hook,
		quoter:   m.quoter,
		slot:     make(chan struct{}, 1),
		reserve0: big.NewInt(0),
		reserve1: big.NewInt(0),
	}
	for _, opt := range opts {
		opt(entry)
	}

	id := key.ID()
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pools[id]; ok {
		return fmt.Errorf("%w: %s", ErrPoolExists, id)
	}
	m.pools[id] = entry

	m.logger.Info("pool initialized",
		zap.String("pool", id.String()),
		zap.String("currency0", key.Currency0.String()),
		zap.String("currency1", key.Currency1.String()),
		zap.Uint32("fee", key.Fee),
		zap.String("hooks", key.Hooks.Hex()),
	)
	return nil
}

func (m *PoolManager) pool(key PoolKey) (*poolEntry, error) {
	id := key.ID()
	m.mu.RLock()
	entry, ok := m.pools[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPoolNotFound, id)
	}
	return entry, nil
}

// Reserves returns copies of the pool's committed reserves. Changes made by
// an open transaction are not visible until it commits.
func (m *PoolManager) Reserves(key PoolKey) (*big.Int, *big.Int, error) {
	entry, err := m.pool(key)
	if err != nil {
		return nil, nil, err
	}
	r0, r1 := entry.reserves()
	return r0, r1, nil
}

// Pool returns a snapshot of a registered pool.
func (m *PoolManager) Pool(key PoolKey) (Pool, error) {
	r0, r1, err := m.Reserves(key)
	if err != nil {
		return Pool{}, err
	}
	return Pool{Key: key, Reserve0: r0, Reserve1: r1}, nil
}

// Pools lists the keys of all registered pools.
func (m *PoolManager) Pools() []PoolKey {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]PoolKey, 0, len(m.pools))
	for _, entry := range m.pools {
		keys = append(keys, entry.key)
	}
	return keys
}

// Provide deposits liquidity from provider and raises the pool reserves.
func (m *PoolManager) Provide(ctx context.Context, key PoolKey, provider common.Address, amount0, amount1 *big.Int) error {
	return m.Unlock(ctx, key, provider, func(ctx context.Context, tx *Tx) error {
		if err := tx.Settle(key.Currency0, provider, amount0); err != nil {
			return err
		}
		if err := tx.Settle(key.Currency1, provider, amount1); err != nil {
			return err
		}
		return tx.addLiquidity(amount0, amount1)
	})
}

type openTxKey struct {
	pool PoolID
}

// Unlock runs fn inside a transaction holding exclusive access to the pool.
// Every account delta recorded by the transaction must net to zero when fn
// returns, otherwise all ledger movements and reserve changes are undone.
func (m *PoolManager) Unlock(ctx context.Context, key PoolKey, caller common.Address, fn func(ctx context.Context, tx *Tx) error) (err error) {
	entry, err := m.pool(key)
	if err != nil {
		return err
	}
	id := key.ID()
	if _, open := ctx.Value(openTxKey{pool: id}).(*Tx); open {
		return fmt.Errorf("%w: pool %s already unlocked in this call chain", ErrReentrancyDenied, id)
	}

	// An extension cannot be waiting for the slot its own transaction holds.
	if entry.extending.Load() {
		return fmt.Errorf("%w: pool %s is running an extension", ErrReentrancyDenied, id)
	}

	select {
	case entry.slot <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("wait for pool %s: %w", id, ctx.Err())
	}
	defer func() { <-entry.slot }()

	tx := newTx(m, entry, id, caller)
	txCtx := context.WithValue(ctx, openTxKey{pool: id}, tx)

	defer func() {
		if r := recover(); r != nil {
			if !tx.closed {
				_ = tx.rollback(fmt.Errorf("panic: %v", r))
			}
			panic(r)
		}
	}()

	if err := fn(txCtx, tx); err != nil {
		return tx.rollback(err)
	}
	if err := tx.checkBalanced(); err != nil {
		return tx.rollback(&StageError{Stage: StageSettling, Pool: id, Err: err})
	}
	tx.commit()
	return nil
}
