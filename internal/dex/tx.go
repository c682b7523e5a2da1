package dex

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

type ledgerOpKind uint8

const (
	opTake ledgerOpKind = iota
	opSettle
)

// ledgerOp is a journaled ledger movement. account is the recipient of a
// take or the payer of a settle.
type ledgerOp struct {
	kind     ledgerOpKind
	currency Currency
	account  common.Address
	amount   *big.Int
}

// Tx is an open transaction on one pool. It is not safe for concurrent use;
// it is only valid inside the function passed to Unlock.
type Tx struct {
	manager *PoolManager
	pool    *poolEntry
	id      PoolID
	caller  common.Address
	stage   Stage
	closed  bool

	deltas  map[common.Address]map[Currency]*big.Int
	journal []ledgerOp

	// reserve0 and reserve1 are the working reserves. They reach the pool
	// only on commit.
	reserve0 *big.Int
	reserve1 *big.Int

	last    SwapBreakdown
	swapped bool
}

// SwapBreakdown describes how the most recent swap of a transaction formed
// its final delta.
type SwapBreakdown struct {
	// Raw is the quote of the fee-adjusted amount at the effective LP fee.
	Raw SignedDelta
	// Reference is the quote of the same fee-adjusted amount at the pool's
	// base fee against the same reserves. It is unset when that quote failed.
	Reference    SignedDelta
	HasReference bool

	SpecifiedFee         *big.Int
	BeforeUnspecifiedFee *big.Int
	AfterUnspecifiedFee  *big.Int
	LPFee                uint32
	Final                SignedDelta
}

func newTx(m *PoolManager, pool *poolEntry, id PoolID, caller common.Address) *Tx {
	r0, r1 := pool.reserves()
	return &Tx{
		manager:  m,
		pool:     pool,
		id:       id,
		caller:   caller,
		stage:    StageLocked,
		deltas:   make(map[common.Address]map[Currency]*big.Int),
		reserve0: r0,
		reserve1: r1,
	}
}

// Caller is the account that opened the transaction.
func (t *Tx) Caller() common.Address { return t.caller }

// Stage is the current lifecycle stage.
func (t *Tx) Stage() Stage { return t.stage }

// LastSwap returns the breakdown of the most recent successful Swap.
func (t *Tx) LastSwap() (SwapBreakdown, bool) {
	return t.last, t.swapped
}

// Delta returns the caller's running delta for currency.
func (t *Tx) Delta(currency Currency) *big.Int {
	return new(big.Int).Set(t.delta(t.caller, currency))
}

func (t *Tx) delta(account common.Address, currency Currency) *big.Int {
	if byCurrency, ok := t.deltas[account]; ok {
		if d, ok := byCurrency[currency]; ok {
			return d
		}
	}
	return big.NewInt(0)
}

func (t *Tx) addDelta(account common.Address, currency Currency, amount *big.Int) error {
	next, err := addInt128(t.delta(account, currency), amount)
	if err != nil {
		return fmt.Errorf("delta %s/%s: %w", account.Hex(), currency, err)
	}
	byCurrency, ok := t.deltas[account]
	if !ok {
		byCurrency = make(map[Currency]*big.Int)
		t.deltas[account] = byCurrency
	}
	byCurrency[currency] = next
	return nil
}

func (t *Tx) usable(key PoolKey) error {
	if t.closed {
		return ErrTxClosed
	}
	if key.ID() != t.id {
		return fmt.Errorf("%w: %s", ErrPoolNotLocked, key.ID())
	}
	return nil
}

// Take pays amount of currency from custody to to, debiting the caller.
func (t *Tx) Take(currency Currency, to common.Address, amount *big.Int) error {
	if t.closed {
		return ErrTxClosed
	}
	return t.take(t.caller, currency, to, amount)
}

// Settle pulls amount of currency from from into custody, crediting the caller.
func (t *Tx) Settle(currency Currency, from common.Address, amount *big.Int) error {
	if t.closed {
		return ErrTxClosed
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	if amount.Sign() == 0 {
		return nil
	}
	if err := t.addDelta(t.caller, currency, amount); err != nil {
		return err
	}
	if err := t.manager.ledger.Settle(currency, from, amount); err != nil {
		t.deltas[t.caller][currency].Sub(t.deltas[t.caller][currency], amount)
		return fmt.Errorf("settle %s from %s: %w", currency, from.Hex(), err)
	}
	t.journal = append(t.journal, ledgerOp{kind: opSettle, currency: currency, account: from, amount: new(big.Int).Set(amount)})
	return nil
}

func (t *Tx) take(account common.Address, currency Currency, to common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if amount.Sign() == 0 {
		return nil
	}
	if err := t.addDelta(account, currency, new(big.Int).Neg(amount)); err != nil {
		return err
	}
	if err := t.manager.ledger.Take(currency, to, amount); err != nil {
		t.deltas[account][currency].Add(t.deltas[account][currency], amount)
		return fmt.Errorf("take %s to %s: %w", currency, to.Hex(), err)
	}
	t.journal = append(t.journal, ledgerOp{kind: opTake, currency: currency, account: to, amount: new(big.Int).Set(amount)})
	return nil
}

func checkAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, amount)
	}
	return nil
}

// chargeHook credits the hook with fee and immediately pays it out of custody.
func (t *Tx) chargeHook(hookAddr common.Address, currency Currency, fee *big.Int) error {
	if fee.Sign() == 0 {
		return nil
	}
	if err := t.addDelta(hookAddr, currency, fee); err != nil {
		return err
	}
	return t.take(hookAddr, currency, hookAddr, fee)
}

// Quote previews params against the working reserves at the pool's base
// fee, without running any extension or moving reserves.
func (t *Tx) Quote(ctx context.Context, key PoolKey, params SwapParams) (SignedDelta, error) {
	if err := t.usable(key); err != nil {
		return SignedDelta{}, err
	}
	if err := params.validate(); err != nil {
		return SignedDelta{}, err
	}
	return t.pool.quoter.Quote(ctx, t.state(t.baseFee()), params)
}

func (t *Tx) baseFee() uint32 {
	if t.pool.key.IsDynamicFee() {
		return 0
	}
	return t.pool.key.Fee
}

func (t *Tx) state(fee uint32) PoolState {
	return PoolState{
		Key:      t.pool.key,
		Reserve0: new(big.Int).Set(t.reserve0),
		Reserve1: new(big.Int).Set(t.reserve1),
		Fee:      fee,
	}
}

// extend runs an extension callback with the pool marked as extending, so
// that the extension cannot open another transaction on it.
func (t *Tx) extend(fn func() error) error {
	t.pool.extending.Store(true)
	defer t.pool.extending.Store(false)
	return fn()
}

// Swap executes params against the pool, running the pool's extension
// around pricing, and accrues the resulting delta to the caller.
func (t *Tx) Swap(ctx context.Context, key PoolKey, params SwapParams) (SignedDelta, error) {
	if err := t.usable(key); err != nil {
		return SignedDelta{}, err
	}
	if err := params.validate(); err != nil {
		return SignedDelta{}, &StageError{Stage: t.stage, Pool: t.id, Err: err}
	}
	delta, err := t.swap(ctx, params)
	if err != nil {
		return SignedDelta{}, &StageError{Stage: t.stage, Pool: t.id, Err: err}
	}
	return delta, nil
}

func (t *Tx) swap(ctx context.Context, params SwapParams) (SignedDelta, error) {
	key := t.pool.key
	hook := t.pool.hook
	var flags HookFlags
	if hook != nil {
		flags = hook.Flags()
	}
	specifiedIs0 := params.SpecifiedIsCurrency0()
	specified, unspecified := params.SpecifiedCurrency(key)

	specifiedFee := big.NewInt(0)
	beforeUnspecifiedFee := big.NewInt(0)
	fee := t.baseFee()

	t.stage = StageExtendingBefore
	if flags.Has(BeforeSwap) {
		var res BeforeSwapResult
		err := t.extend(func() (err error) {
			res, err = hook.BeforeSwap(ctx, t.caller, key, copyParams(params))
			return err
		})
		if err != nil {
			return SignedDelta{}, fmt.Errorf("before swap hook: %w", err)
		}
		specifiedFee = new(big.Int).Set(orZero(res.SpecifiedFee))
		beforeUnspecifiedFee = new(big.Int).Set(orZero(res.UnspecifiedFee))
		if !isNonNegative(specifiedFee) || !isNonNegative(beforeUnspecifiedFee) {
			return SignedDelta{}, fmt.Errorf("%w: before swap (%s, %s)", ErrNegativeFee, specifiedFee, beforeUnspecifiedFee)
		}
		if (specifiedFee.Sign() != 0 || beforeUnspecifiedFee.Sign() != 0) && !flags.Has(BeforeSwapReturnsDelta) {
			return SignedDelta{}, fmt.Errorf("%w: before swap", ErrHookDeltaNotPermitted)
		}
		if magnitude := new(big.Int).Abs(params.AmountSpecified); specifiedFee.Cmp(magnitude) > 0 {
			return SignedDelta{}, fmt.Errorf("%w: fee %s > |%s|", ErrFeeExceedsSwapAmount, specifiedFee, params.AmountSpecified)
		}
		if res.FeeOverride != 0 && key.IsDynamicFee() {
			if res.FeeOverride > MaxLPFee {
				return SignedDelta{}, fmt.Errorf("%w: override %d pips", ErrInvalidFee, res.FeeOverride)
			}
			fee = res.FeeOverride
		}
		if err := t.chargeHook(key.Hooks, specified, specifiedFee); err != nil {
			return SignedDelta{}, err
		}
		if err := t.chargeHook(key.Hooks, unspecified, beforeUnspecifiedFee); err != nil {
			return SignedDelta{}, err
		}
	}

	amountToSwap, err := addInt128(params.AmountSpecified, specifiedFee)
	if err != nil {
		return SignedDelta{}, err
	}
	swapParams := SwapParams{
		ZeroForOne:      params.ZeroForOne,
		AmountSpecified: amountToSwap,
		PriceLimitX96:   params.PriceLimitX96,
	}
	t.stage = StagePriced
	state := t.state(fee)
	raw, err := t.pool.quoter.Quote(ctx, state, swapParams)
	if err != nil {
		return SignedDelta{}, fmt.Errorf("quote: %w", err)
	}
	if err := raw.Validate(); err != nil {
		return SignedDelta{}, fmt.Errorf("quote: %w", err)
	}
	reference, hasReference := raw, true
	if base := t.baseFee(); fee != base {
		state.Fee = base
		if reference, err = t.pool.quoter.Quote(ctx, state, swapParams); err != nil || reference.Validate() != nil {
			reference, hasReference = SignedDelta{}, false
		}
	}
	if err := t.moveReserves(raw); err != nil {
		return SignedDelta{}, err
	}

	afterUnspecifiedFee := big.NewInt(0)
	if flags.Has(AfterSwap) {
		t.stage = StageExtendingAfter
		var hookFee *big.Int
		err := t.extend(func() (err error) {
			hookFee, err = hook.AfterSwap(ctx, t.caller, key, copyParams(params), NewSignedDelta(raw.Amount0, raw.Amount1))
			return err
		})
		if err != nil {
			return SignedDelta{}, fmt.Errorf("after swap hook: %w", err)
		}
		afterUnspecifiedFee = new(big.Int).Set(orZero(hookFee))
		if !isNonNegative(afterUnspecifiedFee) {
			return SignedDelta{}, fmt.Errorf("%w: after swap %s", ErrNegativeFee, afterUnspecifiedFee)
		}
		if afterUnspecifiedFee.Sign() != 0 && !flags.Has(AfterSwapReturnsDelta) {
			return SignedDelta{}, fmt.Errorf("%w: after swap", ErrHookDeltaNotPermitted)
		}
		if err := t.chargeHook(key.Hooks, unspecified, afterUnspecifiedFee); err != nil {
			return SignedDelta{}, err
		}
	}

	specifiedAmount, err := subInt128(raw.Get(specifiedIs0), specifiedFee)
	if err != nil {
		return SignedDelta{}, err
	}
	unspecifiedAmount, err := subInt128(raw.Get(!specifiedIs0), beforeUnspecifiedFee)
	if err != nil {
		return SignedDelta{}, err
	}
	if unspecifiedAmount, err = subInt128(unspecifiedAmount, afterUnspecifiedFee); err != nil {
		return SignedDelta{}, err
	}

	final := SignedDelta{Amount0: specifiedAmount, Amount1: unspecifiedAmount}
	if !specifiedIs0 {
		final = SignedDelta{Amount0: unspecifiedAmount, Amount1: specifiedAmount}
	}
	if err := t.addDelta(t.caller, key.Currency0, final.Amount0); err != nil {
		return SignedDelta{}, err
	}
	if err := t.addDelta(t.caller, key.Currency1, final.Amount1); err != nil {
		return SignedDelta{}, err
	}
	t.stage = StageSettling
	t.last = SwapBreakdown{
		Raw:                  raw,
		Reference:            reference,
		HasReference:         hasReference,
		SpecifiedFee:         specifiedFee,
		BeforeUnspecifiedFee: beforeUnspecifiedFee,
		AfterUnspecifiedFee:  afterUnspecifiedFee,
		LPFee:                fee,
		Final:                NewSignedDelta(final.Amount0, final.Amount1),
	}
	t.swapped = true

	t.manager.logger.Debug("swap",
		zap.String("pool", t.id.String()),
		zap.String("caller", t.caller.Hex()),
		zap.Bool("zeroForOne", params.ZeroForOne),
		zap.String("amountSpecified", params.AmountSpecified.String()),
		zap.String("raw", raw.String()),
		zap.String("final", final.String()),
		zap.String("specifiedFee", specifiedFee.String()),
		zap.String("beforeUnspecifiedFee", beforeUnspecifiedFee.String()),
		zap.String("afterUnspecifiedFee", afterUnspecifiedFee.String()),
		zap.Uint32("lpFee", fee),
	)
	return final, nil
}

// moveReserves applies a party-perspective delta to the working reserves.
func (t *Tx) moveReserves(raw SignedDelta) error {
	r0 := new(big.Int).Sub(t.reserve0, raw.Amount0)
	r1 := new(big.Int).Sub(t.reserve1, raw.Amount1)
	if r0.Sign() < 0 || r1.Sign() < 0 {
		return fmt.Errorf("%w: reserves would become (%s, %s)", ErrInsufficientLiquidity, r0, r1)
	}
	t.reserve0, t.reserve1 = r0, r1
	return nil
}

// addLiquidity raises reserves, consuming the caller's settled credit.
func (t *Tx) addLiquidity(amount0, amount1 *big.Int) error {
	if err := checkAmount(amount0); err != nil {
		return err
	}
	if err := checkAmount(amount1); err != nil {
		return err
	}
	if err := t.addDelta(t.caller, t.pool.key.Currency0, new(big.Int).Neg(amount0)); err != nil {
		return err
	}
	if err := t.addDelta(t.caller, t.pool.key.Currency1, new(big.Int).Neg(amount1)); err != nil {
		return err
	}
	t.reserve0 = new(big.Int).Add(t.reserve0, amount0)
	t.reserve1 = new(big.Int).Add(t.reserve1, amount1)
	return nil
}

// checkBalanced requires every account delta to be zero.
func (t *Tx) checkBalanced() error {
	accounts := make([]common.Address, 0, len(t.deltas))
	for account := range t.deltas {
		accounts = append(accounts, account)
	}
	sort.Slice(accounts, func(i, j int) bool {
		return bytes.Compare(accounts[i].Bytes(), accounts[j].Bytes()) < 0
	})
	for _, account := range accounts {
		currencies := make([]Currency, 0, len(t.deltas[account]))
		for currency := range t.deltas[account] {
			currencies = append(currencies, currency)
		}
		sort.Slice(currencies, func(i, j int) bool { return currencies[i].Less(currencies[j]) })
		for _, currency := range currencies {
			if d := t.deltas[account][currency]; d.Sign() != 0 {
				return fmt.Errorf("%w: account %s currency %s delta %s", ErrGlobalImbalance, account.Hex(), currency, d)
			}
		}
	}
	return nil
}

func (t *Tx) commit() {
	t.pool.setReserves(t.reserve0, t.reserve1)
	t.stage = StageUnlocked
	t.closed = true
	t.journal = nil
}

// rollback undoes journaled ledger movements in reverse order and discards
// the working reserves.
func (t *Tx) rollback(cause error) error {
	var errs []error
	ledger := t.manager.ledger
	for i := len(t.journal) - 1; i >= 0; i-- {
		op := t.journal[i]
		var err error
		switch op.kind {
		case opTake:
			err = ledger.Settle(op.currency, op.account, op.amount)
		case opSettle:
			err = ledger.Take(op.currency, op.account, op.amount)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("undo %s of %s %s: %w", op.kind, op.amount, op.currency, err))
		}
	}
	t.journal = nil
	t.deltas = nil
	t.stage = StageRolledBack
	t.closed = true

	t.manager.logger.Warn("transaction rolled back",
		zap.String("pool", t.id.String()),
		zap.String("caller", t.caller.Hex()),
		zap.Error(cause),
	)
	if len(errs) > 0 {
		rbErr := errors.Join(errs...)
		t.manager.logger.Error("rollback incomplete", zap.String("pool", t.id.String()), zap.Error(rbErr))
		return errors.Join(cause, fmt.Errorf("rollback: %w", rbErr))
	}
	return cause
}

func (k ledgerOpKind) String() string {
	if k == opTake {
		return "take"
	}
	return "settle"
}

func copyParams(p SwapParams) SwapParams {
	out := SwapParams{ZeroForOne: p.ZeroForOne, AmountSpecified: new(big.Int).Set(p.AmountSpecified)}
	if p.PriceLimitX96 != nil {
		out.PriceLimitX96 = new(big.Int).Set(p.PriceLimitX96)
	}
	return out
}
