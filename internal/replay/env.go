package replay

import (
	"context"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"hookGuard/internal/config"
	"hookGuard/internal/dex"
	"hookGuard/internal/ledger"
	"hookGuard/internal/router"
)

// SeedProvider is the account that deposits configured pool reserves.
var SeedProvider = common.HexToAddress("0x0000000000000000000000000000000000005eed")

// ReserveSource loads live reserves for a pool declared with a source pool.
type ReserveSource interface {
	Reserves(ctx context.Context, pool, token0, token1 common.Address, block *big.Int) (*big.Int, *big.Int, error)
}

// Environment is a fully wired engine built from configuration.
type Environment struct {
	Manager       *dex.PoolManager
	Ledger        *ledger.MemoryLedger
	Routers       map[string]router.Router
	DefaultRouter string
	Pools         map[string]dex.PoolKey
	Hooks         map[string]*dex.ConfigurableHook
}

// NewEnvironment registers the configured pools, seeds their reserves and
// funds the configured accounts. source may be nil when no pool declares a
// source pool.
func NewEnvironment(ctx context.Context, cfg config.Config, source ReserveSource, logger *zap.Logger) (*Environment, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var custody common.Address
	if cfg.Custody != "" {
		addr, err := config.ParseAddress(cfg.Custody)
		if err != nil {
			return nil, fmt.Errorf("custody: %w", err)
		}
		custody = addr
	}

	l := ledger.NewMemoryLedger(custody, logger.Named("ledger"))
	pm := dex.NewPoolManager(l, dex.FlatQuoter{}, logger.Named("core"))
	env := &Environment{
		Manager: pm,
		Ledger:  l,
		Routers: map[string]router.Router{
			"safe":      router.NewSafe(pm, logger, router.WithMaxExtensionTakeBps(cfg.MaxExtensionTakeBps)),
			"unchecked": router.NewUnchecked(pm, logger),
		},
		DefaultRouter: cfg.Router,
		Pools:         make(map[string]dex.PoolKey, len(cfg.Pools)),
		Hooks:         make(map[string]*dex.ConfigurableHook),
	}
	if env.DefaultRouter == "" {
		env.DefaultRouter = "safe"
	}

	for _, pc := range cfg.Pools {
		if err := env.addPool(ctx, pc, source, logger); err != nil {
			return nil, fmt.Errorf("pool %s: %w", pc.Name, err)
		}
	}

	for _, ac := range cfg.Accounts {
		account, err := config.ParseAddress(ac.Address)
		if err != nil {
			return nil, err
		}
		for currencyHex, amountStr := range ac.Balances {
			currency, err := config.ParseAddress(currencyHex)
			if err != nil {
				return nil, fmt.Errorf("account %s: %w", ac.Address, err)
			}
			amount, err := config.ParseNonNegative(amountStr)
			if err != nil {
				return nil, fmt.Errorf("account %s: %w", ac.Address, err)
			}
			if err := l.Mint(dex.Currency{Address: currency}, account, amount); err != nil {
				return nil, fmt.Errorf("fund %s: %w", ac.Address, err)
			}
		}
	}

	return env, nil
}

func (e *Environment) addPool(ctx context.Context, pc config.PoolConfig, source ReserveSource, logger *zap.Logger) error {
	c0, err := config.ParseAddress(pc.Currency0)
	if err != nil {
		return err
	}
	c1, err := config.ParseAddress(pc.Currency1)
	if err != nil {
		return err
	}
	key := dex.PoolKey{
		Currency0:   dex.Currency{Address: c0},
		Currency1:   dex.Currency{Address: c1},
		Fee:         pc.Fee,
		TickSpacing: pc.TickSpacing,
	}

	var hook dex.Hook
	if pc.Hook.Seed != "" {
		h, err := newHook(pc.Hook)
		if err != nil {
			return err
		}
		key.Hooks = dex.NewHookAddress(h.Flags(), pc.Hook.Seed)
		e.Hooks[pc.Name] = h
		hook = h
	}

	var quoter dex.Quoter = dex.FlatQuoter{}
	if pc.Quoter == "constant-product" {
		quoter = dex.ConstantProductQuoter{}
	}
	if err := e.Manager.Initialize(ctx, key, hook, dex.WithQuoter(quoter)); err != nil {
		return err
	}
	e.Pools[pc.Name] = key

	reserve0, reserve1, err := poolReserves(ctx, pc, key, source)
	if err != nil {
		return err
	}
	if reserve0.Sign() == 0 && reserve1.Sign() == 0 {
		return nil
	}
	if err := e.Ledger.Mint(key.Currency0, SeedProvider, reserve0); err != nil {
		return err
	}
	if err := e.Ledger.Mint(key.Currency1, SeedProvider, reserve1); err != nil {
		return err
	}
	if err := e.Manager.Provide(ctx, key, SeedProvider, reserve0, reserve1); err != nil {
		return fmt.Errorf("seed reserves: %w", err)
	}
	logger.Info("pool seeded",
		zap.String("pool", pc.Name),
		zap.String("id", key.ID().String()),
		zap.String("reserve0", reserve0.String()),
		zap.String("reserve1", reserve1.String()),
	)
	return nil
}

func poolReserves(ctx context.Context, pc config.PoolConfig, key dex.PoolKey, source ReserveSource) (*big.Int, *big.Int, error) {
	if pc.SourcePool != "" {
		if source == nil {
			return nil, nil, fmt.Errorf("source-pool %s set but no rpc configured", pc.SourcePool)
		}
		addr, err := config.ParseAddress(pc.SourcePool)
		if err != nil {
			return nil, nil, fmt.Errorf("source-pool: %w", err)
		}
		return source.Reserves(ctx, addr, key.Currency0.Address, key.Currency1.Address, nil)
	}
	reserve0, err := config.ParseNonNegative(pc.Reserve0)
	if err != nil {
		return nil, nil, fmt.Errorf("reserve0: %w", err)
	}
	reserve1, err := config.ParseNonNegative(pc.Reserve1)
	if err != nil {
		return nil, nil, fmt.Errorf("reserve1: %w", err)
	}
	return reserve0, reserve1, nil
}

func newHook(hc config.HookConfig) (*dex.ConfigurableHook, error) {
	beforeSpecified, err := config.ParseNonNegative(hc.BeforeSpecified)
	if err != nil {
		return nil, fmt.Errorf("before-specified: %w", err)
	}
	beforeUnspecified, err := config.ParseNonNegative(hc.BeforeUnspecified)
	if err != nil {
		return nil, fmt.Errorf("before-unspecified: %w", err)
	}
	afterUnspecified, err := config.ParseNonNegative(hc.AfterUnspecified)
	if err != nil {
		return nil, fmt.Errorf("after-unspecified: %w", err)
	}
	h := dex.NewConfigurableHook()
	h.SetFees(beforeSpecified, beforeUnspecified, afterUnspecified)
	h.SetFeeOverride(hc.FeeOverride)
	return h, nil
}

// Router returns the named router, or the default for an empty name.
func (e *Environment) Router(name string) (router.Router, string, error) {
	if name == "" {
		name = e.DefaultRouter
	}
	r, ok := e.Routers[name]
	if !ok {
		return nil, name, fmt.Errorf("unknown router %q", name)
	}
	return r, name, nil
}

// PoolNames lists configured pool names in sorted order.
func (e *Environment) PoolNames() []string {
	names := make([]string, 0, len(e.Pools))
	for name := range e.Pools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
