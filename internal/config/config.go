package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	LogLevel string

	Router              string
	MaxExtensionTakeBps uint32
	Custody             string
	Pools               []PoolConfig
	Accounts            []AccountConfig

	Requests        string
	Out             string
	StatsOut        string
	Snapshot        string
	SnapshotEnabled bool
	PGDSN           string
	Workers         int
	BatchSize       int
	OnlyPools       []string

	RPCURL       string
	MaxRetries   int
	RetryBackoff time.Duration
}

// PoolConfig declares a pool and its optional extension.
type PoolConfig struct {
	Name        string     `mapstructure:"name"`
	Currency0   string     `mapstructure:"currency0"`
	Currency1   string     `mapstructure:"currency1"`
	Fee         uint32     `mapstructure:"fee"`
	TickSpacing int32      `mapstructure:"tick-spacing"`
	Quoter      string     `mapstructure:"quoter"`
	Reserve0    string     `mapstructure:"reserve0"`
	Reserve1    string     `mapstructure:"reserve1"`
	SourcePool  string     `mapstructure:"source-pool"`
	Hook        HookConfig `mapstructure:"hook"`
}

// HookConfig configures a fixed-fee extension. An empty Seed means no hook.
type HookConfig struct {
	Seed              string `mapstructure:"seed"`
	BeforeSpecified   string `mapstructure:"before-specified"`
	BeforeUnspecified string `mapstructure:"before-unspecified"`
	AfterUnspecified  string `mapstructure:"after-unspecified"`
	FeeOverride       uint32 `mapstructure:"fee-override"`
}

// AccountConfig funds an account with per-currency balances.
type AccountConfig struct {
	Address  string            `mapstructure:"address"`
	Balances map[string]string `mapstructure:"balances"`
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SETTLE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("router", "safe")
	v.SetDefault("max-extension-take-bps", uint32(0))
	v.SetDefault("out", "./data/outcomes.jsonl")
	v.SetDefault("stats-out", "./data/pool_stats.jsonl")
	v.SetDefault("snapshot", "./data/ledger.json")
	v.SetDefault("snapshot-enabled", false)
	v.SetDefault("workers", 4)
	v.SetDefault("batch-size", 500)
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		LogLevel:            v.GetString("log-level"),
		Router:              strings.ToLower(v.GetString("router")),
		MaxExtensionTakeBps: v.GetUint32("max-extension-take-bps"),
		Custody:             v.GetString("custody"),
		Requests:            v.GetString("in"),
		Out:                 v.GetString("out"),
		StatsOut:            v.GetString("stats-out"),
		Snapshot:            v.GetString("snapshot"),
		SnapshotEnabled:     v.GetBool("snapshot-enabled"),
		PGDSN:               v.GetString("pg-dsn"),
		Workers:             v.GetInt("workers"),
		BatchSize:           v.GetInt("batch-size"),
		OnlyPools:           getStringSlice(v, "only-pools"),
		RPCURL:              v.GetString("rpc"),
		MaxRetries:          v.GetInt("max-retries"),
		RetryBackoff:        v.GetDuration("retry-backoff"),
	}

	if err := v.UnmarshalKey("pools", &cfg.Pools); err != nil {
		return Config{}, fmt.Errorf("decode pools: %w", err)
	}
	if err := v.UnmarshalKey("accounts", &cfg.Accounts); err != nil {
		return Config{}, fmt.Errorf("decode accounts: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks the values that do not depend on chain state.
func (c Config) Validate() error {
	switch c.Router {
	case "safe", "unchecked":
	default:
		return fmt.Errorf("unknown router %q (want safe or unchecked)", c.Router)
	}
	if c.MaxExtensionTakeBps > 10_000 {
		return fmt.Errorf("max-extension-take-bps %d exceeds 10000", c.MaxExtensionTakeBps)
	}
	if c.Custody != "" {
		if _, err := ParseAddress(c.Custody); err != nil {
			return fmt.Errorf("custody: %w", err)
		}
	}

	seen := make(map[string]struct{}, len(c.Pools))
	for i, p := range c.Pools {
		if p.Name == "" {
			return fmt.Errorf("pool %d: name is required", i)
		}
		if _, ok := seen[p.Name]; ok {
			return fmt.Errorf("pool %s: duplicate name", p.Name)
		}
		seen[p.Name] = struct{}{}
		if _, err := ParseAddress(p.Currency0); err != nil {
			return fmt.Errorf("pool %s currency0: %w", p.Name, err)
		}
		if _, err := ParseAddress(p.Currency1); err != nil {
			return fmt.Errorf("pool %s currency1: %w", p.Name, err)
		}
		switch p.Quoter {
		case "", "flat", "constant-product":
		default:
			return fmt.Errorf("pool %s: unknown quoter %q", p.Name, p.Quoter)
		}
	}

	for i, a := range c.Accounts {
		if _, err := ParseAddress(a.Address); err != nil {
			return fmt.Errorf("account %d: %w", i, err)
		}
	}
	return nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
