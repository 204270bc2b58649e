package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"traderScope/internal/model"
)

// DexConfig describes one DEX factory.
type DexConfig struct {
	Name       string `mapstructure:"name"`
	Kind       string `mapstructure:"kind"`
	Factory    string `mapstructure:"factory"`
	StartBlock uint64 `mapstructure:"start-block"`
}

// Config holds configuration values loaded from .env, flags, env, or config file.
// It is built once and passed by value to every component.
type Config struct {
	ChainID          uint64
	RPCURLs          []string
	PostgresDSN      string
	MulticallAddress string
	WrappedNative    string
	StableTokens     []string
	AnchorPool       string
	Dexes            []DexConfig

	USDPrecision       int32
	BatchCallLimit     int
	MulticallLimit     int
	PriceConcurrency   int
	ReceiptStreams     int
	LogRangeSize       uint64
	LogRangeBatch      int
	AvgBlockTime       float64
	PriceTimeframe     time.Duration
	PriceHorizon       time.Duration
	CanonicalPoolLimit int
	LiquidityMaxAge    time.Duration
	LiquidityBatch     int
	FlowEpsilon        float64
	RecoveryAttempts   int

	MaxRetries        int
	RetryBackoff      time.Duration
	HTTPRetryMax      int
	RequestsPerSecond float64
	LogLevel          string
}

var defaultDexes = []DexConfig{
	{Name: "UNISWAP_V2", Kind: "constant_product", Factory: "0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f", StartBlock: 10008355},
	{Name: "UNISWAP_V3", Kind: "concentrated", Factory: "0x1F98431c8aD98523631AE4a59f267346ea31F984", StartBlock: 12369662},
	{Name: "SUSHISWAP_V2", Kind: "constant_product", Factory: "0xC0AEe478e3658e2610c5F7A4A2E1777cE9e4f2Ac", StartBlock: 10822038},
}

// Load merges .env, config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("TRADERSCOPE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("chain-id", uint64(1))
	v.SetDefault("multicall-address", "0xcA11bde05977b3631167028862bE2a173976CA11")
	v.SetDefault("wrapped-native", "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2")
	v.SetDefault("stable-tokens", []string{
		"0xdac17f958d2ee523a2206206994597c13d831ec7",
		"0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48",
		"0x6b175474e89094c44da98b954eedeac495271d0f",
	})
	v.SetDefault("anchor-pool", "0x0d4a11d5eeaac28ec3f61d100daf4d40471f1852")
	v.SetDefault("usd-precision", 6)
	v.SetDefault("batch-call-limit", 1000)
	v.SetDefault("multicall-limit", 1000)
	v.SetDefault("price-concurrency", 20)
	v.SetDefault("receipt-streams", 3)
	v.SetDefault("log-range-size", uint64(20000))
	v.SetDefault("log-range-batch", 5)
	v.SetDefault("avg-block-time", 13.7)
	v.SetDefault("price-timeframe", 60*time.Minute)
	v.SetDefault("price-horizon", 90*24*time.Hour)
	v.SetDefault("canonical-pool-limit", 2300)
	v.SetDefault("liquidity-max-age", 24*time.Hour)
	v.SetDefault("liquidity-batch", 1000)
	v.SetDefault("flow-epsilon", 1e-7)
	v.SetDefault("recovery-attempts", 3)
	v.SetDefault("max-retries", 2)
	v.SetDefault("retry-backoff", 200*time.Millisecond)
	v.SetDefault("http-retry-max", 3)
	v.SetDefault("requests-per-second", 0.0)
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

	dexes := defaultDexes
	if v.IsSet("dexes") {
		dexes = nil
		if err := v.UnmarshalKey("dexes", &dexes); err != nil {
			return Config{}, fmt.Errorf("read dexes: %w", err)
		}
	}

	cfg := Config{
		ChainID:            v.GetUint64("chain-id"),
		RPCURLs:            getStringSlice(v, "rpc"),
		PostgresDSN:        v.GetString("pg-dsn"),
		MulticallAddress:   strings.ToLower(v.GetString("multicall-address")),
		WrappedNative:      strings.ToLower(v.GetString("wrapped-native")),
		StableTokens:       lowerAll(getStringSlice(v, "stable-tokens")),
		AnchorPool:         strings.ToLower(v.GetString("anchor-pool")),
		Dexes:              dexes,
		USDPrecision:       v.GetInt32("usd-precision"),
		BatchCallLimit:     v.GetInt("batch-call-limit"),
		MulticallLimit:     v.GetInt("multicall-limit"),
		PriceConcurrency:   v.GetInt("price-concurrency"),
		ReceiptStreams:     v.GetInt("receipt-streams"),
		LogRangeSize:       v.GetUint64("log-range-size"),
		LogRangeBatch:      v.GetInt("log-range-batch"),
		AvgBlockTime:       v.GetFloat64("avg-block-time"),
		PriceTimeframe:     v.GetDuration("price-timeframe"),
		PriceHorizon:       v.GetDuration("price-horizon"),
		CanonicalPoolLimit: v.GetInt("canonical-pool-limit"),
		LiquidityMaxAge:    v.GetDuration("liquidity-max-age"),
		LiquidityBatch:     v.GetInt("liquidity-batch"),
		FlowEpsilon:        v.GetFloat64("flow-epsilon"),
		RecoveryAttempts:   v.GetInt("recovery-attempts"),
		MaxRetries:         v.GetInt("max-retries"),
		RetryBackoff:       v.GetDuration("retry-backoff"),
		HTTPRetryMax:       v.GetInt("http-retry-max"),
		RequestsPerSecond:  v.GetFloat64("requests-per-second"),
		LogLevel:           v.GetString("log-level"),
	}

	return cfg, nil
}

// Validate checks the values every command depends on.
func (c Config) Validate() error {
	if len(c.RPCURLs) == 0 {
		return errors.New("at least one --rpc url is required")
	}
	for _, addr := range append([]string{c.MulticallAddress, c.WrappedNative}, c.StableTokens...) {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("invalid address %q", addr)
		}
	}
	if c.AnchorPool != "" && !common.IsHexAddress(c.AnchorPool) {
		return fmt.Errorf("invalid anchor pool %q", c.AnchorPool)
	}
	if len(c.StableTokens) == 0 {
		return errors.New("at least one stable token is required")
	}
	if c.AvgBlockTime <= 0 {
		return errors.New("avg-block-time must be positive")
	}
	if c.PriceTimeframe <= 0 || c.PriceHorizon <= 0 {
		return errors.New("price-timeframe and price-horizon must be positive")
	}
	if c.MulticallLimit <= 0 || c.BatchCallLimit <= 0 {
		return errors.New("multicall-limit and batch-call-limit must be positive")
	}
	for _, d := range c.Dexes {
		if _, err := model.ParsePoolKind(d.Kind); err != nil {
			return fmt.Errorf("dex %s: %w", d.Name, err)
		}
		if !common.IsHexAddress(d.Factory) {
			return fmt.Errorf("dex %s: invalid factory %q", d.Name, d.Factory)
		}
	}
	return nil
}

// BlockStep is the width of one price bucket in blocks.
func (c Config) BlockStep() uint64 {
	return blocksFor(c.PriceTimeframe, c.AvgBlockTime)
}

// HorizonBlocks is the length of the price history in blocks.
func (c Config) HorizonBlocks() uint64 {
	return blocksFor(c.PriceHorizon, c.AvgBlockTime)
}

// LiquidityMaxAgeBlocks is the liquidity refresh window in blocks.
func (c Config) LiquidityMaxAgeBlocks() uint64 {
	return blocksFor(c.LiquidityMaxAge, c.AvgBlockTime)
}

func blocksFor(d time.Duration, avgBlockTime float64) uint64 {
	if avgBlockTime <= 0 {
		return 0
	}
	return uint64(math.Ceil(d.Seconds() / avgBlockTime))
}

func lowerAll(items []string) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = strings.ToLower(item)
	}
	return out
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
