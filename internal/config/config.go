// Package config defines the single validated configuration structure for
// the sniper. Every recognized option is an explicit field; unknown or
// out-of-range values are rejected at load time rather than defaulted
// silently at use sites.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Trading modes.
const (
	ModeDryRun = "dry_run"
	ModeLive   = "live"
)

// Config is the root configuration for one bot instance.
type Config struct {
	Mode string `mapstructure:"mode"`

	Solana   SolanaConfig   `mapstructure:"solana"`
	Wallet   WalletConfig   `mapstructure:"wallet"`
	Strategy StrategyConfig `mapstructure:"strategy"`
	Momentum MomentumConfig `mapstructure:"momentum"`
	Risk     RiskConfig     `mapstructure:"risk"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Log      LogConfig      `mapstructure:"log"`
	Server   ServerConfig   `mapstructure:"server"`
}

// SolanaConfig holds feed and settlement endpoints.
type SolanaConfig struct {
	RPCEndpoint   string `mapstructure:"rpc_endpoint"`
	WSEndpoint    string `mapstructure:"ws_endpoint"`
	TradeEndpoint string `mapstructure:"trade_endpoint"` // swap relay for live order submission
}

// WalletConfig holds capital parameters.
type WalletConfig struct {
	InitialCapitalSOL float64 `mapstructure:"initial_capital_sol"` // dry-run starting balance
	MinReserveSOL     float64 `mapstructure:"min_reserve_sol"`     // never reserved for positions
}

// StrategyConfig holds entry/exit parameters.
type StrategyConfig struct {
	ObservationWindow  time.Duration `mapstructure:"observation_window"`
	PricePollInterval  time.Duration `mapstructure:"price_poll_interval"`
	MaxPositionPct     float64       `mapstructure:"max_position_pct"` // share of tradeable capital per entry, 0..1
	MaxSlippagePct     float64       `mapstructure:"max_slippage_pct"`
	TradingFeePct      float64       `mapstructure:"trading_fee_pct"` // per side, e.g. 0.0125
	ProfitTargetRatio  float64       `mapstructure:"profit_target_ratio"`
	StopLossRatio      float64       `mapstructure:"stop_loss_ratio"`
	TrailingStopRatio  float64       `mapstructure:"trailing_stop_ratio"`
	MinHoldTime        time.Duration `mapstructure:"min_hold_time"`
	MaxHoldTime        time.Duration `mapstructure:"max_hold_time"`
	MinCurveFillPct    float64       `mapstructure:"min_curve_fill_pct"`
	MaxCurveFillPct    float64       `mapstructure:"max_curve_fill_pct"`
	TierHighScore      float64       `mapstructure:"tier_high_score"`   // momentum score at or above -> HIGH
	TierMediumScore    float64       `mapstructure:"tier_medium_score"` // momentum score at or above -> MEDIUM
	HighProfitScale    float64       `mapstructure:"high_profit_scale"`
	HighStopScale      float64       `mapstructure:"high_stop_scale"`
	LowProfitScale     float64       `mapstructure:"low_profit_scale"`
	LowStopScale       float64       `mapstructure:"low_stop_scale"`
	SettlementTimeout  time.Duration `mapstructure:"settlement_timeout"`
	ExitRetryLimit     int           `mapstructure:"exit_retry_limit"`
	MaxConcurrentEvals int64         `mapstructure:"max_concurrent_evals"`
}

// MomentumConfig holds the weighted entry-score parameters.
type MomentumConfig struct {
	VolumeWeight  float64 `mapstructure:"volume_weight"`
	PriceWeight   float64 `mapstructure:"price_weight"`
	RatioWeight   float64 `mapstructure:"ratio_weight"`
	BuyersWeight  float64 `mapstructure:"buyers_weight"`
	MinVolumeSOL  float64 `mapstructure:"min_volume_sol"`   // normalization anchor and absolute floor
	MinPricePct   float64 `mapstructure:"min_price_pct"`    // price-change normalization anchor
	MinRatio      float64 `mapstructure:"min_ratio"`        // buy/sell ratio normalization anchor
	MinBuyers     int     `mapstructure:"min_buyers"`       // unique buyer normalization anchor
	EntryScore    float64 `mapstructure:"entry_score"`      // threshold in [0,1], inclusive
	VolumeFloorOK float64 `mapstructure:"volume_floor_sol"` // absolute floor, entry vetoed below
}

// RiskConfig holds global risk gates and filters.
type RiskConfig struct {
	MaxConcurrentTrades int      `mapstructure:"max_concurrent_trades"`
	MaxDailyLossPct     float64  `mapstructure:"max_daily_loss_pct"` // of day-start capital, 0..100
	MaxLossPerTradeSOL  float64  `mapstructure:"max_loss_per_trade_sol"`
	BlacklistCreators   []string `mapstructure:"blacklist_creators"`
	BlacklistKeywords   []string `mapstructure:"blacklist_keywords"`
}

// StorageConfig holds persistence endpoints. Empty DSNs select the
// in-memory stores.
type StorageConfig struct {
	PostgresDSN   string `mapstructure:"postgres_dsn"`
	ClickhouseDSN string `mapstructure:"clickhouse_dsn"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"` // empty disables file output
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// ServerConfig holds HTTP listen addresses.
type ServerConfig struct {
	APIAddr     string `mapstructure:"api_addr"`
	MetricsAddr string `mapstructure:"metrics_addr"`
}

// Load reads configuration from a YAML file with environment overrides
// (prefix SNIPER, dots become underscores) and validates it.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SNIPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", ModeDryRun)

	v.SetDefault("wallet.initial_capital_sol", 2.0)
	v.SetDefault("wallet.min_reserve_sol", 0.05)

	v.SetDefault("strategy.observation_window", "3s")
	v.SetDefault("strategy.price_poll_interval", "1s")
	v.SetDefault("strategy.max_position_pct", 0.20)
	v.SetDefault("strategy.max_slippage_pct", 0.05)
	v.SetDefault("strategy.trading_fee_pct", 0.0125)
	v.SetDefault("strategy.profit_target_ratio", 0.50)
	v.SetDefault("strategy.stop_loss_ratio", 0.10)
	v.SetDefault("strategy.trailing_stop_ratio", 0.10)
	v.SetDefault("strategy.min_hold_time", "5s")
	v.SetDefault("strategy.max_hold_time", "120s")
	v.SetDefault("strategy.min_curve_fill_pct", 1.0)
	v.SetDefault("strategy.max_curve_fill_pct", 40.0)
	v.SetDefault("strategy.tier_high_score", 0.75)
	v.SetDefault("strategy.tier_medium_score", 0.60)
	v.SetDefault("strategy.high_profit_scale", 1.5)
	v.SetDefault("strategy.high_stop_scale", 1.2)
	v.SetDefault("strategy.low_profit_scale", 0.75)
	v.SetDefault("strategy.low_stop_scale", 0.8)
	v.SetDefault("strategy.settlement_timeout", "20s")
	v.SetDefault("strategy.exit_retry_limit", 5)
	v.SetDefault("strategy.max_concurrent_evals", 16)

	v.SetDefault("momentum.volume_weight", 0.35)
	v.SetDefault("momentum.price_weight", 0.30)
	v.SetDefault("momentum.ratio_weight", 0.15)
	v.SetDefault("momentum.buyers_weight", 0.20)
	v.SetDefault("momentum.min_volume_sol", 2.0)
	v.SetDefault("momentum.min_price_pct", 10.0)
	v.SetDefault("momentum.min_ratio", 2.0)
	v.SetDefault("momentum.min_buyers", 5)
	v.SetDefault("momentum.entry_score", 0.60)
	v.SetDefault("momentum.volume_floor_sol", 0.5)

	v.SetDefault("risk.max_concurrent_trades", 3)
	v.SetDefault("risk.max_daily_loss_pct", 10.0)
	v.SetDefault("risk.max_loss_per_trade_sol", 0.10)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 14)

	v.SetDefault("server.api_addr", ":8080")
	v.SetDefault("server.metrics_addr", ":9090")
}

// Validate rejects out-of-range values eagerly.
func (c *Config) Validate() error {
	if c.Mode != ModeDryRun && c.Mode != ModeLive {
		return fmt.Errorf("mode must be %q or %q, got %q", ModeDryRun, ModeLive, c.Mode)
	}
	if c.Mode == ModeLive {
		if c.Solana.RPCEndpoint == "" {
			return fmt.Errorf("solana.rpc_endpoint is required in live mode")
		}
		if c.Solana.WSEndpoint == "" {
			return fmt.Errorf("solana.ws_endpoint is required in live mode")
		}
		if c.Solana.TradeEndpoint == "" {
			return fmt.Errorf("solana.trade_endpoint is required in live mode")
		}
	}

	if c.Wallet.InitialCapitalSOL <= 0 {
		return fmt.Errorf("wallet.initial_capital_sol must be positive, got %v", c.Wallet.InitialCapitalSOL)
	}
	if c.Wallet.MinReserveSOL < 0 {
		return fmt.Errorf("wallet.min_reserve_sol must be non-negative, got %v", c.Wallet.MinReserveSOL)
	}

	s := &c.Strategy
	if s.MaxPositionPct <= 0 || s.MaxPositionPct > 1 {
		return fmt.Errorf("strategy.max_position_pct must be in (0,1], got %v", s.MaxPositionPct)
	}
	for name, ratio := range map[string]float64{
		"strategy.profit_target_ratio": s.ProfitTargetRatio,
		"strategy.stop_loss_ratio":     s.StopLossRatio,
		"strategy.trailing_stop_ratio": s.TrailingStopRatio,
	} {
		if ratio <= 0 || ratio >= 10 {
			return fmt.Errorf("%s must be in (0,10), got %v", name, ratio)
		}
	}
	if s.ObservationWindow <= 0 {
		return fmt.Errorf("strategy.observation_window must be positive")
	}
	if s.PricePollInterval <= 0 {
		return fmt.Errorf("strategy.price_poll_interval must be positive")
	}
	if s.MinHoldTime < 0 || s.MaxHoldTime <= 0 || s.MinHoldTime >= s.MaxHoldTime {
		return fmt.Errorf("hold time window invalid: min %v, max %v", s.MinHoldTime, s.MaxHoldTime)
	}
	if s.MinCurveFillPct < 0 || s.MaxCurveFillPct > 100 || s.MinCurveFillPct >= s.MaxCurveFillPct {
		return fmt.Errorf("curve fill band invalid: [%v, %v]", s.MinCurveFillPct, s.MaxCurveFillPct)
	}
	if s.TradingFeePct < 0 || s.TradingFeePct >= 1 {
		return fmt.Errorf("strategy.trading_fee_pct must be in [0,1), got %v", s.TradingFeePct)
	}
	if s.TierMediumScore >= s.TierHighScore {
		return fmt.Errorf("strategy.tier_medium_score %v must be below tier_high_score %v", s.TierMediumScore, s.TierHighScore)
	}
	if s.ExitRetryLimit <= 0 {
		return fmt.Errorf("strategy.exit_retry_limit must be positive")
	}
	if s.MaxConcurrentEvals <= 0 {
		return fmt.Errorf("strategy.max_concurrent_evals must be positive")
	}
	if s.SettlementTimeout <= 0 {
		return fmt.Errorf("strategy.settlement_timeout must be positive")
	}

	m := &c.Momentum
	if m.EntryScore < 0 || m.EntryScore > 1 {
		return fmt.Errorf("momentum.entry_score must be in [0,1], got %v", m.EntryScore)
	}
	totalWeight := m.VolumeWeight + m.PriceWeight + m.RatioWeight + m.BuyersWeight
	if totalWeight <= 0 {
		return fmt.Errorf("momentum weights must sum to a positive value")
	}
	if m.MinVolumeSOL <= 0 || m.MinRatio <= 0 || m.MinBuyers <= 0 || m.MinPricePct <= 0 {
		return fmt.Errorf("momentum normalization minimums must be positive")
	}

	r := &c.Risk
	if r.MaxConcurrentTrades <= 0 {
		return fmt.Errorf("risk.max_concurrent_trades must be positive, got %d", r.MaxConcurrentTrades)
	}
	if r.MaxDailyLossPct <= 0 || r.MaxDailyLossPct > 100 {
		return fmt.Errorf("risk.max_daily_loss_pct must be in (0,100], got %v", r.MaxDailyLossPct)
	}
	if r.MaxLossPerTradeSOL <= 0 {
		return fmt.Errorf("risk.max_loss_per_trade_sol must be positive, got %v", r.MaxLossPerTradeSOL)
	}

	return nil
}

// IsDryRun reports whether the bot runs against simulated settlement.
func (c *Config) IsDryRun() bool { return c.Mode == ModeDryRun }
