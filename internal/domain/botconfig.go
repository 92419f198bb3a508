package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Thresholds are peg-deviation trigger levels in percent. Hold is the dead
// band; the trade tiers size the corrective response.
type Thresholds struct {
	Hold           decimal.Decimal `json:"hold" yaml:"hold"`
	TradeLow       decimal.Decimal `json:"trade_low" yaml:"trade_low"`
	TradeMedium    decimal.Decimal `json:"trade_medium" yaml:"trade_medium"`
	TradeHigh      decimal.Decimal `json:"trade_high" yaml:"trade_high"`
	TradeEmergency decimal.Decimal `json:"trade_emergency" yaml:"trade_emergency"`
}

// Limits bound trade size and daily activity.
type Limits struct {
	MaxTradeSize   decimal.Decimal `json:"max_trade_size" yaml:"max_trade_size"`
	MaxDailyVolume decimal.Decimal `json:"max_daily_volume" yaml:"max_daily_volume"`
	MaxDailyTrades int             `json:"max_daily_trades" yaml:"max_daily_trades"`
	MinBalance     decimal.Decimal `json:"min_balance" yaml:"min_balance"`
}

// Slippage holds allowed slippage percent per urgency tier.
type Slippage struct {
	Low       decimal.Decimal `json:"low" yaml:"low"`
	Medium    decimal.Decimal `json:"medium" yaml:"medium"`
	High      decimal.Decimal `json:"high" yaml:"high"`
	Emergency decimal.Decimal `json:"emergency" yaml:"emergency"`
	Default   decimal.Decimal `json:"default" yaml:"default"`
}

// Strategy holds the timing knobs of the correction loop.
type Strategy struct {
	PriceCheckInterval   time.Duration   `json:"price_check_interval" yaml:"price_check_interval"`
	MinTimeBetweenTrades time.Duration   `json:"min_time_between_trades" yaml:"min_time_between_trades"`
	MinLiquidityUSD      decimal.Decimal `json:"min_liquidity_usd" yaml:"min_liquidity_usd"`
}

// Safety holds the circuit breaker settings.
type Safety struct {
	MaxConsecutiveErrors  int  `json:"max_consecutive_errors" yaml:"max_consecutive_errors"`
	AutoPauseOnErrors     bool `json:"auto_pause_on_errors" yaml:"auto_pause_on_errors"`
	CircuitBreakerEnabled bool `json:"circuit_breaker_enabled" yaml:"circuit_breaker_enabled"`
}

// Statistics are runtime counters owned by the risk gate.
type Statistics struct {
	ConsecutiveErrors int             `json:"consecutive_errors"`
	TotalTrades       int             `json:"total_trades"`
	TotalVolume       decimal.Decimal `json:"total_volume"`
	LastTradeAt       time.Time       `json:"last_trade_at,omitempty"`
}

// BotConfig is the mutable singleton configuration of one bot identity.
// Enabled=false is the sole gate that unconditionally blocks submission.
type BotConfig struct {
	Identity    string          `json:"identity"`
	Enabled     bool            `json:"enabled"`
	PausedAt    time.Time       `json:"paused_at,omitempty"`
	PauseReason string          `json:"pause_reason,omitempty"`
	TargetPeg   decimal.Decimal `json:"target_peg"`
	Thresholds  Thresholds      `json:"thresholds"`
	Limits      Limits          `json:"limits"`
	Slippage    Slippage        `json:"slippage"`
	Strategy    Strategy        `json:"strategy"`
	Safety      Safety          `json:"safety"`
	Statistics  Statistics      `json:"statistics"`
}

// Validate checks structural invariants of the configuration.
func (c *BotConfig) Validate() error {
	if c.Identity == "" {
		return fmt.Errorf("bot identity is required")
	}
	if c.TargetPeg.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("target peg must be positive, got %s", c.TargetPeg.String())
	}
	for name, v := range map[string]decimal.Decimal{
		"limits.max_trade_size":   c.Limits.MaxTradeSize,
		"limits.max_daily_volume": c.Limits.MaxDailyVolume,
		"limits.min_balance":      c.Limits.MinBalance,
	} {
		if v.IsNegative() {
			return fmt.Errorf("%s must not be negative, got %s", name, v.String())
		}
	}
	if c.Limits.MaxDailyTrades < 0 {
		return fmt.Errorf("limits.max_daily_trades must not be negative, got %d", c.Limits.MaxDailyTrades)
	}
	if c.Safety.MaxConsecutiveErrors < 1 {
		return fmt.Errorf("safety.max_consecutive_errors must be >= 1, got %d", c.Safety.MaxConsecutiveErrors)
	}
	return nil
}

// SafetyCheck is one named gate check with its observed detail.
type SafetyCheck struct {
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// SafetyStatus is the composite result of the five independent gate checks.
// Safe is the logical AND of all of them.
type SafetyStatus struct {
	Safe              bool        `json:"safe"`
	BotEnabled        SafetyCheck `json:"bot_enabled"`
	SufficientBalance SafetyCheck `json:"sufficient_balance"`
	DailyLimits       SafetyCheck `json:"daily_limits"`
	LiquidityHealthy  SafetyCheck `json:"liquidity_healthy"`
	ErrorsBelowLimit  SafetyCheck `json:"errors_below_limit"`
}

// DailyLimitReport compares today's activity against the configured caps.
type DailyLimitReport struct {
	Exceeded    bool            `json:"exceeded"`
	VolumeUsed  decimal.Decimal `json:"volume_used"`
	VolumeLimit decimal.Decimal `json:"volume_limit"`
	TradesUsed  int             `json:"trades_used"`
	TradesLimit int             `json:"trades_limit"`
}
