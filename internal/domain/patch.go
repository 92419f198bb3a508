package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Config patches replace ad-hoc object merging with explicit per-section
// partial updates. A nil field means "leave unchanged"; every set field is
// validated before the merge so a bad patch never half-applies.

// ThresholdsPatch partially updates deviation thresholds.
type ThresholdsPatch struct {
	Hold           *decimal.Decimal `json:"hold,omitempty"`
	TradeLow       *decimal.Decimal `json:"trade_low,omitempty"`
	TradeMedium    *decimal.Decimal `json:"trade_medium,omitempty"`
	TradeHigh      *decimal.Decimal `json:"trade_high,omitempty"`
	TradeEmergency *decimal.Decimal `json:"trade_emergency,omitempty"`
}

// LimitsPatch partially updates trade limits.
type LimitsPatch struct {
	MaxTradeSize   *decimal.Decimal `json:"max_trade_size,omitempty"`
	MaxDailyVolume *decimal.Decimal `json:"max_daily_volume,omitempty"`
	MaxDailyTrades *int             `json:"max_daily_trades,omitempty"`
	MinBalance     *decimal.Decimal `json:"min_balance,omitempty"`
}

// SlippagePatch partially updates slippage tiers.
type SlippagePatch struct {
	Low       *decimal.Decimal `json:"low,omitempty"`
	Medium    *decimal.Decimal `json:"medium,omitempty"`
	High      *decimal.Decimal `json:"high,omitempty"`
	Emergency *decimal.Decimal `json:"emergency,omitempty"`
	Default   *decimal.Decimal `json:"default,omitempty"`
}

// StrategyPatch partially updates loop timing.
type StrategyPatch struct {
	PriceCheckInterval   *time.Duration   `json:"price_check_interval,omitempty"`
	MinTimeBetweenTrades *time.Duration   `json:"min_time_between_trades,omitempty"`
	MinLiquidityUSD      *decimal.Decimal `json:"min_liquidity_usd,omitempty"`
}

// SafetyPatch partially updates circuit breaker settings.
type SafetyPatch struct {
	MaxConsecutiveErrors  *int  `json:"max_consecutive_errors,omitempty"`
	AutoPauseOnErrors     *bool `json:"auto_pause_on_errors,omitempty"`
	CircuitBreakerEnabled *bool `json:"circuit_breaker_enabled,omitempty"`
}

// ConfigPatch groups the section patches of one update request.
type ConfigPatch struct {
	TargetPeg  *decimal.Decimal `json:"target_peg,omitempty"`
	Thresholds *ThresholdsPatch `json:"thresholds,omitempty"`
	Limits     *LimitsPatch     `json:"limits,omitempty"`
	Slippage   *SlippagePatch   `json:"slippage,omitempty"`
	Strategy   *StrategyPatch   `json:"strategy,omitempty"`
	Safety     *SafetyPatch     `json:"safety,omitempty"`
}

func requireNonNegative(name string, v *decimal.Decimal) error {
	if v != nil && v.IsNegative() {
		return fmt.Errorf("%s must not be negative, got %s", name, v.String())
	}
	return nil
}

// Apply validates the patch and merges it into the config. The config is
// untouched when any field is rejected.
func (p ConfigPatch) Apply(cfg *BotConfig) error {
	if p.TargetPeg != nil && p.TargetPeg.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("target_peg must be positive, got %s", p.TargetPeg.String())
	}
	if p.Thresholds != nil {
		for name, v := range map[string]*decimal.Decimal{
			"thresholds.hold":            p.Thresholds.Hold,
			"thresholds.trade_low":       p.Thresholds.TradeLow,
			"thresholds.trade_medium":    p.Thresholds.TradeMedium,
			"thresholds.trade_high":      p.Thresholds.TradeHigh,
			"thresholds.trade_emergency": p.Thresholds.TradeEmergency,
		} {
			if err := requireNonNegative(name, v); err != nil {
				return err
			}
		}
	}
	if p.Limits != nil {
		for name, v := range map[string]*decimal.Decimal{
			"limits.max_trade_size":   p.Limits.MaxTradeSize,
			"limits.max_daily_volume": p.Limits.MaxDailyVolume,
			"limits.min_balance":      p.Limits.MinBalance,
		} {
			if err := requireNonNegative(name, v); err != nil {
				return err
			}
		}
		if p.Limits.MaxDailyTrades != nil && *p.Limits.MaxDailyTrades < 0 {
			return fmt.Errorf("limits.max_daily_trades must not be negative, got %d", *p.Limits.MaxDailyTrades)
		}
	}
	if p.Slippage != nil {
		for name, v := range map[string]*decimal.Decimal{
			"slippage.low":       p.Slippage.Low,
			"slippage.medium":    p.Slippage.Medium,
			"slippage.high":      p.Slippage.High,
			"slippage.emergency": p.Slippage.Emergency,
			"slippage.default":   p.Slippage.Default,
		} {
			if err := requireNonNegative(name, v); err != nil {
				return err
			}
		}
	}
	if p.Strategy != nil {
		if p.Strategy.PriceCheckInterval != nil && *p.Strategy.PriceCheckInterval <= 0 {
			return fmt.Errorf("strategy.price_check_interval must be positive")
		}
		if p.Strategy.MinTimeBetweenTrades != nil && *p.Strategy.MinTimeBetweenTrades < 0 {
			return fmt.Errorf("strategy.min_time_between_trades must not be negative")
		}
		if err := requireNonNegative("strategy.min_liquidity_usd", p.Strategy.MinLiquidityUSD); err != nil {
			return err
		}
	}
	if p.Safety != nil && p.Safety.MaxConsecutiveErrors != nil && *p.Safety.MaxConsecutiveErrors < 1 {
		return fmt.Errorf("safety.max_consecutive_errors must be >= 1, got %d", *p.Safety.MaxConsecutiveErrors)
	}

	// merge after full validation
	if p.TargetPeg != nil {
		cfg.TargetPeg = *p.TargetPeg
	}
	if p.Thresholds != nil {
		setDecimal(&cfg.Thresholds.Hold, p.Thresholds.Hold)
		setDecimal(&cfg.Thresholds.TradeLow, p.Thresholds.TradeLow)
		setDecimal(&cfg.Thresholds.TradeMedium, p.Thresholds.TradeMedium)
		setDecimal(&cfg.Thresholds.TradeHigh, p.Thresholds.TradeHigh)
		setDecimal(&cfg.Thresholds.TradeEmergency, p.Thresholds.TradeEmergency)
	}
	if p.Limits != nil {
		setDecimal(&cfg.Limits.MaxTradeSize, p.Limits.MaxTradeSize)
		setDecimal(&cfg.Limits.MaxDailyVolume, p.Limits.MaxDailyVolume)
		setDecimal(&cfg.Limits.MinBalance, p.Limits.MinBalance)
		if p.Limits.MaxDailyTrades != nil {
			cfg.Limits.MaxDailyTrades = *p.Limits.MaxDailyTrades
		}
	}
	if p.Slippage != nil {
		setDecimal(&cfg.Slippage.Low, p.Slippage.Low)
		setDecimal(&cfg.Slippage.Medium, p.Slippage.Medium)
		setDecimal(&cfg.Slippage.High, p.Slippage.High)
		setDecimal(&cfg.Slippage.Emergency, p.Slippage.Emergency)
		setDecimal(&cfg.Slippage.Default, p.Slippage.Default)
	}
	if p.Strategy != nil {
		if p.Strategy.PriceCheckInterval != nil {
			cfg.Strategy.PriceCheckInterval = *p.Strategy.PriceCheckInterval
		}
		if p.Strategy.MinTimeBetweenTrades != nil {
			cfg.Strategy.MinTimeBetweenTrades = *p.Strategy.MinTimeBetweenTrades
		}
		setDecimal(&cfg.Strategy.MinLiquidityUSD, p.Strategy.MinLiquidityUSD)
	}
	if p.Safety != nil {
		if p.Safety.MaxConsecutiveErrors != nil {
			cfg.Safety.MaxConsecutiveErrors = *p.Safety.MaxConsecutiveErrors
		}
		if p.Safety.AutoPauseOnErrors != nil {
			cfg.Safety.AutoPauseOnErrors = *p.Safety.AutoPauseOnErrors
		}
		if p.Safety.CircuitBreakerEnabled != nil {
			cfg.Safety.CircuitBreakerEnabled = *p.Safety.CircuitBreakerEnabled
		}
	}
	return nil
}

func setDecimal(dst *decimal.Decimal, src *decimal.Decimal) {
	if src != nil {
		*dst = *src
	}
}
