// Package risk owns the bot configuration and evaluates whether trading is
// currently safe.
package risk

import (
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/pegbot/internal/domain"
	"go.uber.org/zap"
)

// PauseReasonCircuitBreaker marks the only automatic disable path.
const PauseReasonCircuitBreaker = "circuit breaker"

type activitySource interface {
	DailyActivity(day time.Time) (domain.DailyActivity, error)
}

type configStore interface {
	Save(cfg domain.BotConfig) error
}

// Gate holds one bot identity's configuration behind a single mutex and
// reduces balances, daily activity, liquidity and error history to a
// composite safety verdict. Enforcement is advisory: a trade racing a
// disable may still complete, which is accepted.
type Gate struct {
	mu       sync.Mutex
	cfg      domain.BotConfig
	activity activitySource
	store    configStore
	logger   *zap.Logger
}

// NewGate validates the configuration and creates a gate.
func NewGate(cfg domain.BotConfig, activity activitySource, store configStore, logger *zap.Logger) (*Gate, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid bot configuration")
	}
	if activity == nil {
		return nil, errors.New("activity source is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{cfg: cfg, activity: activity, store: store, logger: logger}, nil
}

// Config returns a copy of the current configuration.
func (g *Gate) Config() domain.BotConfig {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cfg
}

// Enabled reports whether trade submission is allowed at all.
func (g *Gate) Enabled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cfg.Enabled
}

// CheckDailyLimits compares today's (UTC) activity against the configured
// caps.
func (g *Gate) CheckDailyLimits() (domain.DailyLimitReport, error) {
	activity, err := g.activity.DailyActivity(time.Now().UTC())
	if err != nil {
		return domain.DailyLimitReport{}, errors.Wrap(err, "compute daily activity")
	}

	g.mu.Lock()
	limits := g.cfg.Limits
	g.mu.Unlock()

	return domain.DailyLimitReport{
		Exceeded: activity.Volume.GreaterThanOrEqual(limits.MaxDailyVolume) ||
			activity.TradeCount >= limits.MaxDailyTrades,
		VolumeUsed:  activity.Volume,
		VolumeLimit: limits.MaxDailyVolume,
		TradesUsed:  activity.TradeCount,
		TradesLimit: limits.MaxDailyTrades,
	}, nil
}

// EvaluateSafety reduces the five independent checks to a SafetyStatus.
// Pure with respect to gate state: it reads the configuration and inputs,
// mutates nothing.
func (g *Gate) EvaluateSafety(balances map[string]decimal.Decimal, liquidity domain.LiquidityDepth,
	daily domain.DailyLimitReport) domain.SafetyStatus {

	g.mu.Lock()
	cfg := g.cfg
	g.mu.Unlock()

	status := domain.SafetyStatus{
		BotEnabled: domain.SafetyCheck{Passed: cfg.Enabled},
		DailyLimits: domain.SafetyCheck{
			Passed: !daily.Exceeded,
			Detail: fmt.Sprintf("volume %s/%s, trades %d/%d",
				daily.VolumeUsed.String(), daily.VolumeLimit.String(), daily.TradesUsed, daily.TradesLimit),
		},
		LiquidityHealthy: domain.SafetyCheck{
			Passed: liquidity.Healthy,
			Detail: fmt.Sprintf("pool value %s USD", liquidity.TotalValueUSD.String()),
		},
	}
	if !cfg.Enabled {
		status.BotEnabled.Detail = cfg.PauseReason
	}

	status.SufficientBalance = domain.SafetyCheck{Passed: true}
	for token, balance := range balances {
		if balance.LessThan(cfg.Limits.MinBalance) {
			status.SufficientBalance = domain.SafetyCheck{
				Passed: false,
				Detail: fmt.Sprintf("%s balance %s below minimum %s", token, balance.String(), cfg.Limits.MinBalance.String()),
			}
			break
		}
	}

	status.ErrorsBelowLimit = domain.SafetyCheck{
		Passed: true,
		Detail: fmt.Sprintf("%d consecutive errors", cfg.Statistics.ConsecutiveErrors),
	}
	if cfg.Safety.CircuitBreakerEnabled && cfg.Statistics.ConsecutiveErrors >= cfg.Safety.MaxConsecutiveErrors {
		status.ErrorsBelowLimit.Passed = false
	}

	status.Safe = status.BotEnabled.Passed &&
		status.SufficientBalance.Passed &&
		status.DailyLimits.Passed &&
		status.LiquidityHealthy.Passed &&
		status.ErrorsBelowLimit.Passed
	return status
}

// RecordTradeOutcome updates counters from a terminal trade. Success resets
// the consecutive-error counter; failure increments it and, when auto-pause
// is on and the limit is reached, trips the circuit breaker. Counter update
// and auto-disable happen atomically under the gate mutex.
func (g *Gate) RecordTradeOutcome(trade *domain.TradeRecord) {
	if trade == nil || !trade.Status.Terminal() {
		return
	}

	g.mu.Lock()
	g.cfg.Statistics.TotalTrades++
	g.cfg.Statistics.LastTradeAt = time.Now().UTC()

	switch trade.Status {
	case domain.TradeStatusSuccess:
		g.cfg.Statistics.ConsecutiveErrors = 0
		g.cfg.Statistics.TotalVolume = g.cfg.Statistics.TotalVolume.Add(trade.InputAmount)
	case domain.TradeStatusFailed:
		g.cfg.Statistics.ConsecutiveErrors++
		if g.cfg.Safety.AutoPauseOnErrors &&
			g.cfg.Statistics.ConsecutiveErrors >= g.cfg.Safety.MaxConsecutiveErrors &&
			g.cfg.Enabled {
			g.cfg.Enabled = false
			g.cfg.PausedAt = time.Now().UTC()
			g.cfg.PauseReason = PauseReasonCircuitBreaker
			g.logger.Warn("circuit breaker tripped, bot disabled",
				zap.String("identity", g.cfg.Identity),
				zap.Int("consecutive_errors", g.cfg.Statistics.ConsecutiveErrors))
		}
	}
	cfg := g.cfg
	g.mu.Unlock()

	g.persist(cfg)
}

// ResolveSlippage maps an urgency tier to its configured slippage percent.
// Unknown or unspecified tiers resolve to the default.
func (g *Gate) ResolveSlippage(urgency domain.Urgency) decimal.Decimal {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch urgency {
	case domain.UrgencyLow:
		return g.cfg.Slippage.Low
	case domain.UrgencyMedium:
		return g.cfg.Slippage.Medium
	case domain.UrgencyHigh:
		return g.cfg.Slippage.High
	case domain.UrgencyEmergency:
		return g.cfg.Slippage.Emergency
	default:
		return g.cfg.Slippage.Default
	}
}

// Enable resumes trading and clears any pause state, including the
// consecutive-error counter so a fixed bot does not trip again immediately.
func (g *Gate) Enable(reason string) {
	g.setEnabled(true, reason)
}

// Disable pauses trading. Operator-triggered; the circuit breaker is the
// only automatic caller of a disable transition.
func (g *Gate) Disable(reason string) {
	g.setEnabled(false, reason)
}

// EmergencyPause is Disable under an audit label of its own.
func (g *Gate) EmergencyPause(reason string) {
	if reason == "" {
		reason = "emergency pause"
	}
	g.setEnabled(false, reason)
}

func (g *Gate) setEnabled(enabled bool, reason string) {
	g.mu.Lock()
	g.cfg.Enabled = enabled
	if enabled {
		g.cfg.PausedAt = time.Time{}
		g.cfg.PauseReason = ""
		g.cfg.Statistics.ConsecutiveErrors = 0
	} else {
		g.cfg.PausedAt = time.Now().UTC()
		g.cfg.PauseReason = reason
	}
	cfg := g.cfg
	g.mu.Unlock()

	g.logger.Info("bot state changed",
		zap.String("identity", cfg.Identity),
		zap.Bool("enabled", enabled),
		zap.String("reason", reason))
	g.persist(cfg)
}

// ApplyPatch validates and merges a partial configuration update.
// Last writer wins on the singleton.
func (g *Gate) ApplyPatch(patch domain.ConfigPatch) error {
	g.mu.Lock()
	if err := patch.Apply(&g.cfg); err != nil {
		g.mu.Unlock()
		return err
	}
	cfg := g.cfg
	g.mu.Unlock()

	g.persist(cfg)
	return nil
}

func (g *Gate) persist(cfg domain.BotConfig) {
	if g.store == nil {
		return
	}
	if err := g.store.Save(cfg); err != nil {
		g.logger.Error("failed to persist bot configuration", zap.Error(err))
	}
}
