package internal

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/pegbot/internal/domain"
	"go.uber.org/zap"
)

type deviationSource interface {
	GetPegDeviation(ctx context.Context, target decimal.Decimal) (*domain.Deviation, error)
}

type tradeSubmitter interface {
	Submit(ctx context.Context, req domain.TradeRequest) (*domain.TradeRecord, error)
}

type gateReader interface {
	Config() domain.BotConfig
}

// PegBot is the autonomous correction loop: it polls the peg deviation and
// submits corrective swaps through the orchestrator when the price drifts
// out of the hold band.
type PegBot struct {
	oracle       deviationSource
	orchestrator tradeSubmitter
	gate         gateReader
	logger       *zap.Logger
}

// NewPegBot creates the correction loop.
func NewPegBot(oracle deviationSource, orchestrator tradeSubmitter, gate gateReader, logger *zap.Logger) (*PegBot, error) {
	if oracle == nil || orchestrator == nil || gate == nil {
		return nil, errors.New("oracle, orchestrator and gate are all required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PegBot{oracle: oracle, orchestrator: orchestrator, gate: gate, logger: logger}, nil
}

// Run polls until ctx is cancelled. Rejected submissions are logged and the
// loop continues; only context cancellation stops it.
func (b *PegBot) Run(ctx context.Context) error {
	interval := b.gate.Config().Strategy.PriceCheckInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	b.logger.Info("starting correction loop", zap.Duration("poll_interval", interval))

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("context done, stopping correction loop")
			return ctx.Err()
		case <-ticker.C:
			b.tick(ctx)
			// pick up runtime patches of the poll interval without a restart
			if next := b.gate.Config().Strategy.PriceCheckInterval; next > 0 && next != interval {
				b.logger.Info("poll interval changed",
					zap.Duration("old", interval), zap.Duration("new", next))
				interval = next
				ticker.Reset(interval)
			}
		}
	}
}

func (b *PegBot) tick(ctx context.Context) {
	cfg := b.gate.Config()
	if !cfg.Enabled {
		b.logger.Debug("bot disabled, skipping tick", zap.String("reason", cfg.PauseReason))
		return
	}
	if !cfg.Statistics.LastTradeAt.IsZero() &&
		time.Since(cfg.Statistics.LastTradeAt) < cfg.Strategy.MinTimeBetweenTrades {
		return
	}

	deviation, err := b.oracle.GetPegDeviation(ctx, decimal.Zero)
	if err != nil {
		b.logger.Error("failed to read peg deviation", zap.Error(err))
		return
	}

	absDev := deviation.DeviationPercent.Abs()
	if absDev.LessThan(cfg.Thresholds.Hold) {
		return
	}

	req := b.buildCorrection(cfg, *deviation)
	b.logger.Info("peg drift detected",
		zap.String("deviation", deviation.DeviationPercent.String()),
		zap.String("action", req.Action.String()),
		zap.String("amount", req.Amount.String()),
		zap.String("urgency", req.Urgency.String()))

	rec, err := b.orchestrator.Submit(ctx, req)
	if err != nil {
		var sv *domain.SafetyViolation
		if errors.As(err, &sv) {
			b.logger.Warn("correction rejected by risk gate", zap.String("reason", sv.Reason))
		} else {
			b.logger.Error("correction submission failed", zap.Error(err))
		}
		return
	}

	if rec.Status == domain.TradeStatusFailed {
		b.logger.Warn("correction trade failed", zap.String("trade_id", rec.TradeID), zap.String("error", rec.Error))
	}
}

// buildCorrection sizes the trade by deviation tier. Above the peg the bot
// sells the asset to push the price down, below it buys.
func (b *PegBot) buildCorrection(cfg domain.BotConfig, deviation domain.Deviation) domain.TradeRequest {
	action := domain.ActionBuy
	if deviation.DeviationPercent.GreaterThan(decimal.Zero) {
		action = domain.ActionSell
	}

	absDev := deviation.DeviationPercent.Abs()
	urgency := domain.UrgencyLow
	fraction := decimal.NewFromFloat(0.25)
	switch {
	case absDev.GreaterThanOrEqual(cfg.Thresholds.TradeEmergency):
		urgency = domain.UrgencyEmergency
		fraction = decimal.NewFromInt(1)
	case absDev.GreaterThanOrEqual(cfg.Thresholds.TradeHigh):
		urgency = domain.UrgencyHigh
		fraction = decimal.NewFromFloat(0.75)
	case absDev.GreaterThanOrEqual(cfg.Thresholds.TradeMedium):
		urgency = domain.UrgencyMedium
		fraction = decimal.NewFromFloat(0.5)
	}

	return domain.TradeRequest{
		Action:  action,
		Amount:  cfg.Limits.MaxTradeSize.Mul(fraction),
		Urgency: urgency,
	}
}
