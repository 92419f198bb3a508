package internal

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/pegbot/internal/domain"
	"go.uber.org/zap"
)

type oracleStub struct {
	mu        sync.Mutex
	calls     int
	deviation domain.Deviation
	err       error
}

func (o *oracleStub) GetPegDeviation(ctx context.Context, target decimal.Decimal) (*domain.Deviation, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++
	if o.err != nil {
		return nil, o.err
	}
	dev := o.deviation
	return &dev, nil
}

func (o *oracleStub) callCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls
}

type submitterStub struct {
	requests []domain.TradeRequest
	err      error
}

func (s *submitterStub) Submit(ctx context.Context, req domain.TradeRequest) (*domain.TradeRecord, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	return &domain.TradeRecord{TradeID: "trade_1", Status: domain.TradeStatusSuccess}, nil
}

type gateStub struct {
	mu  sync.Mutex
	cfg domain.BotConfig
}

func (g *gateStub) Config() domain.BotConfig {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cfg
}

func (g *gateStub) setConfig(cfg domain.BotConfig) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cfg = cfg
}

func botConfig() domain.BotConfig {
	return domain.BotConfig{
		Identity:  "pegbot-test",
		Enabled:   true,
		TargetPeg: decimal.NewFromInt(1),
		Thresholds: domain.Thresholds{
			Hold:           decimal.NewFromFloat(0.5),
			TradeLow:       decimal.NewFromFloat(0.5),
			TradeMedium:    decimal.NewFromInt(2),
			TradeHigh:      decimal.NewFromInt(5),
			TradeEmergency: decimal.NewFromInt(10),
		},
		Limits: domain.Limits{MaxTradeSize: decimal.NewFromInt(100)},
		Strategy: domain.Strategy{
			PriceCheckInterval:   time.Second,
			MinTimeBetweenTrades: time.Minute,
		},
		Safety: domain.Safety{MaxConsecutiveErrors: 3},
	}
}

func deviationOf(percent float64) domain.Deviation {
	return domain.Deviation{
		CurrentPrice:     decimal.NewFromInt(1),
		TargetPrice:      decimal.NewFromInt(1),
		DeviationPercent: decimal.NewFromFloat(percent),
	}
}

func newTestBot(t *testing.T, oracle *oracleStub, submitter *submitterStub, gate *gateStub) *PegBot {
	t.Helper()
	bot, err := NewPegBot(oracle, submitter, gate, zap.NewNop())
	require.NoError(t, err)
	return bot
}

func TestTickHoldsInsideBand(t *testing.T) {
	submitter := &submitterStub{}
	bot := newTestBot(t, &oracleStub{deviation: deviationOf(0.3)}, submitter, &gateStub{cfg: botConfig()})

	bot.tick(context.Background())
	require.Empty(t, submitter.requests)
}

func TestTickSkipsWhenDisabled(t *testing.T) {
	cfg := botConfig()
	cfg.Enabled = false
	submitter := &submitterStub{}
	bot := newTestBot(t, &oracleStub{deviation: deviationOf(5)}, submitter, &gateStub{cfg: cfg})

	bot.tick(context.Background())
	require.Empty(t, submitter.requests)
}

func TestTickRespectsMinTimeBetweenTrades(t *testing.T) {
	cfg := botConfig()
	cfg.Statistics.LastTradeAt = time.Now().UTC().Add(-10 * time.Second)
	submitter := &submitterStub{}
	bot := newTestBot(t, &oracleStub{deviation: deviationOf(5)}, submitter, &gateStub{cfg: cfg})

	bot.tick(context.Background())
	require.Empty(t, submitter.requests)
}

func TestTickSubmitsCorrection(t *testing.T) {
	submitter := &submitterStub{}
	bot := newTestBot(t, &oracleStub{deviation: deviationOf(-3)}, submitter, &gateStub{cfg: botConfig()})

	bot.tick(context.Background())
	require.Len(t, submitter.requests, 1)
	require.Equal(t, domain.ActionBuy, submitter.requests[0].Action)
}

func TestTickSurvivesOracleFailure(t *testing.T) {
	submitter := &submitterStub{}
	bot := newTestBot(t, &oracleStub{err: domain.ErrUpstreamUnavailable}, submitter, &gateStub{cfg: botConfig()})

	bot.tick(context.Background())
	require.Empty(t, submitter.requests)
}

func TestTickSurvivesGateRejection(t *testing.T) {
	submitter := &submitterStub{err: &domain.SafetyViolation{Reason: "daily limit exceeded"}}
	bot := newTestBot(t, &oracleStub{deviation: deviationOf(5)}, submitter, &gateStub{cfg: botConfig()})

	bot.tick(context.Background())
	require.Len(t, submitter.requests, 1)
}

func TestBuildCorrectionTiers(t *testing.T) {
	bot := newTestBot(t, &oracleStub{}, &submitterStub{}, &gateStub{cfg: botConfig()})
	cfg := botConfig()

	cases := []struct {
		name     string
		percent  float64
		action   domain.Action
		urgency  domain.Urgency
		fraction float64
	}{
		{"small drift below peg buys a quarter", -1, domain.ActionBuy, domain.UrgencyLow, 0.25},
		{"medium drift above peg sells half", 3, domain.ActionSell, domain.UrgencyMedium, 0.5},
		{"high drift sells three quarters", 6, domain.ActionSell, domain.UrgencyHigh, 0.75},
		{"emergency drift sells full size", 12, domain.ActionSell, domain.UrgencyEmergency, 1},
		{"emergency crash buys full size", -15, domain.ActionBuy, domain.UrgencyEmergency, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := bot.buildCorrection(cfg, deviationOf(tc.percent))
			require.Equal(t, tc.action, req.Action)
			require.Equal(t, tc.urgency, req.Urgency)

			want := cfg.Limits.MaxTradeSize.Mul(decimal.NewFromFloat(tc.fraction))
			require.True(t, req.Amount.Equal(want), "want %s, got %s", want, req.Amount)
		})
	}
}

func TestRunPicksUpIntervalPatch(t *testing.T) {
	cfg := botConfig()
	cfg.Strategy.PriceCheckInterval = 5 * time.Millisecond
	gate := &gateStub{cfg: cfg}
	oracle := &oracleStub{deviation: deviationOf(0)}
	bot := newTestBot(t, oracle, &submitterStub{}, gate)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- bot.Run(ctx) }()

	require.Eventually(t, func() bool { return oracle.callCount() > 0 },
		time.Second, time.Millisecond, "loop never ticked at the initial interval")

	slow := botConfig()
	slow.Strategy.PriceCheckInterval = time.Hour
	gate.setConfig(slow)

	// once the next tick observes the patch the ticker resets to an hour;
	// at most one already queued tick may still fire
	time.Sleep(50 * time.Millisecond)
	settled := oracle.callCount()
	time.Sleep(100 * time.Millisecond)
	require.LessOrEqual(t, oracle.callCount(), settled+1)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	bot := newTestBot(t, &oracleStub{deviation: deviationOf(0)}, &submitterStub{}, &gateStub{cfg: botConfig()})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- bot.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}
