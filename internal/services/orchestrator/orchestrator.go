// Package orchestrator drives the trade lifecycle: gate, snapshot, open,
// execute, reconcile, feedback.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/pegbot/internal/domain"
	"github.com/vadiminshakov/pegbot/internal/services/executor"
	"github.com/vadiminshakov/pegbot/pkg/retrier"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultCallTimeout = 10 * time.Second

type priceSource interface {
	GetAllPrices(ctx context.Context) (*domain.PriceSnapshot, error)
	GetPegDeviation(ctx context.Context, target decimal.Decimal) (*domain.Deviation, error)
}

type riskGate interface {
	Config() domain.BotConfig
	CheckDailyLimits() (domain.DailyLimitReport, error)
	ResolveSlippage(urgency domain.Urgency) decimal.Decimal
	RecordTradeOutcome(trade *domain.TradeRecord)
}

type tradeStore interface {
	Save(rec *domain.TradeRecord) error
	Update(rec *domain.TradeRecord) error
}

type tradePublisher interface {
	Publish(rec domain.TradeRecord)
}

// Estimate is the side-effect-free preview of a prospective trade.
type Estimate struct {
	Quote        executor.Quote  `json:"quote"`
	CurrentPrice decimal.Decimal `json:"current_price"`
}

// Orchestrator owns the trade-record lifecycle for one bot identity.
// Submissions are serialized by an internal mutex: two interleaved
// executions against the same wallet could race on nonces, and the daily
// limit check must not race the record it gates.
type Orchestrator struct {
	oracle      priceSource
	gate        riskGate
	executor    executor.Executor
	store       tradeStore
	publisher   tradePublisher
	retrier     *retrier.Retrier
	logger      *zap.Logger
	assetToken  string
	quoteToken  string
	callTimeout time.Duration

	submitLock chan struct{}
}

// New creates an orchestrator. publisher may be nil.
func New(oracle priceSource, gate riskGate, exec executor.Executor, store tradeStore,
	publisher tradePublisher, assetToken, quoteToken string, logger *zap.Logger) (*Orchestrator, error) {

	if oracle == nil || gate == nil || exec == nil || store == nil {
		return nil, errors.New("oracle, gate, executor and store are all required")
	}
	if assetToken == "" || quoteToken == "" {
		return nil, errors.New("asset and quote token symbols are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	lock := make(chan struct{}, 1)
	lock <- struct{}{}
	return &Orchestrator{
		oracle:      oracle,
		gate:        gate,
		executor:    exec,
		store:       store,
		publisher:   publisher,
		retrier:     retrier.New(retrier.WithMaxRetries(3)),
		logger:      logger,
		assetToken:  assetToken,
		quoteToken:  quoteToken,
		callTimeout: defaultCallTimeout,
		submitLock:  lock,
	}, nil
}

// Submit runs one trade through the full lifecycle. Validation and safety
// rejections return an error and leave no trade record. Once a PENDING
// record exists, every outcome — including an executor error or timeout —
// is reflected in the returned record's terminal status, and the method
// returns nil error.
func (o *Orchestrator) Submit(ctx context.Context, req domain.TradeRequest) (*domain.TradeRecord, error) {
	// step 1: validate before any persistence or external call
	if err := req.Validate(); err != nil {
		return nil, err
	}

	// one submission in flight at a time per identity
	select {
	case <-o.submitLock:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { o.submitLock <- struct{}{} }()

	// step 2: gate
	if !o.gate.Config().Enabled {
		return nil, &domain.SafetyViolation{Reason: "bot disabled"}
	}
	daily, err := o.gate.CheckDailyLimits()
	if err != nil {
		return nil, errors.Wrap(err, "check daily limits")
	}
	if daily.Exceeded {
		return nil, &domain.SafetyViolation{Reason: fmt.Sprintf(
			"daily limit exceeded: volume %s/%s, trades %d/%d",
			daily.VolumeUsed.String(), daily.VolumeLimit.String(), daily.TradesUsed, daily.TradesLimit)}
	}

	// step 3: parallel market snapshot; a timeout here aborts before any
	// record is opened
	snapshot, deviation, err := o.captureMarket(ctx)
	if err != nil {
		return nil, err
	}

	// step 4: persist the PENDING record before touching the chain so a
	// crash leaves an orphaned record operators can reconcile
	// an explicit request slippage wins, zero included; only a nil one
	// falls back to the urgency tier
	slippage := o.gate.ResolveSlippage(req.Urgency)
	if req.Slippage != nil {
		slippage = *req.Slippage
	}

	inputToken, outputToken := o.quoteToken, o.assetToken
	if req.Action == domain.ActionSell {
		inputToken, outputToken = o.assetToken, o.quoteToken
	}

	rec := domain.NewTradeRecord(newTradeID(), req, inputToken, outputToken,
		slippage, *snapshot, *deviation, time.Now().UTC())
	if err := o.store.Save(rec); err != nil {
		return nil, err
	}

	o.logger.Info("trade opened",
		zap.String("trade_id", rec.TradeID),
		zap.String("action", rec.Action.String()),
		zap.String("amount", rec.InputAmount.String()),
		zap.String("deviation", rec.PegDeviationAtCreation.String()))

	// step 5: exactly one executor call per submission, bounded by timeout
	result, execErr := o.execute(ctx, req, slippage)

	// step 6: terminal reconcile, one-way transition
	if execErr != nil {
		if err := rec.MarkFailed(execErr.Error()); err != nil {
			o.logger.Error("trade state transition rejected", zap.String("trade_id", rec.TradeID), zap.Error(err))
		}
	} else {
		if err := rec.MarkSuccess(*result); err != nil {
			o.logger.Error("trade state transition rejected", zap.String("trade_id", rec.TradeID), zap.Error(err))
		}
	}
	o.persistTerminal(ctx, rec)

	// step 7: feedback keeps circuit breaker and counters consistent with
	// the final status
	o.gate.RecordTradeOutcome(rec)
	if o.publisher != nil {
		o.publisher.Publish(*rec)
	}

	if execErr != nil {
		o.logger.Warn("trade failed",
			zap.String("trade_id", rec.TradeID),
			zap.String("error", rec.Error))
	} else {
		o.logger.Info("trade executed",
			zap.String("trade_id", rec.TradeID),
			zap.String("output", rec.OutputAmount.String()),
			zap.String("execution_price", rec.ExecutionPrice.String()))
	}

	return rec, nil
}

// Estimate previews a trade without opening a record or touching any
// counter.
func (o *Orchestrator) Estimate(ctx context.Context, amount decimal.Decimal, action domain.Action) (*Estimate, error) {
	if !action.Valid() {
		return nil, &domain.ValidationError{Reason: "action must be BUY or SELL"}
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, &domain.ValidationError{Reason: fmt.Sprintf("amount must be positive, got %s", amount.String())}
	}

	callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()

	quote, err := o.executor.Quote(callCtx, amount, action)
	if err != nil {
		return nil, errors.Wrap(err, "quote trade")
	}
	snapshot, err := o.oracle.GetAllPrices(callCtx)
	if err != nil {
		return nil, err
	}

	return &Estimate{Quote: *quote, CurrentPrice: snapshot.PriceInUSD}, nil
}

// captureMarket fans out the two oracle reads and joins both before the
// record opens.
func (o *Orchestrator) captureMarket(ctx context.Context) (*domain.PriceSnapshot, *domain.Deviation, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()

	var (
		snapshot  *domain.PriceSnapshot
		deviation *domain.Deviation
	)
	g, gctx := errgroup.WithContext(callCtx)
	g.Go(func() error {
		var err error
		snapshot, err = o.oracle.GetAllPrices(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		deviation, err = o.oracle.GetPegDeviation(gctx, decimal.Zero)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, errors.Wrap(err, "capture market snapshot")
	}
	return snapshot, deviation, nil
}

func (o *Orchestrator) execute(ctx context.Context, req domain.TradeRequest, slippage decimal.Decimal) (*domain.ExecutionResult, error) {
	execCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()

	if req.Action == domain.ActionBuy {
		return o.executor.ExecuteBuy(execCtx, req.Amount, req.MinOutput, slippage, req.Urgency)
	}
	return o.executor.ExecuteSell(execCtx, req.Amount, req.MinOutput, slippage, req.Urgency)
}

// persistTerminal retries the terminal-status update: once a record exists
// its final state must not be dropped.
func (o *Orchestrator) persistTerminal(ctx context.Context, rec *domain.TradeRecord) {
	err := o.retrier.Do(ctx, func(ctx context.Context) error {
		return o.store.Update(rec)
	})
	if err != nil {
		o.logger.Error("failed to persist terminal trade status",
			zap.String("trade_id", rec.TradeID),
			zap.String("status", string(rec.Status)),
			zap.Error(err))
	}
}

// newTradeID is unique under expected throughput: nanosecond timestamp plus
// a random suffix.
func newTradeID() string {
	suffix := strings.SplitN(uuid.NewString(), "-", 2)[0]
	return fmt.Sprintf("trade_%d_%s", time.Now().UnixNano(), suffix)
}
