package executor

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/pegbot/internal/domain"
	"github.com/vadiminshakov/pegbot/internal/services/oracle"
	"go.uber.org/zap"
)

var (
	hundred      = decimal.NewFromInt(100)
	simFeeFactor = decimal.NewFromFloat(0.997)
	defaultGas   = decimal.NewFromFloat(0.002)
	initialAsset = decimal.NewFromInt(1000)
	initialQuote = decimal.NewFromInt(10000)
)

// SimulateExecutor swaps against an in-memory pool. Used in dry-run mode and
// tests; supports failure injection to exercise the circuit breaker.
type SimulateExecutor struct {
	mu          sync.Mutex
	pool        *oracle.SimulatePool
	wallet      map[string]decimal.Decimal
	assetToken  string
	quoteToken  string
	logger      *zap.Logger
	blockHeight uint64
	failNext    []error
}

// NewSimulateExecutor creates a simulator trading assetToken against
// quoteToken on the given pool.
func NewSimulateExecutor(pool *oracle.SimulatePool, assetToken, quoteToken string, logger *zap.Logger) (*SimulateExecutor, error) {
	if pool == nil {
		return nil, errors.New("pool is required for SimulateExecutor")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	wallet := map[string]decimal.Decimal{
		assetToken: initialAsset,
		quoteToken: initialQuote,
	}
	logger.Info("simulate executor init",
		zap.String("asset", assetToken),
		zap.String("quote", quoteToken),
		zap.String(assetToken+"_balance", wallet[assetToken].String()),
		zap.String(quoteToken+"_balance", wallet[quoteToken].String()))
	return &SimulateExecutor{
		pool:        pool,
		wallet:      wallet,
		assetToken:  assetToken,
		quoteToken:  quoteToken,
		logger:      logger,
		blockHeight: 1,
	}, nil
}

// FailNextWith queues an error returned by the next execute call. Queued
// errors are consumed in order.
func (e *SimulateExecutor) FailNextWith(errs ...error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failNext = append(e.failNext, errs...)
}

// SetBalance overrides a wallet balance.
func (e *SimulateExecutor) SetBalance(token string, amount decimal.Decimal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.wallet[token] = amount
}

// ExecuteBuy spends amount of quote currency for the asset.
func (e *SimulateExecutor) ExecuteBuy(ctx context.Context, amount, minOutput, slippage decimal.Decimal, _ domain.Urgency) (*domain.ExecutionResult, error) {
	return e.execute(ctx, amount, minOutput, slippage, e.quoteToken, e.assetToken, false)
}

// ExecuteSell spends amount of the asset for quote currency.
func (e *SimulateExecutor) ExecuteSell(ctx context.Context, amount, minOutput, slippage decimal.Decimal, _ domain.Urgency) (*domain.ExecutionResult, error) {
	return e.execute(ctx, amount, minOutput, slippage, e.assetToken, e.quoteToken, true)
}

func (e *SimulateExecutor) execute(ctx context.Context, amount, minOutput, slippage decimal.Decimal,
	inToken, outToken string, assetIn bool) (*domain.ExecutionResult, error) {

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.failNext) > 0 {
		err := e.failNext[0]
		e.failNext = e.failNext[1:]
		return nil, err
	}

	if e.wallet[inToken].LessThan(amount) {
		return nil, fmt.Errorf("insufficient %s balance: have %s, need %s",
			inToken, e.wallet[inToken].String(), amount.String())
	}

	expected, spotOut, err := e.quoteLocked(ctx, amount, assetIn)
	if err != nil {
		return nil, err
	}

	// output floor mirrors a router's amountOutMin check; it is enforced
	// against the quote before the swap so a rejected trade leaves the
	// reserves untouched. Without an explicit minimum the tolerance bounds
	// price impact against a zero-impact fill.
	floor := minOutput
	if floor.IsZero() && slippage.GreaterThan(decimal.Zero) {
		floor = spotOut.Mul(hundred.Sub(slippage)).Div(hundred)
	}
	if !floor.IsZero() && expected.LessThan(floor) {
		return nil, fmt.Errorf("slippage exceeded: output %s below minimum %s", expected.String(), floor.String())
	}

	out, err := e.pool.Swap(amount, assetIn)
	if err != nil {
		return nil, errors.Wrap(err, "pool swap")
	}

	e.wallet[inToken] = e.wallet[inToken].Sub(amount)
	e.wallet[outToken] = e.wallet[outToken].Add(out)
	e.blockHeight++

	return &domain.ExecutionResult{
		TxHash:       fmt.Sprintf("0xsim%016d", e.blockHeight),
		BlockNumber:  e.blockHeight,
		OutputAmount: out,
		GasCost:      defaultGas,
	}, nil
}

// Quote estimates swap output and price impact without mutating the pool.
func (e *SimulateExecutor) Quote(ctx context.Context, amount decimal.Decimal, action domain.Action) (*Quote, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	assetIn := action == domain.ActionSell
	expected, _, err := e.quoteLocked(ctx, amount, assetIn)
	if err != nil {
		return nil, err
	}

	reserveAsset, reserveQuote, err := e.pool.Reserves(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "read reserves for quote")
	}

	spot := reserveQuote.Div(reserveAsset)
	var execPrice decimal.Decimal
	if assetIn {
		execPrice = expected.Div(amount)
	} else {
		execPrice = amount.Div(expected)
	}

	q := &Quote{
		ExpectedOutput:     expected,
		PriceImpactPercent: domain.PercentageDiff(execPrice, spot).Abs(),
		InputToken:         e.quoteToken,
		OutputToken:        e.assetToken,
	}
	if assetIn {
		q.InputToken, q.OutputToken = e.assetToken, e.quoteToken
	}
	return q, nil
}

// quoteLocked returns the constant-product output and the zero-impact spot
// output for the same fill, both net of the pool fee.
func (e *SimulateExecutor) quoteLocked(ctx context.Context, amountIn decimal.Decimal, assetIn bool) (decimal.Decimal, decimal.Decimal, error) {
	if amountIn.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, decimal.Zero, fmt.Errorf("amount must be positive, got %s", amountIn.String())
	}

	reserveAsset, reserveQuote, err := e.pool.Reserves(ctx)
	if err != nil {
		return decimal.Zero, decimal.Zero, errors.Wrap(err, "read reserves")
	}

	effectiveIn := amountIn.Mul(simFeeFactor)
	if assetIn {
		return reserveQuote.Mul(effectiveIn).Div(reserveAsset.Add(effectiveIn)),
			effectiveIn.Mul(reserveQuote).Div(reserveAsset), nil
	}
	return reserveAsset.Mul(effectiveIn).Div(reserveQuote.Add(effectiveIn)),
		effectiveIn.Mul(reserveAsset).Div(reserveQuote), nil
}

// Balances returns a copy of the wallet.
func (e *SimulateExecutor) Balances(ctx context.Context) (map[string]decimal.Decimal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]decimal.Decimal, len(e.wallet))
	for token, balance := range e.wallet {
		out[token] = balance
	}
	return out, nil
}

// Ping verifies the simulated pool is readable.
func (e *SimulateExecutor) Ping(ctx context.Context) error {
	_, _, err := e.pool.Reserves(ctx)
	return err
}
