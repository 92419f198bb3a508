// Package oracle computes asset prices, peg deviation and liquidity depth
// from AMM pool reserves.
package oracle

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/pegbot/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// PoolReader reads current reserves of one AMM pair.
type PoolReader interface {
	Reserves(ctx context.Context) (asset, quote decimal.Decimal, err error)
}

type configSource interface {
	Config() domain.BotConfig
}

// impact is estimated for these fractions of the asset reserve.
var impactFractions = []decimal.Decimal{
	decimal.NewFromFloat(0.01),
	decimal.NewFromFloat(0.05),
	decimal.NewFromFloat(0.1),
}

// Oracle derives market state from the managed asset/quote pool and an
// optional quote/stable reference pool used for USD pricing. All reads are
// side-effect-free and safe to call concurrently.
type Oracle struct {
	assetPool PoolReader
	refPool   PoolReader
	cfg       configSource
	logger    *zap.Logger
}

// New creates an oracle. refPool may be nil when the quote currency is
// itself the stable reference (quote/USD rate of 1).
func New(assetPool PoolReader, refPool PoolReader, cfg configSource, logger *zap.Logger) (*Oracle, error) {
	if assetPool == nil {
		return nil, errors.New("asset pool reader is required")
	}
	if cfg == nil {
		return nil, errors.New("config source is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Oracle{assetPool: assetPool, refPool: refPool, cfg: cfg, logger: logger}, nil
}

// GetAllPrices captures a price snapshot. The two pool reads fan out
// concurrently and both must complete.
func (o *Oracle) GetAllPrices(ctx context.Context) (*domain.PriceSnapshot, error) {
	var (
		reserveAsset, reserveQuote decimal.Decimal
		quoteInUSD                 = decimal.NewFromInt(1)
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		reserveAsset, reserveQuote, err = o.assetPool.Reserves(gctx)
		return err
	})
	if o.refPool != nil {
		g.Go(func() error {
			refQuote, refStable, err := o.refPool.Reserves(gctx)
			if err != nil {
				return err
			}
			if refQuote.IsZero() {
				return errors.Wrap(domain.ErrUpstreamUnavailable, "reference pool has empty quote reserve")
			}
			quoteInUSD = refStable.Div(refQuote)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, wrapUpstream(err, "fetch pool reserves")
	}

	if reserveAsset.IsZero() {
		return nil, errors.Wrap(domain.ErrUpstreamUnavailable, "managed pool has empty asset reserve")
	}

	priceInQuote := reserveQuote.Div(reserveAsset)
	return &domain.PriceSnapshot{
		PriceInQuote: priceInQuote,
		PriceInUSD:   priceInQuote.Mul(quoteInUSD),
		QuoteInUSD:   quoteInUSD,
		ReserveAsset: reserveAsset,
		ReserveQuote: reserveQuote,
		Timestamp:    time.Now().UTC(),
	}, nil
}

// GetPegDeviation computes the signed deviation of the current USD price
// from target. A zero target defaults to the configured peg.
func (o *Oracle) GetPegDeviation(ctx context.Context, target decimal.Decimal) (*domain.Deviation, error) {
	if target.LessThanOrEqual(decimal.Zero) {
		target = o.cfg.Config().TargetPeg
	}

	snapshot, err := o.GetAllPrices(ctx)
	if err != nil {
		return nil, err
	}

	deviation := domain.NewDeviation(snapshot.PriceInUSD, target)
	return &deviation, nil
}

// GetLiquidityDepth reports pool depth and the price impact of trades sized
// as standard fractions of the asset reserve.
func (o *Oracle) GetLiquidityDepth(ctx context.Context) (*domain.LiquidityDepth, error) {
	snapshot, err := o.GetAllPrices(ctx)
	if err != nil {
		return nil, err
	}

	// both sides of the pool are worth the same at the spot price
	totalValueUSD := snapshot.ReserveQuote.Mul(snapshot.QuoteInUSD).Mul(decimal.NewFromInt(2))

	impacts := make([]domain.PriceImpactEstimate, 0, len(impactFractions))
	for _, fraction := range impactFractions {
		size := snapshot.ReserveAsset.Mul(fraction)
		impacts = append(impacts, domain.PriceImpactEstimate{
			TradeSize:     size,
			ImpactPercent: constantProductImpact(snapshot.ReserveAsset, snapshot.ReserveQuote, size),
		})
	}

	minLiquidity := o.cfg.Config().Strategy.MinLiquidityUSD
	return &domain.LiquidityDepth{
		ReserveAsset:  snapshot.ReserveAsset,
		ReserveQuote:  snapshot.ReserveQuote,
		TotalValueUSD: totalValueUSD,
		PriceImpacts:  impacts,
		Healthy:       totalValueUSD.GreaterThanOrEqual(minLiquidity),
	}, nil
}

// Ping verifies the pool source is reachable.
func (o *Oracle) Ping(ctx context.Context) error {
	_, _, err := o.assetPool.Reserves(ctx)
	return wrapUpstream(err, "ping pool source")
}

// constantProductImpact is the execution-vs-spot price loss (percent) of
// selling amountIn of the asset into an x*y=k pool, ignoring fees.
func constantProductImpact(reserveAsset, reserveQuote, amountIn decimal.Decimal) decimal.Decimal {
	if reserveAsset.IsZero() || amountIn.IsZero() {
		return decimal.Zero
	}
	spot := reserveQuote.Div(reserveAsset)
	out := reserveQuote.Mul(amountIn).Div(reserveAsset.Add(amountIn))
	execPrice := out.Div(amountIn)
	return domain.PercentageDiff(execPrice, spot).Abs()
}

func wrapUpstream(err error, msg string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrUpstreamUnavailable) {
		return errors.Wrap(err, msg)
	}
	return errors.Wrapf(domain.ErrUpstreamUnavailable, "%s: %v", msg, err)
}
