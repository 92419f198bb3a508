// Package domain defines core data structures used throughout the peg bot.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const percentageMultiplier = 100

// PriceSnapshot captures the market state of the managed asset at one instant.
// Immutable once produced by the oracle.
type PriceSnapshot struct {
	// PriceInQuote asset price in the pool's quote currency.
	PriceInQuote decimal.Decimal `json:"price_in_quote"`
	// PriceInUSD asset price in USD, derived through the reference pool.
	PriceInUSD decimal.Decimal `json:"price_in_usd"`
	// QuoteInUSD USD price of the quote currency.
	QuoteInUSD decimal.Decimal `json:"quote_in_usd"`
	// ReserveAsset asset-side reserve of the managed pool.
	ReserveAsset decimal.Decimal `json:"reserve_asset"`
	// ReserveQuote quote-side reserve of the managed pool.
	ReserveQuote decimal.Decimal `json:"reserve_quote"`
	Timestamp    time.Time       `json:"timestamp"`
}

// Deviation is the signed distance of the current price from a target peg.
// It is always recomputed from a fresh snapshot, never persisted on its own.
type Deviation struct {
	CurrentPrice     decimal.Decimal `json:"current_price"`
	TargetPrice      decimal.Decimal `json:"target_price"`
	DeviationPercent decimal.Decimal `json:"deviation_percent"`
}

// NewDeviation computes the deviation of current from target.
// Sign convention: positive means the price sits above the peg.
func NewDeviation(current, target decimal.Decimal) Deviation {
	return Deviation{
		CurrentPrice:     current,
		TargetPrice:      target,
		DeviationPercent: PercentageDiff(current, target),
	}
}

// PercentageDiff returns (value-base)/base*100, zero when base is zero.
func PercentageDiff(value, base decimal.Decimal) decimal.Decimal {
	if base.IsZero() {
		return decimal.Zero
	}
	return value.Sub(base).Div(base).Mul(decimal.NewFromInt(percentageMultiplier))
}

// PriceImpactEstimate is the expected price impact of swapping a given
// fraction of the pool reserves.
type PriceImpactEstimate struct {
	TradeSize     decimal.Decimal `json:"trade_size"`
	ImpactPercent decimal.Decimal `json:"impact_percent"`
}

// LiquidityDepth describes how much value backs the managed pool and how
// tolerant it is to trades of common sizes.
type LiquidityDepth struct {
	ReserveAsset  decimal.Decimal       `json:"reserve_asset"`
	ReserveQuote  decimal.Decimal       `json:"reserve_quote"`
	TotalValueUSD decimal.Decimal       `json:"total_value_usd"`
	PriceImpacts  []PriceImpactEstimate `json:"price_impacts"`
	// Healthy is true iff TotalValueUSD covers the configured minimum.
	Healthy bool `json:"healthy"`
}
