// Package executor abstracts the on-chain swap primitive. Wallet signing,
// broadcast and gas estimation live behind the Executor interface; the bot
// core only consumes results.
package executor

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/pegbot/internal/domain"
)

// Quote is a pure price estimate for a prospective swap.
type Quote struct {
	ExpectedOutput     decimal.Decimal `json:"expected_output"`
	PriceImpactPercent decimal.Decimal `json:"price_impact_percent"`
	InputToken         string          `json:"input_token"`
	OutputToken        string          `json:"output_token"`
}

// Executor performs swaps against the managed pool. ExecuteBuy spends quote
// currency for the asset, ExecuteSell the reverse. Implementations own their
// retry policy; the orchestrator treats each result as final.
type Executor interface {
	ExecuteBuy(ctx context.Context, amount, minOutput, slippage decimal.Decimal, urgency domain.Urgency) (*domain.ExecutionResult, error)
	ExecuteSell(ctx context.Context, amount, minOutput, slippage decimal.Decimal, urgency domain.Urgency) (*domain.ExecutionResult, error)
	// Quote estimates a swap without touching the chain state.
	Quote(ctx context.Context, amount decimal.Decimal, action domain.Action) (*Quote, error)
	// Balances returns wallet balances keyed by token symbol.
	Balances(ctx context.Context) (map[string]decimal.Decimal, error)
	Ping(ctx context.Context) error
}
