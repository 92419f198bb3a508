package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TradeStatus is the lifecycle state of a trade record.
type TradeStatus string

const (
	TradeStatusPending TradeStatus = "PENDING"
	TradeStatusSuccess TradeStatus = "SUCCESS"
	TradeStatusFailed  TradeStatus = "FAILED"
)

// Terminal reports whether the status is final.
func (s TradeStatus) Terminal() bool {
	return s == TradeStatusSuccess || s == TradeStatusFailed
}

// TradeRequest is the ephemeral input of a trade submission. A nil Slippage
// means the allowance is resolved from the urgency tier; an explicit zero
// disables the tolerance-derived output floor and leaves MinOutput as the
// only guard.
type TradeRequest struct {
	Action    Action           `json:"action"`
	Amount    decimal.Decimal  `json:"amount"`
	MinOutput decimal.Decimal  `json:"min_output,omitempty"`
	Slippage  *decimal.Decimal `json:"slippage,omitempty"`
	Urgency   Urgency          `json:"urgency,omitempty"`
}

// Validate checks request shape before any persistence or external call.
func (r TradeRequest) Validate() error {
	if !r.Action.Valid() {
		return &ValidationError{Reason: fmt.Sprintf("action must be %s or %s", ActionBuy, ActionSell)}
	}
	if r.Amount.LessThanOrEqual(decimal.Zero) {
		return &ValidationError{Reason: fmt.Sprintf("amount must be positive, got %s", r.Amount.String())}
	}
	if r.MinOutput.IsNegative() {
		return &ValidationError{Reason: "min output must not be negative"}
	}
	if r.Slippage != nil && r.Slippage.IsNegative() {
		return &ValidationError{Reason: "slippage must not be negative"}
	}
	return nil
}

// TradeRecord is the persisted lifecycle of one trade attempt. It is created
// in PENDING before the chain call and only ever moves to SUCCESS or FAILED.
// Records are never deleted.
type TradeRecord struct {
	TradeID                string          `json:"trade_id"`
	Action                 Action          `json:"action"`
	InputAmount            decimal.Decimal `json:"input_amount"`
	InputToken             string          `json:"input_token"`
	OutputToken            string          `json:"output_token"`
	MinOutputAmount        decimal.Decimal `json:"min_output_amount"`
	Slippage               decimal.Decimal `json:"slippage"`
	Urgency                Urgency         `json:"urgency"`
	Status                 TradeStatus     `json:"status"`
	MarketPriceAtExecution decimal.Decimal `json:"market_price_at_execution"`
	PegDeviationAtCreation decimal.Decimal `json:"peg_deviation_at_creation"`
	LiquiditySnapshot      decimal.Decimal `json:"liquidity_snapshot"`
	TxReference            string          `json:"tx_reference,omitempty"`
	BlockReference         uint64          `json:"block_reference,omitempty"`
	OutputAmount           decimal.Decimal `json:"output_amount,omitempty"`
	ExecutionPrice         decimal.Decimal `json:"execution_price,omitempty"`
	GasCost                decimal.Decimal `json:"gas_cost,omitempty"`
	Error                  string          `json:"error,omitempty"`
	InitiatedAt            time.Time       `json:"initiated_at"`
	CreatedAt              time.Time       `json:"created_at"`
	ExecutedAt             time.Time       `json:"executed_at,omitempty"`
	UpdatedAt              time.Time       `json:"updated_at"`
}

// NewTradeRecord opens a PENDING record for a validated request with the
// market snapshot captured at submission time.
func NewTradeRecord(tradeID string, req TradeRequest, inputToken, outputToken string,
	slippage decimal.Decimal, snapshot PriceSnapshot, deviation Deviation, initiatedAt time.Time) *TradeRecord {

	now := time.Now().UTC()
	return &TradeRecord{
		TradeID:                tradeID,
		Action:                 req.Action,
		InputAmount:            req.Amount,
		InputToken:             inputToken,
		OutputToken:            outputToken,
		MinOutputAmount:        req.MinOutput,
		Slippage:               slippage,
		Urgency:                req.Urgency,
		Status:                 TradeStatusPending,
		MarketPriceAtExecution: snapshot.PriceInUSD,
		PegDeviationAtCreation: deviation.DeviationPercent,
		LiquiditySnapshot:      snapshot.ReserveQuote,
		TxReference:            "unresolved",
		InitiatedAt:            initiatedAt,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
}

// ExecutionResult carries the chain-side outcome applied to a record.
type ExecutionResult struct {
	TxHash       string
	BlockNumber  uint64
	OutputAmount decimal.Decimal
	GasCost      decimal.Decimal
}

// MarkSuccess transitions the record PENDING -> SUCCESS. Execution price is
// the asset price in quote units for both directions: quote-side amount
// divided by asset-side amount.
func (r *TradeRecord) MarkSuccess(res ExecutionResult) error {
	if r.Status != TradeStatusPending {
		return fmt.Errorf("cannot complete trade %s: status is %s, not %s", r.TradeID, r.Status, TradeStatusPending)
	}

	r.Status = TradeStatusSuccess
	r.TxReference = res.TxHash
	r.BlockReference = res.BlockNumber
	r.OutputAmount = res.OutputAmount
	r.GasCost = res.GasCost
	if !res.OutputAmount.IsZero() {
		if r.Action == ActionBuy {
			// buy: input is quote, output is asset
			r.ExecutionPrice = r.InputAmount.Div(res.OutputAmount)
		} else {
			// sell: input is asset, output is quote
			r.ExecutionPrice = res.OutputAmount.Div(r.InputAmount)
		}
	}
	now := time.Now().UTC()
	r.ExecutedAt = now
	r.UpdatedAt = now
	return nil
}

// MarkFailed transitions the record PENDING -> FAILED with the error message.
func (r *TradeRecord) MarkFailed(reason string) error {
	if r.Status != TradeStatusPending {
		return fmt.Errorf("cannot fail trade %s: status is %s, not %s", r.TradeID, r.Status, TradeStatusPending)
	}

	r.Status = TradeStatusFailed
	r.Error = reason
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// DailyActivity is the aggregate of trade records for one UTC calendar day.
// Recomputed from the store, never mutated independently.
type DailyActivity struct {
	// Volume sums input amounts of successful trades.
	Volume decimal.Decimal `json:"volume"`
	// TradeCount counts every record opened that day, whatever its outcome.
	TradeCount int `json:"trade_count"`
}

// TradeStatistics summarizes trade records over a reporting window.
// Rolling windows are a reporting view only; limit enforcement uses
// calendar-day DailyActivity.
type TradeStatistics struct {
	Total       int             `json:"total"`
	Succeeded   int             `json:"succeeded"`
	Failed      int             `json:"failed"`
	Pending     int             `json:"pending"`
	Volume      decimal.Decimal `json:"volume"`
	SuccessRate decimal.Decimal `json:"success_rate"`
}
