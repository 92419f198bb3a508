package oracle

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// feeMultiplier reflects the 0.3% swap fee of a V2-style pool.
var feeMultiplier = decimal.NewFromFloat(0.997)

// SimulatePool is an in-memory constant-product pool used for tests and
// dry-run operation.
type SimulatePool struct {
	mu           sync.RWMutex
	reserveAsset decimal.Decimal
	reserveQuote decimal.Decimal
	failWith     error
}

// NewSimulatePool creates a pool with the given starting reserves.
func NewSimulatePool(reserveAsset, reserveQuote decimal.Decimal) *SimulatePool {
	return &SimulatePool{reserveAsset: reserveAsset, reserveQuote: reserveQuote}
}

// Reserves returns current reserves or the injected failure.
func (p *SimulatePool) Reserves(ctx context.Context) (decimal.Decimal, decimal.Decimal, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.failWith != nil {
		return decimal.Zero, decimal.Zero, p.failWith
	}
	return p.reserveAsset, p.reserveQuote, nil
}

// SetReserves replaces the pool state.
func (p *SimulatePool) SetReserves(asset, quote decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reserveAsset = asset
	p.reserveQuote = quote
}

// FailWith makes subsequent reads return err; nil restores normal operation.
func (p *SimulatePool) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failWith = err
}

// Swap executes a constant-product swap against the pool and mutates the
// reserves. assetIn selects the input side; returns the output amount.
func (p *SimulatePool) Swap(amountIn decimal.Decimal, assetIn bool) (decimal.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.failWith != nil {
		return decimal.Zero, p.failWith
	}
	if amountIn.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, errors.Errorf("swap amount must be positive, got %s", amountIn.String())
	}

	effectiveIn := amountIn.Mul(feeMultiplier)
	if assetIn {
		out := p.reserveQuote.Mul(effectiveIn).Div(p.reserveAsset.Add(effectiveIn))
		p.reserveAsset = p.reserveAsset.Add(amountIn)
		p.reserveQuote = p.reserveQuote.Sub(out)
		return out, nil
	}

	out := p.reserveAsset.Mul(effectiveIn).Div(p.reserveQuote.Add(effectiveIn))
	p.reserveQuote = p.reserveQuote.Add(amountIn)
	p.reserveAsset = p.reserveAsset.Sub(out)
	return out, nil
}
