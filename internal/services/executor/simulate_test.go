package executor

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/pegbot/internal/domain"
	"github.com/vadiminshakov/pegbot/internal/services/oracle"
	"go.uber.org/zap"
)

func newTestExecutor(t *testing.T) (*SimulateExecutor, *oracle.SimulatePool) {
	t.Helper()
	pool := oracle.NewSimulatePool(decimal.NewFromInt(1_000_000), decimal.NewFromInt(1_000_000))
	exec, err := NewSimulateExecutor(pool, "TOKEN", "USDT", zap.NewNop())
	require.NoError(t, err)
	return exec, pool
}

func TestExecuteBuyMovesBalancesAndPool(t *testing.T) {
	exec, pool := newTestExecutor(t)
	ctx := context.Background()

	res, err := exec.ExecuteBuy(ctx, decimal.NewFromInt(100), decimal.Zero, decimal.NewFromInt(1), domain.UrgencyUnspecified)
	require.NoError(t, err)
	require.Contains(t, res.TxHash, "0xsim")
	require.True(t, res.OutputAmount.IsPositive())
	require.True(t, res.GasCost.IsPositive())

	balances, err := exec.Balances(ctx)
	require.NoError(t, err)
	require.True(t, balances["USDT"].Equal(decimal.NewFromInt(9900)))
	require.True(t, balances["TOKEN"].Equal(decimal.NewFromInt(1000).Add(res.OutputAmount)))

	// buying the asset pushes its pool price up
	reserveAsset, reserveQuote, err := pool.Reserves(ctx)
	require.NoError(t, err)
	require.True(t, reserveQuote.Div(reserveAsset).GreaterThan(decimal.NewFromInt(1)))
}

func TestExecuteSellMovesBalances(t *testing.T) {
	exec, _ := newTestExecutor(t)
	ctx := context.Background()

	res, err := exec.ExecuteSell(ctx, decimal.NewFromInt(100), decimal.Zero, decimal.NewFromInt(1), domain.UrgencyUnspecified)
	require.NoError(t, err)
	// 100 TOKEN at spot 1.0 nets just under 100 USDT after the 0.3% fee
	require.True(t, res.OutputAmount.LessThan(decimal.NewFromInt(100)))
	require.True(t, res.OutputAmount.GreaterThan(decimal.NewFromInt(99)))

	balances, err := exec.Balances(ctx)
	require.NoError(t, err)
	require.True(t, balances["TOKEN"].Equal(decimal.NewFromInt(900)))
}

func TestExecuteRejectsInsufficientBalance(t *testing.T) {
	exec, _ := newTestExecutor(t)

	_, err := exec.ExecuteSell(context.Background(), decimal.NewFromInt(5000), decimal.Zero, decimal.Zero, domain.UrgencyUnspecified)
	require.Error(t, err)
	require.Contains(t, err.Error(), "insufficient TOKEN balance")
}

func TestExecuteRespectsMinOutput(t *testing.T) {
	exec, _ := newTestExecutor(t)

	_, err := exec.ExecuteBuy(context.Background(), decimal.NewFromInt(100),
		decimal.NewFromInt(200), decimal.Zero, domain.UrgencyUnspecified)
	require.Error(t, err)
	require.Contains(t, err.Error(), "slippage exceeded")
}

func TestRejectedTradeLeavesStateUntouched(t *testing.T) {
	exec, pool := newTestExecutor(t)
	ctx := context.Background()

	_, err := exec.ExecuteBuy(ctx, decimal.NewFromInt(100),
		decimal.NewFromInt(200), decimal.Zero, domain.UrgencyUnspecified)
	require.Error(t, err)

	// the pool also feeds the oracle, a rejected trade must not move it
	reserveAsset, reserveQuote, err := pool.Reserves(ctx)
	require.NoError(t, err)
	require.True(t, reserveAsset.Equal(decimal.NewFromInt(1_000_000)),
		"asset reserve moved on a rejected trade: %s", reserveAsset)
	require.True(t, reserveQuote.Equal(decimal.NewFromInt(1_000_000)),
		"quote reserve moved on a rejected trade: %s", reserveQuote)

	balances, err := exec.Balances(ctx)
	require.NoError(t, err)
	require.True(t, balances["USDT"].Equal(decimal.NewFromInt(10000)))
	require.True(t, balances["TOKEN"].Equal(decimal.NewFromInt(1000)))
}

func TestSlippageToleranceBoundsPriceImpact(t *testing.T) {
	exec, pool := newTestExecutor(t)
	ctx := context.Background()
	exec.SetBalance("USDT", decimal.NewFromInt(100_000))

	// ~4.7% impact against a 1% tolerance
	_, err := exec.ExecuteBuy(ctx, decimal.NewFromInt(50_000),
		decimal.Zero, decimal.NewFromInt(1), domain.UrgencyUnspecified)
	require.Error(t, err)
	require.Contains(t, err.Error(), "slippage exceeded")

	reserveAsset, _, err := pool.Reserves(ctx)
	require.NoError(t, err)
	require.True(t, reserveAsset.Equal(decimal.NewFromInt(1_000_000)))

	// a small fill sits well inside the same tolerance
	res, err := exec.ExecuteBuy(ctx, decimal.NewFromInt(100),
		decimal.Zero, decimal.NewFromInt(1), domain.UrgencyUnspecified)
	require.NoError(t, err)
	require.True(t, res.OutputAmount.IsPositive())
}

func TestFailNextWithConsumesInOrder(t *testing.T) {
	exec, _ := newTestExecutor(t)
	ctx := context.Background()

	first := errors.New("first failure")
	second := errors.New("second failure")
	exec.FailNextWith(first, second)

	_, err := exec.ExecuteBuy(ctx, decimal.NewFromInt(1), decimal.Zero, decimal.Zero, domain.UrgencyUnspecified)
	require.ErrorIs(t, err, first)

	_, err = exec.ExecuteBuy(ctx, decimal.NewFromInt(1), decimal.Zero, decimal.Zero, domain.UrgencyUnspecified)
	require.ErrorIs(t, err, second)

	// queue drained, trading resumes
	_, err = exec.ExecuteBuy(ctx, decimal.NewFromInt(1), decimal.Zero, decimal.Zero, domain.UrgencyUnspecified)
	require.NoError(t, err)
}

func TestQuoteDoesNotMutatePool(t *testing.T) {
	exec, pool := newTestExecutor(t)
	ctx := context.Background()

	before, _, err := pool.Reserves(ctx)
	require.NoError(t, err)

	quote, err := exec.Quote(ctx, decimal.NewFromInt(100), domain.ActionBuy)
	require.NoError(t, err)
	require.True(t, quote.ExpectedOutput.IsPositive())
	require.True(t, quote.PriceImpactPercent.GreaterThanOrEqual(decimal.Zero))
	require.Equal(t, "USDT", quote.InputToken)
	require.Equal(t, "TOKEN", quote.OutputToken)

	after, _, err := pool.Reserves(ctx)
	require.NoError(t, err)
	require.True(t, before.Equal(after))

	balances, err := exec.Balances(ctx)
	require.NoError(t, err)
	require.True(t, balances["USDT"].Equal(decimal.NewFromInt(10000)), "quote must not touch the wallet")
}

func TestQuoteSellSwapsTokenSides(t *testing.T) {
	exec, _ := newTestExecutor(t)

	quote, err := exec.Quote(context.Background(), decimal.NewFromInt(100), domain.ActionSell)
	require.NoError(t, err)
	require.Equal(t, "TOKEN", quote.InputToken)
	require.Equal(t, "USDT", quote.OutputToken)
}

func TestSetBalance(t *testing.T) {
	exec, _ := newTestExecutor(t)
	exec.SetBalance("USDT", decimal.NewFromInt(5))

	_, err := exec.ExecuteBuy(context.Background(), decimal.NewFromInt(10), decimal.Zero, decimal.Zero, domain.UrgencyUnspecified)
	require.Error(t, err)
	require.Contains(t, err.Error(), "insufficient USDT balance")
}

func TestPingReflectsPoolHealth(t *testing.T) {
	exec, pool := newTestExecutor(t)

	require.NoError(t, exec.Ping(context.Background()))
	pool.FailWith(errors.New("pool down"))
	require.Error(t, exec.Ping(context.Background()))
}
