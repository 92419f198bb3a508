package health

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type pingerStub struct {
	err   error
	panic bool
}

func (p *pingerStub) Ping(ctx context.Context) error {
	if p.panic {
		panic("probe exploded")
	}
	return p.err
}

type storeStub struct {
	err   error
	stale int
}

func (s *storeStub) Ping() error {
	return s.err
}

func (s *storeStub) StalePending(olderThan time.Duration) int {
	return s.stale
}

func TestCheckAllHealthy(t *testing.T) {
	a := New(&pingerStub{}, &pingerStub{}, &storeStub{}, zap.NewNop())

	report := a.Check(context.Background())
	require.True(t, report.Healthy)
	require.Equal(t, map[string]bool{"priceOracle": true, "chainExecutor": true, "store": true}, report.Services)
	require.Equal(t, 0, report.StalePending)
}

func TestCheckSingleFailureDegradesVerdict(t *testing.T) {
	a := New(&pingerStub{err: errors.New("rpc down")}, &pingerStub{}, &storeStub{}, zap.NewNop())

	report := a.Check(context.Background())
	require.False(t, report.Healthy)
	require.False(t, report.Services["priceOracle"])
	require.True(t, report.Services["chainExecutor"])
	require.True(t, report.Services["store"])
}

func TestCheckStoreFailureSkipsStaleScan(t *testing.T) {
	a := New(&pingerStub{}, &pingerStub{}, &storeStub{err: errors.New("wal closed"), stale: 5}, zap.NewNop())

	report := a.Check(context.Background())
	require.False(t, report.Healthy)
	require.Equal(t, 0, report.StalePending, "stale scan runs only against a live store")
}

func TestCheckSurfacesStalePending(t *testing.T) {
	a := New(&pingerStub{}, &pingerStub{}, &storeStub{stale: 2}, zap.NewNop())

	report := a.Check(context.Background())
	require.True(t, report.Healthy, "stale pending trades degrade monitoring, not liveness")
	require.Equal(t, 2, report.StalePending)
}

func TestProbePanicYieldsFalse(t *testing.T) {
	a := New(&pingerStub{panic: true}, &pingerStub{}, &storeStub{}, zap.NewNop())

	report := a.Check(context.Background())
	require.False(t, report.Healthy)
	require.False(t, report.Services["priceOracle"])
}
