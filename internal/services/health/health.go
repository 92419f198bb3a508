// Package health reduces independent liveness probes to a single verdict.
package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultProbeTimeout = 5 * time.Second
	defaultStaleAfter   = 10 * time.Minute
)

type pinger interface {
	Ping(ctx context.Context) error
}

type storePinger interface {
	Ping() error
	StalePending(olderThan time.Duration) int
}

// Report is the aggregate health verdict. Healthy is the AND of all probes.
type Report struct {
	Healthy      bool            `json:"healthy"`
	Services     map[string]bool `json:"services"`
	StalePending int             `json:"stale_pending"`
}

// Aggregator runs liveness probes against the oracle, the chain executor
// and the trade store. Probes never mutate state; a failing or panicking
// probe yields false instead of propagating.
type Aggregator struct {
	oracle       pinger
	executor     pinger
	store        storePinger
	logger       *zap.Logger
	probeTimeout time.Duration
	staleAfter   time.Duration
}

// New creates an aggregator over the three probe targets.
func New(oracle, executor pinger, store storePinger, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		oracle:       oracle,
		executor:     executor,
		store:        store,
		logger:       logger,
		probeTimeout: defaultProbeTimeout,
		staleAfter:   defaultStaleAfter,
	}
}

// Check probes all services concurrently and joins the results.
func (a *Aggregator) Check(ctx context.Context) Report {
	probeCtx, cancel := context.WithTimeout(ctx, a.probeTimeout)
	defer cancel()

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		services = make(map[string]bool, 3)
	)
	record := func(name string, ok bool) {
		mu.Lock()
		services[name] = ok
		mu.Unlock()
	}

	wg.Add(3)
	go func() {
		defer wg.Done()
		record("priceOracle", a.probe(probeCtx, "priceOracle", func(ctx context.Context) error {
			return a.oracle.Ping(ctx)
		}))
	}()
	go func() {
		defer wg.Done()
		record("chainExecutor", a.probe(probeCtx, "chainExecutor", func(ctx context.Context) error {
			return a.executor.Ping(ctx)
		}))
	}()
	go func() {
		defer wg.Done()
		record("store", a.probe(probeCtx, "store", func(context.Context) error {
			return a.store.Ping()
		}))
	}()
	wg.Wait()

	healthy := true
	for _, ok := range services {
		healthy = healthy && ok
	}

	report := Report{Healthy: healthy, Services: services}
	if services["store"] {
		report.StalePending = a.store.StalePending(a.staleAfter)
		if report.StalePending > 0 {
			a.logger.Warn("stale pending trades detected, operator reconciliation required",
				zap.Int("count", report.StalePending))
		}
	}
	return report
}

// probe wraps one check so a failure or panic degrades to false.
func (a *Aggregator) probe(ctx context.Context, name string, fn func(context.Context) error) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("health probe panicked", zap.String("probe", name), zap.String("panic", fmt.Sprint(r)))
			ok = false
		}
	}()

	if err := fn(ctx); err != nil {
		a.logger.Warn("health probe failed", zap.String("probe", name), zap.Error(err))
		return false
	}
	return true
}
