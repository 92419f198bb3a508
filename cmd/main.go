// Command pegbot runs the liquidity-peg stabilization bot. It watches the
// asset/quote pool price, and buys or sells the asset to pull the price back
// to the configured peg.
//
// Usage:
//
//	pegbot --config config.yaml
//	pegbot setup        (interactive configuration wizard)
//	pegbot              (uses CLI arguments, simulate platform)
//
// Required environment variables:
//
//	For chain platform: PEGBOT_RPC_URL
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/pegbot/config"
	"github.com/vadiminshakov/pegbot/internal"
	"github.com/vadiminshakov/pegbot/internal/events"
	"github.com/vadiminshakov/pegbot/internal/services/executor"
	"github.com/vadiminshakov/pegbot/internal/services/health"
	"github.com/vadiminshakov/pegbot/internal/services/oracle"
	"github.com/vadiminshakov/pegbot/internal/services/orchestrator"
	"github.com/vadiminshakov/pegbot/internal/services/risk"
	"github.com/vadiminshakov/pegbot/internal/setup"
	"github.com/vadiminshakov/pegbot/internal/storage/botconfig"
	"github.com/vadiminshakov/pegbot/internal/storage/trades"
	"github.com/vadiminshakov/pegbot/internal/web"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "setup" {
		if err := setup.RunTUI(); err != nil {
			log.Fatal(err)
		}
		// the wizard writes config.gen.yaml; continue startup from it
		os.Args = []string{os.Args[0], "--config", "config.gen.yaml"}
	}

	cfg, err := config.Get()
	if err != nil {
		log.Fatal(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tradeStore, err := trades.NewStore(filepath.Join(cfg.WALDir, "trades"))
	if err != nil {
		logger.Fatal("failed to open trade store", zap.Error(err))
	}
	defer tradeStore.Close()

	cfgStore, err := botconfig.NewStore(filepath.Join(cfg.WALDir, "botconfig"))
	if err != nil {
		logger.Fatal("failed to open config store", zap.Error(err))
	}
	defer cfgStore.Close()

	// a previously persisted configuration wins over the startup one so that
	// runtime patches and pauses survive restarts
	botCfg := cfg.BotConfig()
	if saved, found, err := cfgStore.Load(cfg.Identity); err != nil {
		logger.Fatal("failed to load persisted configuration", zap.Error(err))
	} else if found {
		logger.Info("restored persisted bot configuration",
			zap.String("identity", saved.Identity),
			zap.Bool("enabled", saved.Enabled))
		botCfg = saved
	}

	gate, err := risk.NewGate(botCfg, tradeStore, cfgStore, logger)
	if err != nil {
		logger.Fatal("invalid bot configuration", zap.Error(err))
	}

	assetPool, refPool, err := buildPools(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to build price pools", zap.Error(err))
	}

	priceOracle, err := oracle.New(assetPool, refPool, gate, logger)
	if err != nil {
		logger.Fatal("failed to build oracle", zap.Error(err))
	}

	// execution is always against the local pool model; on the chain platform
	// it is seeded from live reserves and acts as a paper-trading sandbox
	simPool, err := executionPool(ctx, cfg, assetPool)
	if err != nil {
		logger.Fatal("failed to seed execution pool", zap.Error(err))
	}

	exec, err := executor.NewSimulateExecutor(simPool, cfg.AssetSymbol, cfg.QuoteSymbol, logger)
	if err != nil {
		logger.Fatal("failed to build executor", zap.Error(err))
	}

	broadcaster := events.NewTradeBroadcaster(256)
	defer broadcaster.Close()

	orch, err := orchestrator.New(priceOracle, gate, exec, tradeStore, broadcaster,
		cfg.AssetSymbol, cfg.QuoteSymbol, logger)
	if err != nil {
		logger.Fatal("failed to build orchestrator", zap.Error(err))
	}

	aggregator := health.New(priceOracle, exec, tradeStore, logger)
	server := web.NewServer(cfg.WebAddr, orch, priceOracle, gate, tradeStore, aggregator, exec, broadcaster, logger)

	bot, err := internal.NewPegBot(priceOracle, orch, gate, logger)
	if err != nil {
		logger.Fatal("failed to build bot", zap.Error(err))
	}

	logger.Info("pegbot starting",
		zap.String("identity", cfg.Identity),
		zap.String("platform", cfg.Platform),
		zap.String("pair", cfg.AssetSymbol+"/"+cfg.QuoteSymbol),
		zap.String("target_peg", cfg.TargetPeg.String()),
		zap.String("web_addr", cfg.WebAddr))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Start(ctx) })
	g.Go(func() error { return bot.Run(ctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("pegbot stopped", zap.Error(err))
	}
	logger.Info("pegbot stopped")
}

// buildPools returns the asset/quote pool reader and the optional quote/USD
// reference pool for the configured platform.
func buildPools(ctx context.Context, cfg config.Config, logger *zap.Logger) (oracle.PoolReader, oracle.PoolReader, error) {
	switch cfg.Platform {
	case config.PlatformSimulate:
		return simulatedPool(cfg), nil, nil
	case config.PlatformChain:
		rpcURL := os.Getenv("PEGBOT_RPC_URL")
		if rpcURL == "" {
			return nil, nil, errors.New("PEGBOT_RPC_URL environment variable must be set for the chain platform")
		}
		client, err := ethclient.DialContext(ctx, rpcURL)
		if err != nil {
			return nil, nil, errors.Wrap(err, "failed to connect to rpc node")
		}

		assetPool, err := oracle.NewUniswapPool(client, common.HexToAddress(cfg.PairAddress),
			cfg.AssetIsToken0, cfg.AssetDecimals, cfg.QuoteDecimals)
		if err != nil {
			return nil, nil, err
		}

		var refPool oracle.PoolReader
		if cfg.RefPairAddress != "" {
			// reference pair is quote vs USD stable, quote assumed token0
			refPool, err = oracle.NewUniswapPool(client, common.HexToAddress(cfg.RefPairAddress),
				true, cfg.QuoteDecimals, cfg.QuoteDecimals)
			if err != nil {
				return nil, nil, err
			}
		}

		logger.Info("connected to chain",
			zap.String("pair", cfg.PairAddress),
			zap.String("ref_pair", cfg.RefPairAddress))
		return assetPool, refPool, nil
	default:
		return nil, nil, errors.Errorf("unsupported platform %q", cfg.Platform)
	}
}

// simulatedPool builds a local pool whose starting price equals the peg.
func simulatedPool(cfg config.Config) *oracle.SimulatePool {
	reserveAsset := decimal.NewFromInt(1_000_000)
	reserveQuote := reserveAsset.Mul(cfg.TargetPeg)
	return oracle.NewSimulatePool(reserveAsset, reserveQuote)
}

// executionPool returns the pool trades execute against. On the simulate
// platform it is the price pool itself, so trades move the observed price; on
// chain it is a copy seeded from live reserves.
func executionPool(ctx context.Context, cfg config.Config, assetPool oracle.PoolReader) (*oracle.SimulatePool, error) {
	if sim, ok := assetPool.(*oracle.SimulatePool); ok {
		return sim, nil
	}
	reserveAsset, reserveQuote, err := assetPool.Reserves(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read initial reserves")
	}
	return oracle.NewSimulatePool(reserveAsset, reserveQuote), nil
}
