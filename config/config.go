package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/pegbot/internal/domain"
	"gopkg.in/yaml.v3"
)

// Platform names accepted in configuration.
const (
	PlatformSimulate = "simulate"
	PlatformChain    = "chain"
)

// Config is the startup configuration of one bot instance. Peg, thresholds
// and limits seed the mutable BotConfiguration; everything else is fixed at
// startup.
type Config struct {
	Identity    string
	AssetSymbol string
	QuoteSymbol string
	Platform    string
	TargetPeg   decimal.Decimal
	WALDir      string
	WebAddr     string

	// chain platform only
	PairAddress    string
	RefPairAddress string
	AssetIsToken0  bool
	AssetDecimals  int32
	QuoteDecimals  int32

	Thresholds domain.Thresholds
	Limits     domain.Limits
	Slippage   domain.Slippage
	Strategy   domain.Strategy
	Safety     domain.Safety
}

// BotConfig builds the initial mutable configuration record.
func (c Config) BotConfig() domain.BotConfig {
	return domain.BotConfig{
		Identity:   c.Identity,
		Enabled:    true,
		TargetPeg:  c.TargetPeg,
		Thresholds: c.Thresholds,
		Limits:     c.Limits,
		Slippage:   c.Slippage,
		Strategy:   c.Strategy,
		Safety:     c.Safety,
		Statistics: domain.Statistics{TotalVolume: decimal.Zero},
	}
}

// ConfigTmp mirrors the YAML layout. Decimal fields are carried as strings
// because yaml.v3 does not use encoding.TextUnmarshaler.
type ConfigTmp struct {
	Identity  string `yaml:"identity"`
	Asset     string `yaml:"asset"`
	Quote     string `yaml:"quote"`
	Platform  string `yaml:"platform"`
	TargetPeg string `yaml:"target_peg"`
	WALDir    string `yaml:"wal_dir,omitempty"`
	WebAddr   string `yaml:"web_addr,omitempty"`

	PairAddress    string `yaml:"pair_address,omitempty"`
	RefPairAddress string `yaml:"ref_pair_address,omitempty"`
	AssetIsToken0  bool   `yaml:"asset_is_token0,omitempty"`
	AssetDecimals  int32  `yaml:"asset_decimals,omitempty"`
	QuoteDecimals  int32  `yaml:"quote_decimals,omitempty"`

	Thresholds struct {
		Hold           string `yaml:"hold,omitempty"`
		TradeLow       string `yaml:"trade_low,omitempty"`
		TradeMedium    string `yaml:"trade_medium,omitempty"`
		TradeHigh      string `yaml:"trade_high,omitempty"`
		TradeEmergency string `yaml:"trade_emergency,omitempty"`
	} `yaml:"thresholds,omitempty"`

	Limits struct {
		MaxTradeSize   string `yaml:"max_trade_size,omitempty"`
		MaxDailyVolume string `yaml:"max_daily_volume,omitempty"`
		MaxDailyTrades int    `yaml:"max_daily_trades,omitempty"`
		MinBalance     string `yaml:"min_balance,omitempty"`
	} `yaml:"limits,omitempty"`

	Slippage struct {
		Low       string `yaml:"low,omitempty"`
		Medium    string `yaml:"medium,omitempty"`
		High      string `yaml:"high,omitempty"`
		Emergency string `yaml:"emergency,omitempty"`
		Default   string `yaml:"default,omitempty"`
	} `yaml:"slippage,omitempty"`

	Strategy struct {
		PriceCheckInterval   time.Duration `yaml:"price_check_interval,omitempty"`
		MinTimeBetweenTrades time.Duration `yaml:"min_time_between_trades,omitempty"`
		MinLiquidityUSD      string        `yaml:"min_liquidity_usd,omitempty"`
	} `yaml:"strategy,omitempty"`

	Safety struct {
		MaxConsecutiveErrors  int   `yaml:"max_consecutive_errors,omitempty"`
		AutoPauseOnErrors     *bool `yaml:"auto_pause_on_errors,omitempty"`
		CircuitBreakerEnabled *bool `yaml:"circuit_breaker_enabled,omitempty"`
	} `yaml:"safety,omitempty"`
}

// Get loads configuration from the --config YAML file, falling back to CLI
// flags for a minimal simulate setup.
func Get() (Config, error) {
	configPath := flag.String("config", "", "path to yaml config")
	identity := flag.String("identity", "pegbot-main", "bot identity")
	asset := flag.String("asset", "TOKEN", "managed asset symbol")
	quote := flag.String("quote", "USDT", "quote currency symbol")
	peg := flag.String("peg", "1.0", "target peg price in USD")
	flag.Parse()

	if *configPath != "" {
		return getYaml(*configPath)
	}

	targetPeg, err := decimal.NewFromString(*peg)
	if err != nil {
		return Config{}, fmt.Errorf("invalid --peg provided, --peg=%s", *peg)
	}

	cfg := defaults()
	cfg.Identity = *identity
	cfg.AssetSymbol = *asset
	cfg.QuoteSymbol = *quote
	cfg.TargetPeg = targetPeg
	return cfg, nil
}

func defaults() Config {
	return Config{
		Platform: PlatformSimulate,
		WALDir:   "./wal",
		WebAddr:  ":8080",
		Thresholds: domain.Thresholds{
			Hold:           decimal.NewFromFloat(0.5),
			TradeLow:       decimal.NewFromInt(1),
			TradeMedium:    decimal.NewFromInt(3),
			TradeHigh:      decimal.NewFromInt(5),
			TradeEmergency: decimal.NewFromInt(10),
		},
		Limits: domain.Limits{
			MaxTradeSize:   decimal.NewFromInt(100),
			MaxDailyVolume: decimal.NewFromInt(1000),
			MaxDailyTrades: 50,
			MinBalance:     decimal.NewFromInt(10),
		},
		Slippage: domain.Slippage{
			Low:       decimal.NewFromFloat(0.5),
			Medium:    decimal.NewFromInt(1),
			High:      decimal.NewFromInt(2),
			Emergency: decimal.NewFromInt(5),
			Default:   decimal.NewFromInt(1),
		},
		Strategy: domain.Strategy{
			PriceCheckInterval:   30 * time.Second,
			MinTimeBetweenTrades: 5 * time.Minute,
			MinLiquidityUSD:      decimal.NewFromInt(10000),
		},
		Safety: domain.Safety{
			MaxConsecutiveErrors:  5,
			AutoPauseOnErrors:     true,
			CircuitBreakerEnabled: true,
		},
	}
}

func getYaml(path string) (Config, error) {
	f, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var tmp ConfigTmp
	if err := yaml.Unmarshal(f, &tmp); err != nil {
		return Config{}, err
	}

	cfg := defaults()
	if tmp.Identity == "" {
		return Config{}, fmt.Errorf("'identity' param is required in yaml config")
	}
	if tmp.Asset == "" || tmp.Quote == "" {
		return Config{}, fmt.Errorf("'asset' and 'quote' params are required in yaml config")
	}
	cfg.Identity = tmp.Identity
	cfg.AssetSymbol = tmp.Asset
	cfg.QuoteSymbol = tmp.Quote

	if tmp.Platform != "" {
		if tmp.Platform != PlatformSimulate && tmp.Platform != PlatformChain {
			return Config{}, fmt.Errorf("incorrect 'platform' param in yaml config: %s", tmp.Platform)
		}
		cfg.Platform = tmp.Platform
	}
	if cfg.Platform == PlatformChain && tmp.PairAddress == "" {
		return Config{}, fmt.Errorf("'pair_address' param is required for chain platform")
	}
	cfg.PairAddress = tmp.PairAddress
	cfg.RefPairAddress = tmp.RefPairAddress
	cfg.AssetIsToken0 = tmp.AssetIsToken0
	cfg.AssetDecimals = valueOrDefaultInt32(tmp.AssetDecimals, 18)
	cfg.QuoteDecimals = valueOrDefaultInt32(tmp.QuoteDecimals, 18)

	if tmp.WALDir != "" {
		cfg.WALDir = tmp.WALDir
	}
	if tmp.WebAddr != "" {
		cfg.WebAddr = tmp.WebAddr
	}

	dec := decimalParser{}
	cfg.TargetPeg = dec.parse("target_peg", tmp.TargetPeg, decimal.NewFromInt(1))

	cfg.Thresholds.Hold = dec.parse("thresholds.hold", tmp.Thresholds.Hold, cfg.Thresholds.Hold)
	cfg.Thresholds.TradeLow = dec.parse("thresholds.trade_low", tmp.Thresholds.TradeLow, cfg.Thresholds.TradeLow)
	cfg.Thresholds.TradeMedium = dec.parse("thresholds.trade_medium", tmp.Thresholds.TradeMedium, cfg.Thresholds.TradeMedium)
	cfg.Thresholds.TradeHigh = dec.parse("thresholds.trade_high", tmp.Thresholds.TradeHigh, cfg.Thresholds.TradeHigh)
	cfg.Thresholds.TradeEmergency = dec.parse("thresholds.trade_emergency", tmp.Thresholds.TradeEmergency, cfg.Thresholds.TradeEmergency)

	cfg.Limits.MaxTradeSize = dec.parse("limits.max_trade_size", tmp.Limits.MaxTradeSize, cfg.Limits.MaxTradeSize)
	cfg.Limits.MaxDailyVolume = dec.parse("limits.max_daily_volume", tmp.Limits.MaxDailyVolume, cfg.Limits.MaxDailyVolume)
	cfg.Limits.MinBalance = dec.parse("limits.min_balance", tmp.Limits.MinBalance, cfg.Limits.MinBalance)
	if tmp.Limits.MaxDailyTrades > 0 {
		cfg.Limits.MaxDailyTrades = tmp.Limits.MaxDailyTrades
	}

	cfg.Slippage.Low = dec.parse("slippage.low", tmp.Slippage.Low, cfg.Slippage.Low)
	cfg.Slippage.Medium = dec.parse("slippage.medium", tmp.Slippage.Medium, cfg.Slippage.Medium)
	cfg.Slippage.High = dec.parse("slippage.high", tmp.Slippage.High, cfg.Slippage.High)
	cfg.Slippage.Emergency = dec.parse("slippage.emergency", tmp.Slippage.Emergency, cfg.Slippage.Emergency)
	cfg.Slippage.Default = dec.parse("slippage.default", tmp.Slippage.Default, cfg.Slippage.Default)

	if tmp.Strategy.PriceCheckInterval > 0 {
		cfg.Strategy.PriceCheckInterval = tmp.Strategy.PriceCheckInterval
	}
	if tmp.Strategy.MinTimeBetweenTrades > 0 {
		cfg.Strategy.MinTimeBetweenTrades = tmp.Strategy.MinTimeBetweenTrades
	}
	cfg.Strategy.MinLiquidityUSD = dec.parse("strategy.min_liquidity_usd", tmp.Strategy.MinLiquidityUSD, cfg.Strategy.MinLiquidityUSD)

	if tmp.Safety.MaxConsecutiveErrors > 0 {
		cfg.Safety.MaxConsecutiveErrors = tmp.Safety.MaxConsecutiveErrors
	}
	if tmp.Safety.AutoPauseOnErrors != nil {
		cfg.Safety.AutoPauseOnErrors = *tmp.Safety.AutoPauseOnErrors
	}
	if tmp.Safety.CircuitBreakerEnabled != nil {
		cfg.Safety.CircuitBreakerEnabled = *tmp.Safety.CircuitBreakerEnabled
	}

	if dec.err != nil {
		return Config{}, dec.err
	}
	return cfg, nil
}

// decimalParser accumulates the first parse error instead of threading
// error returns through every field.
type decimalParser struct {
	err error
}

func (p *decimalParser) parse(name, value string, def decimal.Decimal) decimal.Decimal {
	if value == "" {
		return def
	}
	parsed, err := decimal.NewFromString(value)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("incorrect '%s' param in yaml config (must be a decimal), error: %w", name, err)
	}
	if err != nil {
		return def
	}
	return parsed
}

func valueOrDefaultInt32(v, def int32) int32 {
	if v > 0 {
		return v
	}
	return def
}
