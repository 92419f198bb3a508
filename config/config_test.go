package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestGetYamlFullConfig(t *testing.T) {
	path := writeConfig(t, `
identity: pegbot-main
asset: MYUSD
quote: USDT
platform: simulate
target_peg: "1.0"
wal_dir: /tmp/pegbot-wal
web_addr: ":9090"
thresholds:
  hold: "0.25"
  trade_emergency: "8"
limits:
  max_trade_size: "250"
  max_daily_trades: 30
slippage:
  default: "1.5"
strategy:
  price_check_interval: 15s
safety:
  max_consecutive_errors: 4
  auto_pause_on_errors: false
`)

	cfg, err := getYaml(path)
	require.NoError(t, err)
	require.Equal(t, "pegbot-main", cfg.Identity)
	require.Equal(t, "MYUSD", cfg.AssetSymbol)
	require.Equal(t, "USDT", cfg.QuoteSymbol)
	require.Equal(t, PlatformSimulate, cfg.Platform)
	require.Equal(t, "/tmp/pegbot-wal", cfg.WALDir)
	require.Equal(t, ":9090", cfg.WebAddr)
	require.True(t, cfg.TargetPeg.Equal(decimal.NewFromInt(1)))
	require.True(t, cfg.Thresholds.Hold.Equal(decimal.NewFromFloat(0.25)))
	require.True(t, cfg.Thresholds.TradeEmergency.Equal(decimal.NewFromInt(8)))
	require.True(t, cfg.Limits.MaxTradeSize.Equal(decimal.NewFromInt(250)))
	require.Equal(t, 30, cfg.Limits.MaxDailyTrades)
	require.True(t, cfg.Slippage.Default.Equal(decimal.NewFromFloat(1.5)))
	require.Equal(t, 15*time.Second, cfg.Strategy.PriceCheckInterval)
	require.Equal(t, 4, cfg.Safety.MaxConsecutiveErrors)
	require.False(t, cfg.Safety.AutoPauseOnErrors)

	// unset sections keep their defaults
	require.True(t, cfg.Thresholds.TradeLow.Equal(decimal.NewFromInt(1)))
	require.True(t, cfg.Limits.MaxDailyVolume.Equal(decimal.NewFromInt(1000)))
	require.True(t, cfg.Safety.CircuitBreakerEnabled)
}

func TestGetYamlRequiresIdentityAndTokens(t *testing.T) {
	_, err := getYaml(writeConfig(t, "asset: MYUSD\nquote: USDT\n"))
	require.Error(t, err)

	_, err = getYaml(writeConfig(t, "identity: pegbot-main\nasset: MYUSD\n"))
	require.Error(t, err)
}

func TestGetYamlRejectsUnknownPlatform(t *testing.T) {
	_, err := getYaml(writeConfig(t, `
identity: pegbot-main
asset: MYUSD
quote: USDT
platform: binance
`))
	require.Error(t, err)
}

func TestGetYamlChainRequiresPairAddress(t *testing.T) {
	_, err := getYaml(writeConfig(t, `
identity: pegbot-main
asset: MYUSD
quote: USDT
platform: chain
`))
	require.Error(t, err)

	cfg, err := getYaml(writeConfig(t, `
identity: pegbot-main
asset: MYUSD
quote: USDT
platform: chain
pair_address: "0x0d4a11d5eeaac28ec3f61d100daf4d40471f1852"
asset_decimals: 6
`))
	require.NoError(t, err)
	require.Equal(t, PlatformChain, cfg.Platform)
	require.Equal(t, int32(6), cfg.AssetDecimals)
	require.Equal(t, int32(18), cfg.QuoteDecimals, "decimals default to 18")
}

func TestGetYamlRejectsBadDecimal(t *testing.T) {
	_, err := getYaml(writeConfig(t, `
identity: pegbot-main
asset: MYUSD
quote: USDT
target_peg: "one dollar"
`))
	require.Error(t, err)
}

func TestBotConfigSeeding(t *testing.T) {
	cfg := defaults()
	cfg.Identity = "pegbot-main"
	cfg.TargetPeg = decimal.NewFromInt(1)

	botCfg := cfg.BotConfig()
	require.True(t, botCfg.Enabled)
	require.Equal(t, "pegbot-main", botCfg.Identity)
	require.NoError(t, botCfg.Validate())
	require.True(t, botCfg.Statistics.TotalVolume.IsZero())
}
