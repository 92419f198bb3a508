package setup

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/pegbot/config"
	"gopkg.in/yaml.v3"
)

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)

	stepStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1).
			MarginBottom(0)
)

// RunTUI launches the terminal configuration wizard and writes the result to
// config.gen.yaml.
func RunTUI() error {
	var (
		identity         string
		platform         string
		asset            string
		quote            string
		targetPegStr     string
		maxTradeSizeStr  string
		maxDailyVolStr   string
		maxDailyTrades   string
		checkIntervalStr string
		pairAddress      string
		refPairAddress   string
		assetIsToken0    bool
		confirm          bool
	)

	// defaults
	identity = "pegbot-main"
	quote = "USDT"
	targetPegStr = "1.0"
	maxTradeSizeStr = "100"
	maxDailyVolStr = "1000"
	maxDailyTrades = "20"
	checkIntervalStr = "30s"

	// step 1: welcome
	fmt.Print("\033[H\033[2J") // Clear screen
	fmt.Println(headerStyle.Render("PEGBOT CONFIG WIZARD"))
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Let's get your peg defended in style.\n"))

	// platform
	fmt.Println(stepStyle.Render("STEP 1: PLATFORM"))
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Select Execution Platform").
				Options(
					huh.NewOption("Simulation (local pool)", "simulate"),
					huh.NewOption("Chain (UniswapV2 pair)", "chain"),
				).
				Value(&platform),
		),
	).Run()
	if err != nil {
		return err
	}

	// identity and tokens
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("PEGBOT CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("STEP 2: IDENTITY"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Bot Identity").
				Description("Unique name for this bot instance").
				Value(&identity).
				Validate(func(s string) error {
					if s == "" {
						return fmt.Errorf("identity cannot be empty")
					}
					return nil
				}),
			huh.NewInput().
				Title("Asset Symbol").
				Description("The pegged token being stabilized (e.g. MYUSD)").
				Value(&asset).
				Validate(func(s string) error {
					if s == "" {
						return fmt.Errorf("asset cannot be empty")
					}
					return nil
				}),
			huh.NewInput().
				Title("Quote Symbol").
				Description("The currency the asset trades against (e.g. USDT)").
				Value(&quote),
		),
	).Run()
	if err != nil {
		return err
	}

	// peg and limits
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("PEGBOT CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("STEP 3: PEG AND LIMITS"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Target Peg (USD)").
				Description("Price the asset should hold (e.g. 1.0)").
				Value(&targetPegStr).
				Validate(validatePositiveDecimal),
			huh.NewInput().
				Title("Max Trade Size").
				Description("Largest single correction in asset units").
				Value(&maxTradeSizeStr).
				Validate(validatePositiveDecimal),
			huh.NewInput().
				Title("Max Daily Volume").
				Description("Total asset volume allowed per UTC day").
				Value(&maxDailyVolStr).
				Validate(validatePositiveDecimal),
			huh.NewInput().
				Title("Max Daily Trades").
				Description("Number of trades allowed per UTC day").
				Value(&maxDailyTrades),
		),
	).Run()
	if err != nil {
		return err
	}

	// timing
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("PEGBOT CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("STEP 4: TIMING"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Price Check Interval").
				Description("Duration string (e.g. 30s, 1m, 5m)").
				Value(&checkIntervalStr).
				Validate(func(s string) error {
					_, err := time.ParseDuration(s)
					return err
				}),
		),
	).Run()
	if err != nil {
		return err
	}

	// platform specifics
	if platform == "chain" {
		fmt.Print("\033[H\033[2J")
		fmt.Println(headerStyle.Render("PEGBOT CONFIG WIZARD"))
		fmt.Println(stepStyle.Render("STEP 5: CHAIN SETTINGS"))
		err = huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Pair Contract Address").
					Description("UniswapV2 pair holding asset/quote liquidity").
					Value(&pairAddress).
					Validate(validateHexAddress),
				huh.NewInput().
					Title("Reference Pair Address").
					Description("Optional quote/USD pair (leave empty to treat quote as USD)").
					Value(&refPairAddress),
				huh.NewConfirm().
					Title("Is the asset token0 of the pair?").
					Value(&assetIsToken0),
			),
		).Run()
		if err != nil {
			return err
		}
	}

	// confirmation
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("PEGBOT CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("FINAL CONFIRMATION"))

	// show summary
	summary := fmt.Sprintf(
		"Identity: %s\nPlatform: %s\nAsset: %s/%s\nTarget Peg: %s\nMax Trade: %s\nInterval: %s\n",
		identity, platform, asset, quote, targetPegStr, maxTradeSizeStr, checkIntervalStr,
	)
	fmt.Println(lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(1).Render(summary))

	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save Configuration?").
				Affirmative("Yes, save and start").
				Negative("No, exit").
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return err
	}

	if !confirm {
		return fmt.Errorf("setup cancelled by user")
	}

	// generate config
	checkInterval, _ := time.ParseDuration(checkIntervalStr)

	cfgTmp := config.ConfigTmp{
		Identity:  identity,
		Asset:     asset,
		Quote:     quote,
		Platform:  platform,
		TargetPeg: targetPegStr,
	}
	cfgTmp.Limits.MaxTradeSize = maxTradeSizeStr
	cfgTmp.Limits.MaxDailyVolume = maxDailyVolStr
	fmt.Sscanf(maxDailyTrades, "%d", &cfgTmp.Limits.MaxDailyTrades)
	cfgTmp.Strategy.PriceCheckInterval = checkInterval

	if platform == "chain" {
		cfgTmp.PairAddress = pairAddress
		cfgTmp.RefPairAddress = refPairAddress
		cfgTmp.AssetIsToken0 = assetIsToken0
	}

	data, err := yaml.Marshal(cfgTmp)
	if err != nil {
		return fmt.Errorf("failed to generate yaml: %w", err)
	}

	// write to config.gen.yaml
	filename := "config.gen.yaml"
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to save config file: %w", err)
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).Render(fmt.Sprintf("\n✓ Configuration saved to %s\nStarting bot...", filename)))
	time.Sleep(1500 * time.Millisecond) // small pause to read success message
	return nil
}

func validatePositiveDecimal(s string) error {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("must be a valid number")
	}
	if !d.IsPositive() {
		return fmt.Errorf("must be greater than zero")
	}
	return nil
}

func validateHexAddress(s string) error {
	if len(s) != 42 || s[0] != '0' || (s[1] != 'x' && s[1] != 'X') {
		return fmt.Errorf("must be a 0x-prefixed 40-hex-digit address")
	}
	return nil
}
