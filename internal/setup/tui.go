package setup

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
	"github.com/vallethq/vallet/config"
	"github.com/vallethq/vallet/internal/storage/snapshots"
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

// RunTUI launches the terminal configuration wizard and writes the result
// to config.gen.yaml.
func RunTUI() error {
	var (
		account         string
		assetsStr       string
		currency        string
		backend         string
		storePath       string
		priceInterval   string
		balanceInterval string
		balanceSource   string
		confirm         bool
	)

	// defaults
	account = "default"
	currency = "usd"
	storePath = "snapshots"
	priceInterval = "5m"
	balanceInterval = "15m"

	// step 1: welcome
	fmt.Print("\033[H\033[2J") // Clear screen
	fmt.Println(headerStyle.Render("VALLET CONFIG WIZARD"))
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Let's get your portfolio tracked in style.\n"))

	// account and holdings
	fmt.Println(stepStyle.Render("STEP 1: PORTFOLIO"))
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Account Name").
				Description("Snapshots are recorded under this name").
				Value(&account).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("account cannot be empty")
					}
					return nil
				}),
			huh.NewInput().
				Title("Assets").
				Description("Comma separated symbols (e.g. btc,eth,sol)").
				Value(&assetsStr).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("at least one asset is required")
					}
					return nil
				}),
			huh.NewInput().
				Title("Quote Currency").
				Description("Currency prices and values are quoted in (e.g. usd)").
				Value(&currency),
		),
	).Run()
	if err != nil {
		return err
	}

	// storage
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("VALLET CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("STEP 2: STORAGE"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Select Storage Backend").
				Options(
					huh.NewOption("WAL (append-only log)", snapshots.BackendWAL),
					huh.NewOption("SQLite", snapshots.BackendSQLite),
				).
				Value(&backend),
			huh.NewInput().
				Title("Storage Path").
				Description("Directory for WAL, file path for SQLite").
				Value(&storePath),
		),
	).Run()
	if err != nil {
		return err
	}

	// timing
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("VALLET CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("STEP 3: TIMING"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Price Poll Interval").
				Description("Duration string (e.g. 30s, 1m, 5m)").
				Value(&priceInterval).
				Validate(func(s string) error {
					_, err := time.ParseDuration(s)
					return err
				}),
			huh.NewInput().
				Title("Balance Poll Interval").
				Description("Duration string (e.g. 5m, 15m, 1h)").
				Value(&balanceInterval).
				Validate(func(s string) error {
					_, err := time.ParseDuration(s)
					return err
				}),
		),
	).Run()
	if err != nil {
		return err
	}

	// balances
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("VALLET CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("STEP 4: BALANCES"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Balance Source").
				Options(
					huh.NewOption("Manual (fixed amounts)", "manual"),
					huh.NewOption("Ethereum wallet", "ethereum"),
				).
				Value(&balanceSource),
		),
	).Run()
	if err != nil {
		return err
	}

	providers := config.Providers{Binance: true}
	assets := splitAssets(assetsStr)

	switch balanceSource {
	case "manual":
		providers.StaticBalances, err = collectStaticBalances(assets)
		if err != nil {
			return err
		}
	case "ethereum":
		providers.EthereumRPC, providers.EthereumAddress, err = collectEthereum()
		if err != nil {
			return err
		}
	}

	// confirmation
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("VALLET CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("FINAL CONFIRMATION"))

	summary := fmt.Sprintf(
		"Account: %s\nAssets: %s\nCurrency: %s\nBackend: %s\nPath: %s\nPrices every: %s\nBalances every: %s\n",
		account, strings.Join(assets, ", "), currency, backendLabel(backend), storePath, priceInterval, balanceInterval,
	)
	fmt.Println(lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(1).Render(summary))

	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save Configuration?").
				Affirmative("Yes, save").
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

	pi, _ := time.ParseDuration(priceInterval)
	bi, _ := time.ParseDuration(balanceInterval)

	cfg := config.Config{
		Account:  strings.TrimSpace(account),
		Assets:   assets,
		Currency: strings.ToLower(strings.TrimSpace(currency)),
		Store: snapshots.Config{
			Backend: backend,
			Path:    storePath,
		},
		Providers:       providers,
		PriceInterval:   pi,
		BalanceInterval: bi,
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to generate yaml: %w", err)
	}

	filename := "config.gen.yaml"
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to save config file: %w", err)
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).Render(fmt.Sprintf("\n✓ Configuration saved to %s", filename)))
	return nil
}

func collectStaticBalances(assets []string) (map[string]string, error) {
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("VALLET CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("STEP 5: HOLDINGS"))

	values := make([]string, len(assets))
	fields := make([]huh.Field, 0, len(assets))
	for i, asset := range assets {
		fields = append(fields, huh.NewInput().
			Title(fmt.Sprintf("Amount of %s", strings.ToUpper(asset))).
			Value(&values[i]).
			Validate(validateAmount),
		)
	}
	if err := huh.NewForm(huh.NewGroup(fields...)).Run(); err != nil {
		return nil, err
	}

	balances := make(map[string]string, len(assets))
	for i, asset := range assets {
		balances[asset] = values[i]
	}
	return balances, nil
}

func collectEthereum() (rpc, address string, err error) {
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("VALLET CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("STEP 5: ETHEREUM"))

	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("RPC Endpoint").
				Description("e.g. https://eth.llamarpc.com").
				Value(&rpc),
			huh.NewInput().
				Title("Wallet Address").
				Description("0x-prefixed hex address").
				Value(&address).
				Validate(func(s string) error {
					if !strings.HasPrefix(s, "0x") || len(s) != 42 {
						return fmt.Errorf("invalid format: must be a 0x-prefixed 40 hex char address")
					}
					return nil
				}),
		),
	).Run()
	return rpc, address, err
}

func backendLabel(backend string) string {
	if backend == snapshots.BackendSQLite {
		return "sqlite"
	}
	return "wal"
}

func splitAssets(s string) []string {
	var assets []string
	for _, a := range strings.Split(s, ",") {
		a = strings.ToLower(strings.TrimSpace(a))
		if a != "" {
			assets = append(assets, a)
		}
	}
	return assets
}

func validateAmount(s string) error {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("must be a valid number")
	}
	if d.IsNegative() {
		return fmt.Errorf("must not be negative")
	}
	return nil
}
