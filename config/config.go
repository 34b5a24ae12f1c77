package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/vallethq/vallet/internal/services/ingest"
	"github.com/vallethq/vallet/internal/services/report"
	"github.com/vallethq/vallet/internal/storage/snapshots"
	"github.com/vallethq/vallet/internal/web"
	"gopkg.in/yaml.v3"
)

// EthereumToken describes an ERC-20 contract to poll alongside the native
// ether balance.
type EthereumToken struct {
	Asset    string `yaml:"asset"`
	Contract string `yaml:"contract"`
	Decimals int32  `yaml:"decimals"`
}

// Providers selects and parameterizes the price and balance sources.
type Providers struct {
	// CoinGeckoIDs maps asset symbols to CoinGecko coin ids, e.g. btc: bitcoin.
	CoinGeckoIDs map[string]string `yaml:"coingecko_ids,omitempty"`

	// DexScreenerMints maps asset symbols to Solana mint addresses.
	DexScreenerMints   map[string]string `yaml:"dexscreener_mints,omitempty"`
	DexMinLiquidityUSD string            `yaml:"dex_min_liquidity_usd,omitempty"`

	Binance bool `yaml:"binance,omitempty"`
	Bybit   bool `yaml:"bybit,omitempty"`

	EthereumRPC     string          `yaml:"ethereum_rpc,omitempty"`
	EthereumAddress string          `yaml:"ethereum_address,omitempty"`
	EthereumTokens  []EthereumToken `yaml:"ethereum_tokens,omitempty"`

	// StaticBalances holds fixed holdings entered by hand, asset -> amount.
	StaticBalances map[string]string `yaml:"static_balances,omitempty"`
}

// Config is the full runtime configuration of the tracker.
type Config struct {
	Account  string   `yaml:"account"`
	Assets   []string `yaml:"assets"`
	Currency string   `yaml:"currency"`

	Store     snapshots.Config `yaml:"store"`
	Report    report.Config    `yaml:"report"`
	Providers Providers        `yaml:"providers"`
	Web       web.Config       `yaml:"web"`

	PriceInterval   time.Duration `yaml:"price_interval"`
	BalanceInterval time.Duration `yaml:"balance_interval"`
}

// Mode is the command selected on the CLI.
type Mode string

const (
	ModeInit     Mode = "init"
	ModePrices   Mode = "prices"
	ModeBalances Mode = "balances"
	ModeIngest   Mode = "ingest"
	ModeReport   Mode = "report"
	ModeHistory  Mode = "history"
	ModeServe    Mode = "serve"
	ModeSetup    Mode = "setup"
)

// Get parses flags, loads the yaml config when given and falls back to
// flag values otherwise. The first positional argument picks the mode.
func Get() (Config, Mode, error) {
	configPath := flag.String("config", "", "path to yaml config")
	account := flag.String("account", "default", "account name snapshots are recorded under")
	assets := flag.String("assets", "", "comma separated asset list, example: btc,eth,sol")
	currency := flag.String("currency", "usd", "quote currency")
	backend := flag.String("backend", "", "storage backend: wal or sqlite")
	storePath := flag.String("store", "snapshots", "storage path (wal directory or sqlite file)")
	flag.Parse()

	mode := ModeReport
	if flag.NArg() > 0 {
		mode = Mode(flag.Arg(0))
	}
	switch mode {
	case ModeInit, ModePrices, ModeBalances, ModeIngest, ModeReport, ModeHistory, ModeServe, ModeSetup:
	default:
		return Config{}, "", fmt.Errorf("unknown mode %q", mode)
	}

	if *configPath != "" {
		cfg, err := getYaml(*configPath)
		if err != nil {
			return Config{}, "", err
		}
		return cfg, mode, nil
	}

	cfg := Config{
		Account:  *account,
		Currency: strings.ToLower(*currency),
		Store: snapshots.Config{
			Backend: *backend,
			Path:    *storePath,
		},
		Report:          report.DefaultConfig(),
		PriceInterval:   ingest.DefaultPriceInterval,
		BalanceInterval: ingest.DefaultBalanceInterval,
	}
	if *assets != "" {
		for _, a := range strings.Split(*assets, ",") {
			a = strings.ToLower(strings.TrimSpace(a))
			if a != "" {
				cfg.Assets = append(cfg.Assets, a)
			}
		}
	}
	if err := validate(cfg, mode); err != nil {
		return Config{}, "", err
	}
	return cfg, mode, nil
}

func getYaml(path string) (Config, error) {
	f, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Report:          report.DefaultConfig(),
		PriceInterval:   ingest.DefaultPriceInterval,
		BalanceInterval: ingest.DefaultBalanceInterval,
	}
	if err := yaml.Unmarshal(f, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse yaml config %s: %w", path, err)
	}

	if cfg.Account == "" {
		cfg.Account = "default"
	}
	if cfg.Currency == "" {
		cfg.Currency = "usd"
	}
	cfg.Currency = strings.ToLower(cfg.Currency)
	for i, a := range cfg.Assets {
		cfg.Assets[i] = strings.ToLower(strings.TrimSpace(a))
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "snapshots"
	}
	return cfg, nil
}

func validate(cfg Config, mode Mode) error {
	switch mode {
	case ModeInit, ModeSetup:
		return nil
	case ModePrices, ModeBalances, ModeIngest, ModeReport, ModeHistory, ModeServe:
		if len(cfg.Assets) == 0 {
			return fmt.Errorf("no assets configured, pass --assets or use a yaml config")
		}
	}
	return nil
}
