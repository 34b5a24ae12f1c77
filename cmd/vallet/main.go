// Command vallet tracks a crypto portfolio: it records price and balance
// snapshots, answers history queries and builds point-in-time reports.
//
// Usage:
//
//	vallet --config config.yaml <mode>
//	vallet --assets btc,eth <mode> (uses CLI arguments)
//
// Modes:
//
//	init      create the storage backend and exit
//	setup     interactive configuration wizard
//	prices    record one price snapshot batch and exit
//	balances  record one balance snapshot batch and exit
//	ingest    poll providers continuously
//	report    build and print a portfolio report
//	history   print the portfolio value history
//	serve     expose reports and history over HTTP
package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/hirokisan/bybit/v2"
	"github.com/shopspring/decimal"
	"github.com/vallethq/vallet/config"
	"github.com/vallethq/vallet/internal/services/ingest"
	"github.com/vallethq/vallet/internal/services/pricer"
	"github.com/vallethq/vallet/internal/services/report"
	"github.com/vallethq/vallet/internal/services/wallet"
	"github.com/vallethq/vallet/internal/setup"
	"github.com/vallethq/vallet/internal/storage/snapshots"
	"github.com/vallethq/vallet/internal/web"
	"go.uber.org/zap"
)

func main() {
	cfg, mode, err := config.Get()
	if err != nil {
		log.Fatal(err)
	}

	if mode == config.ModeSetup {
		if err := setup.RunTUI(); err != nil {
			log.Fatal(err)
		}
		return
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	store, err := snapshots.Open(cfg.Store)
	if err != nil {
		logger.Fatal("open snapshot store", zap.Error(err))
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, mode, logger, store); err != nil {
		logger.Fatal("vallet failed", zap.String("mode", string(mode)), zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, mode config.Mode, logger *zap.Logger, store snapshots.Store) error {
	builder := report.NewBuilder(logger, store, cfg.Report)

	switch mode {
	case config.ModeInit:
		// opening the store already created the WAL directory or the
		// sqlite schema
		logger.Info("storage initialized",
			zap.String("backend", cfg.Store.Backend),
			zap.String("path", cfg.Store.Path))
		return nil

	case config.ModePrices:
		return newIngestor(cfg, logger, store).CollectPrices(ctx)

	case config.ModeBalances:
		return newIngestor(cfg, logger, store).CollectBalances(ctx)

	case config.ModeIngest:
		return newIngestor(cfg, logger, store).Run(ctx)

	case config.ModeReport:
		now := time.Now().UTC()
		rep, err := builder.Build(ctx, cfg.Account, cfg.Assets, cfg.Currency, now)
		if err != nil {
			return err
		}
		if err := store.InsertPortfolio(ctx, now, cfg.Account, cfg.Currency, rep.TotalValue, "computed"); err != nil {
			return err
		}
		return printJSON(rep)

	case config.ModeHistory:
		points, err := store.ValueHistory(ctx, cfg.Account, cfg.Assets, cfg.Currency, 20)
		if err != nil {
			return err
		}
		return printJSON(points)

	case config.ModeServe:
		server := web.NewServer(cfg.Web, logger, store, builder, cfg.Account, cfg.Assets, cfg.Currency)
		return server.Start(ctx)
	}
	return nil
}

func newIngestor(cfg config.Config, logger *zap.Logger, store snapshots.Store) *ingest.Ingestor {
	return ingest.New(logger, store, buildPricers(cfg, logger), buildWallets(cfg, logger), ingest.Config{
		Account:         cfg.Account,
		Assets:          cfg.Assets,
		Currency:        cfg.Currency,
		PriceInterval:   cfg.PriceInterval,
		BalanceInterval: cfg.BalanceInterval,
	})
}

func buildPricers(cfg config.Config, logger *zap.Logger) []pricer.Provider {
	var pricers []pricer.Provider

	if len(cfg.Providers.CoinGeckoIDs) > 0 {
		pricers = append(pricers, pricer.NewCoinGeckoPricer(cfg.Providers.CoinGeckoIDs))
	}
	if len(cfg.Providers.DexScreenerMints) > 0 {
		minLiquidity := decimal.Zero
		if raw := cfg.Providers.DexMinLiquidityUSD; raw != "" {
			parsed, err := decimal.NewFromString(raw)
			if err != nil {
				logger.Warn("invalid dex_min_liquidity_usd, using default", zap.String("value", raw))
			} else {
				minLiquidity = parsed
			}
		}
		pricers = append(pricers, pricer.NewDexScreenerPricer(cfg.Providers.DexScreenerMints, minLiquidity))
	}
	if cfg.Providers.Binance {
		pricers = append(pricers, pricer.NewBinancePricer(binance.NewClient("", "")))
	}
	if cfg.Providers.Bybit {
		pricers = append(pricers, pricer.NewBybitPricer(bybit.NewClient()))
	}
	return pricers
}

func buildWallets(cfg config.Config, logger *zap.Logger) []wallet.Provider {
	var wallets []wallet.Provider

	if cfg.Providers.EthereumRPC != "" && cfg.Providers.EthereumAddress != "" {
		tokens := make(map[string]wallet.Token, len(cfg.Providers.EthereumTokens))
		for _, t := range cfg.Providers.EthereumTokens {
			tokens[t.Asset] = wallet.Token{Contract: t.Contract, Decimals: t.Decimals}
		}
		provider, err := wallet.NewEthereumProvider(cfg.Providers.EthereumRPC, cfg.Providers.EthereumAddress, tokens)
		if err != nil {
			logger.Warn("ethereum provider unavailable", zap.Error(err))
		} else {
			wallets = append(wallets, provider)
		}
	}
	if len(cfg.Providers.StaticBalances) > 0 {
		provider, err := wallet.NewStaticProvider(cfg.Providers.StaticBalances)
		if err != nil {
			logger.Warn("static balances misconfigured", zap.Error(err))
		} else {
			wallets = append(wallets, provider)
		}
	}
	return wallets
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
