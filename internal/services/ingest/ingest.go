// Package ingest polls price and balance providers and appends what they
// return to the snapshot store. Provider failures are logged and skipped;
// only storage failures abort the loop.
package ingest

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vallethq/vallet/internal/services/pricer"
	"github.com/vallethq/vallet/internal/services/wallet"
	"github.com/vallethq/vallet/pkg/retrier"
	"go.uber.org/zap"
)

const (
	DefaultPriceInterval   = 5 * time.Minute
	DefaultBalanceInterval = 15 * time.Minute
)

// snapshotWriter is the write slice of the snapshot store.
type snapshotWriter interface {
	InsertPrices(ctx context.Context, ts time.Time, currency string, prices map[string]decimal.Decimal, source string) (int, error)
	InsertBalances(ctx context.Context, ts time.Time, account string, balances map[string]decimal.Decimal, source string) (int, error)
}

// Config holds the ingestion parameters.
type Config struct {
	Account         string
	Assets          []string
	Currency        string
	PriceInterval   time.Duration
	BalanceInterval time.Duration
}

// Ingestor runs the polling loop.
type Ingestor struct {
	logger  *zap.Logger
	store   snapshotWriter
	pricers []pricer.Provider
	wallets []wallet.Provider
	retrier *retrier.Retrier
	cfg     Config

	// now is swappable for tests; every batch takes one clock read so all
	// rows of the batch share a timestamp.
	now func() time.Time
}

// New creates an ingestor over the given providers.
func New(logger *zap.Logger, store snapshotWriter, pricers []pricer.Provider, wallets []wallet.Provider, cfg Config) *Ingestor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PriceInterval == 0 {
		cfg.PriceInterval = DefaultPriceInterval
	}
	if cfg.BalanceInterval == 0 {
		cfg.BalanceInterval = DefaultBalanceInterval
	}
	return &Ingestor{
		logger:  logger,
		store:   store,
		pricers: pricers,
		wallets: wallets,
		retrier: retrier.New(retrier.WithMaxRetries(3)),
		cfg:     cfg,
		now:     time.Now,
	}
}

// Run collects once immediately, then on the configured intervals until the
// context is cancelled. It returns on cancellation or storage failure.
func (i *Ingestor) Run(ctx context.Context) error {
	if err := i.CollectPrices(ctx); err != nil {
		return err
	}
	if err := i.CollectBalances(ctx); err != nil {
		return err
	}

	priceTicker := time.NewTicker(i.cfg.PriceInterval)
	defer priceTicker.Stop()
	balanceTicker := time.NewTicker(i.cfg.BalanceInterval)
	defer balanceTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-priceTicker.C:
			if err := i.CollectPrices(ctx); err != nil {
				return err
			}
		case <-balanceTicker.C:
			if err := i.CollectBalances(ctx); err != nil {
				return err
			}
		}
	}
}

// CollectPrices polls every price provider and appends one batch per
// provider. A provider that keeps failing after retries is skipped.
func (i *Ingestor) CollectPrices(ctx context.Context) error {
	for _, p := range i.pricers {
		prices, err := retrier.DoWithData(i.retrier, ctx, func(ctx context.Context) (map[string]decimal.Decimal, error) {
			return p.FetchPrices(ctx, i.cfg.Assets, i.cfg.Currency)
		})
		if err != nil {
			i.logger.Warn("price provider failed",
				zap.String("provider", p.Name()),
				zap.Error(err))
			continue
		}
		if len(prices) == 0 {
			continue
		}

		ts := i.now().UTC()
		count, err := i.store.InsertPrices(ctx, ts, i.cfg.Currency, prices, p.Name())
		if err != nil {
			return err
		}
		i.logger.Info("price snapshot saved",
			zap.String("source", p.Name()),
			zap.Int("assets", count),
			zap.Time("ts", ts))
	}
	return nil
}

// CollectBalances polls every balance provider for the configured account.
func (i *Ingestor) CollectBalances(ctx context.Context) error {
	for _, w := range i.wallets {
		balances, err := retrier.DoWithData(i.retrier, ctx, func(ctx context.Context) (map[string]decimal.Decimal, error) {
			return w.FetchBalances(ctx)
		})
		if err != nil {
			i.logger.Warn("balance provider failed",
				zap.String("provider", w.Name()),
				zap.Error(err))
			continue
		}
		if len(balances) == 0 {
			continue
		}

		ts := i.now().UTC()
		count, err := i.store.InsertBalances(ctx, ts, i.cfg.Account, balances, w.Name())
		if err != nil {
			return err
		}
		i.logger.Info("balance snapshot saved",
			zap.String("source", w.Name()),
			zap.Int("assets", count),
			zap.Time("ts", ts))
	}
	return nil
}
