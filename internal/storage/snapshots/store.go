// Package snapshots provides the append-only time-series store for price,
// balance and portfolio snapshots, with point-in-time ("as-of") queries.
//
// Two backends implement the same Store surface: a gowal-backed log with
// in-memory indexes and a SQLite database. Reads are pure; writes append
// whole batches atomically from the readers' perspective.
package snapshots

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vallethq/vallet/internal/domain"
)

// Backend selects the persistence engine.
const (
	BackendWAL    = "wal"
	BackendSQLite = "sqlite"
)

// Config configures the store factory.
type Config struct {
	Backend string `yaml:"backend"`
	// Path is the WAL directory for the wal backend, or the database file
	// for the sqlite backend.
	Path string `yaml:"path"`
}

// Store is the snapshot store surface. Query results with no matching rows
// are nil pointers or empty collections, never errors; only malformed input
// and storage failures return errors.
type Store interface {
	InsertPrices(ctx context.Context, ts time.Time, currency string, prices map[string]decimal.Decimal, source string) (int, error)
	InsertBalances(ctx context.Context, ts time.Time, account string, balances map[string]decimal.Decimal, source string) (int, error)
	InsertPortfolio(ctx context.Context, ts time.Time, account, currency string, totalValue decimal.Decimal, source string) error

	LatestPrice(ctx context.Context, asset, currency string) (*domain.PricePoint, error)
	LatestBalance(ctx context.Context, account, asset string) (*domain.BalancePoint, error)
	LatestPrices(ctx context.Context, assets []string, currency string) (map[string]domain.PricePoint, error)
	LatestBalances(ctx context.Context, account string, assets []string) (map[string]domain.BalancePoint, error)

	// PriceAtOrBefore is the as-of join: the row with the greatest ts' <= ts
	// among rows matching (asset, currency), or nil when none exists.
	PriceAtOrBefore(ctx context.Context, asset, currency string, ts time.Time) (*domain.PricePoint, error)

	PriceHistory(ctx context.Context, asset, currency string, limit int) ([]domain.PricePoint, error)
	ValueHistory(ctx context.Context, account string, assets []string, currency string, limit int) ([]domain.ValuePoint, error)
	PortfolioHistory(ctx context.Context, account, currency string, limit int) ([]domain.PortfolioPoint, error)

	Close() error
}

// Open creates a store for the configured backend.
func Open(cfg Config) (Store, error) {
	switch cfg.Backend {
	case BackendWAL, "":
		return NewWALStore(cfg.Path)
	case BackendSQLite:
		return NewSQLiteStore(cfg.Path)
	default:
		return nil, errors.Errorf("unsupported snapshot store backend %q", cfg.Backend)
	}
}
