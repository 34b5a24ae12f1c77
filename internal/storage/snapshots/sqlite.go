package snapshots

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vallethq/vallet/internal/domain"

	_ "modernc.org/sqlite"
)

const defaultSQLitePath = "./vallet.db"

// SQLiteStore persists snapshots in three append-only tables, each with a
// composite index on its natural query key so latest and as-of lookups are
// index range scans. Timestamps are stored as canonical fixed-width UTC
// strings, so ORDER BY ts equals chronological order.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database file and ensures schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		path = defaultSQLitePath
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(domain.ErrStorageUnavailable, "open %s: %v", path, err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(domain.ErrStorageUnavailable, "ping %s: %v", path, err)
	}

	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(domain.ErrStorageUnavailable, "set WAL mode: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(domain.ErrStorageUnavailable, "enable foreign keys: %v", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) ensureSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS price_snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts TEXT NOT NULL,
			asset TEXT NOT NULL,
			currency TEXT NOT NULL,
			price REAL NOT NULL,
			source TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_price_snapshots_lookup
			ON price_snapshots(asset, currency, ts);`,
		`CREATE TABLE IF NOT EXISTS balance_snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts TEXT NOT NULL,
			account TEXT NOT NULL,
			asset TEXT NOT NULL,
			amount REAL NOT NULL,
			source TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_balance_snapshots_lookup
			ON balance_snapshots(account, asset, ts);`,
		`CREATE TABLE IF NOT EXISTS portfolio_snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts TEXT NOT NULL,
			account TEXT NOT NULL,
			currency TEXT NOT NULL,
			total_value REAL NOT NULL,
			source TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_portfolio_snapshots_lookup
			ON portfolio_snapshots(account, currency, ts);`,
	}
	for _, q := range stmts {
		if _, err := s.db.Exec(q); err != nil {
			return errors.Wrapf(domain.ErrStorageUnavailable, "ensure schema: %v", err)
		}
	}
	return nil
}

// InsertPrices writes one row per asset inside a single transaction, so the
// batch is either fully visible or absent.
func (s *SQLiteStore) InsertPrices(ctx context.Context, ts time.Time, currency string, prices map[string]decimal.Decimal, source string) (int, error) {
	if len(prices) == 0 {
		return 0, nil
	}
	if err := domain.ValidateTimestamp(ts); err != nil {
		return 0, err
	}
	stamp := domain.FormatTimestamp(ts)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrapf(domain.ErrStorageUnavailable, "begin tx: %v", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO price_snapshots (ts, asset, currency, price, source)
		VALUES (?, ?, ?, ?, ?);`)
	if err != nil {
		return 0, errors.Wrapf(domain.ErrStorageUnavailable, "prepare insert: %v", err)
	}
	defer stmt.Close()

	for asset, price := range prices {
		if _, err := stmt.ExecContext(ctx, stamp, asset, currency, price.InexactFloat64(), source); err != nil {
			return 0, errors.Wrapf(domain.ErrStorageUnavailable, "insert price %s: %v", asset, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, errors.Wrapf(domain.ErrStorageUnavailable, "commit price batch: %v", err)
	}
	return len(prices), nil
}

// InsertBalances is the balance counterpart of InsertPrices.
func (s *SQLiteStore) InsertBalances(ctx context.Context, ts time.Time, account string, balances map[string]decimal.Decimal, source string) (int, error) {
	if len(balances) == 0 {
		return 0, nil
	}
	if err := domain.ValidateTimestamp(ts); err != nil {
		return 0, err
	}
	stamp := domain.FormatTimestamp(ts)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrapf(domain.ErrStorageUnavailable, "begin tx: %v", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO balance_snapshots (ts, account, asset, amount, source)
		VALUES (?, ?, ?, ?, ?);`)
	if err != nil {
		return 0, errors.Wrapf(domain.ErrStorageUnavailable, "prepare insert: %v", err)
	}
	defer stmt.Close()

	for asset, amount := range balances {
		if _, err := stmt.ExecContext(ctx, stamp, account, asset, amount.InexactFloat64(), source); err != nil {
			return 0, errors.Wrapf(domain.ErrStorageUnavailable, "insert balance %s: %v", asset, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, errors.Wrapf(domain.ErrStorageUnavailable, "commit balance batch: %v", err)
	}
	return len(balances), nil
}

// InsertPortfolio appends a derived portfolio valuation.
func (s *SQLiteStore) InsertPortfolio(ctx context.Context, ts time.Time, account, currency string, totalValue decimal.Decimal, source string) error {
	if err := domain.ValidateTimestamp(ts); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO portfolio_snapshots (ts, account, currency, total_value, source)
		VALUES (?, ?, ?, ?, ?);`,
		domain.FormatTimestamp(ts), account, currency, totalValue.InexactFloat64(), source)
	if err != nil {
		return errors.Wrapf(domain.ErrStorageUnavailable, "insert portfolio snapshot: %v", err)
	}
	return nil
}

func scanPricePoint(row *sql.Row) (*domain.PricePoint, error) {
	var stamp string
	var price float64
	if err := row.Scan(&stamp, &price); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrapf(domain.ErrStorageUnavailable, "scan price row: %v", err)
	}
	ts, err := domain.ParseTimestamp(stamp)
	if err != nil {
		return nil, err
	}
	return &domain.PricePoint{TS: ts, Price: decimal.NewFromFloat(price)}, nil
}

// LatestPrice returns the max-ts price row, or nil when none exists.
func (s *SQLiteStore) LatestPrice(ctx context.Context, asset, currency string) (*domain.PricePoint, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT ts, price
		FROM price_snapshots
		WHERE asset = ? AND currency = ?
		ORDER BY ts DESC
		LIMIT 1;`, asset, currency)
	return scanPricePoint(row)
}

// LatestBalance returns the max-ts balance row, or nil when none exists.
func (s *SQLiteStore) LatestBalance(ctx context.Context, account, asset string) (*domain.BalancePoint, error) {
	var stamp string
	var amount float64
	err := s.db.QueryRowContext(ctx, `
		SELECT ts, amount
		FROM balance_snapshots
		WHERE account = ? AND asset = ?
		ORDER BY ts DESC
		LIMIT 1;`, account, asset).Scan(&stamp, &amount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrapf(domain.ErrStorageUnavailable, "scan balance row: %v", err)
	}
	ts, err := domain.ParseTimestamp(stamp)
	if err != nil {
		return nil, err
	}
	return &domain.BalancePoint{TS: ts, Amount: decimal.NewFromFloat(amount)}, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// LatestPrices resolves the latest price per asset with a grouped MAX(ts)
// join; assets with no rows are absent from the result.
func (s *SQLiteStore) LatestPrices(ctx context.Context, assets []string, currency string) (map[string]domain.PricePoint, error) {
	if len(assets) == 0 {
		return map[string]domain.PricePoint{}, nil
	}

	args := make([]any, 0, len(assets)+2)
	args = append(args, currency)
	for _, a := range assets {
		args = append(args, a)
	}
	args = append(args, currency)

	query := `
		SELECT p.asset, p.ts, p.price
		FROM price_snapshots p
		JOIN (
			SELECT asset, MAX(ts) AS max_ts
			FROM price_snapshots
			WHERE currency = ?
			  AND asset IN (` + placeholders(len(assets)) + `)
			GROUP BY asset
		) latest
		ON p.asset = latest.asset
		AND p.ts = latest.max_ts
		WHERE p.currency = ?;`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrapf(domain.ErrStorageUnavailable, "query latest prices: %v", err)
	}
	defer rows.Close()

	out := make(map[string]domain.PricePoint, len(assets))
	for rows.Next() {
		var asset, stamp string
		var price float64
		if err := rows.Scan(&asset, &stamp, &price); err != nil {
			return nil, errors.Wrapf(domain.ErrStorageUnavailable, "scan latest price: %v", err)
		}
		ts, err := domain.ParseTimestamp(stamp)
		if err != nil {
			return nil, err
		}
		out[asset] = domain.PricePoint{TS: ts, Price: decimal.NewFromFloat(price)}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(domain.ErrStorageUnavailable, "iterate latest prices: %v", err)
	}
	return out, nil
}

// LatestBalances resolves the latest balance per asset for an account.
func (s *SQLiteStore) LatestBalances(ctx context.Context, account string, assets []string) (map[string]domain.BalancePoint, error) {
	if len(assets) == 0 {
		return map[string]domain.BalancePoint{}, nil
	}

	args := make([]any, 0, len(assets)+2)
	args = append(args, account)
	for _, a := range assets {
		args = append(args, a)
	}
	args = append(args, account)

	query := `
		SELECT b.asset, b.ts, b.amount
		FROM balance_snapshots b
		JOIN (
			SELECT asset, MAX(ts) AS max_ts
			FROM balance_snapshots
			WHERE account = ?
			  AND asset IN (` + placeholders(len(assets)) + `)
			GROUP BY asset
		) latest
		ON b.asset = latest.asset
		AND b.ts = latest.max_ts
		WHERE b.account = ?;`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrapf(domain.ErrStorageUnavailable, "query latest balances: %v", err)
	}
	defer rows.Close()

	out := make(map[string]domain.BalancePoint, len(assets))
	for rows.Next() {
		var asset, stamp string
		var amount float64
		if err := rows.Scan(&asset, &stamp, &amount); err != nil {
			return nil, errors.Wrapf(domain.ErrStorageUnavailable, "scan latest balance: %v", err)
		}
		ts, err := domain.ParseTimestamp(stamp)
		if err != nil {
			return nil, err
		}
		out[asset] = domain.BalancePoint{TS: ts, Amount: decimal.NewFromFloat(amount)}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(domain.ErrStorageUnavailable, "iterate latest balances: %v", err)
	}
	return out, nil
}

// PriceAtOrBefore returns the greatest-ts row with ts' <= ts, or nil.
func (s *SQLiteStore) PriceAtOrBefore(ctx context.Context, asset, currency string, ts time.Time) (*domain.PricePoint, error) {
	if err := domain.ValidateTimestamp(ts); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT ts, price
		FROM price_snapshots
		WHERE asset = ?
		  AND currency = ?
		  AND ts <= ?
		ORDER BY ts DESC
		LIMIT 1;`, asset, currency, domain.FormatTimestamp(ts))
	return scanPricePoint(row)
}

// PriceHistory returns up to limit rows, newest first.
func (s *SQLiteStore) PriceHistory(ctx context.Context, asset, currency string, limit int) ([]domain.PricePoint, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, price
		FROM price_snapshots
		WHERE asset = ? AND currency = ?
		ORDER BY ts DESC
		LIMIT ?;`, asset, currency, limit)
	if err != nil {
		return nil, errors.Wrapf(domain.ErrStorageUnavailable, "query price history: %v", err)
	}
	defer rows.Close()

	var out []domain.PricePoint
	for rows.Next() {
		var stamp string
		var price float64
		if err := rows.Scan(&stamp, &price); err != nil {
			return nil, errors.Wrapf(domain.ErrStorageUnavailable, "scan price history: %v", err)
		}
		ts, err := domain.ParseTimestamp(stamp)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.PricePoint{TS: ts, Price: decimal.NewFromFloat(price)})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(domain.ErrStorageUnavailable, "iterate price history: %v", err)
	}
	return out, nil
}

// ValueHistory values each balance moment with the as-of price per asset,
// expressed as a correlated subquery over the price index. A moment where
// no price resolves keeps a zero total; null handling beyond the missing
// count belongs to the report builder.
func (s *SQLiteStore) ValueHistory(ctx context.Context, account string, assets []string, currency string, limit int) ([]domain.ValuePoint, error) {
	if len(assets) == 0 || limit <= 0 {
		return nil, nil
	}

	args := make([]any, 0, len(assets)+4)
	args = append(args, currency, currency, account)
	for _, a := range assets {
		args = append(args, a)
	}
	args = append(args, limit)

	query := `
		SELECT
			b.ts AS ts,
			SUM(b.amount * (
				SELECT p.price
				FROM price_snapshots p
				WHERE p.asset = b.asset
				  AND p.currency = ?
				  AND p.ts <= b.ts
				ORDER BY p.ts DESC
				LIMIT 1
			)) AS total_value,
			COUNT(*) - COUNT((
				SELECT p.price
				FROM price_snapshots p
				WHERE p.asset = b.asset
				  AND p.currency = ?
				  AND p.ts <= b.ts
				ORDER BY p.ts DESC
				LIMIT 1
			)) AS missing_prices
		FROM balance_snapshots b
		WHERE b.account = ?
		  AND b.asset IN (` + placeholders(len(assets)) + `)
		GROUP BY b.ts
		ORDER BY b.ts DESC
		LIMIT ?;`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrapf(domain.ErrStorageUnavailable, "query value history: %v", err)
	}
	defer rows.Close()

	var out []domain.ValuePoint
	for rows.Next() {
		var stamp string
		var total sql.NullFloat64
		var missing int
		if err := rows.Scan(&stamp, &total, &missing); err != nil {
			return nil, errors.Wrapf(domain.ErrStorageUnavailable, "scan value history: %v", err)
		}
		ts, err := domain.ParseTimestamp(stamp)
		if err != nil {
			return nil, err
		}
		totalValue := decimal.Zero
		if total.Valid {
			totalValue = decimal.NewFromFloat(total.Float64)
		}
		out = append(out, domain.ValuePoint{TS: ts, TotalValue: totalValue, MissingPrices: missing})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(domain.ErrStorageUnavailable, "iterate value history: %v", err)
	}
	return out, nil
}

// PortfolioHistory returns persisted portfolio valuations, newest first.
func (s *SQLiteStore) PortfolioHistory(ctx context.Context, account, currency string, limit int) ([]domain.PortfolioPoint, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, total_value, source
		FROM portfolio_snapshots
		WHERE account = ? AND currency = ?
		ORDER BY ts DESC
		LIMIT ?;`, account, currency, limit)
	if err != nil {
		return nil, errors.Wrapf(domain.ErrStorageUnavailable, "query portfolio history: %v", err)
	}
	defer rows.Close()

	var out []domain.PortfolioPoint
	for rows.Next() {
		var stamp, source string
		var total float64
		if err := rows.Scan(&stamp, &total, &source); err != nil {
			return nil, errors.Wrapf(domain.ErrStorageUnavailable, "scan portfolio history: %v", err)
		}
		ts, err := domain.ParseTimestamp(stamp)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.PortfolioPoint{TS: ts, TotalValue: decimal.NewFromFloat(total), Source: source})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(domain.ErrStorageUnavailable, "iterate portfolio history: %v", err)
	}
	return out, nil
}

// Close closes the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
