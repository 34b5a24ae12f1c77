package snapshots

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/gowal"
	"github.com/vallethq/vallet/internal/domain"
)

const (
	defaultWALDir       = "./wal/snapshots"
	walSegmentThreshold = 1000
	walMaxSegments      = 100

	priceBatchKey     = "price_batch"
	balanceBatchKey   = "balance_batch"
	portfolioEntryKey = "portfolio_snapshot"
)

// priceBatch is one atomic price insert: every asset shares the ts and source.
type priceBatch struct {
	TS       string                     `json:"ts"`
	Currency string                     `json:"currency"`
	Source   string                     `json:"source"`
	Prices   map[string]decimal.Decimal `json:"prices"`
}

// rows expands the batch into the snapshot rows it represents.
func (b priceBatch) rows() ([]domain.PriceSnapshot, error) {
	ts, err := domain.ParseTimestamp(b.TS)
	if err != nil {
		return nil, err
	}
	out := make([]domain.PriceSnapshot, 0, len(b.Prices))
	for asset, price := range b.Prices {
		out = append(out, domain.PriceSnapshot{TS: ts, Asset: asset, Currency: b.Currency, Price: price, Source: b.Source})
	}
	return out, nil
}

type balanceBatch struct {
	TS       string                     `json:"ts"`
	Account  string                     `json:"account"`
	Source   string                     `json:"source"`
	Balances map[string]decimal.Decimal `json:"balances"`
}

func (b balanceBatch) rows() ([]domain.BalanceSnapshot, error) {
	ts, err := domain.ParseTimestamp(b.TS)
	if err != nil {
		return nil, err
	}
	out := make([]domain.BalanceSnapshot, 0, len(b.Balances))
	for asset, amount := range b.Balances {
		out = append(out, domain.BalanceSnapshot{TS: ts, Account: b.Account, Asset: asset, Amount: amount, Source: b.Source})
	}
	return out, nil
}

type portfolioEntry struct {
	TS         string          `json:"ts"`
	Account    string          `json:"account"`
	Currency   string          `json:"currency"`
	TotalValue decimal.Decimal `json:"total_value"`
	Source     string          `json:"source"`
}

func (e portfolioEntry) row() (domain.PortfolioSnapshot, error) {
	ts, err := domain.ParseTimestamp(e.TS)
	if err != nil {
		return domain.PortfolioSnapshot{}, err
	}
	return domain.PortfolioSnapshot{TS: ts, Account: e.Account, Currency: e.Currency, TotalValue: e.TotalValue, Source: e.Source}, nil
}

type priceKey struct{ asset, currency string }
type balanceKey struct{ account, asset string }
type portfolioKey struct{ account, currency string }

// WALStore persists snapshots in a gowal log, one entry per insert batch,
// and serves queries from in-memory per-key indexes sorted by timestamp.
// A batch becomes visible in the indexes only after its WAL entry is
// durable, so readers never observe a partially written batch.
type WALStore struct {
	wal *gowal.Wal
	mu  sync.RWMutex

	prices     map[priceKey][]domain.PricePoint
	balances   map[balanceKey][]domain.BalancePoint
	portfolios map[portfolioKey][]domain.PortfolioPoint
}

// NewWALStore opens (or creates) a WAL-backed store under dir and rebuilds
// the indexes from the log.
func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		dir = defaultWALDir
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "snapshot_",
		SegmentThreshold: walSegmentThreshold,
		MaxSegments:      walMaxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrapf(domain.ErrStorageUnavailable, "open snapshot WAL: %v", err)
	}

	s := &WALStore{
		wal:        wal,
		prices:     make(map[priceKey][]domain.PricePoint),
		balances:   make(map[balanceKey][]domain.BalancePoint),
		portfolios: make(map[portfolioKey][]domain.PortfolioPoint),
	}

	if err := s.recover(); err != nil {
		_ = wal.Close()
		return nil, err
	}
	return s, nil
}

func (s *WALStore) recover() error {
	for msg := range s.wal.Iterator() {
		switch {
		case strings.HasPrefix(msg.Key, priceBatchKey):
			var b priceBatch
			if err := json.Unmarshal(msg.Value, &b); err != nil {
				return errors.Wrap(err, "decode price batch")
			}
			rows, err := b.rows()
			if err != nil {
				return err
			}
			for _, row := range rows {
				s.indexPrice(row.Asset, row.Currency, domain.PricePoint{TS: row.TS, Price: row.Price})
			}
		case strings.HasPrefix(msg.Key, balanceBatchKey):
			var b balanceBatch
			if err := json.Unmarshal(msg.Value, &b); err != nil {
				return errors.Wrap(err, "decode balance batch")
			}
			rows, err := b.rows()
			if err != nil {
				return err
			}
			for _, row := range rows {
				s.indexBalance(row.Account, row.Asset, domain.BalancePoint{TS: row.TS, Amount: row.Amount})
			}
		case strings.HasPrefix(msg.Key, portfolioEntryKey):
			var e portfolioEntry
			if err := json.Unmarshal(msg.Value, &e); err != nil {
				return errors.Wrap(err, "decode portfolio snapshot")
			}
			row, err := e.row()
			if err != nil {
				return err
			}
			s.indexPortfolio(row.Account, row.Currency, domain.PortfolioPoint{TS: row.TS, TotalValue: row.TotalValue, Source: row.Source})
		}
	}
	return nil
}

// normalizeTS round-trips ts through the canonical layout so indexed times
// compare exactly like their persisted form.
func normalizeTS(ts time.Time) (time.Time, error) {
	if err := domain.ValidateTimestamp(ts); err != nil {
		return time.Time{}, err
	}
	return domain.ParseTimestamp(domain.FormatTimestamp(ts))
}

// indexPrice inserts p keeping the slice ascending by TS. Equal timestamps
// land after existing rows, so the latest write wins ties.
func (s *WALStore) indexPrice(asset, currency string, p domain.PricePoint) {
	k := priceKey{asset, currency}
	series := s.prices[k]
	i := sort.Search(len(series), func(i int) bool { return series[i].TS.After(p.TS) })
	series = append(series, domain.PricePoint{})
	copy(series[i+1:], series[i:])
	series[i] = p
	s.prices[k] = series
}

func (s *WALStore) indexBalance(account, asset string, b domain.BalancePoint) {
	k := balanceKey{account, asset}
	series := s.balances[k]
	i := sort.Search(len(series), func(i int) bool { return series[i].TS.After(b.TS) })
	series = append(series, domain.BalancePoint{})
	copy(series[i+1:], series[i:])
	series[i] = b
	s.balances[k] = series
}

func (s *WALStore) indexPortfolio(account, currency string, p domain.PortfolioPoint) {
	k := portfolioKey{account, currency}
	series := s.portfolios[k]
	i := sort.Search(len(series), func(i int) bool { return series[i].TS.After(p.TS) })
	series = append(series, domain.PortfolioPoint{})
	copy(series[i+1:], series[i:])
	series[i] = p
	s.portfolios[k] = series
}

func (s *WALStore) append(key string, payload []byte) error {
	next := s.wal.CurrentIndex() + 1
	if err := s.wal.Write(next, key, payload); err != nil {
		return errors.Wrapf(domain.ErrStorageUnavailable, "append %s: %v", key, err)
	}
	return nil
}

// InsertPrices writes one row per asset, all sharing ts and source. The
// batch is a single WAL entry, so it is atomic for readers and recovery.
func (s *WALStore) InsertPrices(_ context.Context, ts time.Time, currency string, prices map[string]decimal.Decimal, source string) (int, error) {
	if len(prices) == 0 {
		return 0, nil
	}
	norm, err := normalizeTS(ts)
	if err != nil {
		return 0, err
	}

	batch := priceBatch{TS: domain.FormatTimestamp(norm), Currency: currency, Source: source, Prices: prices}
	payload, err := json.Marshal(batch)
	if err != nil {
		return 0, errors.Wrap(err, "marshal price batch")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.append(priceBatchKey, payload); err != nil {
		return 0, err
	}
	for asset, price := range prices {
		s.indexPrice(asset, currency, domain.PricePoint{TS: norm, Price: price})
	}
	return len(prices), nil
}

// InsertBalances is the balance counterpart of InsertPrices.
func (s *WALStore) InsertBalances(_ context.Context, ts time.Time, account string, balances map[string]decimal.Decimal, source string) (int, error) {
	if len(balances) == 0 {
		return 0, nil
	}
	norm, err := normalizeTS(ts)
	if err != nil {
		return 0, err
	}

	batch := balanceBatch{TS: domain.FormatTimestamp(norm), Account: account, Source: source, Balances: balances}
	payload, err := json.Marshal(batch)
	if err != nil {
		return 0, errors.Wrap(err, "marshal balance batch")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.append(balanceBatchKey, payload); err != nil {
		return 0, err
	}
	for asset, amount := range balances {
		s.indexBalance(account, asset, domain.BalancePoint{TS: norm, Amount: amount})
	}
	return len(balances), nil
}

// InsertPortfolio appends a derived portfolio valuation.
func (s *WALStore) InsertPortfolio(_ context.Context, ts time.Time, account, currency string, totalValue decimal.Decimal, source string) error {
	norm, err := normalizeTS(ts)
	if err != nil {
		return err
	}

	entry := portfolioEntry{TS: domain.FormatTimestamp(norm), Account: account, Currency: currency, TotalValue: totalValue, Source: source}
	payload, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrap(err, "marshal portfolio snapshot")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.append(portfolioEntryKey, payload); err != nil {
		return err
	}
	s.indexPortfolio(account, currency, domain.PortfolioPoint{TS: norm, TotalValue: totalValue, Source: source})
	return nil
}

// LatestPrice returns the max-ts price row, or nil when none exists.
func (s *WALStore) LatestPrice(_ context.Context, asset, currency string) (*domain.PricePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	series := s.prices[priceKey{asset, currency}]
	if len(series) == 0 {
		return nil, nil
	}
	p := series[len(series)-1]
	return &p, nil
}

// LatestBalance returns the max-ts balance row, or nil when none exists.
func (s *WALStore) LatestBalance(_ context.Context, account, asset string) (*domain.BalancePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	series := s.balances[balanceKey{account, asset}]
	if len(series) == 0 {
		return nil, nil
	}
	b := series[len(series)-1]
	return &b, nil
}

// LatestPrices resolves the latest price per asset; assets with no rows are
// simply absent from the result.
func (s *WALStore) LatestPrices(_ context.Context, assets []string, currency string) (map[string]domain.PricePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]domain.PricePoint, len(assets))
	for _, asset := range assets {
		series := s.prices[priceKey{asset, currency}]
		if len(series) == 0 {
			continue
		}
		out[asset] = series[len(series)-1]
	}
	return out, nil
}

// LatestBalances resolves the latest balance per asset for an account.
func (s *WALStore) LatestBalances(_ context.Context, account string, assets []string) (map[string]domain.BalancePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]domain.BalancePoint, len(assets))
	for _, asset := range assets {
		series := s.balances[balanceKey{account, asset}]
		if len(series) == 0 {
			continue
		}
		out[asset] = series[len(series)-1]
	}
	return out, nil
}

// PriceAtOrBefore returns the greatest-ts row with ts' <= ts, or nil.
func (s *WALStore) PriceAtOrBefore(_ context.Context, asset, currency string, ts time.Time) (*domain.PricePoint, error) {
	norm, err := normalizeTS(ts)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	p := s.priceAtOrBeforeLocked(asset, currency, norm)
	return p, nil
}

func (s *WALStore) priceAtOrBeforeLocked(asset, currency string, ts time.Time) *domain.PricePoint {
	series := s.prices[priceKey{asset, currency}]
	// first index strictly after ts; the row before it is the as-of match
	i := sort.Search(len(series), func(i int) bool { return series[i].TS.After(ts) })
	if i == 0 {
		return nil
	}
	p := series[i-1]
	return &p
}

// PriceHistory returns up to limit rows, newest first.
func (s *WALStore) PriceHistory(_ context.Context, asset, currency string, limit int) ([]domain.PricePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	series := s.prices[priceKey{asset, currency}]
	if limit <= 0 || len(series) == 0 {
		return nil, nil
	}
	if limit > len(series) {
		limit = len(series)
	}

	out := make([]domain.PricePoint, 0, limit)
	for i := len(series) - 1; i >= len(series)-limit; i-- {
		out = append(out, series[i])
	}
	return out, nil
}

// ValueHistory values each balance moment of the account with as-of prices.
func (s *WALStore) ValueHistory(_ context.Context, account string, assets []string, currency string, limit int) ([]domain.ValuePoint, error) {
	if len(assets) == 0 || limit <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	// group balance rows by their shared timestamp (the "moment")
	moments := make(map[time.Time]map[string]decimal.Decimal)
	for _, asset := range assets {
		for _, b := range s.balances[balanceKey{account, asset}] {
			m, ok := moments[b.TS]
			if !ok {
				m = make(map[string]decimal.Decimal)
				moments[b.TS] = m
			}
			m[asset] = b.Amount
		}
	}
	if len(moments) == 0 {
		return nil, nil
	}

	stamps := make([]time.Time, 0, len(moments))
	for ts := range moments {
		stamps = append(stamps, ts)
	}
	sort.Slice(stamps, func(i, j int) bool { return stamps[i].After(stamps[j]) })
	if limit < len(stamps) {
		stamps = stamps[:limit]
	}

	out := make([]domain.ValuePoint, 0, len(stamps))
	for _, ts := range stamps {
		total := decimal.Zero
		missing := 0
		for asset, amount := range moments[ts] {
			p := s.priceAtOrBeforeLocked(asset, currency, ts)
			if p == nil {
				missing++
				continue
			}
			total = total.Add(amount.Mul(p.Price))
		}
		out = append(out, domain.ValuePoint{TS: ts, TotalValue: total, MissingPrices: missing})
	}
	return out, nil
}

// PortfolioHistory returns persisted portfolio valuations, newest first.
func (s *WALStore) PortfolioHistory(_ context.Context, account, currency string, limit int) ([]domain.PortfolioPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	series := s.portfolios[portfolioKey{account, currency}]
	if limit <= 0 || len(series) == 0 {
		return nil, nil
	}
	if limit > len(series) {
		limit = len(series)
	}

	out := make([]domain.PortfolioPoint, 0, limit)
	for i := len(series) - 1; i >= len(series)-limit; i-- {
		out = append(out, series[i])
	}
	return out, nil
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wal.Close()
}
