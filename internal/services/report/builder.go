// Package report assembles point-in-time portfolio valuations from the
// snapshot store. It owns the whole reconciliation policy: missing data,
// stale prices, and the tolerant 24h baseline.
package report

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vallethq/vallet/internal/domain"
	"go.uber.org/zap"
)

// Config holds the reconciliation thresholds. Zero fields fall back to the
// defaults below.
type Config struct {
	// StaleAfter disqualifies a current price from backing the 24h
	// comparison once its age exceeds this.
	StaleAfter time.Duration `yaml:"stale_after"`
	// BaselineOffset is how far behind now the 24h baseline target sits.
	BaselineOffset time.Duration `yaml:"baseline_offset"`
	// BaselineTolerance is the maximum gap between the target and the
	// resolved baseline row. 24h target plus slack for sparse snapshots.
	BaselineTolerance time.Duration `yaml:"baseline_tolerance"`
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		StaleAfter:        10 * time.Minute,
		BaselineOffset:    24 * time.Hour,
		BaselineTolerance: 30 * time.Hour,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.StaleAfter == 0 {
		c.StaleAfter = d.StaleAfter
	}
	if c.BaselineOffset == 0 {
		c.BaselineOffset = d.BaselineOffset
	}
	if c.BaselineTolerance == 0 {
		c.BaselineTolerance = d.BaselineTolerance
	}
	return c
}

// SnapshotSource is the slice of the snapshot store the builder reads.
type SnapshotSource interface {
	LatestBalances(ctx context.Context, account string, assets []string) (map[string]domain.BalancePoint, error)
	LatestPrices(ctx context.Context, assets []string, currency string) (map[string]domain.PricePoint, error)
	PriceAtOrBefore(ctx context.Context, asset, currency string, ts time.Time) (*domain.PricePoint, error)
	PriceHistory(ctx context.Context, asset, currency string, limit int) ([]domain.PricePoint, error)
}

// Builder computes portfolio reports. It never retries and never turns
// missing data into errors: degraded assets end up in the report's
// missing/stale lists with nil delta fields.
type Builder struct {
	source SnapshotSource
	cfg    Config
	logger *zap.Logger
}

// NewBuilder creates a report builder over the given snapshot source.
func NewBuilder(logger *zap.Logger, source SnapshotSource, cfg Config) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{source: source, cfg: cfg.withDefaults(), logger: logger}
}

var hundred = decimal.NewFromInt(100)

// safePct returns (nowVal-thenVal)/thenVal*100, or nil when thenVal is zero.
// A zero previous value is valid data, it just cannot back a percentage.
func safePct(nowVal, thenVal decimal.Decimal) *decimal.Decimal {
	if thenVal.IsZero() {
		return nil
	}
	pct := nowVal.Sub(thenVal).Div(thenVal).Mul(hundred)
	return &pct
}

// baselineOK reports whether a resolved baseline row may back the 24h
// comparison: it must not be after the target, and the gap back to it must
// stay within the tolerance.
func (b *Builder) baselineOK(target time.Time, baseline *domain.PricePoint) bool {
	if baseline == nil {
		return false
	}
	gap := target.Sub(baseline.TS)
	if gap < 0 {
		return false
	}
	return gap <= b.cfg.BaselineTolerance
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func maxTime(stamps []time.Time) time.Time {
	max := stamps[0]
	for _, ts := range stamps[1:] {
		if ts.After(max) {
			max = ts
		}
	}
	return max
}

// Build computes the portfolio report for the account at the injected clock
// reading. Per asset it resolves the latest balance and price, the previous
// price point, and a tolerant 24h baseline; portfolio-level previous and
// 24h aggregates are all-or-nothing: one asset with unusable data nulls
// them for the whole report.
func (b *Builder) Build(ctx context.Context, account string, assets []string, currency string, now time.Time) (*domain.PortfolioReport, error) {
	if err := domain.ValidateTimestamp(now); err != nil {
		return nil, err
	}
	now = now.UTC()
	target24h := now.Add(-b.cfg.BaselineOffset)

	balances, err := b.source.LatestBalances(ctx, account, assets)
	if err != nil {
		return nil, err
	}
	prices, err := b.source.LatestPrices(ctx, assets, currency)
	if err != nil {
		return nil, err
	}

	report := &domain.PortfolioReport{
		Account:          account,
		Currency:         currency,
		GeneratedAt:      now,
		Positions:        make(map[string]domain.Position, len(assets)),
		MissingPrices:    []string{},
		MissingBalances:  []string{},
		Missing24hPrices: []string{},
		StalePrices:      []string{},
		Target24h:        target24h,
	}

	total := decimal.Zero
	prevTotal := decimal.Zero
	mtmPrevTotal24h := decimal.Zero
	var missingPrevPrices []string
	var balanceStamps, priceStamps []time.Time

	for _, asset := range assets {
		bal, ok := balances[asset]
		if !ok {
			report.MissingBalances = append(report.MissingBalances, asset)
			continue
		}
		balanceStamps = append(balanceStamps, bal.TS)

		price, ok := prices[asset]
		if !ok {
			report.MissingPrices = append(report.MissingPrices, asset)
			continue
		}

		pos := domain.Position{
			Asset:     asset,
			Amount:    bal.Amount,
			BalanceTS: bal.TS,
			Price:     price.Price,
			PriceTS:   price.TS,
			Value:     bal.Amount.Mul(price.Price),
		}

		// 24h baseline: as-of price at or before the target
		baseline, err := b.source.PriceAtOrBefore(ctx, asset, currency, target24h)
		if err != nil {
			return nil, err
		}
		if b.baselineOK(target24h, baseline) {
			pos.Baseline24hValid = true
			p24 := baseline.Price
			p24TS := baseline.TS
			change24h := price.Price.Sub(p24)
			value24h := bal.Amount.Mul(change24h)
			pos.Price24h = &p24
			pos.Price24hTS = &p24TS
			pos.PriceChange24h = &change24h
			pos.PriceChangePct24h = safePct(price.Price, p24)
			pos.ValueChange24h = &value24h

			// mark-to-market: current holdings at the baseline price
			mtmPrevTotal24h = mtmPrevTotal24h.Add(bal.Amount.Mul(p24))
		} else {
			report.Missing24hPrices = append(report.Missing24hPrices, asset)
		}

		// previous-price delta: second-latest row of the history
		hist, err := b.source.PriceHistory(ctx, asset, currency, 2)
		if err != nil {
			return nil, err
		}
		if len(hist) >= 2 {
			prev := hist[1]
			prevPrice := prev.Price
			prevTS := prev.TS
			change := price.Price.Sub(prevPrice)
			valueChange := bal.Amount.Mul(change)
			pos.PrevPrice = &prevPrice
			pos.PrevPriceTS = &prevTS
			pos.PriceChange = &change
			pos.ValueChange = &valueChange
			prevTotal = prevTotal.Add(bal.Amount.Mul(prevPrice))

			if !prevPrice.IsZero() {
				pct := change.Div(prevPrice).Mul(hundred)
				pos.PriceChangePct = &pct
			} else {
				missingPrevPrices = append(missingPrevPrices, asset)
			}
		} else {
			missingPrevPrices = append(missingPrevPrices, asset)
		}

		priceStamps = append(priceStamps, price.TS)

		// staleness gate: an old current price disqualifies the whole 24h
		// comparison for this asset, valid baseline or not
		if now.Sub(price.TS) > b.cfg.StaleAfter {
			report.StalePrices = append(report.StalePrices, asset)
			pos.Price24h = nil
			pos.Price24hTS = nil
			pos.PriceChange24h = nil
			pos.PriceChangePct24h = nil
			pos.ValueChange24h = nil
			pos.Baseline24hValid = false
			if !contains(report.Missing24hPrices, asset) {
				report.Missing24hPrices = append(report.Missing24hPrices, asset)
			}
			b.logger.Debug("stale price",
				zap.String("asset", asset),
				zap.Time("price_ts", price.TS),
				zap.Duration("age", now.Sub(price.TS)))
		}

		report.Positions[asset] = pos
		total = total.Add(pos.Value)
	}

	report.TotalValue = total

	report.BalancesUpdated = "unknown"
	if len(balanceStamps) > 0 {
		report.BalancesUpdated = humanAge(maxTime(balanceStamps), now)
	}
	report.PricesUpdated = "unknown"
	if len(priceStamps) > 0 {
		report.PricesUpdated = humanAge(maxTime(priceStamps), now)
	}

	// all-or-nothing: a single asset without a usable previous price nulls
	// the portfolio-level previous aggregates
	if len(missingPrevPrices) == 0 {
		prev := prevTotal
		change := total.Sub(prev)
		report.PrevTotalValue = &prev
		report.TotalChange = &change
		report.TotalChangePct = safePct(total, prev)
	}

	// same policy for the mark-to-market 24h aggregates
	if len(report.Missing24hPrices) == 0 && len(report.StalePrices) == 0 {
		mtm := mtmPrevTotal24h
		change := total.Sub(mtm)
		report.MTMTotalValue24h = &mtm
		report.MTMTotalChange24h = &change
		report.MTMTotalChangePct24h = safePct(total, mtm)
	}

	return report, nil
}
