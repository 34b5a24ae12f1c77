package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is the valued holding of a single asset inside a report.
// Pointer fields are nil when the underlying data does not exist; a nil
// PrevPrice and a zero PrevPrice mean different things and are never
// collapsed into a sentinel value.
type Position struct {
	Asset     string          `json:"asset"`
	Amount    decimal.Decimal `json:"amount"`
	BalanceTS time.Time       `json:"balance_ts"`
	Price     decimal.Decimal `json:"price"`
	PriceTS   time.Time       `json:"price_ts"`
	Value     decimal.Decimal `json:"value"`

	PrevPrice      *decimal.Decimal `json:"prev_price,omitempty"`
	PrevPriceTS    *time.Time       `json:"prev_price_ts,omitempty"`
	PriceChange    *decimal.Decimal `json:"price_change,omitempty"`
	PriceChangePct *decimal.Decimal `json:"price_change_pct,omitempty"`
	ValueChange    *decimal.Decimal `json:"value_change,omitempty"`

	Price24h          *decimal.Decimal `json:"price_24h,omitempty"`
	Price24hTS        *time.Time       `json:"price_24h_ts,omitempty"`
	PriceChange24h    *decimal.Decimal `json:"price_change_24h,omitempty"`
	PriceChangePct24h *decimal.Decimal `json:"price_change_pct_24h,omitempty"`
	ValueChange24h    *decimal.Decimal `json:"value_change_24h,omitempty"`
	Baseline24hValid  bool             `json:"baseline_24h_valid"`
}

// PortfolioReport is the point-in-time valuation of an account.
//
// The portfolio-level previous and 24h deltas follow an all-or-nothing
// policy: a single asset with unusable previous or baseline data nulls the
// whole aggregate, even though the per-position fields stay populated.
type PortfolioReport struct {
	Account     string              `json:"account"`
	Currency    string              `json:"currency"`
	GeneratedAt time.Time           `json:"generated_at"`
	TotalValue  decimal.Decimal     `json:"total_value"`
	Positions   map[string]Position `json:"positions"`

	MissingPrices    []string `json:"missing_prices"`
	MissingBalances  []string `json:"missing_balances"`
	Missing24hPrices []string `json:"missing_24h_prices"`
	StalePrices      []string `json:"stale_prices"`

	BalancesUpdated string `json:"balances_updated"`
	PricesUpdated   string `json:"prices_updated"`

	PrevTotalValue *decimal.Decimal `json:"prev_total_value,omitempty"`
	TotalChange    *decimal.Decimal `json:"total_change,omitempty"`
	TotalChangePct *decimal.Decimal `json:"total_change_pct,omitempty"`

	Target24h            time.Time        `json:"target_24h"`
	MTMTotalValue24h     *decimal.Decimal `json:"mtm_total_value_24h,omitempty"`
	MTMTotalChange24h    *decimal.Decimal `json:"mtm_total_change_24h,omitempty"`
	MTMTotalChangePct24h *decimal.Decimal `json:"mtm_total_change_pct_24h,omitempty"`
}
