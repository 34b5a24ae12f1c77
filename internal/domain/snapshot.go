package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceSnapshot is one observed price for an (asset, currency) pair.
// Snapshots are append-only: rows are never updated or deleted.
type PriceSnapshot struct {
	TS       time.Time       `json:"ts"`
	Asset    string          `json:"asset"`
	Currency string          `json:"currency"`
	Price    decimal.Decimal `json:"price"`
	Source   string          `json:"source"`
}

// BalanceSnapshot is one observed holding for an (account, asset) pair.
type BalanceSnapshot struct {
	TS      time.Time       `json:"ts"`
	Account string          `json:"account"`
	Asset   string          `json:"asset"`
	Amount  decimal.Decimal `json:"amount"`
	Source  string          `json:"source"`
}

// PortfolioSnapshot is a derived total valuation of an account, written by
// report consumers (source "computed").
type PortfolioSnapshot struct {
	TS         time.Time       `json:"ts"`
	Account    string          `json:"account"`
	Currency   string          `json:"currency"`
	TotalValue decimal.Decimal `json:"total_value"`
	Source     string          `json:"source"`
}

// PricePoint is a (ts, price) observation returned by store queries.
type PricePoint struct {
	TS    time.Time       `json:"ts"`
	Price decimal.Decimal `json:"price"`
}

// BalancePoint is a (ts, amount) observation returned by store queries.
type BalancePoint struct {
	TS     time.Time       `json:"ts"`
	Amount decimal.Decimal `json:"amount"`
}

// ValuePoint is one balance moment valued with as-of prices. MissingPrices
// counts the assets of that moment with no price at or before the moment's
// timestamp; a moment with no resolvable prices at all keeps TotalValue zero.
type ValuePoint struct {
	TS            time.Time       `json:"ts"`
	TotalValue    decimal.Decimal `json:"total_value"`
	MissingPrices int             `json:"missing_prices"`
}

// PortfolioPoint is a persisted portfolio valuation read back from the store.
type PortfolioPoint struct {
	TS         time.Time       `json:"ts"`
	TotalValue decimal.Decimal `json:"total_value"`
	Source     string          `json:"source"`
}
