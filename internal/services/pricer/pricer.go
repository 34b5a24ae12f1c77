// Package pricer contains the price providers that feed the snapshot
// store. Providers are thin fetchers: they return whatever subset of the
// requested assets they can quote, and an error only when they produced
// nothing at all. Nothing here retries; the ingestion service owns that.
package pricer

import (
	"context"

	"github.com/shopspring/decimal"
)

// Provider fetches current prices for a set of assets in one currency.
// Assets a provider cannot quote are simply absent from the result.
type Provider interface {
	Name() string
	FetchPrices(ctx context.Context, assets []string, currency string) (map[string]decimal.Decimal, error)
}
