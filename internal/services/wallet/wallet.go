// Package wallet contains the balance providers that feed the snapshot
// store with account holdings.
package wallet

import (
	"context"

	"github.com/shopspring/decimal"
)

// Provider fetches the current holdings of one account, keyed by asset.
// An empty map on total failure never raises into the core: callers treat
// it the same as "no data in store".
type Provider interface {
	Name() string
	FetchBalances(ctx context.Context) (map[string]decimal.Decimal, error)
}
