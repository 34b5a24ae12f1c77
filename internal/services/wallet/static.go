package wallet

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// StaticProvider serves balances declared in configuration, for holdings
// that live on no queryable chain (cold storage, off-exchange, manual
// bookkeeping).
type StaticProvider struct {
	balances map[string]decimal.Decimal
}

// NewStaticProvider parses the configured amount strings.
func NewStaticProvider(balances map[string]string) (*StaticProvider, error) {
	parsed := make(map[string]decimal.Decimal, len(balances))
	for asset, raw := range balances {
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid static balance for %s", asset)
		}
		parsed[asset] = amount
	}
	return &StaticProvider{balances: parsed}, nil
}

func (p *StaticProvider) Name() string { return "manual" }

// FetchBalances returns a copy of the declared balances.
func (p *StaticProvider) FetchBalances(context.Context) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(p.balances))
	for asset, amount := range p.balances {
		out[asset] = amount
	}
	return out, nil
}
