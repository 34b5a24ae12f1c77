package pricer

import (
	"context"
	"strings"

	"github.com/hirokisan/bybit/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// BybitPricer quotes assets from Bybit V5 spot tickers.
type BybitPricer struct {
	client *bybit.Client
}

// NewBybitPricer creates a Bybit provider.
func NewBybitPricer(client *bybit.Client) *BybitPricer {
	return &BybitPricer{client: client}
}

func (p *BybitPricer) Name() string { return "bybit" }

// FetchPrices queries the spot ticker per asset; assets Bybit does not list
// are skipped. Errors only surface when no asset could be quoted.
func (p *BybitPricer) FetchPrices(ctx context.Context, assets []string, currency string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(assets))
	var lastErr error

	for _, asset := range assets {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		symbol := bybit.SymbolV5(strings.ToUpper(asset) + strings.ToUpper(currency))
		result, err := p.client.V5().Market().GetTickers(bybit.V5GetTickersParam{
			Category: bybit.CategoryV5Spot,
			Symbol:   &symbol,
		})
		if err != nil {
			lastErr = err
			continue
		}
		if len(result.Result.Spot.List) == 0 {
			continue
		}
		price, err := decimal.NewFromString(result.Result.Spot.List[0].LastPrice)
		if err != nil {
			lastErr = err
			continue
		}
		out[asset] = price
	}

	if len(out) == 0 && lastErr != nil {
		return nil, errors.Wrap(lastErr, "fetch bybit tickers")
	}
	return out, nil
}
