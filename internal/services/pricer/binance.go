package pricer

import (
	"context"
	"strings"

	"github.com/adshao/go-binance/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// BinancePricer quotes assets from Binance spot tickers. The symbol is the
// concatenated upper-case asset and currency, e.g. ("btc", "usdt") ->
// "BTCUSDT". Assets without a listed symbol are skipped.
type BinancePricer struct {
	client *binance.Client
}

// NewBinancePricer creates a Binance provider. Public ticker data needs no
// API credentials.
func NewBinancePricer(client *binance.Client) *BinancePricer {
	return &BinancePricer{client: client}
}

func (p *BinancePricer) Name() string { return "binance" }

// FetchPrices pulls the full ticker list once and filters it down to the
// requested assets.
func (p *BinancePricer) FetchPrices(ctx context.Context, assets []string, currency string) (map[string]decimal.Decimal, error) {
	tickers, err := p.client.NewListPricesService().Do(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "fetch binance tickers")
	}

	bySymbol := make(map[string]string, len(tickers))
	for _, t := range tickers {
		bySymbol[t.Symbol] = t.Price
	}

	out := make(map[string]decimal.Decimal, len(assets))
	for _, asset := range assets {
		symbol := strings.ToUpper(asset) + strings.ToUpper(currency)
		raw, ok := bySymbol[symbol]
		if !ok {
			continue
		}
		price, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "parse binance price for %s", symbol)
		}
		out[asset] = price
	}
	return out, nil
}
