package pricer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const defaultCoinGeckoBaseURL = "https://api.coingecko.com/api/v3"

// CoinGeckoPricer quotes assets through the CoinGecko simple/price API.
// Assets map to CoinGecko ids through a configured registry; unmapped
// assets are skipped, not failed.
type CoinGeckoPricer struct {
	baseURL string
	ids     map[string]string
	client  *http.Client
}

// NewCoinGeckoPricer creates a provider with the given asset->id registry,
// e.g. {"btc": "bitcoin", "eth": "ethereum", "usdc": "usd-coin"}.
func NewCoinGeckoPricer(ids map[string]string) *CoinGeckoPricer {
	return &CoinGeckoPricer{
		baseURL: defaultCoinGeckoBaseURL,
		ids:     ids,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// WithBaseURL overrides the API endpoint. Used by tests.
func (p *CoinGeckoPricer) WithBaseURL(base string) *CoinGeckoPricer {
	p.baseURL = strings.TrimSuffix(base, "/")
	return p
}

func (p *CoinGeckoPricer) Name() string { return "coingecko" }

// FetchPrices resolves the mapped assets in one simple/price call.
func (p *CoinGeckoPricer) FetchPrices(ctx context.Context, assets []string, currency string) (map[string]decimal.Decimal, error) {
	currency = strings.ToLower(currency)

	var ids []string
	seen := make(map[string]struct{})
	for _, asset := range assets {
		id, ok := p.ids[asset]
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return map[string]decimal.Decimal{}, nil
	}

	q := url.Values{}
	q.Set("ids", strings.Join(ids, ","))
	q.Set("vs_currencies", currency)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/simple/price?"+q.Encode(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "build coingecko request")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "fetch coingecko prices")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("coingecko returned status %d", resp.StatusCode)
	}

	var payload map[string]map[string]float64
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, errors.Wrap(err, "decode coingecko response")
	}

	out := make(map[string]decimal.Decimal, len(assets))
	for _, asset := range assets {
		id, ok := p.ids[asset]
		if !ok {
			continue
		}
		price, ok := payload[id][currency]
		if !ok {
			continue
		}
		out[asset] = decimal.NewFromFloat(price)
	}
	return out, nil
}
