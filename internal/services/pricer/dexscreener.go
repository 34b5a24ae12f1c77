package pricer

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const (
	defaultDexScreenerBaseURL = "https://api.dexscreener.com"
	defaultMinLiquidityUSD    = 5000
)

// DexScreenerPricer quotes token mints through DexScreener, picking the
// pair with the deepest USD liquidity. Thin pools below the liquidity
// floor are ignored so one-sided pools cannot poison the price feed.
// DexScreener only quotes USD.
type DexScreenerPricer struct {
	baseURL         string
	mints           map[string]string
	minLiquidityUSD decimal.Decimal
	client          *http.Client
}

// NewDexScreenerPricer creates a provider with the given asset->mint
// registry.
func NewDexScreenerPricer(mints map[string]string, minLiquidityUSD decimal.Decimal) *DexScreenerPricer {
	if minLiquidityUSD.IsZero() {
		minLiquidityUSD = decimal.NewFromInt(defaultMinLiquidityUSD)
	}
	return &DexScreenerPricer{
		baseURL:         defaultDexScreenerBaseURL,
		mints:           mints,
		minLiquidityUSD: minLiquidityUSD,
		client:          &http.Client{Timeout: 10 * time.Second},
	}
}

// WithBaseURL overrides the API endpoint. Used by tests.
func (p *DexScreenerPricer) WithBaseURL(base string) *DexScreenerPricer {
	p.baseURL = strings.TrimSuffix(base, "/")
	return p
}

func (p *DexScreenerPricer) Name() string { return "dexscreener" }

type dexPair struct {
	PriceUSD  string `json:"priceUsd"`
	Liquidity struct {
		USD float64 `json:"usd"`
	} `json:"liquidity"`
	URL string `json:"url"`
}

// FetchPrices resolves mapped assets mint by mint. Assets whose pairs all
// fall below the liquidity floor are absent from the result.
func (p *DexScreenerPricer) FetchPrices(ctx context.Context, assets []string, currency string) (map[string]decimal.Decimal, error) {
	if !strings.EqualFold(currency, "usd") {
		return nil, errors.Errorf("dexscreener quotes usd only, got %q", currency)
	}

	out := make(map[string]decimal.Decimal)
	for _, asset := range assets {
		mint, ok := p.mints[asset]
		if !ok {
			continue
		}
		price, err := p.bestPairPrice(ctx, mint)
		if err != nil {
			continue
		}
		if price != nil {
			out[asset] = *price
		}
	}
	return out, nil
}

// bestPairPrice returns the price of the deepest pair at or above the
// liquidity floor, or nil when no pair qualifies. Two endpoint shapes are
// tried for robustness.
func (p *DexScreenerPricer) bestPairPrice(ctx context.Context, mint string) (*decimal.Decimal, error) {
	var pairs []dexPair

	urls := []string{
		p.baseURL + "/token-pairs/v1/solana/" + mint,
		p.baseURL + "/latest/dex/tokens/" + mint,
	}
	for _, u := range urls {
		fetched, err := p.fetchPairs(ctx, u)
		if err != nil {
			continue
		}
		if len(fetched) > 0 {
			pairs = fetched
			break
		}
	}
	if len(pairs) == 0 {
		return nil, errors.Errorf("no pairs for mint %s", mint)
	}

	var best *dexPair
	var bestPrice decimal.Decimal
	for i := range pairs {
		pair := pairs[i]
		price, err := decimal.NewFromString(pair.PriceUSD)
		if err != nil || !price.IsPositive() {
			continue
		}
		liquidity := decimal.NewFromFloat(pair.Liquidity.USD)
		if liquidity.LessThan(p.minLiquidityUSD) {
			continue
		}
		if best == nil || pair.Liquidity.USD > best.Liquidity.USD {
			best = &pairs[i]
			bestPrice = price
		}
	}
	if best == nil {
		return nil, nil
	}
	return &bestPrice, nil
}

func (p *DexScreenerPricer) fetchPairs(ctx context.Context, u string) ([]dexPair, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("dexscreener returned status %d", resp.StatusCode)
	}

	// endpoint A returns a bare list, endpoint B wraps it in {"pairs": [...]}
	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, err
	}
	var list []dexPair
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var wrapped struct {
		Pairs []dexPair `json:"pairs"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, err
	}
	return wrapped.Pairs, nil
}
