package pricer

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const testMint = "So11111111111111111111111111111111111111112"

func TestDexScreenerPicksDeepestPair(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/token-pairs/v1/solana/"+testMint, r.URL.Path)
		fmt.Fprint(w, `[
			{"priceUsd":"1.01","liquidity":{"usd":80000}},
			{"priceUsd":"1.05","liquidity":{"usd":250000}},
			{"priceUsd":"0.50","liquidity":{"usd":100}}
		]`)
	}))
	defer server.Close()

	p := NewDexScreenerPricer(map[string]string{"sol": testMint}, decimal.Zero).WithBaseURL(server.URL)

	prices, err := p.FetchPrices(context.Background(), []string{"sol"}, "usd")
	require.NoError(t, err)
	require.Len(t, prices, 1)
	require.True(t, prices["sol"].Equal(decimal.RequireFromString("1.05")))
}

func TestDexScreenerLiquidityFloor(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"priceUsd":"1.01","liquidity":{"usd":100}}]`)
	}))
	defer server.Close()

	p := NewDexScreenerPricer(map[string]string{"sol": testMint}, decimal.Zero).WithBaseURL(server.URL)

	// every pair is below the default 5000 floor
	prices, err := p.FetchPrices(context.Background(), []string{"sol"}, "usd")
	require.NoError(t, err)
	require.Empty(t, prices)
}

func TestDexScreenerFallbackEndpoint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/token-pairs/v1/solana/"+testMint {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		require.Equal(t, "/latest/dex/tokens/"+testMint, r.URL.Path)
		fmt.Fprint(w, `{"pairs":[{"priceUsd":"2.50","liquidity":{"usd":90000}}]}`)
	}))
	defer server.Close()

	p := NewDexScreenerPricer(map[string]string{"sol": testMint}, decimal.Zero).WithBaseURL(server.URL)

	prices, err := p.FetchPrices(context.Background(), []string{"sol"}, "usd")
	require.NoError(t, err)
	require.True(t, prices["sol"].Equal(decimal.RequireFromString("2.50")))
}

func TestDexScreenerRejectsNonUSD(t *testing.T) {
	p := NewDexScreenerPricer(map[string]string{"sol": testMint}, decimal.Zero)

	_, err := p.FetchPrices(context.Background(), []string{"sol"}, "eur")
	require.Error(t, err)
}

func TestDexScreenerNonPositivePrice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"priceUsd":"0","liquidity":{"usd":90000}}]`)
	}))
	defer server.Close()

	p := NewDexScreenerPricer(map[string]string{"sol": testMint}, decimal.Zero).WithBaseURL(server.URL)

	prices, err := p.FetchPrices(context.Background(), []string{"sol"}, "usd")
	require.NoError(t, err)
	require.Empty(t, prices)
}
