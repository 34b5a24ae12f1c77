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

func TestCoinGeckoFetchPrices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/simple/price", r.URL.Path)
		require.Equal(t, "bitcoin,ethereum", r.URL.Query().Get("ids"))
		require.Equal(t, "usd", r.URL.Query().Get("vs_currencies"))
		fmt.Fprint(w, `{"bitcoin":{"usd":50000.5},"ethereum":{"usd":3000}}`)
	}))
	defer server.Close()

	p := NewCoinGeckoPricer(map[string]string{
		"btc": "bitcoin",
		"eth": "ethereum",
	}).WithBaseURL(server.URL)

	prices, err := p.FetchPrices(context.Background(), []string{"btc", "eth", "sol"}, "USD")
	require.NoError(t, err)
	require.Len(t, prices, 2)
	require.True(t, prices["btc"].Equal(decimal.NewFromFloat(50000.5)))
	require.True(t, prices["eth"].Equal(decimal.NewFromInt(3000)))
}

func TestCoinGeckoNoMappedAssets(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected when nothing maps to an id")
	}))
	defer server.Close()

	p := NewCoinGeckoPricer(map[string]string{"btc": "bitcoin"}).WithBaseURL(server.URL)

	prices, err := p.FetchPrices(context.Background(), []string{"sol"}, "usd")
	require.NoError(t, err)
	require.Empty(t, prices)
}

func TestCoinGeckoErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	p := NewCoinGeckoPricer(map[string]string{"btc": "bitcoin"}).WithBaseURL(server.URL)

	_, err := p.FetchPrices(context.Background(), []string{"btc"}, "usd")
	require.Error(t, err)
}

func TestCoinGeckoMissingQuote(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"bitcoin":{}}`)
	}))
	defer server.Close()

	p := NewCoinGeckoPricer(map[string]string{"btc": "bitcoin"}).WithBaseURL(server.URL)

	prices, err := p.FetchPrices(context.Background(), []string{"btc"}, "usd")
	require.NoError(t, err)
	require.Empty(t, prices)
}
