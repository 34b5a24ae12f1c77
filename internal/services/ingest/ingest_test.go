package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/vallethq/vallet/internal/services/pricer"
	"github.com/vallethq/vallet/internal/services/wallet"
	"github.com/vallethq/vallet/internal/storage/snapshots"
	"github.com/vallethq/vallet/pkg/retrier"
	"go.uber.org/zap"
)

type fakePricer struct {
	name   string
	prices map[string]decimal.Decimal
	err    error
	calls  int
}

func (f *fakePricer) Name() string { return f.name }

func (f *fakePricer) FetchPrices(context.Context, []string, string) (map[string]decimal.Decimal, error) {
	f.calls++
	return f.prices, f.err
}

type fakeWallet struct {
	name     string
	balances map[string]decimal.Decimal
	err      error
}

func (f *fakeWallet) Name() string { return f.name }

func (f *fakeWallet) FetchBalances(context.Context) (map[string]decimal.Decimal, error) {
	return f.balances, f.err
}

func newIngestor(t *testing.T, pricers []pricer.Provider, wallets []wallet.Provider) (*Ingestor, *snapshots.WALStore) {
	t.Helper()
	store, err := snapshots.NewWALStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ing := New(zap.NewNop(), store, pricers, wallets, Config{
		Account:  "main",
		Assets:   []string{"btc", "eth"},
		Currency: "usd",
	})
	// no backoff pauses in tests
	ing.retrier = retrier.New(retrier.WithMaxRetries(0))
	return ing, store
}

func TestCollectPricesStampsBatch(t *testing.T) {
	now := time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC)
	p := &fakePricer{name: "feed", prices: map[string]decimal.Decimal{
		"btc": decimal.NewFromInt(50000),
		"eth": decimal.NewFromInt(3000),
	}}

	ing, store := newIngestor(t, []pricer.Provider{p}, nil)
	ing.now = func() time.Time { return now }

	require.NoError(t, ing.CollectPrices(context.Background()))

	// both rows share the batch timestamp
	btc, err := store.LatestPrice(context.Background(), "btc", "usd")
	require.NoError(t, err)
	require.NotNil(t, btc)
	require.True(t, btc.TS.Equal(now))

	eth, err := store.LatestPrice(context.Background(), "eth", "usd")
	require.NoError(t, err)
	require.NotNil(t, eth)
	require.True(t, eth.TS.Equal(now))
	require.True(t, eth.Price.Equal(decimal.NewFromInt(3000)))
}

func TestCollectPricesSkipsFailingProvider(t *testing.T) {
	good := &fakePricer{name: "good", prices: map[string]decimal.Decimal{
		"btc": decimal.NewFromInt(50000),
	}}
	bad := &fakePricer{name: "bad", err: errors.New("rate limited")}

	ing, store := newIngestor(t, []pricer.Provider{bad, good}, nil)

	require.NoError(t, ing.CollectPrices(context.Background()))
	require.Equal(t, 1, bad.calls)

	got, err := store.LatestPrice(context.Background(), "btc", "usd")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.True(t, got.Price.Equal(decimal.NewFromInt(50000)))

	history, err := store.PriceHistory(context.Background(), "btc", "usd", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
}

func TestCollectBalances(t *testing.T) {
	now := time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC)
	w := &fakeWallet{name: "manual", balances: map[string]decimal.Decimal{
		"btc": decimal.NewFromInt(1),
	}}

	ing, store := newIngestor(t, nil, []wallet.Provider{w})
	ing.now = func() time.Time { return now }

	require.NoError(t, ing.CollectBalances(context.Background()))

	got, err := store.LatestBalance(context.Background(), "main", "btc")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.True(t, got.TS.Equal(now))
	require.True(t, got.Amount.Equal(decimal.NewFromInt(1)))
}

func TestCollectSkipsEmptyResults(t *testing.T) {
	p := &fakePricer{name: "empty", prices: map[string]decimal.Decimal{}}

	ing, store := newIngestor(t, []pricer.Provider{p}, nil)

	require.NoError(t, ing.CollectPrices(context.Background()))

	got, err := store.LatestPrice(context.Background(), "btc", "usd")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	p := &fakePricer{name: "feed", prices: map[string]decimal.Decimal{
		"btc": decimal.NewFromInt(50000),
	}}

	ing, _ := newIngestor(t, []pricer.Provider{p}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ing.Run(ctx) }()

	// let the initial collection happen, then stop the loop
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("ingest loop did not stop")
	}
	require.GreaterOrEqual(t, p.calls, 1)
}
