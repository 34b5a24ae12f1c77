package report

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/vallethq/vallet/internal/storage/snapshots"
	"go.uber.org/zap"
)

const (
	account  = "main"
	currency = "usd"
)

func newStore(t *testing.T) *snapshots.WALStore {
	t.Helper()
	store, err := snapshots.NewWALStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func insertPrice(t *testing.T, store *snapshots.WALStore, ts time.Time, asset string, price int64) {
	t.Helper()
	_, err := store.InsertPrices(context.Background(), ts, currency,
		map[string]decimal.Decimal{asset: decimal.NewFromInt(price)}, "test")
	require.NoError(t, err)
}

func insertBalance(t *testing.T, store *snapshots.WALStore, ts time.Time, asset string, amount int64) {
	t.Helper()
	_, err := store.InsertBalances(context.Background(), ts, account,
		map[string]decimal.Decimal{asset: decimal.NewFromInt(amount)}, "test")
	require.NoError(t, err)
}

func requireDecimal(t *testing.T, want int64, got *decimal.Decimal) {
	t.Helper()
	require.NotNil(t, got)
	require.True(t, got.Equal(decimal.NewFromInt(want)), "want %d, got %s", want, got)
}

func TestBuildRejectsZeroTime(t *testing.T) {
	builder := NewBuilder(zap.NewNop(), newStore(t), Config{})
	_, err := builder.Build(context.Background(), account, []string{"btc"}, currency, time.Time{})
	require.Error(t, err)
}

func TestBuildFullReport(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	store := newStore(t)

	// btc: baseline 100 exactly at the 24h target, prev 105, current 110
	insertPrice(t, store, now.Add(-24*time.Hour), "btc", 100)
	insertPrice(t, store, now.Add(-time.Hour), "btc", 105)
	insertPrice(t, store, now.Add(-5*time.Minute), "btc", 110)
	insertBalance(t, store, now.Add(-3*time.Minute), "btc", 2)

	// eth: baseline 50 one hour before the target, prev 55, current 60
	insertPrice(t, store, now.Add(-25*time.Hour), "eth", 50)
	insertPrice(t, store, now.Add(-2*time.Hour), "eth", 55)
	insertPrice(t, store, now.Add(-4*time.Minute), "eth", 60)
	insertBalance(t, store, now.Add(-3*time.Minute), "eth", 3)

	builder := NewBuilder(zap.NewNop(), store, Config{})
	rep, err := builder.Build(context.Background(), account, []string{"btc", "eth"}, currency, now)
	require.NoError(t, err)

	require.Equal(t, account, rep.Account)
	require.Equal(t, currency, rep.Currency)
	require.True(t, rep.GeneratedAt.Equal(now))
	require.True(t, rep.Target24h.Equal(now.Add(-24*time.Hour)))
	require.Empty(t, rep.MissingPrices)
	require.Empty(t, rep.MissingBalances)
	require.Empty(t, rep.Missing24hPrices)
	require.Empty(t, rep.StalePrices)
	require.Len(t, rep.Positions, 2)

	btc := rep.Positions["btc"]
	require.True(t, btc.Value.Equal(decimal.NewFromInt(220)))
	requireDecimal(t, 105, btc.PrevPrice)
	requireDecimal(t, 5, btc.PriceChange)
	requireDecimal(t, 10, btc.ValueChange)
	require.NotNil(t, btc.PriceChangePct)
	require.True(t, btc.Baseline24hValid)
	requireDecimal(t, 100, btc.Price24h)
	requireDecimal(t, 10, btc.PriceChange24h)
	requireDecimal(t, 20, btc.ValueChange24h)
	require.NotNil(t, btc.PriceChangePct24h)
	require.True(t, btc.PriceChangePct24h.Equal(decimal.NewFromInt(10)))

	eth := rep.Positions["eth"]
	require.True(t, eth.Value.Equal(decimal.NewFromInt(180)))
	require.True(t, eth.Baseline24hValid)
	requireDecimal(t, 50, eth.Price24h)

	// portfolio totals are the sum over positions
	require.True(t, rep.TotalValue.Equal(decimal.NewFromInt(400)))
	requireDecimal(t, 375, rep.PrevTotalValue)
	requireDecimal(t, 25, rep.TotalChange)
	require.NotNil(t, rep.TotalChangePct)

	// mark-to-market: current holdings at baseline prices
	requireDecimal(t, 350, rep.MTMTotalValue24h)
	requireDecimal(t, 50, rep.MTMTotalChange24h)
	require.NotNil(t, rep.MTMTotalChangePct24h)

	require.Equal(t, "3 min ago", rep.BalancesUpdated)
	require.Equal(t, "4 min ago", rep.PricesUpdated)
}

func TestBuildMissingBalanceSkipsAsset(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	store := newStore(t)

	insertPrice(t, store, now.Add(-24*time.Hour), "btc", 100)
	insertPrice(t, store, now.Add(-5*time.Minute), "btc", 110)
	insertBalance(t, store, now.Add(-time.Minute), "btc", 1)
	// sol has a price but no balance
	insertPrice(t, store, now.Add(-5*time.Minute), "sol", 10)

	builder := NewBuilder(zap.NewNop(), store, Config{})
	rep, err := builder.Build(context.Background(), account, []string{"btc", "sol"}, currency, now)
	require.NoError(t, err)

	require.Equal(t, []string{"sol"}, rep.MissingBalances)
	require.Len(t, rep.Positions, 1)
	require.True(t, rep.TotalValue.Equal(decimal.NewFromInt(110)))

	// the skipped asset does not null the portfolio aggregates
	require.NotNil(t, rep.PrevTotalValue)
	require.NotNil(t, rep.MTMTotalValue24h)
}

func TestBuildMissingPriceSkipsAsset(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	store := newStore(t)

	insertPrice(t, store, now.Add(-24*time.Hour), "btc", 100)
	insertPrice(t, store, now.Add(-5*time.Minute), "btc", 110)
	insertBalance(t, store, now.Add(-time.Minute), "btc", 1)
	// eth has a balance but no price rows at all
	insertBalance(t, store, now.Add(-time.Minute), "eth", 5)

	builder := NewBuilder(zap.NewNop(), store, Config{})
	rep, err := builder.Build(context.Background(), account, []string{"btc", "eth"}, currency, now)
	require.NoError(t, err)

	require.Equal(t, []string{"eth"}, rep.MissingPrices)
	require.Empty(t, rep.MissingBalances)
	require.Len(t, rep.Positions, 1)
	require.True(t, rep.TotalValue.Equal(decimal.NewFromInt(110)))
	require.NotNil(t, rep.PrevTotalValue)
}

func TestBuildStalePriceNullsDayFields(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	store := newStore(t)

	// baseline valid, prev present, but the current price is 11 min old
	insertPrice(t, store, now.Add(-24*time.Hour), "btc", 100)
	insertPrice(t, store, now.Add(-time.Hour), "btc", 105)
	insertPrice(t, store, now.Add(-11*time.Minute), "btc", 110)
	insertBalance(t, store, now.Add(-time.Minute), "btc", 2)

	builder := NewBuilder(zap.NewNop(), store, Config{})
	rep, err := builder.Build(context.Background(), account, []string{"btc"}, currency, now)
	require.NoError(t, err)

	require.Equal(t, []string{"btc"}, rep.StalePrices)
	require.Equal(t, []string{"btc"}, rep.Missing24hPrices)

	btc := rep.Positions["btc"]
	require.False(t, btc.Baseline24hValid)
	require.Nil(t, btc.Price24h)
	require.Nil(t, btc.Price24hTS)
	require.Nil(t, btc.PriceChange24h)
	require.Nil(t, btc.PriceChangePct24h)
	require.Nil(t, btc.ValueChange24h)

	// the previous-price delta survives staleness
	requireDecimal(t, 105, btc.PrevPrice)
	require.NotNil(t, rep.PrevTotalValue)

	// but the 24h aggregates are all-or-nothing
	require.Nil(t, rep.MTMTotalValue24h)
	require.Nil(t, rep.MTMTotalChange24h)
	require.Nil(t, rep.MTMTotalChangePct24h)
}

func TestBuildBaselineTolerance(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	target := now.Add(-24 * time.Hour)

	cases := []struct {
		name       string
		baselineTS time.Time
		valid      bool
	}{
		{"exactly at target", target, true},
		{"at tolerance bound", target.Add(-30 * time.Hour), true},
		{"beyond tolerance", target.Add(-30*time.Hour - time.Second), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newStore(t)
			insertPrice(t, store, tc.baselineTS, "btc", 100)
			insertPrice(t, store, now.Add(-5*time.Minute), "btc", 110)
			insertBalance(t, store, now.Add(-time.Minute), "btc", 1)

			builder := NewBuilder(zap.NewNop(), store, Config{})
			rep, err := builder.Build(context.Background(), account, []string{"btc"}, currency, now)
			require.NoError(t, err)

			btc := rep.Positions["btc"]
			if tc.valid {
				require.True(t, btc.Baseline24hValid)
				require.Empty(t, rep.Missing24hPrices)
			} else {
				require.False(t, btc.Baseline24hValid)
				require.Equal(t, []string{"btc"}, rep.Missing24hPrices)
				require.Nil(t, rep.MTMTotalValue24h)
			}
		})
	}
}

func TestBuildNoBaselineRow(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	store := newStore(t)

	// the only rows are after the 24h target, so the as-of join finds a
	// baseline newer than the target, which is unusable
	insertPrice(t, store, now.Add(-time.Hour), "btc", 105)
	insertPrice(t, store, now.Add(-5*time.Minute), "btc", 110)
	insertBalance(t, store, now.Add(-time.Minute), "btc", 1)

	builder := NewBuilder(zap.NewNop(), store, Config{})
	rep, err := builder.Build(context.Background(), account, []string{"btc"}, currency, now)
	require.NoError(t, err)

	require.False(t, rep.Positions["btc"].Baseline24hValid)
	require.Equal(t, []string{"btc"}, rep.Missing24hPrices)
}

func TestBuildSinglePriceRowNullsPrevAggregates(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	store := newStore(t)

	insertPrice(t, store, now.Add(-5*time.Minute), "btc", 110)
	insertBalance(t, store, now.Add(-time.Minute), "btc", 1)

	builder := NewBuilder(zap.NewNop(), store, Config{})
	rep, err := builder.Build(context.Background(), account, []string{"btc"}, currency, now)
	require.NoError(t, err)

	btc := rep.Positions["btc"]
	require.Nil(t, btc.PrevPrice)
	require.Nil(t, btc.PriceChange)
	require.Nil(t, btc.PriceChangePct)

	require.Nil(t, rep.PrevTotalValue)
	require.Nil(t, rep.TotalChange)
	require.Nil(t, rep.TotalChangePct)
}

func TestBuildZeroPrevPrice(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	store := newStore(t)

	insertPrice(t, store, now.Add(-time.Hour), "btc", 0)
	insertPrice(t, store, now.Add(-5*time.Minute), "btc", 110)
	insertBalance(t, store, now.Add(-time.Minute), "btc", 2)

	builder := NewBuilder(zap.NewNop(), store, Config{})
	rep, err := builder.Build(context.Background(), account, []string{"btc"}, currency, now)
	require.NoError(t, err)

	// the delta is computable, the percentage is not
	btc := rep.Positions["btc"]
	requireDecimal(t, 0, btc.PrevPrice)
	requireDecimal(t, 110, btc.PriceChange)
	requireDecimal(t, 220, btc.ValueChange)
	require.Nil(t, btc.PriceChangePct)

	// an uncomputable percentage nulls the portfolio prev aggregates
	require.Nil(t, rep.PrevTotalValue)
	require.Nil(t, rep.TotalChangePct)
}

func TestBuildEmptyStore(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)

	builder := NewBuilder(zap.NewNop(), newStore(t), Config{})
	rep, err := builder.Build(context.Background(), account, []string{"btc", "eth"}, currency, now)
	require.NoError(t, err)

	require.Equal(t, []string{"btc", "eth"}, rep.MissingBalances)
	require.Empty(t, rep.Positions)
	require.True(t, rep.TotalValue.IsZero())
	require.Equal(t, "unknown", rep.BalancesUpdated)
	require.Equal(t, "unknown", rep.PricesUpdated)
}

func TestHumanAge(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		age  time.Duration
		want string
	}{
		{-time.Minute, "in the future"},
		{5 * time.Second, "just now"},
		{42 * time.Second, "42s ago"},
		{5 * time.Minute, "5 min ago"},
		{3 * time.Hour, "3h ago"},
		{52 * time.Hour, "2d 4h ago"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, humanAge(now.Add(-tc.age), now))
	}
}
