package handlers

import (
	"context"
	"testing"
	"time"

	"github.com/sand/nicehash-speculator/internal/domain"
	"github.com/sand/nicehash-speculator/internal/rategraph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	currencies []domain.Currency
	markets    []domain.Market
	stamps     []domain.Stamp
	prices     []domain.Price
}

func (f *fakeStore) ListCurrencies(ctx context.Context) ([]domain.Currency, error) {
	return f.currencies, nil
}

func (f *fakeStore) ListMarkets(ctx context.Context) ([]domain.Market, error) {
	return f.markets, nil
}

func (f *fakeStore) GetMaxStampID(ctx context.Context) (domain.StampID, error) {
	if len(f.stamps) == 0 {
		return 0, nil
	}
	return f.stamps[len(f.stamps)-1].ID, nil
}

func (f *fakeStore) GetStampByID(ctx context.Context, id domain.StampID) (domain.Stamp, error) {
	for _, s := range f.stamps {
		if s.ID == id {
			return s, nil
		}
	}
	return domain.Stamp{}, assert.AnError
}

func (f *fakeStore) ListPricesAtOrAfter(ctx context.Context, stampID domain.StampID) ([]domain.Price, error) {
	var out []domain.Price
	for _, p := range f.prices {
		if p.StampID >= stampID {
			out = append(out, p)
		}
	}
	return out, nil
}

func testStore() *fakeStore {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return &fakeStore{
		currencies: []domain.Currency{
			{ID: 1, Symbol: "BTC", Name: "Bitcoin"},
			{ID: 2, Symbol: "USDT", Name: "Tether"},
		},
		markets: []domain.Market{
			{ID: 10, BaseCurrencyID: 1, QuoteCurrencyID: 2},
		},
		stamps: []domain.Stamp{
			{ID: 1, Instant: base},
			{ID: 2, Instant: base.Add(time.Minute)},
		},
		prices: []domain.Price{
			{MarketID: 10, StampID: 1, Amount: 100},
			{MarketID: 10, StampID: 2, Amount: 110},
		},
	}
}

func TestListMarkets_ResolvesSymbols(t *testing.T) {
	svc := NewDashboardService(testStore())
	markets, err := svc.ListMarkets(context.Background())
	require.NoError(t, err)
	require.Len(t, markets, 1)
	assert.Equal(t, "BTC", markets[0].BaseSymbol)
	assert.Equal(t, "USDT", markets[0].QuoteSymbol)
}

func TestCandlesticks_BucketsStoredPrices(t *testing.T) {
	svc := NewDashboardService(testStore())
	candles, err := svc.Candlesticks(context.Background(), 10, time.Hour)
	require.NoError(t, err)
	require.Len(t, candles, 1)
	assert.Equal(t, 100.0, candles[0].Open)
	assert.Equal(t, 110.0, candles[0].Close)
}

func TestCandlesticks_IgnoresOtherMarkets(t *testing.T) {
	svc := NewDashboardService(testStore())
	candles, err := svc.Candlesticks(context.Background(), 999, time.Hour)
	require.NoError(t, err)
	assert.Empty(t, candles)
}

func TestExchangeRates_ComputesEveryRequestedPairConcurrently(t *testing.T) {
	svc := NewDashboardService(testStore())
	graph := rategraph.New([]rategraph.Rate{{Base: 1, Quote: 2, Value: 50000}})

	results, err := svc.ExchangeRates(context.Background(), graph, []ExchangeRatePoint{
		{Base: 1, Quote: 2},
		{Base: 2, Quote: 1},
		{Base: 1, Quote: 999},
	})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.True(t, results[0].Found)
	assert.Equal(t, 50000.0, results[0].Rate)
	assert.True(t, results[1].Found)
	assert.False(t, results[2].Found)
}
