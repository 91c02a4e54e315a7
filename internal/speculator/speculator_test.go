package speculator

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/sand/nicehash-speculator/internal/domain"
	"github.com/sand/nicehash-speculator/internal/rule"
	"github.com/sand/nicehash-speculator/internal/trade"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	stamps   []domain.Stamp
	prices   []domain.Price
	balances []domain.Balance
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

func (f *fakeStore) ListOrderbooksAtOrAfter(ctx context.Context, stampID domain.StampID) ([]domain.OrderbookRow, error) {
	return nil, nil
}

func (f *fakeStore) ListBalancesAt(ctx context.Context, stampID domain.StampID) ([]domain.Balance, error) {
	return f.balances, nil
}

type fakeSimStore struct {
	balances []domain.Balance
	inserted []domain.Balance
}

func (f *fakeSimStore) ListBalancesAt(ctx context.Context, stampID domain.StampID) ([]domain.Balance, error) {
	return f.balances, nil
}

func (f *fakeSimStore) InsertBalance(ctx context.Context, balance domain.Balance) (domain.BalanceID, error) {
	f.inserted = append(f.inserted, balance)
	return domain.BalanceID(len(f.inserted)), nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testMarket() domain.Market {
	return domain.Market{ID: 1, BaseCurrencyID: 10, QuoteCurrencyID: 20}
}

func testTradeParameter() trade.TradeParameter {
	return trade.TradeParameter{
		BuyTrigger:        0.1,
		SellTrigger:       -0.1,
		BuyQuantityRatio:  1,
		SellQuantityRatio: 1,
		MarketRatio:       1,
		LimitRatio:        0,
	}
}

// TestRunOnce_EmptySimStoreBootstrapsFromMainBalancesAndStops covers
// spec §4.6 step 1: the first cycle against a fresh simulation store
// copies the main store's latest balances and stops, applying no trade
// in that same cycle.
func TestRunOnce_EmptySimStoreBootstrapsFromMainBalancesAndStops(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	store := &fakeStore{
		stamps: []domain.Stamp{{ID: 1, Instant: base}},
		prices: []domain.Price{{MarketID: 1, StampID: 1, Amount: 100}},
		balances: []domain.Balance{
			{ID: 1, CurrencyID: 10, StampID: 1, Available: 0, Pending: 0},
			{ID: 2, CurrencyID: 20, StampID: 1, Available: 1000, Pending: 0},
		},
	}
	simStore := &fakeSimStore{}

	market := testMarket()
	fixedBuy := rule.NewFixedRule(market, domain.Buy)
	rulesByMarket := map[domain.MarketID][]rule.WeightedRule{
		market.ID: {{Rule: fixedBuy, Weight: 1}},
	}

	s := New(testLogger(), store, simStore, 0.001)
	err := s.RunOnce(context.Background(), rulesByMarket, testTradeParameter())
	require.NoError(t, err)

	require.Len(t, simStore.inserted, len(store.balances), "bootstrap should copy exactly the main store's latest balances")
	byCurrency := make(map[domain.CurrencyID]domain.Balance, len(simStore.inserted))
	for _, b := range simStore.inserted {
		byCurrency[b.CurrencyID] = b
		assert.Equal(t, domain.StampID(1), b.StampID)
	}
	assert.Equal(t, 0.0, byCurrency[10].Available)
	assert.Equal(t, 1000.0, byCurrency[20].Available)
}

// TestRunOnce_NonEmptySimStoreAppliesFixedBuyRule covers the steady
// state: once the simulation store already has balances at the latest
// stamp, RunOnce runs the aggregation/simulator pipeline directly
// instead of bootstrapping again.
func TestRunOnce_NonEmptySimStoreAppliesFixedBuyRule(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	store := &fakeStore{
		stamps: []domain.Stamp{{ID: 1, Instant: base}},
		prices: []domain.Price{{MarketID: 1, StampID: 1, Amount: 100}},
	}
	simStore := &fakeSimStore{
		balances: []domain.Balance{
			{ID: 1, CurrencyID: 10, StampID: 1, Available: 0, Pending: 0},
			{ID: 2, CurrencyID: 20, StampID: 1, Available: 1000, Pending: 0},
		},
	}

	market := testMarket()
	fixedBuy := rule.NewFixedRule(market, domain.Buy)
	rulesByMarket := map[domain.MarketID][]rule.WeightedRule{
		market.ID: {{Rule: fixedBuy, Weight: 1}},
	}

	s := New(testLogger(), store, simStore, 0.001)
	err := s.RunOnce(context.Background(), rulesByMarket, testTradeParameter())
	require.NoError(t, err)

	assert.NotEmpty(t, simStore.inserted, "applying the fixed-buy rule should persist at least one updated balance")
}

func TestRunOnce_NoStampsIsNoOp(t *testing.T) {
	store := &fakeStore{}
	simStore := &fakeSimStore{}

	s := New(testLogger(), store, simStore, 0.001)
	err := s.RunOnce(context.Background(), nil, trade.TradeParameter{})
	require.NoError(t, err)
	assert.Empty(t, simStore.inserted)
}
