package scraper

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/sand/nicehash-speculator/config"
	"github.com/sand/nicehash-speculator/internal/domain"
	"github.com/sand/nicehash-speculator/internal/exchange"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	currencies []domain.Currency
	markets    []domain.Market
	balances   []domain.Balance
	prices     []domain.Price
	orderbooks []domain.OrderbookRow
	myOrders   []domain.MyOrder

	nextCurrencyID domain.CurrencyID
	nextMarketID   domain.MarketID
	nextStampID    domain.StampID
}

func (f *fakeStore) InsertStamp(ctx context.Context, instant time.Time) (domain.StampID, error) {
	f.nextStampID++
	return f.nextStampID, nil
}

func (f *fakeStore) ListCurrencies(ctx context.Context) ([]domain.Currency, error) {
	return f.currencies, nil
}

func (f *fakeStore) InsertCurrency(ctx context.Context, symbol, name string) (domain.CurrencyID, error) {
	for _, c := range f.currencies {
		if c.Symbol == symbol {
			return c.ID, nil
		}
	}
	f.nextCurrencyID++
	c := domain.Currency{ID: f.nextCurrencyID, Symbol: symbol, Name: name}
	f.currencies = append(f.currencies, c)
	return c.ID, nil
}

func (f *fakeStore) ListMarkets(ctx context.Context) ([]domain.Market, error) {
	return f.markets, nil
}

func (f *fakeStore) InsertMarket(ctx context.Context, base, quote domain.CurrencyID) (domain.MarketID, error) {
	for _, m := range f.markets {
		if m.BaseCurrencyID == base && m.QuoteCurrencyID == quote {
			return m.ID, nil
		}
	}
	f.nextMarketID++
	m := domain.Market{ID: f.nextMarketID, BaseCurrencyID: base, QuoteCurrencyID: quote}
	f.markets = append(f.markets, m)
	return m.ID, nil
}

func (f *fakeStore) InsertPrice(ctx context.Context, marketID domain.MarketID, stampID domain.StampID, amount float64) (domain.PriceID, error) {
	f.prices = append(f.prices, domain.Price{MarketID: marketID, StampID: stampID, Amount: amount})
	return domain.PriceID(len(f.prices)), nil
}

func (f *fakeStore) InsertOrderbook(ctx context.Context, row domain.OrderbookRow) (domain.OrderbookRowID, error) {
	f.orderbooks = append(f.orderbooks, row)
	return domain.OrderbookRowID(len(f.orderbooks)), nil
}

func (f *fakeStore) InsertOrUpdateMyOrder(ctx context.Context, order domain.MyOrder) (domain.MyOrderID, error) {
	for i, existing := range f.myOrders {
		if existing.TransactionID == order.TransactionID {
			f.myOrders[i] = order
			return existing.ID, nil
		}
	}
	order.ID = domain.MyOrderID(len(f.myOrders) + 1)
	f.myOrders = append(f.myOrders, order)
	return order.ID, nil
}

func (f *fakeStore) InsertBalance(ctx context.Context, balance domain.Balance) (domain.BalanceID, error) {
	f.balances = append(f.balances, balance)
	return domain.BalanceID(len(f.balances)), nil
}

type fakeClient struct {
	currencies []exchange.CurrencyInfo
	balances   []exchange.BalanceInfo
	prices     []exchange.MarketPrice
	orderbook  []exchange.OrderbookLevel
	myOrders   []exchange.MyOrderInfo

	balancesErr error
}

func (f *fakeClient) ServerTime(ctx context.Context) (time.Time, error) { return time.Now(), nil }
func (f *fakeClient) ListCurrencies(ctx context.Context) ([]exchange.CurrencyInfo, error) {
	return f.currencies, nil
}
func (f *fakeClient) ListBalances(ctx context.Context) ([]exchange.BalanceInfo, error) {
	return f.balances, f.balancesErr
}
func (f *fakeClient) ListMarketPrices(ctx context.Context, knownSymbols []string) ([]exchange.MarketPrice, error) {
	return f.prices, nil
}
func (f *fakeClient) ListOrderbook(ctx context.Context, base, quote string, count int) ([]exchange.OrderbookLevel, error) {
	return f.orderbook, nil
}
func (f *fakeClient) ListMyOrders(ctx context.Context, base, quote string, count int) ([]exchange.MyOrderInfo, error) {
	return f.myOrders, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunOnce_FullCycleAddsCurrenciesBalancesMarketsPricesAndOrderbook(t *testing.T) {
	store := &fakeStore{}
	client := &fakeClient{
		currencies: []exchange.CurrencyInfo{{Symbol: "BTC", Name: "Bitcoin"}, {Symbol: "USDT", Name: "Tether"}},
		balances:   []exchange.BalanceInfo{{Symbol: "BTC", Available: 1.5, Pending: 0}},
		prices:     []exchange.MarketPrice{{Base: "BTC", Quote: "USDT", Price: 65000}},
		orderbook:  []exchange.OrderbookLevel{{Side: "BUY", Price: 64900, Volume: 0.1}},
	}
	fetch := config.Fetch{
		CurrencyFromRemote:           true,
		BalanceFromRemote:            true,
		MarketFromRemote:             true,
		OrderbookFromRemote:          true,
		OrderbookFetchCountPerMarket: 10,
		OrderbookTargetMarkets:       "BTC-USDT",
	}

	s := New(testLogger(), store, client, fetch)
	err := s.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Len(t, store.currencies, 2)
	assert.Len(t, store.balances, 1)
	assert.Len(t, store.markets, 1)
	assert.Len(t, store.prices, 1)
	assert.Len(t, store.orderbooks, 1)
}

func TestRunOnce_SkipsPhasesWithFetchFlagOff(t *testing.T) {
	store := &fakeStore{
		currencies: []domain.Currency{{ID: 1, Symbol: "BTC", Name: "Bitcoin"}},
	}
	client := &fakeClient{
		currencies: []exchange.CurrencyInfo{{Symbol: "ETH", Name: "Ethereum"}},
	}
	fetch := config.Fetch{}

	s := New(testLogger(), store, client, fetch)
	err := s.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Len(t, store.currencies, 1, "currency fetch was off, nothing should be added")
}

func TestRunOnce_FailedBalanceFetchDoesNotBlockOtherPhases(t *testing.T) {
	store := &fakeStore{
		currencies: []domain.Currency{{ID: 1, Symbol: "BTC", Name: "Bitcoin"}, {ID: 2, Symbol: "USDT", Name: "Tether"}},
	}
	client := &fakeClient{
		balancesErr: errors.New("network error"),
		prices:      []exchange.MarketPrice{{Base: "BTC", Quote: "USDT", Price: 65000}},
	}
	fetch := config.Fetch{BalanceFromRemote: true, MarketFromRemote: true}

	s := New(testLogger(), store, client, fetch)
	err := s.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Empty(t, store.balances)
	assert.Len(t, store.prices, 1)
}

func TestResolveTargetMarkets_SkipsUnknownCurrenciesAndMarkets(t *testing.T) {
	bySymbol := map[string]domain.Currency{
		"BTC":  {ID: 1, Symbol: "BTC"},
		"USDT": {ID: 2, Symbol: "USDT"},
	}
	byBaseQuote := map[marketKey]domain.Market{
		{1, 2}: {ID: 10, BaseCurrencyID: 1, QuoteCurrencyID: 2},
	}

	targets := resolveTargetMarkets("BTC-USDT:ETH-USDT:malformed", bySymbol, byBaseQuote)
	require.Len(t, targets, 1)
	assert.Equal(t, domain.MarketID(10), targets[0].market.ID)
}
