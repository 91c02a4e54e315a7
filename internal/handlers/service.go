// Package handlers exposes the scraper/speculator pipeline's data over
// HTTP and WebSocket, grounded on the teacher's api_handlers.go /
// websocket_handlers.go split: one handler type registers the JSON REST
// routes, the other upgrades and fans out live price updates.
package handlers

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sand/nicehash-speculator/internal/domain"
	"github.com/sand/nicehash-speculator/internal/indicator"
	"github.com/sand/nicehash-speculator/internal/rategraph"
)

// Store is the subset of internal/store.Store the dashboard reads.
type Store interface {
	ListCurrencies(ctx context.Context) ([]domain.Currency, error)
	ListMarkets(ctx context.Context) ([]domain.Market, error)
	GetMaxStampID(ctx context.Context) (domain.StampID, error)
	GetStampByID(ctx context.Context, id domain.StampID) (domain.Stamp, error)
	ListPricesAtOrAfter(ctx context.Context, stampID domain.StampID) ([]domain.Price, error)
}

// DashboardService answers every read query the HTTP/WebSocket handlers
// serve, computed directly from Store, with no caching layer: the
// scraper/speculator cadence is slow enough (minutes) that recomputing on
// each request is cheap.
type DashboardService struct {
	store Store
}

// NewDashboardService builds a DashboardService.
func NewDashboardService(store Store) *DashboardService {
	return &DashboardService{store: store}
}

// MarketSummary is one row of the markets list.
type MarketSummary struct {
	MarketID    domain.MarketID `json:"marketId"`
	BaseSymbol  string          `json:"baseSymbol"`
	QuoteSymbol string          `json:"quoteSymbol"`
}

// ListMarkets returns every known market, symbol-resolved for display.
func (s *DashboardService) ListMarkets(ctx context.Context) ([]MarketSummary, error) {
	currencies, err := s.store.ListCurrencies(ctx)
	if err != nil {
		return nil, fmt.Errorf("handlers: list currencies: %w", err)
	}
	byID := make(map[domain.CurrencyID]domain.Currency, len(currencies))
	for _, c := range currencies {
		byID[c.ID] = c
	}

	markets, err := s.store.ListMarkets(ctx)
	if err != nil {
		return nil, fmt.Errorf("handlers: list markets: %w", err)
	}

	out := make([]MarketSummary, 0, len(markets))
	for _, m := range markets {
		out = append(out, MarketSummary{
			MarketID:    m.ID,
			BaseSymbol:  byID[m.BaseCurrencyID].Symbol,
			QuoteSymbol: byID[m.QuoteCurrencyID].Symbol,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MarketID < out[j].MarketID })
	return out, nil
}

// CandlestickPoint is one OHLC bucket, JSON-friendly.
type CandlestickPoint struct {
	OpenInstant  time.Time `json:"openInstant"`
	CloseInstant time.Time `json:"closeInstant"`
	Open         float64   `json:"open"`
	High         float64   `json:"high"`
	Low          float64   `json:"low"`
	Close        float64   `json:"close"`
}

// Candlesticks buckets every stored Price for marketID into candlesticks
// of the given interval, replaying the whole history kept by the store.
// The bucket holding the newest price is included even though it is still
// open.
func (s *DashboardService) Candlesticks(ctx context.Context, marketID domain.MarketID, interval time.Duration) ([]CandlestickPoint, error) {
	prices, err := s.store.ListPricesAtOrAfter(ctx, 1)
	if err != nil {
		return nil, fmt.Errorf("handlers: list prices: %w", err)
	}
	sort.Slice(prices, func(i, j int) bool { return prices[i].StampID < prices[j].StampID })

	history, err := indicator.NewCandlestickHistory(interval)
	if err != nil {
		return nil, fmt.Errorf("handlers: new candlestick history: %w", err)
	}

	stampInstants := make(map[domain.StampID]time.Time)
	var lastInstant time.Time
	fed := false
	for _, p := range prices {
		if p.MarketID != marketID {
			continue
		}
		instant, ok := stampInstants[p.StampID]
		if !ok {
			stamp, err := s.store.GetStampByID(ctx, p.StampID)
			if err != nil {
				continue
			}
			instant = stamp.Instant
			stampInstants[p.StampID] = instant
		}
		if _, err := history.Update(indicator.PriceStamp{Instant: instant, Price: p.Amount}); err != nil {
			continue
		}
		lastInstant = instant
		fed = true
	}
	// history only reports closed buckets; a probe one interval past the
	// last price closes the final bucket so it is reported too.
	if fed {
		if _, err := history.Update(indicator.PriceStamp{Instant: lastInstant.Add(interval)}); err != nil {
			return nil, fmt.Errorf("handlers: close final candlestick: %w", err)
		}
	}

	sticks := history.Candlesticks()
	out := make([]CandlestickPoint, 0, len(sticks))
	for _, c := range sticks {
		out = append(out, CandlestickPoint{
			OpenInstant:  c.Open.Instant,
			CloseInstant: c.Close.Instant,
			Open:         c.Open.Price,
			High:         c.High.Price,
			Low:          c.Low.Price,
			Close:        c.Close.Price,
		})
	}
	return out, nil
}

// ExchangeRatePoint is one computed cross-rate, for the dashboard's
// currency-conversion widget.
type ExchangeRatePoint struct {
	Base  domain.CurrencyID `json:"base"`
	Quote domain.CurrencyID `json:"quote"`
	Rate  float64           `json:"rate"`
	Found bool              `json:"found"`
}

// ExchangeRates computes RateBetween for every requested pair in
// parallel, since the dashboard may ask for many points of the same
// graph at once and each DFS lookup is independent CPU work. This is the
// one place SPEC_FULL.md calls out for concurrency beyond the otherwise
// single-threaded batch pipeline.
func (s *DashboardService) ExchangeRates(ctx context.Context, graph *rategraph.Graph, pairs []ExchangeRatePoint) ([]ExchangeRatePoint, error) {
	out := make([]ExchangeRatePoint, len(pairs))
	copy(out, pairs)

	g, _ := errgroup.WithContext(ctx)
	for i := range out {
		i := i
		g.Go(func() error {
			rate, found := graph.RateBetween(out[i].Base, out[i].Quote)
			out[i].Rate = rate
			out[i].Found = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
