// Package scraper drives one cycle of the ExchangeClient → Store data
// flow: it stamps the moment, then walks the currency, balance, market,
// orderbook and personal-order phases, each independently toggleable and
// each logged at its own result boundary so that one failing phase never
// blocks the others.
package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sand/nicehash-speculator/config"
	"github.com/sand/nicehash-speculator/internal/domain"
	"github.com/sand/nicehash-speculator/internal/exchange"
)

// Client is the subset of exchange.Client operations the scraper drives.
type Client interface {
	ServerTime(ctx context.Context) (time.Time, error)
	ListCurrencies(ctx context.Context) ([]exchange.CurrencyInfo, error)
	ListBalances(ctx context.Context) ([]exchange.BalanceInfo, error)
	ListMarketPrices(ctx context.Context, knownSymbols []string) ([]exchange.MarketPrice, error)
	ListOrderbook(ctx context.Context, base, quote string, count int) ([]exchange.OrderbookLevel, error)
	ListMyOrders(ctx context.Context, base, quote string, count int) ([]exchange.MyOrderInfo, error)
}

// Store is the subset of internal/store.Store operations the scraper
// drives.
type Store interface {
	InsertStamp(ctx context.Context, instant time.Time) (domain.StampID, error)
	ListCurrencies(ctx context.Context) ([]domain.Currency, error)
	InsertCurrency(ctx context.Context, symbol, name string) (domain.CurrencyID, error)
	ListMarkets(ctx context.Context) ([]domain.Market, error)
	InsertMarket(ctx context.Context, base, quote domain.CurrencyID) (domain.MarketID, error)
	InsertPrice(ctx context.Context, marketID domain.MarketID, stampID domain.StampID, amount float64) (domain.PriceID, error)
	InsertOrderbook(ctx context.Context, row domain.OrderbookRow) (domain.OrderbookRowID, error)
	InsertOrUpdateMyOrder(ctx context.Context, order domain.MyOrder) (domain.MyOrderID, error)
	InsertBalance(ctx context.Context, balance domain.Balance) (domain.BalanceID, error)
}

// Scraper runs one fetch-and-persist cycle against Store and Client.
type Scraper struct {
	logger *slog.Logger
	store  Store
	client Client
	fetch  config.Fetch
}

// New builds a Scraper.
func New(logger *slog.Logger, store Store, client Client, fetch config.Fetch) *Scraper {
	return &Scraper{logger: logger, store: store, client: client, fetch: fetch}
}

// RunOnce executes exactly one scrape cycle: read the exchange's server
// time and insert a stamp at that instant, then the
// currency, balance, market/price, orderbook and myorder phases in that
// order, per the original scraper's phase sequence. A phase whose fetch
// flag is off is skipped entirely; a phase whose fetch call fails is
// logged and skipped, letting the remaining phases still run.
func (s *Scraper) RunOnce(ctx context.Context) error {
	now, err := s.client.ServerTime(ctx)
	if err != nil {
		return fmt.Errorf("scraper: server time: %w", err)
	}
	now = now.UTC()
	stampID, err := s.store.InsertStamp(ctx, now)
	if err != nil {
		return fmt.Errorf("scraper: insert stamp: %w", err)
	}
	s.logger.InfoContext(ctx, "scrape cycle started", "stamp_id", stampID, "instant", now)

	if s.fetch.CurrencyFromRemote {
		s.scrapeCurrencies(ctx)
	}

	currencies, err := s.store.ListCurrencies(ctx)
	if err != nil {
		return fmt.Errorf("scraper: list currencies: %w", err)
	}
	bySymbol := indexCurrenciesBySymbol(currencies)

	if s.fetch.BalanceFromRemote {
		s.scrapeBalances(ctx, stampID, bySymbol)
	}

	if s.fetch.MarketFromRemote {
		s.scrapeMarketsAndPrices(ctx, stampID, bySymbol)
	}

	markets, err := s.store.ListMarkets(ctx)
	if err != nil {
		return fmt.Errorf("scraper: list markets: %w", err)
	}
	byBaseQuote := indexMarketsByBaseQuote(markets)

	if s.fetch.OrderbookFromRemote {
		s.scrapeOrderbooks(ctx, stampID, bySymbol, byBaseQuote)
	}

	if s.fetch.MyOrderFromRemote {
		s.scrapeMyOrders(ctx, stampID, bySymbol, byBaseQuote)
	}

	s.logger.InfoContext(ctx, "scrape cycle finished", "stamp_id", stampID)
	return nil
}

func (s *Scraper) scrapeCurrencies(ctx context.Context) {
	currencies, err := s.client.ListCurrencies(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "can't fetch currencies", "error", err)
		return
	}
	for _, c := range currencies {
		if _, err := s.store.InsertCurrency(ctx, c.Symbol, c.Name); err != nil {
			s.logger.WarnContext(ctx, "can't add currency", "symbol", c.Symbol, "error", err)
		}
	}
}

func (s *Scraper) scrapeBalances(ctx context.Context, stampID domain.StampID, bySymbol map[string]domain.Currency) {
	balances, err := s.client.ListBalances(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "can't fetch balances", "error", err)
		return
	}
	for _, b := range balances {
		currency, ok := bySymbol[b.Symbol]
		if !ok {
			continue
		}
		balance := domain.Balance{
			CurrencyID: currency.ID,
			StampID:    stampID,
			Available:  b.Available,
			Pending:    b.Pending,
		}
		if _, err := s.store.InsertBalance(ctx, balance); err != nil {
			s.logger.WarnContext(ctx, "can't add balance", "symbol", b.Symbol, "error", err)
		}
	}
}

func (s *Scraper) scrapeMarketsAndPrices(ctx context.Context, stampID domain.StampID, bySymbol map[string]domain.Currency) {
	knownSymbols := make([]string, 0, len(bySymbol))
	for symbol := range bySymbol {
		knownSymbols = append(knownSymbols, symbol)
	}

	prices, err := s.client.ListMarketPrices(ctx, knownSymbols)
	if err != nil {
		s.logger.WarnContext(ctx, "can't fetch markets and prices", "error", err)
		return
	}

	markets, err := s.store.ListMarkets(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "can't list markets", "error", err)
		return
	}
	byBaseQuote := indexMarketsByBaseQuote(markets)

	for _, mp := range prices {
		base, baseOK := bySymbol[mp.Base]
		quote, quoteOK := bySymbol[mp.Quote]
		if !baseOK || !quoteOK {
			continue
		}

		market, ok := byBaseQuote[marketKey{base.ID, quote.ID}]
		if !ok {
			id, err := s.store.InsertMarket(ctx, base.ID, quote.ID)
			if err != nil {
				s.logger.WarnContext(ctx, "can't add market", "base", mp.Base, "quote", mp.Quote, "error", err)
				continue
			}
			market = domain.Market{ID: id, BaseCurrencyID: base.ID, QuoteCurrencyID: quote.ID}
			byBaseQuote[marketKey{base.ID, quote.ID}] = market
		}

		if _, err := s.store.InsertPrice(ctx, market.ID, stampID, mp.Price); err != nil {
			s.logger.WarnContext(ctx, "can't add price", "market_id", market.ID, "error", err)
		}
	}
}

func (s *Scraper) scrapeOrderbooks(ctx context.Context, stampID domain.StampID, bySymbol map[string]domain.Currency, byBaseQuote map[marketKey]domain.Market) {
	if s.fetch.OrderbookFetchCountPerMarket <= 0 {
		return
	}
	targets := resolveTargetMarkets(s.fetch.OrderbookTargetMarkets, bySymbol, byBaseQuote)
	for _, target := range targets {
		levels, err := s.client.ListOrderbook(ctx, target.baseSymbol, target.quoteSymbol, s.fetch.OrderbookFetchCountPerMarket)
		if err != nil {
			s.logger.WarnContext(ctx, "can't fetch orderbook", "market_id", target.market.ID, "error", err)
			continue
		}
		for _, level := range levels {
			side, err := exchange.ParseSide(level.Side)
			if err != nil {
				s.logger.WarnContext(ctx, "can't parse orderbook side", "error", err)
				continue
			}
			row := domain.OrderbookRow{
				MarketID: target.market.ID,
				StampID:  stampID,
				Side:     side,
				Price:    level.Price,
				Volume:   level.Volume,
			}
			if _, err := s.store.InsertOrderbook(ctx, row); err != nil {
				s.logger.WarnContext(ctx, "can't add orderbook row", "market_id", target.market.ID, "error", err)
			}
		}
	}
}

func (s *Scraper) scrapeMyOrders(ctx context.Context, stampID domain.StampID, bySymbol map[string]domain.Currency, byBaseQuote map[marketKey]domain.Market) {
	if s.fetch.MyOrderFetchCountPerMarket <= 0 {
		return
	}
	targets := resolveTargetMarkets(s.fetch.MyOrderTargetMarkets, bySymbol, byBaseQuote)
	for _, target := range targets {
		orders, err := s.client.ListMyOrders(ctx, target.baseSymbol, target.quoteSymbol, s.fetch.MyOrderFetchCountPerMarket)
		if err != nil {
			s.logger.WarnContext(ctx, "can't fetch myorders", "market_id", target.market.ID, "error", err)
			continue
		}
		for _, o := range orders {
			orderType, err := exchange.ParseOrderType(o.OrderType)
			if err != nil {
				s.logger.WarnContext(ctx, "can't parse myorder type", "transaction_id", o.TransactionID, "error", err)
				continue
			}
			side, err := exchange.ParseSide(o.Side)
			if err != nil {
				s.logger.WarnContext(ctx, "can't parse myorder side", "transaction_id", o.TransactionID, "error", err)
				continue
			}
			state, err := exchange.ParseOrderState(o.State)
			if err != nil {
				s.logger.WarnContext(ctx, "can't parse myorder state", "transaction_id", o.TransactionID, "error", err)
				continue
			}
			order := domain.MyOrder{
				TransactionID:   o.TransactionID,
				MarketID:        target.market.ID,
				CreatedStampID:  stampID,
				ModifiedStampID: stampID,
				Price:           o.Price,
				BaseQuantity:    o.BaseQuantity,
				QuoteQuantity:   o.QuoteQuantity,
				OrderType:       orderType,
				Side:            side,
				State:           state,
			}
			if _, err := s.store.InsertOrUpdateMyOrder(ctx, order); err != nil {
				s.logger.WarnContext(ctx, "can't add or update myorder", "transaction_id", o.TransactionID, "error", err)
			}
		}
	}
}

type marketKey struct {
	base, quote domain.CurrencyID
}

func indexCurrenciesBySymbol(currencies []domain.Currency) map[string]domain.Currency {
	out := make(map[string]domain.Currency, len(currencies))
	for _, c := range currencies {
		out[c.Symbol] = c
	}
	return out
}

func indexMarketsByBaseQuote(markets []domain.Market) map[marketKey]domain.Market {
	out := make(map[marketKey]domain.Market, len(markets))
	for _, m := range markets {
		out[marketKey{m.BaseCurrencyID, m.QuoteCurrencyID}] = m
	}
	return out
}

type resolvedMarket struct {
	baseSymbol, quoteSymbol string
	market                  domain.Market
}

// resolveTargetMarkets parses a "BASE-QUOTE:BASE-QUOTE:..." configuration
// string into the markets it names, dropping any pair whose currencies or
// market are not yet known locally.
func resolveTargetMarkets(joined string, bySymbol map[string]domain.Currency, byBaseQuote map[marketKey]domain.Market) []resolvedMarket {
	var out []resolvedMarket
	for _, pair := range strings.Split(joined, ":") {
		if pair == "" {
			continue
		}
		base, quote, ok := strings.Cut(pair, "-")
		if !ok {
			continue
		}
		baseCurrency, baseOK := bySymbol[base]
		quoteCurrency, quoteOK := bySymbol[quote]
		if !baseOK || !quoteOK {
			continue
		}
		market, ok := byBaseQuote[marketKey{baseCurrency.ID, quoteCurrency.ID}]
		if !ok {
			continue
		}
		out = append(out, resolvedMarket{baseSymbol: base, quoteSymbol: quote, market: market})
	}
	return out
}
