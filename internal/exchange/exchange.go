// Package exchange talks to the upstream venue's REST API: it signs private
// requests per the bit-exact HMAC contract, and translates raw JSON payloads
// into the plain structs the scraper persists through internal/store.
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const defaultBaseURL = "https://api2.nicehash.com"

// Credentials carries the private-API identity. An empty APIKey disables
// private-endpoint calls; Client.ListBalances and Client.ListMyOrders return
// an error in that case rather than signing with an empty secret.
type Credentials struct {
	OrganizationID string
	APIKey         string
	APISecretKey   string
}

// Client is a thin REST client over the upstream exchange's public and
// private HTTP API. It holds no retry logic of its own; callers (the
// scraper) decide how to react to a failed call.
type Client struct {
	logger  *slog.Logger
	http    *http.Client
	baseURL string
	creds   Credentials
}

// New builds a Client. baseURL overrides the default venue host; pass ""
// to use it.
func New(logger *slog.Logger, creds Credentials, baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		logger:  logger,
		http:    &http.Client{Timeout: 10 * time.Second},
		baseURL: baseURL,
		creds:   creds,
	}
}

// CurrencyInfo is one entry of list_currencies.
type CurrencyInfo struct {
	Symbol string
	Name   string
}

// BalanceInfo is one entry of list_balances: one per currency key of the
// venue's response.
type BalanceInfo struct {
	Symbol    string
	Available float64
	Pending   float64
}

// MarketPrice is one entry of list_market_prices, after the BASEQUOTE
// market string has been split against the caller's known symbols.
type MarketPrice struct {
	Base  string
	Quote string
	Price float64
}

// OrderbookLevel is one entry of list_orderbook.
type OrderbookLevel struct {
	Side   string
	Price  float64
	Volume float64
}

// MyOrderInfo is one entry of list_myorders, still carrying the exchange's
// own state/type/side vocabulary; callers translate via states.go.
type MyOrderInfo struct {
	TransactionID string
	Price         float64
	BaseQuantity  float64
	QuoteQuantity float64
	OrderType     string
	Side          string
	State         string
}

// ServerTime returns the venue's clock, used to timestamp every stamp row
// the scraper inserts and to build signatures for private calls.
func (c *Client) ServerTime(ctx context.Context) (time.Time, error) {
	var body struct {
		ServerTime int64 `json:"serverTime"`
	}
	if err := c.doPublic(ctx, http.MethodGet, "/api/v2/time", nil, &body); err != nil {
		return time.Time{}, fmt.Errorf("exchange: server time: %w", err)
	}
	return time.UnixMilli(body.ServerTime).UTC(), nil
}

// ListCurrencies fetches the venue's full currency catalogue.
func (c *Client) ListCurrencies(ctx context.Context) ([]CurrencyInfo, error) {
	var body struct {
		Currencies []struct {
			Symbol string `json:"symbol"`
			Name   string `json:"name"`
		} `json:"currencies"`
	}
	if err := c.doPublic(ctx, http.MethodGet, "/main/api/v2/public/currencies", nil, &body); err != nil {
		return nil, fmt.Errorf("exchange: list currencies: %w", err)
	}
	out := make([]CurrencyInfo, 0, len(body.Currencies))
	for _, cur := range body.Currencies {
		out = append(out, CurrencyInfo{Symbol: cur.Symbol, Name: cur.Name})
	}
	return out, nil
}

// ListBalances fetches the account's per-currency balances, one entry per
// currency key in the response. No active-wallet filter is applied:
// inactive or deprecated wallets are returned like any other.
func (c *Client) ListBalances(ctx context.Context) ([]BalanceInfo, error) {
	var raw map[string]struct {
		Available string `json:"available"`
		Pending   string `json:"pending"`
	}
	if err := c.doPrivate(ctx, http.MethodGet, "/main/api/v2/accounting/account2", nil, &raw); err != nil {
		return nil, fmt.Errorf("exchange: list balances: %w", err)
	}
	out := make([]BalanceInfo, 0, len(raw))
	for symbol, bal := range raw {
		available, err := parseFloat(bal.Available)
		if err != nil {
			return nil, fmt.Errorf("exchange: list balances: %s available: %w", symbol, err)
		}
		pending, err := parseFloat(bal.Pending)
		if err != nil {
			return nil, fmt.Errorf("exchange: list balances: %s pending: %w", symbol, err)
		}
		out = append(out, BalanceInfo{Symbol: symbol, Available: available, Pending: pending})
	}
	return out, nil
}

// ListMarketPrices fetches current spot prices for every market the venue
// lists, splitting each concatenated BASEQUOTE market string against
// knownSymbols (longest-prefix match, since symbols vary in length and a
// market string carries no separator).
func (c *Client) ListMarketPrices(ctx context.Context, knownSymbols []string) ([]MarketPrice, error) {
	var body []struct {
		Symbol string `json:"symbol"`
		Last   string `json:"last"`
	}
	if err := c.doPublic(ctx, http.MethodGet, "/exchange/api/v2/info/prices", nil, &body); err != nil {
		return nil, fmt.Errorf("exchange: list market prices: %w", err)
	}
	out := make([]MarketPrice, 0, len(body))
	for _, row := range body {
		base, quote, ok := SplitMarketSymbol(row.Symbol, knownSymbols)
		if !ok {
			c.logger.Warn("exchange: unrecognised market symbol", "symbol", row.Symbol)
			continue
		}
		price, err := parseFloat(row.Last)
		if err != nil {
			return nil, fmt.Errorf("exchange: list market prices: %s: %w", row.Symbol, err)
		}
		out = append(out, MarketPrice{Base: base, Quote: quote, Price: price})
	}
	return out, nil
}

// ListOrderbook fetches up to count levels of each side of the order book
// for the base/quote pair.
func (c *Client) ListOrderbook(ctx context.Context, base, quote string, count int) ([]OrderbookLevel, error) {
	var body struct {
		Buy  [][2]string `json:"buy"`
		Sell [][2]string `json:"sell"`
	}
	query := url.Values{
		"market": {base + quote},
		"limit":  {fmt.Sprintf("%d", count)},
	}
	if err := c.doPublic(ctx, http.MethodGet, "/exchange/api/v2/orderbook", query, &body); err != nil {
		return nil, fmt.Errorf("exchange: list orderbook: %w", err)
	}
	out := make([]OrderbookLevel, 0, len(body.Buy)+len(body.Sell))
	for _, level := range limitRows(body.Buy, count) {
		price, volume, err := parsePriceVolume(level)
		if err != nil {
			return nil, fmt.Errorf("exchange: list orderbook: buy: %w", err)
		}
		out = append(out, OrderbookLevel{Side: "BUY", Price: price, Volume: volume})
	}
	for _, level := range limitRows(body.Sell, count) {
		price, volume, err := parsePriceVolume(level)
		if err != nil {
			return nil, fmt.Errorf("exchange: list orderbook: sell: %w", err)
		}
		out = append(out, OrderbookLevel{Side: "SELL", Price: price, Volume: volume})
	}
	return out, nil
}

// ListMyOrders fetches up to count of the account's own orders, open and
// recently closed, for the base/quote pair.
func (c *Client) ListMyOrders(ctx context.Context, base, quote string, count int) ([]MyOrderInfo, error) {
	var body struct {
		List []struct {
			TransactionID string `json:"orderId"`
			Price         string `json:"price"`
			BaseQuantity  string `json:"quantity"`
			QuoteQuantity string `json:"secondaryQuantity"`
			OrderType     string `json:"type"`
			Side          string `json:"side"`
			State         string `json:"state"`
		} `json:"list"`
	}
	query := url.Values{
		"market": {base + quote},
		"limit":  {fmt.Sprintf("%d", count)},
	}
	if err := c.doPrivate(ctx, http.MethodGet, "/main/api/v2/orders", query, &body); err != nil {
		return nil, fmt.Errorf("exchange: list my orders: %w", err)
	}
	out := make([]MyOrderInfo, 0, len(body.List))
	for _, row := range body.List {
		price, err := parseFloat(row.Price)
		if err != nil {
			return nil, fmt.Errorf("exchange: list my orders: price: %w", err)
		}
		baseQty, err := parseFloat(row.BaseQuantity)
		if err != nil {
			return nil, fmt.Errorf("exchange: list my orders: base quantity: %w", err)
		}
		quoteQty, err := parseFloat(row.QuoteQuantity)
		if err != nil {
			return nil, fmt.Errorf("exchange: list my orders: quote quantity: %w", err)
		}
		out = append(out, MyOrderInfo{
			TransactionID: row.TransactionID,
			Price:         price,
			BaseQuantity:  baseQty,
			QuoteQuantity: quoteQty,
			OrderType:     row.OrderType,
			Side:          row.Side,
			State:         row.State,
		})
	}
	return out, nil
}

func limitRows(rows [][2]string, count int) [][2]string {
	if count >= 0 && count < len(rows) {
		return rows[:count]
	}
	return rows
}

func parsePriceVolume(row [2]string) (price, volume float64, err error) {
	price, err = parseFloat(row[0])
	if err != nil {
		return 0, 0, err
	}
	volume, err = parseFloat(row[1])
	if err != nil {
		return 0, 0, err
	}
	return price, volume, nil
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}

func (c *Client) doPublic(ctx context.Context, method, path string, query url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	if query != nil {
		req.URL.RawQuery = query.Encode()
	}
	return c.execute(req, out)
}

func (c *Client) doPrivate(ctx context.Context, method, path string, query url.Values, out any) error {
	if c.creds.APIKey == "" {
		return fmt.Errorf("exchange: private call to %s requires credentials", path)
	}
	if query == nil {
		query = url.Values{}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.URL.RawQuery = query.Encode()

	serverTime, err := c.ServerTime(ctx)
	if err != nil {
		return fmt.Errorf("exchange: sign %s: %w", path, err)
	}

	headers, err := sign(c.creds, method, path, query.Encode(), serverTime)
	if err != nil {
		return fmt.Errorf("exchange: sign %s: %w", path, err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return c.execute(req, out)
}

func (c *Client) execute(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(raw))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}
