// Package domain holds the persisted entity shapes shared by the store,
// indicator, rule, trade and simulator packages, per the identifier
// discipline in the data model: every entity carries a stable, monotonic
// 32-bit signed integer id.
package domain

import "time"

// CurrencyID, MarketID and StampID are distinct types so a CurrencyID can
// never be passed where a MarketID is expected, even though both are
// int32 under the hood.
type (
	CurrencyID     int32
	MarketID       int32
	StampID        int32
	BalanceID      int32
	PriceID        int32
	OrderbookRowID int32
	MyOrderID      int32
)

// Side is a trading-pair direction: Buy spends quote to acquire base,
// Sell spends base to acquire quote.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// OrderType distinguishes how an order is to be executed.
type OrderType string

const (
	OrderTypeLimit      OrderType = "LIMIT"
	OrderTypeMarket     OrderType = "MARKET"
	OrderTypeStopLimit  OrderType = "STOP_LIMIT"
	OrderTypeStopMarket OrderType = "STOP_MARKET"
)

// OrderState is the internal lifecycle state of a MyOrder, after mapping
// from whatever vocabulary the exchange uses.
type OrderState string

const (
	OrderOpened    OrderState = "OPENED"
	OrderFilled    OrderState = "FILLED"
	OrderCancelled OrderState = "CANCELLED"
	OrderError     OrderState = "ERROR"
)

// Stamp is a timestamp row: inserted once per scraper cycle. Ordering by
// ID is consistent with ordering by Instant for successful inserts.
type Stamp struct {
	ID      StampID
	Instant time.Time
}

// Currency is immutable once inserted, unique by (Symbol, Name).
type Currency struct {
	ID     CurrencyID
	Symbol string
	Name   string
}

// Market is an immutable ordered pair of currencies, unique by
// (BaseCurrencyID, QuoteCurrencyID).
type Market struct {
	ID              MarketID
	BaseCurrencyID  CurrencyID
	QuoteCurrencyID CurrencyID
}

// Balance snapshots a currency position at a Stamp. Available and Pending
// are both non-negative; their sum is the total holding.
type Balance struct {
	ID         BalanceID
	CurrencyID CurrencyID
	StampID    StampID
	Available  float64
	Pending    float64
}

// Price is the single spot price for a (Market, Stamp) pair. Amount is
// strictly positive.
type Price struct {
	ID       PriceID
	MarketID MarketID
	StampID  StampID
	Amount   float64
}

// OrderbookRow is one priced/sized level of one side of the order book for
// a (Market, Stamp) pair; many rows may share a (Market, Stamp).
type OrderbookRow struct {
	ID       OrderbookRowID
	MarketID MarketID
	StampID  StampID
	Side     Side
	Price    float64
	Volume   float64
}

// MyOrder is a personal order, unique by TransactionID. ModifiedStampID
// advances on every state change; CreatedStampID never changes.
type MyOrder struct {
	ID              MyOrderID
	TransactionID   string
	MarketID        MarketID
	CreatedStampID  StampID
	ModifiedStampID StampID
	Price           float64
	BaseQuantity    float64
	QuoteQuantity   float64
	OrderType       OrderType
	Side            Side
	State           OrderState
}
