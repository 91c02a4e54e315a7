package exchange

import (
	"fmt"

	"github.com/sand/nicehash-speculator/internal/domain"
)

// orderStateByExchangeState maps the venue's own order-state vocabulary
// onto the internal lifecycle states the store persists.
var orderStateByExchangeState = map[string]domain.OrderState{
	"CREATED":        domain.OrderOpened,
	"PARTIAL":        domain.OrderOpened,
	"RESERVED":       domain.OrderOpened,
	"INSERTED":       domain.OrderOpened,
	"ENTERED":        domain.OrderOpened,
	"RELEASED":       domain.OrderOpened,
	"CANCEL_REQUEST": domain.OrderOpened,

	"FULL": domain.OrderFilled,

	"CANCELLED": domain.OrderCancelled,

	"RESERVATION_ERROR": domain.OrderError,
	"INSERTED_ERROR":    domain.OrderError,
	"RELEASED_ERROR":    domain.OrderError,
	"PROCESSED_ERROR":   domain.OrderError,
	"CANCELLED_ERROR":   domain.OrderError,
	"REJECTED":          domain.OrderError,
}

// ParseOrderState translates an exchange order-state string into the
// internal OrderState vocabulary.
func ParseOrderState(raw string) (domain.OrderState, error) {
	state, ok := orderStateByExchangeState[raw]
	if !ok {
		return "", fmt.Errorf("exchange: unknown order state %q", raw)
	}
	return state, nil
}

var orderTypes = map[string]domain.OrderType{
	"LIMIT":       domain.OrderTypeLimit,
	"MARKET":      domain.OrderTypeMarket,
	"STOP_LIMIT":  domain.OrderTypeStopLimit,
	"STOP_MARKET": domain.OrderTypeStopMarket,
}

// ParseOrderType translates an exchange order-type string into the
// internal OrderType vocabulary.
func ParseOrderType(raw string) (domain.OrderType, error) {
	orderType, ok := orderTypes[raw]
	if !ok {
		return "", fmt.Errorf("exchange: unknown order type %q", raw)
	}
	return orderType, nil
}

var sides = map[string]domain.Side{
	"BUY":  domain.Buy,
	"SELL": domain.Sell,
}

// ParseSide translates an exchange side string into the internal Side
// vocabulary.
func ParseSide(raw string) (domain.Side, error) {
	side, ok := sides[raw]
	if !ok {
		return "", fmt.Errorf("exchange: unknown side %q", raw)
	}
	return side, nil
}
