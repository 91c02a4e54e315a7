// Package rule implements the trading-rule contract: fixed-side,
// RSI-cross and RSI-divergence rules, each consuming a stream of
// MarketState and emitting a Recommendation.
package rule

import (
	"fmt"
	"time"

	"github.com/sand/nicehash-speculator/internal/domain"
)

// RecommendationType is the tagged outcome of a Rule's evaluation.
type RecommendationType string

const (
	// Buy recommends acquiring base currency with quote currency.
	Buy RecommendationType = "BUY"
	// Sell recommends acquiring quote currency with base currency.
	Sell RecommendationType = "SELL"
	// Pending explicitly blocks trading (e.g. RSI outside a safe band).
	Pending RecommendationType = "PENDING"
	// Neutral means the rule abstains; it does not contribute a vote.
	Neutral RecommendationType = "NEUTRAL"
)

// Recommendation is a rule's (or aggregation's) output for one evaluation.
type Recommendation struct {
	Type   RecommendationType
	Reason string
}

// MarketState is one timestamped observation of a single market: its spot
// price, order book and personal orders, all sharing one Stamp.
type MarketState struct {
	Stamp     domain.Stamp
	Price     domain.Price
	Orderbook []domain.OrderbookRow
	MyOrders  []domain.MyOrder
}

// ErrorKind classifies a RuleError.
type ErrorKind int

const (
	// MarketConstraint means the state's market id did not match the
	// rule's market.
	MarketConstraint ErrorKind = iota
	// StampConstraint means the state's timestamp was not strictly after
	// the previously accepted state's.
	StampConstraint
	// Other wraps any error not covered by the above.
	Other
)

// RuleError is returned by UpdateMarketState when a state is rejected.
type RuleError struct {
	Kind ErrorKind
	Err  error
}

func (e *RuleError) Error() string {
	return e.Err.Error()
}

func (e *RuleError) Unwrap() error {
	return e.Err
}

func newMarketConstraintError(ruleMarket, stateMarket domain.MarketID) *RuleError {
	return &RuleError{
		Kind: MarketConstraint,
		Err:  fmt.Errorf("rule: market state market id %d does not match rule market id %d", stateMarket, ruleMarket),
	}
}

func newStampConstraintError(previous, next time.Time) *RuleError {
	return &RuleError{
		Kind: StampConstraint,
		Err:  fmt.Errorf("rule: market state instant %s is not strictly after previous %s", next, previous),
	}
}

// WeightedRule pairs a Rule with its voting weight in an aggregation. A
// weight of zero is valid (the rule is wired but currently silenced).
type WeightedRule struct {
	Rule   Rule
	Weight float64
}

// Rule is the capability every trading-rule algorithm implements: bound to
// a single Market, fed a stream of MarketState, and asked for a
// Recommendation at any point.
type Rule interface {
	// Market returns the Market this rule is bound to.
	Market() domain.Market

	// DurationRequirement reports the span of history this rule needs
	// before it can produce a meaningful recommendation, if any.
	DurationRequirement() (time.Duration, bool)

	// UpdateMarketState feeds one new observation into the rule. States
	// must be supplied in strictly increasing Stamp.Instant order for a
	// single market matching Market().
	UpdateMarketState(ms MarketState) error

	// Recommend returns this rule's current recommendation given every
	// accepted MarketState so far.
	Recommend() Recommendation
}

// stateTracker implements the shared validation every Rule performs:
// market-id matching and strict stamp monotonicity, per spec.
type stateTracker struct {
	market domain.Market
	states []MarketState
}

func newStateTracker(market domain.Market) stateTracker {
	return stateTracker{market: market}
}

// accept validates ms against the rule's market and the previously
// accepted state, appending it to history on success.
func (t *stateTracker) accept(ms MarketState) error {
	if ms.Price.MarketID != t.market.ID {
		return newMarketConstraintError(t.market.ID, ms.Price.MarketID)
	}
	for _, ob := range ms.Orderbook {
		if ob.MarketID != t.market.ID {
			return newMarketConstraintError(t.market.ID, ob.MarketID)
		}
	}
	for _, order := range ms.MyOrders {
		if order.MarketID != t.market.ID {
			return newMarketConstraintError(t.market.ID, order.MarketID)
		}
	}

	if len(t.states) > 0 {
		previous := t.states[len(t.states)-1]
		if !ms.Stamp.Instant.After(previous.Stamp.Instant) {
			return newStampConstraintError(previous.Stamp.Instant, ms.Stamp.Instant)
		}
	}

	t.states = append(t.states, ms)
	return nil
}

func (t *stateTracker) last() (MarketState, bool) {
	if len(t.states) == 0 {
		return MarketState{}, false
	}
	return t.states[len(t.states)-1], true
}
