// Package trade combines a market's weighted rules into a single Buy/Sell/
// Pending decision and, for an acted-upon decision, the concrete market and
// limit order quantities to submit.
package trade

import (
	"math"
	"time"

	"github.com/sand/nicehash-speculator/internal/domain"
	"github.com/sand/nicehash-speculator/internal/rule"
)

// TradeParameter configures one market's aggregation: trigger thresholds on
// the weighted-vote mean, how much of the available balance to commit, and
// how the commitment splits between a market and a limit order.
type TradeParameter struct {
	BuyTrigger  float64 `json:"buyTrigger"`
	SellTrigger float64 `json:"sellTrigger"`

	BuyQuantityRatio  float64 `json:"buyQuantityRatio"`
	SellQuantityRatio float64 `json:"sellQuantityRatio"`

	MarketRatio float64 `json:"marketRatio"`
	LimitRatio  float64 `json:"limitRatio"`

	BuyMarketAllowableDiffRatio  float64 `json:"buyMarketAllowableDiffRatio"`
	SellMarketAllowableDiffRatio float64 `json:"sellMarketAllowableDiffRatio"`
	BuyLimitDiffRatio            float64 `json:"buyLimitDiffRatio"`
	SellLimitDiffRatio           float64 `json:"sellLimitDiffRatio"`
}

// Decision is an aggregation's final recommendation: a side plus the
// quantity factor (|m|) used to scale order sizes. Factor is meaningless
// for Pending.
type Decision struct {
	Type   rule.RecommendationType
	Factor float64
}

// OrderRecommendation is one concrete order an aggregation proposes.
type OrderRecommendation struct {
	OrderType     domain.OrderType
	Side          domain.Side
	Price         float64
	BaseQuantity  float64
	QuoteQuantity float64
}

// Aggregation binds a collection of weighted rules to a single market and a
// TradeParameter, combining their votes into one Decision.
type Aggregation struct {
	market    domain.Market
	parameter TradeParameter
	rules     []rule.WeightedRule
}

// NewAggregation creates an Aggregation for market from rules, all of which
// must themselves be bound to market (not validated here; callers group
// rules by market before constructing an Aggregation, as LoadRules does).
func NewAggregation(market domain.Market, parameter TradeParameter, rules []rule.WeightedRule) *Aggregation {
	return &Aggregation{market: market, parameter: parameter, rules: rules}
}

func (a *Aggregation) Market() domain.Market { return a.market }

// DurationRequirement is the maximum over every contributing rule's
// requirement; an aggregation with no rule requiring history reports none.
func (a *Aggregation) DurationRequirement() (time.Duration, bool) {
	var max time.Duration
	found := false
	for _, wr := range a.rules {
		d, ok := wr.Rule.DurationRequirement()
		if !ok {
			continue
		}
		found = true
		if d > max {
			max = d
		}
	}
	return max, found
}

// UpdateMarketState forwards ms to every rule. It does not short-circuit on
// a rule error: every rule gets the update, and every resulting error is
// returned for the caller to log.
func (a *Aggregation) UpdateMarketState(ms rule.MarketState) []error {
	var errs []error
	for _, wr := range a.rules {
		if err := wr.Rule.UpdateMarketState(ms); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// Recommend computes the weighted-mean vote over every contributing rule
// (Buy=+1, Sell=-1, Pending=0; Neutral rules are excluded from both the
// weight sum and the vote sum) and maps it to a final Decision.
func (a *Aggregation) Recommend() Decision {
	var sumWeight, sumWeightedVote float64

	for _, wr := range a.rules {
		rec := wr.Rule.Recommend()

		var vote float64
		switch rec.Type {
		case rule.Buy:
			vote = 1
		case rule.Sell:
			vote = -1
		case rule.Pending:
			vote = 0
		default: // Neutral: excluded entirely
			continue
		}

		sumWeight += wr.Weight
		sumWeightedVote += wr.Weight * vote
	}

	if sumWeight == 0 {
		return Decision{Type: rule.Pending}
	}

	m := sumWeightedVote / sumWeight
	switch {
	case m > a.parameter.BuyTrigger:
		return Decision{Type: rule.Buy, Factor: math.Abs(m)}
	case m < -a.parameter.SellTrigger:
		return Decision{Type: rule.Sell, Factor: math.Abs(m)}
	default:
		return Decision{Type: rule.Pending}
	}
}

// normaliseRatios scales marketRatio and limitRatio so they sum to 1,
// leaving both at 0 if their sum is 0.
func normaliseRatios(marketRatio, limitRatio float64) (float64, float64) {
	sum := marketRatio + limitRatio
	if sum == 0 {
		return 0, 0
	}
	return marketRatio / sum, limitRatio / sum
}

// RecommendOrders builds the market and limit OrderRecommendations for a
// Buy or Sell decision, given the current spot price and the base/quote
// balances available to commit. It returns nil for a Pending decision.
func (a *Aggregation) RecommendOrders(decision Decision, currentPrice float64, baseBalance, quoteBalance domain.Balance) []OrderRecommendation {
	p := a.parameter
	marketRatio, limitRatio := normaliseRatios(p.MarketRatio, p.LimitRatio)

	switch decision.Type {
	case rule.Buy:
		marketQuote := quoteBalance.Available * decision.Factor * p.BuyQuantityRatio * marketRatio
		limitQuote := quoteBalance.Available * decision.Factor * p.BuyQuantityRatio * limitRatio
		limitPrice := currentPrice * p.BuyLimitDiffRatio

		return []OrderRecommendation{
			{
				OrderType:     domain.OrderTypeMarket,
				Side:          domain.Buy,
				Price:         currentPrice,
				QuoteQuantity: marketQuote,
				BaseQuantity:  marketQuote / currentPrice * p.BuyMarketAllowableDiffRatio,
			},
			{
				OrderType:     domain.OrderTypeLimit,
				Side:          domain.Buy,
				Price:         limitPrice,
				QuoteQuantity: limitQuote,
				BaseQuantity:  limitQuote / limitPrice,
			},
		}

	case rule.Sell:
		marketBase := baseBalance.Available * decision.Factor * p.SellQuantityRatio * marketRatio
		limitBase := baseBalance.Available * decision.Factor * p.SellQuantityRatio * limitRatio
		limitPrice := currentPrice * p.SellLimitDiffRatio

		return []OrderRecommendation{
			{
				OrderType:     domain.OrderTypeMarket,
				Side:          domain.Sell,
				Price:         currentPrice,
				BaseQuantity:  marketBase,
				QuoteQuantity: marketBase * currentPrice * p.SellMarketAllowableDiffRatio,
			},
			{
				OrderType:     domain.OrderTypeLimit,
				Side:          domain.Sell,
				Price:         limitPrice,
				BaseQuantity:  limitBase,
				QuoteQuantity: limitBase * limitPrice,
			},
		}

	default:
		return nil
	}
}
