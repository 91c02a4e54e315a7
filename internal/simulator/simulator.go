// Package simulator applies a set of trade aggregations' recommended orders
// against an in-memory balance snapshot under a fee ratio, enforcing
// non-negative available balances, per the bootstrap-then-apply algorithm.
package simulator

import (
	"fmt"

	"github.com/sand/nicehash-speculator/internal/domain"
	"github.com/sand/nicehash-speculator/internal/trade"
)

// Aggregator is the slice of trade.Aggregation the simulator depends on,
// narrowed to an interface so tests can drive it with stubs.
type Aggregator interface {
	Market() domain.Market
	Recommend() trade.Decision
	RecommendOrders(decision trade.Decision, currentPrice float64, baseBalance, quoteBalance domain.Balance) []trade.OrderRecommendation
}

// Bootstrap implements step 1 of the algorithm: if the simulation store
// has no balance yet, every Balance from the main store's latest Stamp is
// copied in with fresh ids, and bootstrapped reports true. If simHasBalance
// is already true, Bootstrap is a no-op (bootstrapped is false) — this is
// testable property 12's idempotence.
func Bootstrap(latestBalances []domain.Balance, simHasBalance bool, stampID domain.StampID, nextID func() domain.BalanceID) (copied []domain.Balance, bootstrapped bool) {
	if simHasBalance {
		return nil, false
	}

	copied = make([]domain.Balance, len(latestBalances))
	for i, b := range latestBalances {
		copied[i] = domain.Balance{
			ID:         nextID(),
			CurrencyID: b.CurrencyID,
			StampID:    stampID,
			Available:  b.Available,
			Pending:    b.Pending,
		}
	}
	return copied, true
}

// OrderOutcome records whether one proposed order was accepted into the
// working balance copy, and why not if it wasn't.
type OrderOutcome struct {
	Market   domain.MarketID
	Order    trade.OrderRecommendation
	Accepted bool
	Reason   string
}

// Apply implements steps 2-6: for each aggregation, fetch its base/quote
// balances from working, recommend orders, and apply whichever orders
// would not drive either balance negative. working is mutated in place.
// A missing price or missing balance for an aggregation's market skips
// that aggregation with a collected error, per spec §7's Store-error
// handling (skip the smallest possible unit).
func Apply(aggregations []Aggregator, prices map[domain.MarketID]float64, working map[domain.CurrencyID]domain.Balance, feeRatio float64) ([]OrderOutcome, []error) {
	var outcomes []OrderOutcome
	var errs []error

	for _, agg := range aggregations {
		market := agg.Market()

		price, ok := prices[market.ID]
		if !ok {
			errs = append(errs, fmt.Errorf("simulator: no price for market %d", market.ID))
			continue
		}

		baseBalance, ok := working[market.BaseCurrencyID]
		if !ok {
			errs = append(errs, fmt.Errorf("simulator: no balance for currency %d", market.BaseCurrencyID))
			continue
		}
		quoteBalance, ok := working[market.QuoteCurrencyID]
		if !ok {
			errs = append(errs, fmt.Errorf("simulator: no balance for currency %d", market.QuoteCurrencyID))
			continue
		}

		decision := agg.Recommend()
		orders := agg.RecommendOrders(decision, price, baseBalance, quoteBalance)

		for _, order := range orders {
			baseDiff, quoteDiff := diffsFor(order, feeRatio)

			newBase := baseBalance.Available + baseDiff
			newQuote := quoteBalance.Available + quoteDiff

			if newBase < 0 || newQuote < 0 {
				outcomes = append(outcomes, OrderOutcome{
					Market: market.ID, Order: order, Accepted: false,
					Reason: "would make an available balance negative",
				})
				continue
			}

			baseBalance.Available = newBase
			quoteBalance.Available = newQuote
			working[market.BaseCurrencyID] = baseBalance
			working[market.QuoteCurrencyID] = quoteBalance

			outcomes = append(outcomes, OrderOutcome{Market: market.ID, Order: order, Accepted: true})
		}
	}

	return outcomes, errs
}

// diffsFor computes the signed (base, quote) balance deltas an order
// applies, per spec §4.6 step 4. The fee is taken out of whichever side
// the order acquires.
func diffsFor(order trade.OrderRecommendation, feeRatio float64) (baseDiff, quoteDiff float64) {
	switch order.Side {
	case domain.Buy:
		return order.BaseQuantity * (1 - feeRatio), -order.QuoteQuantity
	case domain.Sell:
		return -order.BaseQuantity, order.QuoteQuantity * (1 - feeRatio)
	default:
		return 0, 0
	}
}

// PersistableBalances implements step 7: a fresh Balance row per currency
// in working, stamped at stampID, skipping currencies left at exactly
// (0, 0).
func PersistableBalances(working map[domain.CurrencyID]domain.Balance, stampID domain.StampID, nextID func() domain.BalanceID) []domain.Balance {
	var out []domain.Balance
	for currencyID, b := range working {
		if b.Available == 0 && b.Pending == 0 {
			continue
		}
		out = append(out, domain.Balance{
			ID:         nextID(),
			CurrencyID: currencyID,
			StampID:    stampID,
			Available:  b.Available,
			Pending:    b.Pending,
		})
	}
	return out
}
