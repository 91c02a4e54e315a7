package rule

import (
	"time"

	"github.com/sand/nicehash-speculator/internal/domain"
)

// FixedRule always recommends the same side, regardless of market state.
// It is useful as a baseline vote in an aggregation, or for forcing a
// market into a permanent accumulate/distribute posture.
type FixedRule struct {
	tracker stateTracker
	side    domain.Side
}

// NewFixedRule creates a FixedRule that always recommends side for market.
func NewFixedRule(market domain.Market, side domain.Side) *FixedRule {
	return &FixedRule{tracker: newStateTracker(market), side: side}
}

func (r *FixedRule) Market() domain.Market { return r.tracker.market }

// DurationRequirement is always none: a FixedRule needs no history.
func (r *FixedRule) DurationRequirement() (time.Duration, bool) {
	return 0, false
}

func (r *FixedRule) UpdateMarketState(ms MarketState) error {
	return r.tracker.accept(ms)
}

func (r *FixedRule) Recommend() Recommendation {
	if r.side == domain.Buy {
		return Recommendation{Type: Buy, Reason: "Based on fixed trade rule"}
	}
	return Recommendation{Type: Sell, Reason: "Based on fixed trade rule"}
}
