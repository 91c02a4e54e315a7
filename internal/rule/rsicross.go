package rule

import (
	"time"

	"github.com/sand/nicehash-speculator/internal/domain"
	"github.com/sand/nicehash-speculator/internal/indicator"
)

// RsiCrossParameter configures an RsiCrossRule. Trigger percentages are in
// [0,100].
type RsiCrossParameter struct {
	CandlestickInterval time.Duration
	CandlestickCount    int
	BuyTrigger          float64
	SellTrigger         float64
	UpperPending        float64
	LowerPending        float64
}

// RsiCrossRule recommends Buy/Sell when RSI crosses its buy/sell trigger
// on the candle that has just closed, and Pending when RSI strays outside
// the [LowerPending, UpperPending] band.
type RsiCrossRule struct {
	tracker   stateTracker
	parameter RsiCrossParameter
	history   *indicator.RsiHistory
}

// NewRsiCrossRule creates an RsiCrossRule for market. It returns an error
// if the underlying RsiHistory cannot be constructed (non-positive
// interval or zero candlestick count).
func NewRsiCrossRule(market domain.Market, parameter RsiCrossParameter) (*RsiCrossRule, error) {
	history, err := indicator.NewRsiHistory(parameter.CandlestickInterval, parameter.CandlestickCount)
	if err != nil {
		return nil, err
	}
	return &RsiCrossRule{
		tracker:   newStateTracker(market),
		parameter: parameter,
		history:   history,
	}, nil
}

func (r *RsiCrossRule) Market() domain.Market { return r.tracker.market }

func (r *RsiCrossRule) DurationRequirement() (time.Duration, bool) {
	return r.parameter.CandlestickInterval * time.Duration(r.parameter.CandlestickCount+1), true
}

func (r *RsiCrossRule) UpdateMarketState(ms MarketState) error {
	if err := r.tracker.accept(ms); err != nil {
		return err
	}
	_, err := r.history.Update(indicator.PriceStamp{Instant: ms.Stamp.Instant, Price: ms.Price.Amount})
	return err
}

func (r *RsiCrossRule) Recommend() Recommendation {
	if !r.history.IsCandlestickDeterminedJustNow() {
		return Recommendation{Type: Neutral, Reason: "undetermined RSI"}
	}

	prev, curr, ok := lastTwoDefinedRsiPercent(r.history.Rsis())
	if !ok {
		return Recommendation{Type: Neutral, Reason: "insufficient RSI history"}
	}

	return decideRsiCross(prev, curr, r.parameter)
}

// decideRsiCross implements the pure decision table of spec §4.4.2, given
// the last two defined RSI percentages (prev, curr) and the rule's
// trigger parameters. Evaluated in order: pending bands take precedence
// over trigger crosses.
func decideRsiCross(prev, curr float64, p RsiCrossParameter) Recommendation {
	switch {
	case curr > p.UpperPending:
		return Recommendation{Type: Pending, Reason: "RSI above upper pending threshold"}
	case curr < p.LowerPending:
		return Recommendation{Type: Pending, Reason: "RSI below lower pending threshold"}
	case prev < p.BuyTrigger && curr >= p.BuyTrigger:
		return Recommendation{Type: Buy, Reason: "RSI crossed above buy trigger"}
	case prev > p.SellTrigger && curr <= p.SellTrigger:
		return Recommendation{Type: Sell, Reason: "RSI crossed below sell trigger"}
	default:
		return Recommendation{Type: Neutral, Reason: "no RSI cross"}
	}
}

// lastTwoDefinedRsiPercent scans rsis from the end and returns the last
// two defined values, scaled to percent, in (previous, current) order.
func lastTwoDefinedRsiPercent(rsis []*indicator.RsiStamp) (prev, curr float64, ok bool) {
	var found []float64
	for i := len(rsis) - 1; i >= 0 && len(found) < 2; i-- {
		if rsis[i] != nil {
			found = append(found, rsis[i].Rsi*100)
		}
	}
	if len(found) < 2 {
		return 0, 0, false
	}
	// found[0] is the most recent, found[1] the one before it.
	return found[1], found[0], true
}
