package rule

import (
	"time"

	"github.com/sand/nicehash-speculator/internal/domain"
	"github.com/sand/nicehash-speculator/internal/indicator"
)

// RsiDivergenceParameter configures an RsiDivergenceRule. KStart/KEnd index
// into the RSI history, counting back from the most recent entry, and
// bound the window searched for a peak to diverge against: 0 < KStart <
// KEnd. UpperDivergenceTrigger/LowerDivergenceTrigger are percentages.
type RsiDivergenceParameter struct {
	CandlestickInterval    time.Duration
	CandlestickCount       int
	KStart                 int
	KEnd                   int
	UpperDivergenceTrigger float64
	LowerDivergenceTrigger float64
}

// RsiDivergenceRule looks for price/RSI divergence against a recent peak:
// price making a new high (or low) while RSI fails to confirm it.
type RsiDivergenceRule struct {
	tracker   stateTracker
	parameter RsiDivergenceParameter
	history   *indicator.RsiHistory
}

// NewRsiDivergenceRule creates an RsiDivergenceRule for market.
func NewRsiDivergenceRule(market domain.Market, parameter RsiDivergenceParameter) (*RsiDivergenceRule, error) {
	history, err := indicator.NewRsiHistory(parameter.CandlestickInterval, parameter.CandlestickCount)
	if err != nil {
		return nil, err
	}
	return &RsiDivergenceRule{
		tracker:   newStateTracker(market),
		parameter: parameter,
		history:   history,
	}, nil
}

func (r *RsiDivergenceRule) Market() domain.Market { return r.tracker.market }

// DurationRequirement is not pinned by an explicit formula in the source
// material; this rule needs history back through KEnd candlesticks, so it
// reports CandlestickInterval * (KEnd + 1), mirroring the RSI-cross rule's
// "one extra candle of slack" convention.
func (r *RsiDivergenceRule) DurationRequirement() (time.Duration, bool) {
	return r.parameter.CandlestickInterval * time.Duration(r.parameter.KEnd+1), true
}

func (r *RsiDivergenceRule) UpdateMarketState(ms MarketState) error {
	if err := r.tracker.accept(ms); err != nil {
		return err
	}
	_, err := r.history.Update(indicator.PriceStamp{Instant: ms.Stamp.Instant, Price: ms.Price.Amount})
	return err
}

type rsiPoint struct {
	candlestick indicator.Candlestick
	rsiPercent  float64
}

func (r *RsiDivergenceRule) Recommend() Recommendation {
	if !r.history.IsCandlestickDeterminedJustNow() {
		return Recommendation{Type: Neutral, Reason: "undetermined RSI"}
	}

	sticks := r.history.Candlesticks()
	rsis := r.history.Rsis()

	last, ok := lastDefinedPoint(sticks, rsis)
	if !ok {
		return Recommendation{Type: Neutral, Reason: "no defined RSI yet"}
	}

	candidates := definedPointsInWindow(sticks, rsis, r.parameter.KStart, r.parameter.KEnd)
	if len(candidates) == 0 {
		return Recommendation{Type: Neutral, Reason: "no peak candidates in window"}
	}

	upperPeak := candidates[0]
	lowerPeak := candidates[0]
	for _, c := range candidates[1:] {
		if c.rsiPercent > upperPeak.rsiPercent {
			upperPeak = c
		}
		if c.rsiPercent < lowerPeak.rsiPercent {
			lowerPeak = c
		}
	}

	p := r.parameter
	if p.UpperDivergenceTrigger < last.rsiPercent && last.rsiPercent < upperPeak.rsiPercent &&
		last.candlestick.Close.Price > upperPeak.candlestick.Close.Price {
		return Recommendation{Type: Sell, Reason: "bearish RSI divergence against recent peak"}
	}
	if p.LowerDivergenceTrigger > last.rsiPercent && last.rsiPercent > lowerPeak.rsiPercent &&
		last.candlestick.Close.Price < lowerPeak.candlestick.Close.Price {
		return Recommendation{Type: Buy, Reason: "bullish RSI divergence against recent trough"}
	}
	return Recommendation{Type: Neutral, Reason: "no divergence"}
}

// lastDefinedPoint returns the most recent (candlestick, rsi%) pair with a
// defined RSI.
func lastDefinedPoint(sticks []indicator.Candlestick, rsis []*indicator.RsiStamp) (rsiPoint, bool) {
	for i := len(rsis) - 1; i >= 0; i-- {
		if rsis[i] != nil {
			return rsiPoint{candlestick: sticks[i], rsiPercent: rsis[i].Rsi * 100}, true
		}
	}
	return rsiPoint{}, false
}

// definedPointsInWindow collects defined (candlestick, rsi%) pairs from the
// slice [kStart, kEnd) counted back from the most recent history entry:
// index 1 is the entry just before the most recent, index kEnd-1 is the
// furthest back included.
func definedPointsInWindow(sticks []indicator.Candlestick, rsis []*indicator.RsiStamp, kStart, kEnd int) []rsiPoint {
	n := len(rsis)
	var points []rsiPoint
	for k := kStart; k < kEnd; k++ {
		idx := n - 1 - k
		if idx < 0 || idx >= n {
			continue
		}
		if rsis[idx] == nil {
			continue
		}
		points = append(points, rsiPoint{candlestick: sticks[idx], rsiPercent: rsis[idx].Rsi * 100})
	}
	return points
}
