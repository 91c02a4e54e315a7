package indicator

import (
	"errors"
	"time"
)

// ErrNonPositiveRequiredCount is returned by NewRsiHistory when the
// requested window size is less than 1.
var ErrNonPositiveRequiredCount = errors.New("indicator: rsi required candlestick count must be at least 1")

// RsiStamp is one windowed RSI observation: the Relative Strength Index
// computed over the last RequiredCount closed candlesticks, together with
// the open instant of the first of those sticks and the close instant of
// the last. Rsi is stored in [0,1]; multiply by 100 for percent display.
type RsiStamp struct {
	OpenInstant  time.Time
	CloseInstant time.Time
	Rsi          float64
}

// RsiHistory feeds a PriceStamp stream through a CandlestickHistory and, on
// every newly closed candlestick, derives the RSI over the most recent
// RequiredCount closes. The rsis() and candlesticks() sequences are kept in
// lock-step: equal length, indices aligned.
type RsiHistory struct {
	candles       *CandlestickHistory
	requiredCount int
	rsis          []*RsiStamp // nil entry means "undefined at that point"
}

// NewRsiHistory creates an RsiHistory bucketing by interval and computing
// RSI over the last requiredCount closed candlesticks. It fails if
// interval is not strictly positive or requiredCount is less than 1.
func NewRsiHistory(interval time.Duration, requiredCount int) (*RsiHistory, error) {
	if requiredCount < 1 {
		return nil, ErrNonPositiveRequiredCount
	}
	candles, err := NewCandlestickHistory(interval)
	if err != nil {
		return nil, err
	}
	return &RsiHistory{candles: candles, requiredCount: requiredCount}, nil
}

// Update feeds one PriceStamp into the underlying candlestick history. On a
// newly closed candlestick it pushes exactly one entry (possibly undefined)
// into the RSI history; on a non-closing price it pushes nothing.
func (h *RsiHistory) Update(ps PriceStamp) (UpdateResult, error) {
	result, err := h.candles.Update(ps)
	if err != nil {
		return UpdateResult{}, err
	}
	if !result.Determined {
		return result, nil
	}

	sticks := h.candles.Candlesticks()
	h.rsis = append(h.rsis, computeRsiStamp(sticks, h.requiredCount))
	return result, nil
}

// computeRsiStamp derives the RsiStamp for the window ending at the most
// recently closed candlestick, or nil if fewer than requiredCount sticks
// have closed yet, or if the RSI is undefined (no movement at all).
func computeRsiStamp(sticks []Candlestick, requiredCount int) *RsiStamp {
	if len(sticks) < requiredCount {
		return nil
	}
	window := sticks[len(sticks)-requiredCount:]

	var up, down float64
	for i := 1; i < len(window); i++ {
		delta := window[i].Close.Price - window[i-1].Close.Price
		if delta > 0 {
			up += delta
		} else {
			down += -delta
		}
	}

	if up+down == 0 {
		return nil
	}

	return &RsiStamp{
		OpenInstant:  window[0].Open.Instant,
		CloseInstant: window[len(window)-1].Close.Instant,
		Rsi:          up / (up + down),
	}
}

// Rsis returns the RSI history, index-aligned with Candlesticks(). A nil
// element means RSI was undefined (or not yet computable) at that point.
func (h *RsiHistory) Rsis() []*RsiStamp {
	return h.rsis
}

// Candlesticks returns the history of closed candlesticks feeding the RSI.
func (h *RsiHistory) Candlesticks() []Candlestick {
	return h.candles.Candlesticks()
}

// IsCandlestickDeterminedJustNow reports whether the most recent Update
// call closed a candlestick.
func (h *RsiHistory) IsCandlestickDeterminedJustNow() bool {
	return h.candles.IsCandlestickDeterminedJustNow()
}

// CandlestickInterval returns the configured bucket interval.
func (h *RsiHistory) CandlestickInterval() time.Duration {
	return h.candles.Interval()
}

// CandlestickRequiredCount returns the configured RSI window size.
func (h *RsiHistory) CandlestickRequiredCount() int {
	return h.requiredCount
}
