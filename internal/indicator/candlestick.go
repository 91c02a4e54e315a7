package indicator

import (
	"errors"
	"fmt"
	"time"
)

// ErrNonPositiveInterval is returned by NewCandlestickIndicator when the
// requested bucket interval is not strictly positive.
var ErrNonPositiveInterval = errors.New("indicator: candlestick interval must be positive")

// ErrNonMonotonicInstant is returned by Update when the supplied PriceStamp
// does not strictly follow the most recently accepted one.
var ErrNonMonotonicInstant = errors.New("indicator: price stamp instant is not strictly increasing")

// Candlestick summarizes the PriceStamps observed within one bucket of a
// fixed interval: the first (Open), the last (Close), the highest-priced
// (High) and the lowest-priced (Low) sample.
type Candlestick struct {
	Open  PriceStamp
	Close PriceStamp
	High  PriceStamp
	Low   PriceStamp
}

// UpdateResult reports whether an Update call finalized a Candlestick.
type UpdateResult struct {
	Determined  bool
	Candlestick Candlestick
}

// CandlestickIndicator buckets a strictly-monotonic PriceStamp stream into
// fixed-interval candlesticks. It holds only the current, still-open
// bucket; completed candlesticks are returned to the caller and not
// retained (see CandlestickHistory for that).
type CandlestickIndicator struct {
	interval time.Duration

	bucket            time.Time // start of the bucket currently being accumulated
	bucketOpen        bool
	buf               []PriceStamp
	lastInstant       time.Time
	haveLast          bool
	determinedJustNow bool
}

// NewCandlestickIndicator creates an indicator bucketing by interval. It
// fails if interval is not strictly positive.
func NewCandlestickIndicator(interval time.Duration) (*CandlestickIndicator, error) {
	if interval <= 0 {
		return nil, ErrNonPositiveInterval
	}
	return &CandlestickIndicator{interval: interval}, nil
}

// Interval returns the configured bucket interval.
func (c *CandlestickIndicator) Interval() time.Duration {
	return c.interval
}

// bucketStart floors an instant down to the start of its interval bucket,
// under UTC, using integer floor-division — never calendar arithmetic.
func (c *CandlestickIndicator) bucketStart(instant time.Time) time.Time {
	instant = instant.UTC()
	unitNanos := c.interval.Nanoseconds()
	floored := (instant.UnixNano() / unitNanos) * unitNanos
	return time.Unix(0, floored).UTC()
}

// Update feeds one PriceStamp into the indicator. It fails with
// ErrNonMonotonicInstant if ps.Instant does not strictly follow the
// previously accepted instant, leaving all state unchanged.
//
// It returns a Determined UpdateResult exactly when ps belongs to a new
// bucket, carrying the Candlestick closed by the bucket transition.
func (c *CandlestickIndicator) Update(ps PriceStamp) (UpdateResult, error) {
	if c.haveLast && !ps.Instant.After(c.lastInstant) {
		return UpdateResult{}, fmt.Errorf("%w: %s <= %s", ErrNonMonotonicInstant, ps.Instant, c.lastInstant)
	}

	c.lastInstant = ps.Instant
	c.haveLast = true

	bucket := c.bucketStart(ps.Instant)

	if !c.bucketOpen {
		c.bucket = bucket
		c.bucketOpen = true
		c.buf = append(c.buf[:0], ps)
		c.determinedJustNow = false
		return UpdateResult{}, nil
	}

	if bucket.Equal(c.bucket) {
		c.buf = append(c.buf, ps)
		c.determinedJustNow = false
		return UpdateResult{}, nil
	}

	stick := buildCandlestick(c.buf)
	c.bucket = bucket
	c.buf = append(c.buf[:0], ps)
	c.determinedJustNow = true

	return UpdateResult{Determined: true, Candlestick: stick}, nil
}

// IsCandlestickDeterminedJustNow reports whether the most recent Update call
// returned a Determined result.
func (c *CandlestickIndicator) IsCandlestickDeterminedJustNow() bool {
	return c.determinedJustNow
}

// buildCandlestick derives open/close/high/low from a non-empty bucket of
// PriceStamps. High/low ties are broken by earliest instant, since buf is
// already in arrival (i.e. strictly increasing instant) order.
func buildCandlestick(buf []PriceStamp) Candlestick {
	open := buf[0]
	close := buf[len(buf)-1]
	high := buf[0]
	low := buf[0]
	for _, ps := range buf[1:] {
		if ps.Price > high.Price {
			high = ps
		}
		if ps.Price < low.Price {
			low = ps
		}
	}
	return Candlestick{Open: open, Close: close, High: high, Low: low}
}

// CandlestickHistory wraps a CandlestickIndicator, appending every
// determined Candlestick to an append-only history.
type CandlestickHistory struct {
	indicator *CandlestickIndicator
	sticks    []Candlestick
}

// NewCandlestickHistory creates a CandlestickHistory bucketing by interval.
func NewCandlestickHistory(interval time.Duration) (*CandlestickHistory, error) {
	ind, err := NewCandlestickIndicator(interval)
	if err != nil {
		return nil, err
	}
	return &CandlestickHistory{indicator: ind}, nil
}

// Update feeds one PriceStamp into the underlying indicator, appending a
// newly determined Candlestick to the history.
func (h *CandlestickHistory) Update(ps PriceStamp) (UpdateResult, error) {
	result, err := h.indicator.Update(ps)
	if err != nil {
		return UpdateResult{}, err
	}
	if result.Determined {
		h.sticks = append(h.sticks, result.Candlestick)
	}
	return result, nil
}

// Candlesticks returns the append-only history of determined candlesticks.
// The returned slice must not be mutated by the caller.
func (h *CandlestickHistory) Candlesticks() []Candlestick {
	return h.sticks
}

// IsCandlestickDeterminedJustNow reports whether the most recent Update call
// closed a candlestick.
func (h *CandlestickHistory) IsCandlestickDeterminedJustNow() bool {
	return h.indicator.IsCandlestickDeterminedJustNow()
}

// Interval returns the configured bucket interval.
func (h *CandlestickHistory) Interval() time.Duration {
	return h.indicator.Interval()
}
