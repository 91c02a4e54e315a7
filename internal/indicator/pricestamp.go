// Package indicator turns a strictly-monotonic stream of price samples into
// closed candlesticks and, from those, a windowed Relative Strength Index.
package indicator

import "time"

// PriceStamp pairs a wall-clock instant with a spot price. Instants are
// UTC-naive: callers are expected to have already normalized away any
// time zone before constructing one.
type PriceStamp struct {
	Instant time.Time
	Price   float64
}
