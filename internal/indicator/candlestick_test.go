package indicator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return parsed
}

func TestNewCandlestickIndicator_RejectsNonPositiveInterval(t *testing.T) {
	_, err := NewCandlestickIndicator(0)
	assert.ErrorIs(t, err, ErrNonPositiveInterval)

	_, err = NewCandlestickIndicator(-time.Minute)
	assert.ErrorIs(t, err, ErrNonPositiveInterval)
}

// TestOHLCFromFourPrices is end-to-end scenario 1 from the spec: four
// prices inside one hourly bucket, closed by a fifth price in the next.
func TestOHLCFromFourPrices(t *testing.T) {
	ind, err := NewCandlestickIndicator(time.Hour)
	require.NoError(t, err)

	prices := []PriceStamp{
		{Instant: mustTime(t, "2021-01-01T00:00:00Z"), Price: 10},
		{Instant: mustTime(t, "2021-01-01T00:15:00Z"), Price: 40},
		{Instant: mustTime(t, "2021-01-01T00:30:00Z"), Price: 5},
		{Instant: mustTime(t, "2021-01-01T00:45:00Z"), Price: 20},
	}
	for _, ps := range prices {
		result, err := ind.Update(ps)
		require.NoError(t, err)
		assert.False(t, result.Determined)
	}

	result, err := ind.Update(PriceStamp{Instant: mustTime(t, "2021-01-01T01:00:00Z"), Price: 999})
	require.NoError(t, err)
	require.True(t, result.Determined)
	assert.True(t, ind.IsCandlestickDeterminedJustNow())

	stick := result.Candlestick
	assert.Equal(t, prices[0], stick.Open)
	assert.Equal(t, prices[1], stick.High)
	assert.Equal(t, prices[2], stick.Low)
	assert.Equal(t, prices[3], stick.Close)
}

func TestCandlestick_SingleSampleBucketProducesFlatStick(t *testing.T) {
	ind, err := NewCandlestickIndicator(time.Minute)
	require.NoError(t, err)

	_, err = ind.Update(PriceStamp{Instant: mustTime(t, "2021-01-01T00:00:00Z"), Price: 7})
	require.NoError(t, err)

	result, err := ind.Update(PriceStamp{Instant: mustTime(t, "2021-01-01T00:01:00Z"), Price: 8})
	require.NoError(t, err)
	require.True(t, result.Determined)

	stick := result.Candlestick
	assert.Equal(t, stick.Open, stick.Close)
	assert.Equal(t, stick.Open, stick.High)
	assert.Equal(t, stick.Open, stick.Low)
	assert.Equal(t, 7.0, stick.Open.Price)
}

func TestCandlestick_MonotonicityRejection(t *testing.T) {
	ind, err := NewCandlestickIndicator(time.Minute)
	require.NoError(t, err)

	first := PriceStamp{Instant: mustTime(t, "2021-01-01T00:00:10Z"), Price: 1}
	_, err = ind.Update(first)
	require.NoError(t, err)

	_, err = ind.Update(PriceStamp{Instant: mustTime(t, "2021-01-01T00:00:10Z"), Price: 2})
	assert.ErrorIs(t, err, ErrNonMonotonicInstant)

	_, err = ind.Update(PriceStamp{Instant: mustTime(t, "2021-01-01T00:00:09Z"), Price: 2})
	assert.ErrorIs(t, err, ErrNonMonotonicInstant)

	assert.False(t, ind.IsCandlestickDeterminedJustNow())
}

func TestCandlestickHistory_AppendsDeterminedSticksOnly(t *testing.T) {
	hist, err := NewCandlestickHistory(time.Minute)
	require.NoError(t, err)

	base := mustTime(t, "2021-01-01T00:00:00Z")
	for i := 0; i < 5; i++ {
		_, err := hist.Update(PriceStamp{Instant: base.Add(time.Duration(i) * 20 * time.Second), Price: float64(i)})
		require.NoError(t, err)
	}
	// Samples at 0s,20s,40s fall in the first minute bucket; 60s,80s open a
	// second bucket that never closes because no later price arrives.
	assert.Len(t, hist.Candlesticks(), 1)

	for _, stick := range hist.Candlesticks() {
		bucketStart := stick.Open.Instant.Truncate(time.Minute)
		bucketEnd := bucketStart.Add(time.Minute)
		assert.True(t, !stick.Open.Instant.Before(bucketStart) && stick.Open.Instant.Before(bucketEnd))
		assert.True(t, !stick.Close.Instant.Before(bucketStart) && stick.Close.Instant.Before(bucketEnd))
	}
}
