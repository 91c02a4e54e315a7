package rule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rsiCrossParams() RsiCrossParameter {
	return RsiCrossParameter{
		CandlestickInterval: time.Minute,
		CandlestickCount:    3,
		BuyTrigger:          30,
		SellTrigger:         70,
		UpperPending:        80,
		LowerPending:        20,
	}
}

// TestRsiCrossDecision_BuyTrigger is end-to-end scenario 3 from the spec.
func TestRsiCrossDecision_BuyTrigger(t *testing.T) {
	rec := decideRsiCross(25, 35, rsiCrossParams())
	assert.Equal(t, Buy, rec.Type)
}

// TestRsiCrossDecision_PendingBlocksRegardlessOfPrev is end-to-end scenario 4.
func TestRsiCrossDecision_PendingBlocksRegardlessOfPrev(t *testing.T) {
	rec := decideRsiCross(25, 85, rsiCrossParams())
	assert.Equal(t, Pending, rec.Type)

	rec = decideRsiCross(90, 85, rsiCrossParams())
	assert.Equal(t, Pending, rec.Type)
}

func TestRsiCrossDecision_SellTrigger(t *testing.T) {
	rec := decideRsiCross(75, 65, rsiCrossParams())
	assert.Equal(t, Sell, rec.Type)
}

func TestRsiCrossDecision_NoCrossIsNeutral(t *testing.T) {
	rec := decideRsiCross(40, 45, rsiCrossParams())
	assert.Equal(t, Neutral, rec.Type)
}

func TestRsiCrossRule_NeutralUntilCandleCloses(t *testing.T) {
	market := testMarket()
	r, err := NewRsiCrossRule(market, rsiCrossParams())
	require.NoError(t, err)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, r.UpdateMarketState(stateAt(market, base, 100)))

	rec := r.Recommend()
	assert.Equal(t, Neutral, rec.Type)
	assert.Equal(t, "undetermined RSI", rec.Reason)
}

func TestRsiCrossRule_MarketAndDurationRequirement(t *testing.T) {
	market := testMarket()
	params := rsiCrossParams()
	r, err := NewRsiCrossRule(market, params)
	require.NoError(t, err)

	assert.Equal(t, market, r.Market())

	duration, ok := r.DurationRequirement()
	require.True(t, ok)
	assert.Equal(t, params.CandlestickInterval*time.Duration(params.CandlestickCount+1), duration)
}
