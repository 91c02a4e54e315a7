package rategraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	btc CurrencyID = 1
	eth CurrencyID = 2
	usd CurrencyID = 3
	jpy CurrencyID = 4
)

func TestRateBetween_Identity(t *testing.T) {
	g := New(nil)
	rate, ok := g.RateBetween(btc, btc)
	require.True(t, ok)
	assert.Equal(t, 1.0, rate)
}

func TestRateBetween_DirectAndInverse(t *testing.T) {
	g := New([]Rate{{Base: btc, Quote: usd, Value: 50000}})

	direct, ok := g.RateBetween(btc, usd)
	require.True(t, ok)
	assert.Equal(t, 50000.0, direct)

	inverse, ok := g.RateBetween(usd, btc)
	require.True(t, ok)
	assert.InDelta(t, 1.0/50000.0, inverse, 1e-12)
}

func TestRateBetween_MultiHopPath(t *testing.T) {
	g := New([]Rate{
		{Base: btc, Quote: usd, Value: 50000},
		{Base: usd, Quote: jpy, Value: 150},
	})

	rate, ok := g.RateBetween(btc, jpy)
	require.True(t, ok)
	assert.InDelta(t, 50000.0*150.0, rate, 1e-6)

	back, ok := g.RateBetween(jpy, btc)
	require.True(t, ok)
	assert.InDelta(t, 1.0, rate*back, 1e-6)
}

func TestRateBetween_NoPath(t *testing.T) {
	g := New([]Rate{{Base: btc, Quote: usd, Value: 50000}})
	_, ok := g.RateBetween(btc, eth)
	assert.False(t, ok)
}

func TestRateBetween_CycleDoesNotLoopForever(t *testing.T) {
	g := New([]Rate{
		{Base: btc, Quote: eth, Value: 15},
		{Base: eth, Quote: usd, Value: 3000},
		{Base: usd, Quote: btc, Value: 1.0 / 45000},
	})

	rate, ok := g.RateBetween(btc, usd)
	require.True(t, ok)
	assert.InDelta(t, 45000.0, rate, 1e-6)
}
