package rule

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sand/nicehash-speculator/internal/domain"
)

type fakeCurrencies map[string]domain.Currency

func (f fakeCurrencies) BySymbol(symbol string) (domain.Currency, bool) {
	c, ok := f[symbol]
	return c, ok
}

type fakeMarkets map[[2]domain.CurrencyID]domain.Market

func (f fakeMarkets) ByBaseQuote(base, quote domain.CurrencyID) (domain.Market, bool) {
	m, ok := f[[2]domain.CurrencyID{base, quote}]
	return m, ok
}

func testLookups() (fakeCurrencies, fakeMarkets) {
	btc := domain.Currency{ID: 1, Symbol: "BTC"}
	usd := domain.Currency{ID: 2, Symbol: "USD"}
	currencies := fakeCurrencies{"BTC": btc, "USD": usd}
	market := domain.Market{ID: 100, BaseCurrencyID: btc.ID, QuoteCurrencyID: usd.ID}
	markets := fakeMarkets{{btc.ID, usd.ID}: market}
	return currencies, markets
}

func TestLoadRules_FixedAndRsiCross(t *testing.T) {
	const doc = `{
		"rules": [
			{"algorithm": "fixed", "weight": 1.0, "markets": ["BTC-USD"], "side": "buy"},
			{"algorithm": "rsiCross", "weight": 2.0, "markets": ["BTC-USD"],
			 "candlestickTimespanMin": 1, "candlestickCount": 3,
			 "buyTrigger": 30, "sellTrigger": 70,
			 "upperPendingTrigger": 80, "lowerPendingTrigger": 20}
		]
	}`

	currencies, markets := testLookups()
	grouped, warnings := LoadRules(strings.NewReader(doc), currencies, markets)
	assert.Empty(t, warnings)

	require.Len(t, grouped, 1)
	rules := grouped[100]
	require.Len(t, rules, 2)
	assert.Equal(t, 1.0, rules[0].Weight)
	assert.Equal(t, 2.0, rules[1].Weight)
	assert.Equal(t, domain.MarketID(100), rules[0].Rule.Market().ID)
}

func TestLoadRules_DefaultMarketsFallback(t *testing.T) {
	const doc = `{
		"defaultMarkets": ["BTC-USD"],
		"rules": [{"algorithm": "fixed", "weight": 1.0, "side": "sell"}]
	}`

	currencies, markets := testLookups()
	grouped, warnings := LoadRules(strings.NewReader(doc), currencies, markets)
	assert.Empty(t, warnings)
	require.Len(t, grouped[100], 1)
}

func TestLoadRules_UnknownAlgorithmWarnsAndSkips(t *testing.T) {
	const doc = `{"rules": [{"algorithm": "quantum", "weight": 1.0, "markets": ["BTC-USD"]}]}`

	currencies, markets := testLookups()
	grouped, warnings := LoadRules(strings.NewReader(doc), currencies, markets)
	assert.Len(t, warnings, 1)
	assert.Empty(t, grouped)
}

func TestLoadRules_UnknownSymbolWarnsAndSkips(t *testing.T) {
	const doc = `{"rules": [{"algorithm": "fixed", "weight": 1.0, "markets": ["BTC-EUR"], "side": "buy"}]}`

	currencies, markets := testLookups()
	grouped, warnings := LoadRules(strings.NewReader(doc), currencies, markets)
	assert.Len(t, warnings, 1)
	assert.Empty(t, grouped)
}

func TestLoadRules_MalformedJSONIsFatal(t *testing.T) {
	currencies, markets := testLookups()
	grouped, warnings := LoadRules(strings.NewReader("not json"), currencies, markets)
	assert.Nil(t, grouped)
	require.Len(t, warnings, 1)
}
