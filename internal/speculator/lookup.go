package speculator

import "github.com/sand/nicehash-speculator/internal/domain"

// CurrencyTable and MarketTable satisfy rule.CurrencyLookup and
// rule.MarketLookup from a snapshot of the store's currency/market
// tables, taken each time RULE_JSON is loaded, before it is parsed.
type CurrencyTable struct {
	bySymbol map[string]domain.Currency
}

// NewCurrencyTable indexes currencies by symbol.
func NewCurrencyTable(currencies []domain.Currency) CurrencyTable {
	bySymbol := make(map[string]domain.Currency, len(currencies))
	for _, c := range currencies {
		bySymbol[c.Symbol] = c
	}
	return CurrencyTable{bySymbol: bySymbol}
}

func (t CurrencyTable) BySymbol(symbol string) (domain.Currency, bool) {
	c, ok := t.bySymbol[symbol]
	return c, ok
}

type marketKey struct {
	base, quote domain.CurrencyID
}

// MarketTable indexes markets by (base, quote) currency id pair.
type MarketTable struct {
	byBaseQuote map[marketKey]domain.Market
}

// NewMarketTable indexes markets by base/quote currency id.
func NewMarketTable(markets []domain.Market) MarketTable {
	byBaseQuote := make(map[marketKey]domain.Market, len(markets))
	for _, m := range markets {
		byBaseQuote[marketKey{m.BaseCurrencyID, m.QuoteCurrencyID}] = m
	}
	return MarketTable{byBaseQuote: byBaseQuote}
}

func (t MarketTable) ByBaseQuote(base, quote domain.CurrencyID) (domain.Market, bool) {
	m, ok := t.byBaseQuote[marketKey{base, quote}]
	return m, ok
}
