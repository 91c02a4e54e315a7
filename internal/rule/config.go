package rule

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sand/nicehash-speculator/internal/domain"
)

// CurrencyLookup resolves a currency symbol, as used in RULE_JSON market
// pair strings like "BTC-USD".
type CurrencyLookup interface {
	BySymbol(symbol string) (domain.Currency, bool)
}

// MarketLookup resolves a (base, quote) currency pair to the Market it
// identifies.
type MarketLookup interface {
	ByBaseQuote(base, quote domain.CurrencyID) (domain.Market, bool)
}

// ruleFile is the top-level shape of RULE_JSON.
type ruleFile struct {
	Rules          []ruleEntry `json:"rules"`
	DefaultMarkets []string    `json:"defaultMarkets"`
}

// ruleEntry carries every field any algorithm might use; algorithm-specific
// fields are simply left unused for algorithms that do not need them. This
// mirrors the loose, field-per-algorithm JSON shape of RULE_JSON without
// needing one Go type per algorithm at the unmarshal layer.
type ruleEntry struct {
	Algorithm string   `json:"algorithm"`
	Weight    float64  `json:"weight"`
	Markets   []string `json:"markets"`

	Side string `json:"side"` // fixed

	CandlestickTimespanMin int `json:"candlestickTimespanMin"` // rsiCross, rsiDivergence
	CandlestickCount       int `json:"candlestickCount"`       // rsiCross, rsiDivergence

	BuyTrigger          float64 `json:"buyTrigger"`          // rsiCross
	SellTrigger         float64 `json:"sellTrigger"`         // rsiCross
	UpperPendingTrigger float64 `json:"upperPendingTrigger"` // rsiCross
	LowerPendingTrigger float64 `json:"lowerPendingTrigger"` // rsiCross

	CandlestickMaximaKStart int     `json:"candlestickMaximaKStart"` // rsiDivergence
	CandlestickMaximaKEnd   int     `json:"candlestickMaximaKEnd"`   // rsiDivergence
	UpperDivergenceTrigger  float64 `json:"upperDivergenceTrigger"`  // rsiDivergence
	LowerDivergenceTrigger  float64 `json:"lowerDivergenceTrigger"`  // rsiDivergence
}

// LoadRules parses RULE_JSON from r and resolves every entry's market pair
// strings against currencies/markets, grouping the resulting WeightedRules
// by Market. Per spec §7's config-error handling, a malformed top-level
// document is fatal, but an individual entry or market pair that cannot be
// resolved is skipped with a collected warning rather than aborting the
// whole load.
func LoadRules(r io.Reader, currencies CurrencyLookup, markets MarketLookup) (map[domain.MarketID][]WeightedRule, []error) {
	var file ruleFile
	if err := json.NewDecoder(r).Decode(&file); err != nil {
		return nil, []error{fmt.Errorf("rule: malformed rule config: %w", err)}
	}

	result := make(map[domain.MarketID][]WeightedRule)
	var warnings []error

	for i, entry := range file.Rules {
		pairs := entry.Markets
		if len(pairs) == 0 {
			pairs = file.DefaultMarkets
		}

		resolvedMarkets, errs := resolveMarkets(pairs, currencies, markets)
		warnings = append(warnings, errs...)

		for _, market := range resolvedMarkets {
			weighted, err := buildWeightedRule(entry, market)
			if err != nil {
				warnings = append(warnings, fmt.Errorf("rule: entry %d: %w", i, err))
				continue
			}
			result[market.ID] = append(result[market.ID], weighted)
		}
	}

	return result, warnings
}

func buildWeightedRule(entry ruleEntry, market domain.Market) (WeightedRule, error) {
	if entry.Weight < 0 {
		return WeightedRule{}, fmt.Errorf("invalid weight %g", entry.Weight)
	}

	switch entry.Algorithm {
	case "fixed":
		side, err := parseSide(entry.Side)
		if err != nil {
			return WeightedRule{}, err
		}
		return WeightedRule{Rule: NewFixedRule(market, side), Weight: entry.Weight}, nil

	case "rsiCross":
		parameter := RsiCrossParameter{
			CandlestickInterval: time.Duration(entry.CandlestickTimespanMin) * time.Minute,
			CandlestickCount:    entry.CandlestickCount,
			BuyTrigger:          entry.BuyTrigger,
			SellTrigger:         entry.SellTrigger,
			UpperPending:        entry.UpperPendingTrigger,
			LowerPending:        entry.LowerPendingTrigger,
		}
		r, err := NewRsiCrossRule(market, parameter)
		if err != nil {
			return WeightedRule{}, err
		}
		return WeightedRule{Rule: r, Weight: entry.Weight}, nil

	case "rsiDivergence":
		parameter := RsiDivergenceParameter{
			CandlestickInterval:    time.Duration(entry.CandlestickTimespanMin) * time.Minute,
			CandlestickCount:       entry.CandlestickCount,
			KStart:                 entry.CandlestickMaximaKStart,
			KEnd:                   entry.CandlestickMaximaKEnd,
			UpperDivergenceTrigger: entry.UpperDivergenceTrigger,
			LowerDivergenceTrigger: entry.LowerDivergenceTrigger,
		}
		r, err := NewRsiDivergenceRule(market, parameter)
		if err != nil {
			return WeightedRule{}, err
		}
		return WeightedRule{Rule: r, Weight: entry.Weight}, nil

	case "":
		return WeightedRule{}, fmt.Errorf("unspecified algorithm")

	default:
		return WeightedRule{}, fmt.Errorf("unknown algorithm: %s", entry.Algorithm)
	}
}

func parseSide(s string) (domain.Side, error) {
	switch s {
	case "buy":
		return domain.Buy, nil
	case "sell":
		return domain.Sell, nil
	case "":
		return "", fmt.Errorf("side undefined")
	default:
		return "", fmt.Errorf("undefined order side: %s", s)
	}
}

// resolveMarkets turns "BASE-QUOTE" pair strings into Markets, skipping (with
// a warning) any pair with unknown symbols or no corresponding Market row.
func resolveMarkets(pairs []string, currencies CurrencyLookup, markets MarketLookup) ([]domain.Market, []error) {
	var resolved []domain.Market
	var warnings []error

	for _, pair := range pairs {
		baseSymbol, quoteSymbol, ok := strings.Cut(pair, "-")
		if !ok {
			warnings = append(warnings, fmt.Errorf("rule: invalid market pair: %s", pair))
			continue
		}

		base, ok := currencies.BySymbol(baseSymbol)
		if !ok {
			warnings = append(warnings, fmt.Errorf("rule: unknown currency symbol: %s", baseSymbol))
			continue
		}
		quote, ok := currencies.BySymbol(quoteSymbol)
		if !ok {
			warnings = append(warnings, fmt.Errorf("rule: unknown currency symbol: %s", quoteSymbol))
			continue
		}

		market, ok := markets.ByBaseQuote(base.ID, quote.ID)
		if !ok {
			warnings = append(warnings, fmt.Errorf("rule: %s-%s does not exist in markets", baseSymbol, quoteSymbol))
			continue
		}

		resolved = append(resolved, market)
	}

	return resolved, warnings
}
