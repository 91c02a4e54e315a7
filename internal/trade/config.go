package trade

import (
	"encoding/json"
	"fmt"
	"io"
)

// LoadTradeParameter parses TRADE_JSON: a single flat object shared by every
// market's aggregation.
func LoadTradeParameter(r io.Reader) (TradeParameter, error) {
	var p TradeParameter
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return TradeParameter{}, fmt.Errorf("trade: malformed trade config: %w", err)
	}
	return p, nil
}
