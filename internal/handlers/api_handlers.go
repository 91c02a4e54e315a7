package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/sand/nicehash-speculator/internal/domain"
	"github.com/sand/nicehash-speculator/internal/rategraph"
)

// HTTPHandler serves the dashboard's JSON REST routes.
type HTTPHandler struct {
	logger  *slog.Logger
	service *DashboardService
}

// NewHTTPHandler creates a new HTTPHandler.
func NewHTTPHandler(logger *slog.Logger, service *DashboardService) *HTTPHandler {
	return &HTTPHandler{
		logger:  logger,
		service: service,
	}
}

func (h *HTTPHandler) RegisterRoutes(router *mux.Router) {
	// Markets, candles
	router.HandleFunc("/api/markets", h.GetMarketsHandler).Methods("GET")
	router.HandleFunc("/api/candles/{marketId}", h.GetCandlesHandler).Methods("GET")

	// Cross-rates
	router.HandleFunc("/api/rates", h.GetExchangeRatesHandler).Methods("GET")

	// Static files - register last to avoid intercepting other routes.
	fs := http.FileServer(http.Dir("./static"))
	router.PathPrefix("/").Handler(http.StripPrefix("/", fs))
}

// GetMarketsHandler returns every known market.
func (h *HTTPHandler) GetMarketsHandler(w http.ResponseWriter, r *http.Request) {
	markets, err := h.service.ListMarkets(r.Context())
	if err != nil {
		h.logger.Error("Error listing markets", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(markets); err != nil {
		h.logger.Error("Error encoding markets", "error", err)
	}
}

// GetCandlesHandler returns candle data for a market.
func (h *HTTPHandler) GetCandlesHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	marketIDParam := vars["marketId"]

	marketID, err := strconv.Atoi(marketIDParam)
	if err != nil {
		http.Error(w, "Invalid market id", http.StatusBadRequest)
		return
	}

	intervalMinutes := 1
	if raw := r.URL.Query().Get("intervalMinutes"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "Invalid intervalMinutes", http.StatusBadRequest)
			return
		}
		intervalMinutes = parsed
	}

	candles, err := h.service.Candlesticks(r.Context(), domain.MarketID(marketID), time.Duration(intervalMinutes)*time.Minute)
	if err != nil {
		h.logger.Error("Error computing candlesticks", "error", err, "market_id", marketID)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.Info("Sending candles", "count", len(candles), "market_id", marketID)
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(candles); err != nil {
		h.logger.Error("Error encoding candles", "error", err)
	}
}

// GetExchangeRatesHandler computes the cross-rate between every
// "base-quote" currency id pair in the comma-separated "pairs" query
// parameter, against the rate graph built from the latest stored prices.
func (h *HTTPHandler) GetExchangeRatesHandler(w http.ResponseWriter, r *http.Request) {
	graph, err := h.buildRateGraph(r)
	if err != nil {
		h.logger.Error("Error building rate graph", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	pairs, err := parseRatePairs(r.URL.Query().Get("pairs"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	results, err := h.service.ExchangeRates(r.Context(), graph, pairs)
	if err != nil {
		h.logger.Error("Error computing exchange rates", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(results); err != nil {
		h.logger.Error("Error encoding exchange rates", "error", err)
	}
}

func (h *HTTPHandler) buildRateGraph(r *http.Request) (*rategraph.Graph, error) {
	ctx := r.Context()
	maxStampID, err := h.service.store.GetMaxStampID(ctx)
	if err != nil {
		return nil, err
	}
	if maxStampID == 0 {
		return rategraph.New(nil), nil
	}

	markets, err := h.service.store.ListMarkets(ctx)
	if err != nil {
		return nil, err
	}
	byMarketID := make(map[domain.MarketID]domain.Market, len(markets))
	for _, m := range markets {
		byMarketID[m.ID] = m
	}

	prices, err := h.service.store.ListPricesAtOrAfter(ctx, maxStampID)
	if err != nil {
		return nil, err
	}

	rates := make([]rategraph.Rate, 0, len(prices))
	for _, p := range prices {
		if p.StampID != maxStampID {
			continue
		}
		market, ok := byMarketID[p.MarketID]
		if !ok {
			continue
		}
		rates = append(rates, rategraph.Rate{Base: market.BaseCurrencyID, Quote: market.QuoteCurrencyID, Value: p.Amount})
	}

	return rategraph.New(rates), nil
}

func parseRatePairs(raw string) ([]ExchangeRatePoint, error) {
	if raw == "" {
		return nil, nil
	}
	var out []ExchangeRatePoint
	for _, segment := range strings.Split(raw, ",") {
		base, quote, ok := strings.Cut(segment, "-")
		if !ok {
			return nil, fmt.Errorf("invalid pair %q, expected BASE-QUOTE currency ids", segment)
		}
		baseID, err := strconv.Atoi(base)
		if err != nil {
			return nil, fmt.Errorf("invalid base currency id in %q", segment)
		}
		quoteID, err := strconv.Atoi(quote)
		if err != nil {
			return nil, fmt.Errorf("invalid quote currency id in %q", segment)
		}
		out = append(out, ExchangeRatePoint{Base: domain.CurrencyID(baseID), Quote: domain.CurrencyID(quoteID)})
	}
	return out, nil
}
