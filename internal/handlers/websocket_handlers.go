package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"net/http"

	"github.com/sand/nicehash-speculator/internal/domain"
)

// WebSocketHandler upgrades /ws/{marketId} requests and keeps each
// connection subscribed to that market's live price feed until it
// disconnects.
type WebSocketHandler struct {
	logger  *slog.Logger
	service *DashboardService
	manager *Manager
}

// NewWebSocketHandler builds a WebSocketHandler.
func NewWebSocketHandler(logger *slog.Logger, service *DashboardService, manager *Manager) *WebSocketHandler {
	return &WebSocketHandler{logger: logger, service: service, manager: manager}
}

func (h *WebSocketHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/ws/{marketId}", h.HandleConnection)
}

func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	marketKey := mux.Vars(r)["marketId"]
	if _, err := strconv.Atoi(marketKey); err != nil {
		http.Error(w, "Invalid market id", http.StatusBadRequest)
		return
	}

	conn, err := h.manager.Upgrade(w, r)
	if err != nil {
		h.logger.Error("websocket: error upgrading connection", "error", err)
		return
	}

	h.logger.Info("websocket: new connection", "market_id", marketKey)
	h.manager.Subscribe(marketKey, conn)

	defer func() {
		h.manager.Unsubscribe(marketKey, conn)
		conn.Close()
	}()

	// The feed is one-directional (server to client); reading here only
	// detects the client going away, per gorilla/websocket's documented
	// pattern of running a read loop to surface close frames.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.logger.Info("websocket: connection closed", "market_id", marketKey, "error", err)
			return
		}
	}
}

// pricePush is the payload broadcast to every subscriber of a market
// each time PublishLatestPrices runs.
type pricePush struct {
	MarketID domain.MarketID `json:"marketId"`
	Instant  time.Time       `json:"instant"`
	Price    float64         `json:"price"`
}

// PublishLatestPrices reads the newest stamp's prices and broadcasts one
// pricePush per market to that market's subscribers. The dashboard's entry
// point calls it on a ticker; each call re-sends the newest stamp, so when
// the ticker is faster than the scraper, subscribers receive the same
// stamp's prices repeatedly until a new stamp is written.
func (h *WebSocketHandler) PublishLatestPrices(ctx context.Context) error {
	maxStampID, err := h.service.store.GetMaxStampID(ctx)
	if err != nil {
		return err
	}
	if maxStampID == 0 {
		return nil
	}
	stamp, err := h.service.store.GetStampByID(ctx, maxStampID)
	if err != nil {
		return err
	}
	prices, err := h.service.store.ListPricesAtOrAfter(ctx, maxStampID)
	if err != nil {
		return err
	}

	for _, p := range prices {
		if p.StampID != maxStampID {
			continue
		}
		marketKey := strconv.Itoa(int(p.MarketID))
		if h.manager.SubscriberCount(marketKey) == 0 {
			continue
		}
		payload, err := json.Marshal(pricePush{MarketID: p.MarketID, Instant: stamp.Instant, Price: p.Amount})
		if err != nil {
			h.logger.Warn("websocket: failed to marshal price push", "error", err)
			continue
		}
		h.manager.Broadcast(marketKey, payload)
	}
	return nil
}
