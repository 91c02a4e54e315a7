package handlers

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// Manager upgrades HTTP requests to WebSocket connections and fans live
// price updates out to whichever connections are subscribed to a given
// market. Neither this type nor an upgrader configuration existed
// anywhere in the source tree this pipeline grew from, so the subscriber
// bookkeeping is modeled on the mutex-guarded map[*websocket.Conn]bool
// the dashboard's mocked data layer once kept per trading pair, and the
// upgrader itself follows the CheckOrigin/allowed-origins idiom used by
// sibling network-gateway code.
type Manager struct {
	upgrader websocket.Upgrader

	mu          sync.Mutex
	subscribers map[string]map[*websocket.Conn]bool
}

// NewManager builds a Manager. allowedOrigins may be empty, in which
// case every origin is accepted (suitable for local development only).
func NewManager(allowedOrigins []string) *Manager {
	m := &Manager{
		subscribers: make(map[string]map[*websocket.Conn]bool),
	}
	m.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, o := range allowedOrigins {
				if o == "*" || o == origin {
					return true
				}
			}
			return false
		},
		EnableCompression: true,
	}
	return m
}

// Upgrade promotes an HTTP request to a WebSocket connection.
func (m *Manager) Upgrade(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	return m.upgrader.Upgrade(w, r, nil)
}

// Subscribe registers conn as a listener for marketKey updates.
func (m *Manager) Subscribe(marketKey string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subscribers[marketKey] == nil {
		m.subscribers[marketKey] = make(map[*websocket.Conn]bool)
	}
	m.subscribers[marketKey][conn] = true
}

// Unsubscribe removes conn from marketKey's listener set.
func (m *Manager) Unsubscribe(marketKey string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subscribers[marketKey], conn)
	if len(m.subscribers[marketKey]) == 0 {
		delete(m.subscribers, marketKey)
	}
}

// Broadcast writes payload to every connection subscribed to marketKey,
// dropping and unsubscribing any connection whose write fails.
func (m *Manager) Broadcast(marketKey string, payload []byte) {
	m.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(m.subscribers[marketKey]))
	for c := range m.subscribers[marketKey] {
		conns = append(conns, c)
	}
	m.mu.Unlock()

	for _, conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			m.Unsubscribe(marketKey, conn)
		}
	}
}

// SubscriberCount reports how many connections currently listen on
// marketKey, chiefly for tests and diagnostics.
func (m *Manager) SubscriberCount(marketKey string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subscribers[marketKey])
}
