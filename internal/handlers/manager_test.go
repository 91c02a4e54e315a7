package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	assertWait = time.Second
	assertTick = 10 * time.Millisecond
)

func TestManager_UpgradeSubscribeBroadcast(t *testing.T) {
	manager := NewManager(nil)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := manager.Upgrade(w, r)
		require.NoError(t, err)
		manager.Subscribe("10", conn)
	}))
	defer server.Close()

	wsURL := "ws" + server.URL[len("http"):]
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	assert.Eventually(t, func() bool { return manager.SubscriberCount("10") == 1 }, assertWait, assertTick)

	manager.Broadcast("10", []byte(`{"marketId":10}`))

	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, `{"marketId":10}`, string(payload))
}

func TestManager_CheckOriginRejectsUnlistedOrigin(t *testing.T) {
	manager := NewManager([]string{"https://allowed.example"})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, err := manager.Upgrade(w, r)
		assert.Error(t, err)
	}))
	defer server.Close()

	wsURL := "ws" + server.URL[len("http"):]
	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.Error(t, err)
	if resp != nil {
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	}
}

func TestManager_UnsubscribeRemovesConnection(t *testing.T) {
	manager := NewManager(nil)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := manager.Upgrade(w, r)
		require.NoError(t, err)
		manager.Subscribe("10", conn)
		manager.Unsubscribe("10", conn)
	}))
	defer server.Close()

	wsURL := "ws" + server.URL[len("http"):]
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	assert.Eventually(t, func() bool { return manager.SubscriberCount("10") == 0 }, assertWait, assertTick)
}
