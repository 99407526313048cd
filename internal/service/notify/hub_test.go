package notify

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, srv *httptest.Server, user string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?userAddress=" + user
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestHubNotifyRoom(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = hub.ServeWS(w, r, r.URL.Query().Get("userAddress"))
	}))
	defer srv.Close()

	alice := dial(t, srv, "0xAbC")
	bob := dial(t, srv, "0xdef")
	require.Eventually(t, func() bool {
		return hub.RoomSize("0xabc") == 1 && hub.RoomSize("0xDEF") == 1
	}, time.Second, 10*time.Millisecond)

	hub.Notify("0xABC", EventReorged, map[string]string{"transactionId": "t1"})

	_ = alice.SetReadDeadline(time.Now().Add(time.Second))
	_, raw, err := alice.ReadMessage()
	require.NoError(t, err)

	var msg struct {
		Event string            `json:"event"`
		Data  map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &msg))
	assert.Equal(t, EventReorged, msg.Event)
	assert.Equal(t, "t1", msg.Data["transactionId"])

	// 其他房间收不到
	_ = bob.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err = bob.ReadMessage()
	assert.Error(t, err)
}

func TestHubUnregisterOnClose(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = hub.ServeWS(w, r, r.URL.Query().Get("userAddress"))
	}))
	defer srv.Close()

	conn := dial(t, srv, "0xabc")
	require.Eventually(t, func() bool { return hub.RoomSize("0xabc") == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.RoomSize("0xabc") == 0 }, time.Second, 10*time.Millisecond)

	// 没有连接时推送不会阻塞
	hub.Notify("0xabc", EventStatusUpdate, nil)
}
