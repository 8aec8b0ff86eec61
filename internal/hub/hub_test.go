package hub

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestHub_BroadcastReachesAllClients(t *testing.T) {
	h := New()
	defer h.Close()
	srv := httptest.NewServer(h)
	defer srv.Close()

	first := dial(t, srv)
	second := dial(t, srv)

	require.Eventually(t, func() bool {
		return h.ClientCount() == 2
	}, 2*time.Second, 10*time.Millisecond)

	h.Send("lua", "log", "Script test.lua loaded")

	for _, conn := range []*websocket.Conn{first, second} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)

		var msg Message
		require.NoError(t, json.Unmarshal(data, &msg))
		assert.Equal(t, "lua", msg.Channel)
		assert.Equal(t, "log", msg.Topic)
		assert.Equal(t, "Script test.lua loaded", msg.Data)
	}
}

func TestHub_ClientDisconnectIsNoticed(t *testing.T) {
	h := New()
	defer h.Close()
	srv := httptest.NewServer(h)
	defer srv.Close()

	conn := dial(t, srv)
	require.Eventually(t, func() bool {
		return h.ClientCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool {
		return h.ClientCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHub_SendWithoutClients(t *testing.T) {
	h := New()
	defer h.Close()
	h.Send("lua", "log", "nobody listening")
}

func TestHub_CloseDisconnectsClients(t *testing.T) {
	h := New()
	srv := httptest.NewServer(h)
	defer srv.Close()

	dial(t, srv)
	require.Eventually(t, func() bool {
		return h.ClientCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	h.Close()
	assert.Zero(t, h.ClientCount())
}
