package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peerpractice-backend/internal/signal"
	"peerpractice-backend/pkg/logger"
	"peerpractice-backend/pkg/metrics"
)

func init() {
	logger.InitDefault()
}

func newTestHub() *Hub {
	return NewHub(nil, metrics.NewMetrics("ws-test"))
}

// newTestConn dials a throwaway WebSocket server and returns the
// client side of the connection
func newTestConn(t *testing.T) *websocket.Conn {
	t.Helper()

	upg := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upg.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return conn
}

func TestAllowedOrigins(t *testing.T) {
	t.Setenv("WS_ALLOWED_ORIGINS", "https://app.example.com, https://staging.example.com")

	origins := allowedOrigins()

	assert.Equal(t, []string{"https://app.example.com", "https://staging.example.com"}, origins)
}

func TestPushToUser_NoConnection(t *testing.T) {
	hub := newTestHub()

	delivered := hub.PushToUser(uuid.New(), signal.NewHeartbeatAck())

	assert.False(t, delivered)
}

func TestPushToUser_Delivers(t *testing.T) {
	hub := newTestHub()
	userID := uuid.New()

	client := newClient(hub, newTestConn(t))
	client.userID = userID
	client.authenticated = true
	hub.register(client)

	delivered := hub.PushToUser(userID, signal.NewHeartbeatAck())

	assert.True(t, delivered)
	select {
	case data := <-client.send:
		assert.Contains(t, string(data), signal.TypeHeartbeatAck)
	default:
		t.Fatal("expected a queued message")
	}
}

func TestBroadcast(t *testing.T) {
	hub := newTestHub()

	c1 := newClient(hub, newTestConn(t))
	c1.userID = uuid.New()
	c1.authenticated = true
	hub.register(c1)

	c2 := newClient(hub, newTestConn(t))
	c2.userID = uuid.New()
	c2.authenticated = true
	hub.register(c2)

	hub.Broadcast(signal.NewOnlineUsersUpdate(nil))

	for _, c := range []*Client{c1, c2} {
		select {
		case data := <-c.send:
			assert.Contains(t, string(data), signal.TypeOnlineUsersUpdate)
		default:
			t.Fatal("expected a queued broadcast")
		}
	}
}

func TestUnregister_Authoritative(t *testing.T) {
	hub := newTestHub()
	client := newClient(hub, newTestConn(t))
	client.userID = uuid.New()
	hub.register(client)

	assert.True(t, hub.unregister(client))
	assert.False(t, hub.unregister(client))
	assert.Equal(t, 0, hub.ConnectionCount())
}

// TestRegister_Supersedes checks that a second connection for the same
// user replaces the first, and that the replaced connection's cleanup
// is no longer treated as authoritative
func TestRegister_Supersedes(t *testing.T) {
	hub := newTestHub()
	userID := uuid.New()

	c1 := newClient(hub, newTestConn(t))
	c1.userID = userID
	hub.register(c1)

	c2 := newClient(hub, newTestConn(t))
	c2.userID = userID
	hub.register(c2)

	assert.Equal(t, 1, hub.ConnectionCount())

	select {
	case <-c1.done:
	default:
		t.Fatal("superseded client should be closed")
	}

	assert.False(t, hub.unregister(c1))
	assert.True(t, hub.unregister(c2))
}
