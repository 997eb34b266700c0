package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mehrbod2002/mtdesk/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)
	return hub
}

func startServer(t *testing.T, hub *Hub, userID string) string {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := NewWebSocketHandler(hub)
	r.GET("/ws", func(c *gin.Context) {
		if userID != "" {
			c.Set("user_id", userID)
		}
		handler.HandleConnection(c)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func statusEvent(userID, number string) *models.AccountStatusEvent {
	return &models.AccountStatusEvent{
		Type:          "account_status",
		UserID:        userID,
		AccountNumber: number,
		Status:        models.ConnectionStatusConnected,
		Timestamp:     time.Now().UTC(),
	}
}

func TestHandleConnectionRequiresUser(t *testing.T) {
	hub := startHub(t)
	url := startServer(t, hub, "")

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestStatusEventsReachOwner(t *testing.T) {
	hub := startHub(t)
	url := startServer(t, hub, "user-1")
	conn := dial(t, url)

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	hub.NotifyAccountStatus(statusEvent("someone-else", "1"))
	hub.NotifyAccountStatus(statusEvent("user-1", "70001"))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got models.AccountStatusEvent
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, "70001", got.AccountNumber)
	assert.Equal(t, models.ConnectionStatusConnected, got.Status)
}

func TestSubscribeFiltersAccounts(t *testing.T) {
	hub := startHub(t)
	url := startServer(t, hub, "user-1")
	conn := dial(t, url)

	require.NoError(t, conn.WriteJSON(models.SocketMessage{Action: "subscribe", AccountNumber: "70002"}))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ack models.SubscriptionResponse
	require.NoError(t, conn.ReadJSON(&ack))
	assert.Equal(t, "success", ack.Status)
	assert.Equal(t, []string{"70002"}, ack.Accounts)

	hub.NotifyAccountStatus(statusEvent("user-1", "70001"))
	hub.NotifyAccountStatus(statusEvent("user-1", "70002"))

	var got models.AccountStatusEvent
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "70002", got.AccountNumber)
}

func TestInvalidMessages(t *testing.T) {
	hub := startHub(t)
	conn := dial(t, startServer(t, hub, "user-1"))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	var resp models.ErrorResponse
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Equal(t, "Invalid message format", resp.Error)

	require.NoError(t, conn.WriteJSON(models.SocketMessage{Action: "subscribe"}))
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Equal(t, "account_number is required", resp.Error)

	require.NoError(t, conn.WriteJSON(models.SocketMessage{Action: "dance"}))
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Equal(t, "Unknown action", resp.Error)
}

func TestClientRemovedOnClose(t *testing.T) {
	hub := startHub(t)
	conn := dial(t, startServer(t, hub, "user-1"))
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestNotifyAfterStopDoesNotBlock(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	for i := 0; i < broadcastBuffer+10; i++ {
		hub.NotifyAccountStatus(statusEvent("user-1", "70001"))
	}
	client := hub.RegisterClient("user-1", nil)
	select {
	case <-client.Done():
	default:
		t.Fatal("client registered on a stopped hub is not stopped")
	}
	assert.False(t, client.Deliver(models.ErrorResponse{Error: "late"}))
	hub.UnregisterClient(client)
}

func TestReplyAfterUnregisterIsDropped(t *testing.T) {
	hub := startHub(t)
	client := hub.RegisterClient("user-1", nil)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	hub.UnregisterClient(client)
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 10*time.Millisecond)

	assert.NotPanics(t, func() {
		reply(client, models.ErrorResponse{Error: "late"})
		reply(client, models.ErrorResponse{Error: "later"})
	})
	assert.Empty(t, client.Send)
	client.Stop()
}
