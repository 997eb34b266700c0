package ws

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/mehrbod2002/mtdesk/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	logger "github.com/sirupsen/logrus"
)

const (
	writeWait = 10 * time.Second

	pongWait = 60 * time.Second

	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type WebSocketHandler struct {
	hub *Hub
}

func NewWebSocketHandler(hub *Hub) *WebSocketHandler {
	return &WebSocketHandler{hub: hub}
}

// HandleConnection upgrades an authenticated request. Clients receive every
// status event of their accounts until they subscribe to specific ones.
// @Summary Account status stream
// @Description Streams connection status changes of the user's trading accounts
// @Tags WebSocket
// @Security BearerAuth
// @Router /ws [get]
func (h *WebSocketHandler) HandleConnection(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.WithError(err).Debug("websocket upgrade failed")
		return
	}

	client := h.hub.RegisterClient(userID, conn)

	go h.readPump(client)
	go h.writePump(client)
}

func reply(client *models.Client, msg interface{}) {
	if !client.Deliver(msg) {
		logger.WithField("client_id", client.ID).Debug("dropping websocket reply")
	}
}

func (h *WebSocketHandler) readPump(client *models.Client) {
	defer func() {
		h.hub.UnregisterClient(client)
	}()

	client.Conn.SetReadLimit(maxMessageSize)
	client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	client.Conn.SetPongHandler(func(string) error {
		client.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := client.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.WithField("client_id", client.ID).WithError(err).Warn("websocket closed unexpectedly")
			}
			break
		}

		var socketMsg models.SocketMessage
		if err := json.Unmarshal(message, &socketMsg); err != nil {
			reply(client, models.ErrorResponse{Error: "Invalid message format"})
			continue
		}

		switch socketMsg.Action {
		case "subscribe":
			if socketMsg.AccountNumber == "" {
				reply(client, models.ErrorResponse{Error: "account_number is required"})
				continue
			}
			client.Subscribe(socketMsg.AccountNumber)
			reply(client, models.SubscriptionResponse{
				Status:   "success",
				Message:  "Subscribed to " + socketMsg.AccountNumber,
				UserID:   client.UserID,
				Accounts: client.Subscriptions(),
			})

		case "unsubscribe":
			client.Unsubscribe(socketMsg.AccountNumber)
			reply(client, models.SubscriptionResponse{
				Status:   "success",
				Message:  "Unsubscribed from " + socketMsg.AccountNumber,
				UserID:   client.UserID,
				Accounts: client.Subscriptions(),
			})

		default:
			reply(client, models.ErrorResponse{Error: "Unknown action"})
		}
	}
}

func (h *WebSocketHandler) writePump(client *models.Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Conn.Close()
	}()

	for {
		select {
		case <-client.Done():
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			client.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case msg := <-client.Send:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn.WriteJSON(msg); err != nil {
				return
			}

		case <-ticker.C:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
