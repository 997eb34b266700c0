package ws

import (
	"context"
	"sync"

	"github.com/mehrbod2002/mtdesk/internal/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	logger "github.com/sirupsen/logrus"
)

const broadcastBuffer = 256

// Hub fans account status events out to the websocket clients of the
// owning user.
type Hub struct {
	clients map[string]*models.Client

	register chan *models.Client

	unregister chan *models.Client

	broadcast chan *models.AccountStatusEvent

	done chan struct{}

	mu sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*models.Client),
		register:   make(chan *models.Client),
		unregister: make(chan *models.Client),
		broadcast:  make(chan *models.AccountStatusEvent, broadcastBuffer),
		done:       make(chan struct{}),
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for id, client := range h.clients {
				delete(h.clients, id)
				client.Stop()
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				delete(h.clients, client.ID)
				client.Stop()
			}
			h.mu.Unlock()

		case event := <-h.broadcast:
			h.mu.RLock()
			for _, client := range h.clients {
				if !client.Wants(event) {
					continue
				}
				if !client.Deliver(event) {
					logger.WithField("client_id", client.ID).Warn("websocket client buffer full, skipping event")
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) RegisterClient(userID string, conn *websocket.Conn) *models.Client {
	client := models.NewClient(uuid.NewString(), userID, conn)
	select {
	case h.register <- client:
	case <-h.done:
		client.Stop()
	}
	return client
}

func (h *Hub) UnregisterClient(client *models.Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// NotifyAccountStatus queues an event without blocking the caller. Events
// are dropped when the hub is saturated or stopped.
func (h *Hub) NotifyAccountStatus(event *models.AccountStatusEvent) {
	select {
	case <-h.done:
		return
	default:
	}
	select {
	case h.broadcast <- event:
	default:
		logger.WithField("account_id", event.AccountID).Warn("status broadcast queue full, dropping event")
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
