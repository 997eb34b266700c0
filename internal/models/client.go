package models

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client is a websocket subscriber bound to one user. An empty account set
// means every account of that user.
type Client struct {
	ID     string
	UserID string
	Conn   *websocket.Conn
	// Send feeds the single writer goroutine; nothing else writes to Conn.
	// It is never closed; Done reports that the client was dropped.
	Send       chan interface{}
	Accounts   map[string]bool
	AccountsMu sync.RWMutex

	done     chan struct{}
	stopOnce sync.Once
}

type AccountStatusEvent struct {
	Type           string           `json:"type"`
	UserID         string           `json:"user_id"`
	AccountID      string           `json:"account_id"`
	AccountNumber  string           `json:"account_number"`
	Status         ConnectionStatus `json:"connection_status"`
	SessionChanged bool             `json:"session_changed"`
	Error          string           `json:"error,omitempty"`
	Timestamp      time.Time        `json:"timestamp"`
}

func NewClient(id, userID string, conn *websocket.Conn) *Client {
	return &Client{
		ID:       id,
		UserID:   userID,
		Conn:     conn,
		Send:     make(chan interface{}, 64),
		Accounts: make(map[string]bool),
		done:     make(chan struct{}),
	}
}

func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Stop marks the client as dropped. Safe to call more than once.
func (c *Client) Stop() {
	c.stopOnce.Do(func() { close(c.done) })
}

// Deliver queues msg for the writer without blocking. It reports false when
// the client is stopped or its buffer is full.
func (c *Client) Deliver(msg interface{}) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.Send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) Subscribe(accountNumber string) {
	c.AccountsMu.Lock()
	c.Accounts[accountNumber] = true
	c.AccountsMu.Unlock()
}

func (c *Client) Unsubscribe(accountNumber string) {
	c.AccountsMu.Lock()
	delete(c.Accounts, accountNumber)
	c.AccountsMu.Unlock()
}

func (c *Client) Subscriptions() []string {
	c.AccountsMu.RLock()
	defer c.AccountsMu.RUnlock()
	out := make([]string, 0, len(c.Accounts))
	for number := range c.Accounts {
		out = append(out, number)
	}
	return out
}

func (c *Client) Wants(event *AccountStatusEvent) bool {
	if event.UserID != c.UserID {
		return false
	}
	c.AccountsMu.RLock()
	defer c.AccountsMu.RUnlock()
	if len(c.Accounts) == 0 {
		return true
	}
	return c.Accounts[event.AccountNumber]
}

type SocketMessage struct {
	Action        string `json:"action"`
	AccountNumber string `json:"account_number"`
}

type SubscriptionResponse struct {
	Status   string   `json:"status"`
	Message  string   `json:"message"`
	UserID   string   `json:"user_id"`
	Accounts []string `json:"accounts,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
