package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Platform string

const (
	PlatformMT4 Platform = "MT4"
	PlatformMT5 Platform = "MT5"
)

func (p Platform) Valid() bool {
	return p == PlatformMT4 || p == PlatformMT5
}

type ConnectionStatus string

const (
	ConnectionStatusPending      ConnectionStatus = "pending"
	ConnectionStatusConnected    ConnectionStatus = "connected"
	ConnectionStatusDisconnected ConnectionStatus = "disconnected"
	ConnectionStatusError        ConnectionStatus = "error"
)

// TradingAccount is a user's broker account registered with the bridge.
// BridgeSessionID is empty until the first successful connect.
type TradingAccount struct {
	ID               primitive.ObjectID `json:"_id,omitempty" bson:"_id,omitempty"`
	UserID           primitive.ObjectID `json:"user_id" bson:"user_id"`
	AccountNumber    string             `json:"account_number" bson:"account_number"`
	ServerName       string             `json:"server_name" bson:"server_name"`
	Platform         Platform           `json:"platform" bson:"platform"`
	Password         string             `json:"-" bson:"password"`
	BridgeSessionID  string             `json:"-" bson:"bridge_session_id"`
	ConnectionStatus ConnectionStatus   `json:"connection_status" bson:"connection_status"`
	AccountSummary   AccountSummary     `json:"account_summary" bson:"account_summary"`
	LastSyncAt       *time.Time         `json:"last_sync_at,omitempty" bson:"last_sync_at,omitempty"`
	IsActive         bool               `json:"is_active" bson:"is_active"`
	CreatedAt        time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at" bson:"updated_at"`
}

func (a *TradingAccount) HasSession() bool {
	return a.BridgeSessionID != ""
}

// AccountSummary is the cached bridge snapshot. It may be stale.
type AccountSummary struct {
	Balance        float64 `json:"balance" bson:"balance"`
	Equity         float64 `json:"equity" bson:"equity"`
	Margin         float64 `json:"margin" bson:"margin"`
	FreeMargin     float64 `json:"free_margin" bson:"free_margin"`
	MarginLevel    float64 `json:"margin_level" bson:"margin_level"`
	Currency       string  `json:"currency" bson:"currency"`
	Leverage       int     `json:"leverage" bson:"leverage"`
	Profit         float64 `json:"profit" bson:"profit"`
	AccountType    string  `json:"account_type" bson:"account_type"`
	RemoteUserName string  `json:"remote_user_name,omitempty" bson:"remote_user_name,omitempty"`
}

func DefaultAccountSummary() AccountSummary {
	return AccountSummary{Currency: "USD", Leverage: 100, AccountType: "Demo"}
}
