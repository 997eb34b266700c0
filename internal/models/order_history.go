package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type OrderType string

const (
	OrderTypeBuy     OrderType = "buy"
	OrderTypeSell    OrderType = "sell"
	OrderTypeBalance OrderType = "balance"
)

// Order is a single historical deal keyed by the broker ticket.
type Order struct {
	Ticket     int64                  `json:"ticket" bson:"ticket"`
	Symbol     string                 `json:"symbol" bson:"symbol"`
	Type       OrderType              `json:"type" bson:"type"`
	Volume     float64                `json:"volume" bson:"volume"`
	Lots       float64                `json:"lots" bson:"lots"`
	OpenTime   *time.Time             `json:"open_time,omitempty" bson:"open_time,omitempty"`
	CloseTime  *time.Time             `json:"close_time,omitempty" bson:"close_time,omitempty"`
	OpenPrice  float64                `json:"open_price" bson:"open_price"`
	ClosePrice float64                `json:"close_price" bson:"close_price"`
	Profit     float64                `json:"profit" bson:"profit"`
	Commission float64                `json:"commission" bson:"commission"`
	Swap       float64                `json:"swap" bson:"swap"`
	Raw        map[string]interface{} `json:"raw,omitempty" bson:"raw,omitempty"`
}

type OrderHistory struct {
	ID        primitive.ObjectID `json:"_id,omitempty" bson:"_id,omitempty"`
	AccountID primitive.ObjectID `json:"account_id" bson:"account_id"`
	Orders    []Order            `json:"orders" bson:"orders"`
	Version   int64              `json:"version" bson:"version"`
	CreatedAt time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time          `json:"updated_at" bson:"updated_at"`
}

// MergeOrders appends the fetched orders whose ticket is not already stored.
// Stored orders are never overwritten; duplicates inside fetched are dropped
// after their first occurrence.
func MergeOrders(stored, fetched []Order) (merged []Order, added int) {
	seen := make(map[int64]struct{}, len(stored)+len(fetched))
	merged = make([]Order, 0, len(stored)+len(fetched))
	for _, o := range stored {
		seen[o.Ticket] = struct{}{}
		merged = append(merged, o)
	}
	for _, o := range fetched {
		if _, ok := seen[o.Ticket]; ok {
			continue
		}
		seen[o.Ticket] = struct{}{}
		merged = append(merged, o)
		added++
	}
	return merged, added
}

// DedupOrders keeps the first occurrence of every ticket.
func DedupOrders(orders []Order) []Order {
	out, _ := MergeOrders(nil, orders)
	return out
}
