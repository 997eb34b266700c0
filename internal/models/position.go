package models

import "time"

// Position is an order still open on the trade server.
type Position struct {
	Ticket     int64      `json:"ticket"`
	Symbol     string     `json:"symbol"`
	Type       OrderType  `json:"type"`
	Lots       float64    `json:"lots"`
	OpenTime   *time.Time `json:"open_time,omitempty"`
	OpenPrice  float64    `json:"open_price"`
	StopLoss   float64    `json:"stop_loss"`
	TakeProfit float64    `json:"take_profit"`
	Profit     float64    `json:"profit"`
	Swap       float64    `json:"swap"`
	Commission float64    `json:"commission"`
	Comment    string     `json:"comment,omitempty"`
}
