package mtapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mehrbod2002/mtdesk/internal/models"
)

// flexFloat accepts numbers, numeric strings and null.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*f = 0
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("flexFloat %q: %w", s, err)
		}
		*f = flexFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

// flexInt accepts integers as numbers or strings without going through float64.
type flexInt int64

func (i *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*i = 0
		return nil
	}
	s := string(b)
	if b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*i = 0
			return nil
		}
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return fmt.Errorf("flexInt %q: %w", s, err)
		}
		v = int64(f)
	}
	*i = flexInt(v)
	return nil
}

// flexString accepts strings and bare scalars.
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*s = ""
		return nil
	}
	if b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	*s = flexString(b)
	return nil
}

type summaryWire struct {
	Balance         flexFloat  `json:"balance"`
	Equity          flexFloat  `json:"equity"`
	Margin          flexFloat  `json:"margin"`
	FreeMargin      flexFloat  `json:"freeMargin"`
	FreeMarginSnake flexFloat  `json:"free_margin"`
	MarginLevel     flexFloat  `json:"marginLevel"`
	Profit          flexFloat  `json:"profit"`
	Currency        string     `json:"currency"`
	Leverage        flexFloat  `json:"leverage"`
	Type            flexString `json:"type"`
}

type accountWire struct {
	Type     flexString `json:"type"`
	UserName string     `json:"userName"`
}

func mergeSummary(s summaryWire, a accountWire) models.AccountSummary {
	out := models.DefaultAccountSummary()
	out.Balance = float64(s.Balance)
	out.Equity = float64(s.Equity)
	out.Margin = float64(s.Margin)
	out.FreeMargin = float64(s.FreeMargin)
	if out.FreeMargin == 0 {
		out.FreeMargin = float64(s.FreeMarginSnake)
	}
	out.MarginLevel = float64(s.MarginLevel)
	out.Profit = float64(s.Profit)
	if s.Currency != "" {
		out.Currency = s.Currency
	}
	if s.Leverage > 0 {
		out.Leverage = int(s.Leverage)
	}
	switch {
	case a.Type != "":
		out.AccountType = string(a.Type)
	case s.Type != "":
		out.AccountType = string(s.Type)
	}
	out.RemoteUserName = strings.TrimSpace(a.UserName)
	return out
}

type orderWire struct {
	Ticket     flexInt    `json:"ticket"`
	Symbol     string     `json:"symbol"`
	Type       flexString `json:"type"`
	OrderType  flexString `json:"orderType"`
	DealType   flexString `json:"dealType"`
	Volume     flexFloat  `json:"volume"`
	Lots       flexFloat  `json:"lots"`
	OpenTime   string     `json:"openTime"`
	CloseTime  string     `json:"closeTime"`
	OpenPrice  flexFloat  `json:"openPrice"`
	ClosePrice flexFloat  `json:"closePrice"`
	StopLoss   flexFloat  `json:"stopLoss"`
	TakeProfit flexFloat  `json:"takeProfit"`
	Profit     flexFloat  `json:"profit"`
	Commission flexFloat  `json:"commission"`
	Fee        flexFloat  `json:"fee"`
	Swap       flexFloat  `json:"swap"`
	Comment    string     `json:"comment"`
}

func (w orderWire) direction() models.OrderType {
	for _, candidate := range []flexString{w.OrderType, w.Type, w.DealType} {
		v := strings.ToLower(string(candidate))
		switch {
		case v == "":
			continue
		case strings.Contains(v, "balance"), strings.Contains(v, "credit"):
			return models.OrderTypeBalance
		case strings.Contains(v, "buy"), v == "0":
			return models.OrderTypeBuy
		case strings.Contains(v, "sell"), v == "1":
			return models.OrderTypeSell
		case v == "6":
			return models.OrderTypeBalance
		}
	}
	return ""
}

func (w orderWire) toOrder(raw map[string]interface{}) models.Order {
	volume := float64(w.Volume)
	lots := float64(w.Lots)
	if volume == 0 {
		volume = lots
	}
	if lots == 0 {
		lots = volume
	}
	commission := float64(w.Commission)
	if commission == 0 {
		commission = float64(w.Fee)
	}
	return models.Order{
		Ticket:     int64(w.Ticket),
		Symbol:     w.Symbol,
		Type:       w.direction(),
		Volume:     volume,
		Lots:       lots,
		OpenTime:   parseBridgeTime(w.OpenTime),
		CloseTime:  parseBridgeTime(w.CloseTime),
		OpenPrice:  float64(w.OpenPrice),
		ClosePrice: float64(w.ClosePrice),
		Profit:     float64(w.Profit),
		Commission: commission,
		Swap:       float64(w.Swap),
		Raw:        raw,
	}
}

func (w orderWire) toPosition() models.Position {
	o := w.toOrder(nil)
	return models.Position{
		Ticket:     o.Ticket,
		Symbol:     o.Symbol,
		Type:       o.Type,
		Lots:       o.Lots,
		OpenTime:   o.OpenTime,
		OpenPrice:  o.OpenPrice,
		StopLoss:   float64(w.StopLoss),
		TakeProfit: float64(w.TakeProfit),
		Profit:     o.Profit,
		Swap:       o.Swap,
		Commission: o.Commission,
		Comment:    w.Comment,
	}
}

var bridgeTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006.01.02 15:04:05",
}

// parseBridgeTime returns nil for empty values and for the epoch placeholders
// MetaTrader uses on orders that are still open.
func parseBridgeTime(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range bridgeTimeLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		if t.Year() <= 1970 {
			return nil
		}
		t = t.UTC()
		return &t
	}
	return nil
}

// decodeOrderList accepts `[...]` and `{"orders": [...]}`.
func decodeOrderList(body []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return nil, nil
	}
	var items []json.RawMessage
	if trimmed[0] == '{' {
		var wrapped struct {
			Orders []json.RawMessage `json:"orders"`
		}
		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			return nil, err
		}
		return wrapped.Orders, nil
	}
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func decodeOrders(body []byte) ([]models.Order, error) {
	items, err := decodeOrderList(body)
	if err != nil {
		return nil, err
	}
	orders := make([]models.Order, 0, len(items))
	for _, item := range items {
		var w orderWire
		if err := json.Unmarshal(item, &w); err != nil {
			return nil, err
		}
		var raw map[string]interface{}
		if err := json.Unmarshal(item, &raw); err != nil {
			return nil, err
		}
		orders = append(orders, w.toOrder(raw))
	}
	return orders, nil
}

func decodePositions(body []byte) ([]models.Position, error) {
	items, err := decodeOrderList(body)
	if err != nil {
		return nil, err
	}
	positions := make([]models.Position, 0, len(items))
	for _, item := range items {
		var w orderWire
		if err := json.Unmarshal(item, &w); err != nil {
			return nil, err
		}
		positions = append(positions, w.toPosition())
	}
	return positions, nil
}
