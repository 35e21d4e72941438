// Package analysisfeed implements the AnalysisSubscription transport
// (spec.md §6.4): a websocket fan-out broadcasting bar, indicator, and
// promotion events to any number of external analysis-engine consumers.
// Decoupled from the internal DP subscription and without a handshake mode
// of its own — a slow or absent analysis consumer never blocks the session.
//
// Builds on a Hub/Connection/AuthManager websocket fan-out, generalized from
// single-purpose alert broadcast to a small typed event envelope
// (bar | indicator | promotion), per SPEC_FULL.md §6.4a.
package analysisfeed

import (
	"encoding/json"
	"time"
)

// EventType identifies the kind of payload an Event carries.
type EventType string

const (
	EventBar       EventType = "bar"
	EventIndicator EventType = "indicator"
	EventPromotion EventType = "promotion"
)

// Event is the server-to-client message broadcast over the feed.
type Event struct {
	Type      EventType   `json:"type"`
	Symbol    string      `json:"symbol"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// BarEvent is the Data payload for EventBar.
type BarEvent struct {
	Interval string  `json:"interval"`
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	Volume   int64   `json:"volume"`
}

// IndicatorEvent is the Data payload for EventIndicator.
type IndicatorEvent struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// PromotionEvent is the Data payload for EventPromotion.
type PromotionEvent struct {
	Source string `json:"source"` // scanner name or "config"
}

// ClientMessage is a message received from an analysis-engine client.
type ClientMessage struct {
	Type    string   `json:"type"` // "subscribe" | "unsubscribe" | "ping"
	Symbol  string   `json:"symbol,omitempty"`
	Symbols []string `json:"symbols,omitempty"`
}

// ServerMessage is an ack/error message sent back to a client.
type ServerMessage struct {
	Type    string      `json:"type"`
	Data    interface{} `json:"data,omitempty"`
	Code    string      `json:"code,omitempty"`
	Message string      `json:"message,omitempty"`
}

func marshalEvent(e Event) ([]byte, error) {
	return json.Marshal(e)
}
