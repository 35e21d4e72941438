package analysisfeed

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mohamedkhairy/session-orchestrator/pkg/logger"
)

// Connection is one connected analysis-engine client.
type Connection struct {
	ID            string
	Conn          *websocket.Conn
	Send          chan []byte
	subscriptions map[string]bool // symbol -> subscribed; empty means "all"

	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
	lastPong  time.Time
	createdAt time.Time
}

// NewConnection wraps a raw websocket connection.
func NewConnection(id string, conn *websocket.Conn) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		ID:            id,
		Conn:          conn,
		Send:          make(chan []byte, 256),
		subscriptions: make(map[string]bool),
		ctx:           ctx,
		cancel:        cancel,
		createdAt:     time.Now(),
		lastPong:      time.Now(),
	}
}

// Subscribe narrows this connection's feed to symbol.
func (c *Connection) Subscribe(symbol string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscriptions[symbol] = true
}

// Unsubscribe removes symbol from this connection's filter.
func (c *Connection) Unsubscribe(symbol string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subscriptions, symbol)
}

// ShouldReceive reports whether this connection wants events for symbol. A
// connection with no subscriptions receives every symbol's events.
func (c *Connection) ShouldReceive(symbol string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.subscriptions) == 0 {
		return true
	}
	return c.subscriptions[symbol]
}

// UpdateLastPong records a pong for the stale-connection monitor.
func (c *Connection) UpdateLastPong() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastPong = time.Now()
}

// LastPong returns the last recorded pong time.
func (c *Connection) LastPong() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastPong
}

// Close tears down the connection's goroutines and the socket itself.
func (c *Connection) Close() {
	c.cancel()
	close(c.Send)
	c.Conn.Close()
}

// SendEvent enqueues an event for delivery, dropping it if the connection's
// send buffer is full rather than blocking the broadcaster.
func (c *Connection) SendEvent(e Event) {
	data, err := marshalEvent(e)
	if err != nil {
		logger.Warn("analysisfeed: marshal event failed", logger.ErrorField(err))
		return
	}
	select {
	case c.Send <- data:
	case <-c.ctx.Done():
	default:
		logger.Warn("analysisfeed: send buffer full, dropping event",
			logger.String("connection_id", c.ID), logger.String("symbol", e.Symbol))
	}
}

// HandleClientMessage processes one inbound message from the client.
func (c *Connection) HandleClientMessage(raw []byte) error {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return c.writeJSON(ServerMessage{Type: "error", Code: "invalid_message", Message: "failed to parse message"})
	}

	switch msg.Type {
	case "subscribe":
		if msg.Symbol != "" {
			c.Subscribe(msg.Symbol)
		}
		for _, s := range msg.Symbols {
			c.Subscribe(s)
		}
		return c.writeJSON(ServerMessage{Type: "success", Data: map[string]string{"action": "subscribed"}})
	case "unsubscribe":
		if msg.Symbol != "" {
			c.Unsubscribe(msg.Symbol)
		}
		for _, s := range msg.Symbols {
			c.Unsubscribe(s)
		}
		return c.writeJSON(ServerMessage{Type: "success", Data: map[string]string{"action": "unsubscribed"}})
	case "ping":
		return c.writeJSON(ServerMessage{Type: "pong"})
	default:
		return c.writeJSON(ServerMessage{Type: "error", Code: "unknown_message_type", Message: msg.Type})
	}
}

func (c *Connection) writeJSON(v interface{}) error {
	c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.Conn.WriteJSON(v)
}
