package analysisfeed

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mohamedkhairy/session-orchestrator/pkg/logger"
)

// Hub manages connected analysis-engine websocket clients and broadcasts
// bar/indicator/promotion events to them. It adapts a connection-registry
// hub pattern, minus the Redis-stream consumption half: events here are
// pushed in-process by the coordinator/data processor rather than consumed
// from a broker, since the feed is an internal fan-out, not a cross-service
// bus.
type Hub struct {
	auth         *AuthManager
	readTimeout  time.Duration
	writeTimeout time.Duration
	pingInterval time.Duration

	upgrader websocket.Upgrader

	mu    sync.RWMutex
	conns map[string]*Connection

	stop chan struct{}
	wg   sync.WaitGroup
}

// HubConfig configures timeouts and buffer sizes.
type HubConfig struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PingInterval time.Duration
	JWTSecret    string
}

// NewHub builds a Hub. Call Start to begin the stale-connection monitor.
func NewHub(cfg HubConfig) *Hub {
	return &Hub{
		auth:         NewAuthManager(cfg.JWTSecret),
		readTimeout:  orDefault(cfg.ReadTimeout, 60*time.Second),
		writeTimeout: orDefault(cfg.WriteTimeout, 10*time.Second),
		pingInterval: orDefault(cfg.PingInterval, 30*time.Second),
		upgrader:     websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		conns:        make(map[string]*Connection),
		stop:         make(chan struct{}),
	}
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

// Start launches the stale-connection monitor.
func (h *Hub) Start() {
	h.wg.Add(1)
	go h.monitorConnections()
}

// Stop tears down every connection and the monitor goroutine.
func (h *Hub) Stop() {
	close(h.stop)
	h.wg.Wait()

	h.mu.Lock()
	for id, conn := range h.conns {
		conn.Close()
		delete(h.conns, id)
	}
	h.mu.Unlock()
}

// ServeHTTP upgrades an HTTP request to a websocket connection and registers
// it with the hub. The optional Authorization header is validated if a JWT
// secret is configured.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		token, err := h.auth.ExtractTokenFromHeader(authHeader)
		if err == nil {
			if _, err := h.auth.ValidateToken(token); err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
		}
	}

	raw, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("analysisfeed: upgrade failed", logger.ErrorField(err))
		return
	}

	conn := NewConnection(uuid.NewString(), raw)
	h.register(conn)

	h.wg.Add(2)
	go h.writePump(conn)
	go h.readPump(conn)
}

func (h *Hub) register(conn *Connection) {
	h.mu.Lock()
	h.conns[conn.ID] = conn
	h.mu.Unlock()
	logger.Info("analysisfeed: connection registered", logger.String("connection_id", conn.ID))
}

func (h *Hub) unregister(conn *Connection) {
	h.mu.Lock()
	if _, ok := h.conns[conn.ID]; ok {
		delete(h.conns, conn.ID)
		conn.Close()
	}
	h.mu.Unlock()
	logger.Info("analysisfeed: connection unregistered", logger.String("connection_id", conn.ID))
}

// Broadcast sends e to every connection subscribed to e.Symbol (or to every
// connection, if it has no symbol filter). Never blocks on a slow consumer.
func (h *Hub) Broadcast(e Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, conn := range h.conns {
		if conn.ShouldReceive(e.Symbol) {
			conn.SendEvent(e)
		}
	}
}

// ConnectionCount returns the number of currently registered connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) writePump(conn *Connection) {
	defer h.wg.Done()
	defer h.unregister(conn)

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stop:
			return
		case message, ok := <-conn.Send:
			conn.Conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if !ok {
				conn.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			conn.Conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err := conn.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) readPump(conn *Connection) {
	defer h.wg.Done()
	defer h.unregister(conn)

	conn.Conn.SetReadDeadline(time.Now().Add(h.readTimeout))
	conn.Conn.SetPongHandler(func(string) error {
		conn.UpdateLastPong()
		conn.Conn.SetReadDeadline(time.Now().Add(h.readTimeout))
		return nil
	})

	for {
		_, message, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Debug("analysisfeed: read error", logger.ErrorField(err), logger.String("connection_id", conn.ID))
			}
			return
		}
		if err := conn.HandleClientMessage(message); err != nil {
			logger.Debug("analysisfeed: client message handling failed", logger.ErrorField(err), logger.String("connection_id", conn.ID))
		}
	}
}

func (h *Hub) monitorConnections() {
	defer h.wg.Done()
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-h.stop:
			return
		case <-ticker.C:
			staleThreshold := h.readTimeout * 2
			now := time.Now()

			h.mu.RLock()
			var stale []*Connection
			for _, conn := range h.conns {
				if now.Sub(conn.LastPong()) > staleThreshold {
					stale = append(stale, conn)
				}
			}
			h.mu.RUnlock()

			for _, conn := range stale {
				logger.Info("analysisfeed: removing stale connection", logger.String("connection_id", conn.ID))
				h.unregister(conn)
			}
		}
	}
}
