package main

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait    = 10 * time.Second
	pingInterval = 30 * time.Second
	pongWait     = 60 * time.Second
	// clients never send payloads, only control frames
	maxClientMessage = 512
	sendBuffer       = 256
)

// hubClient is one open push channel connection
type hubClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// hub fans push events out to every connected client
type hub struct {
	mu       sync.Mutex
	clients  map[*hubClient]struct{}
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func newHub(logger *slog.Logger) *hub {
	return &hub{
		clients: make(map[*hubClient]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: logger,
	}
}

// serveWS upgrades the request and blocks until the client goes away
func (h *hub) serveWS(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		h.logger.Warn("Failed to upgrade push channel", "error", err)
		return
	}

	c := &hubClient{id: uuid.New().String(), conn: ws, send: make(chan []byte, sendBuffer)}
	count := h.register(c)
	h.logger.Info("Accepted push channel connection", "conn_id", c.id, "remote", r.RemoteAddr, "connections", count)

	go h.writePump(c)
	h.readPump(c)

	count = h.unregister(c)
	h.logger.Info("Push channel connection closed", "conn_id", c.id, "connections", count)
}

func (h *hub) register(c *hubClient) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	serverConnections.Set(float64(len(h.clients)))
	return len(h.clients)
}

// unregister removes c and closes its send channel, once
func (h *hub) unregister(c *hubClient) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(c)
	return len(h.clients)
}

func (h *hub) dropLocked(c *hubClient) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	serverConnections.Set(float64(len(h.clients)))
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// broadcast sends evt to every client. A client whose buffer is full is
// dropped rather than allowed to stall everyone else.
func (h *hub) broadcast(evt Event) {
	payload, err := encodeEvent(evt)
	if err != nil {
		h.logger.Error("Error serializing push event", "type", evt.Type, "path", evt.Path, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	serverBroadcastsTotal.WithLabelValues(evt.Type.String()).Inc()
	h.logger.Debug("Broadcasting push event", "type", evt.Type, "path", evt.Path, "connections", len(h.clients))

	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			h.logger.Warn("Dropping slow push channel client", "conn_id", c.id)
			serverDroppedClientsTotal.Inc()
			h.dropLocked(c)
		}
	}
}

// closeAll drops every client; their write pumps send a close frame
func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.dropLocked(c)
	}
}

func (h *hub) writePump(c *hubClient) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				h.logger.Debug("Error writing push event", "conn_id", c.id, "error", err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.logger.Debug("Error writing ping", "conn_id", c.id, "error", err)
				return
			}
		}
	}
}

// readPump discards client payloads and keeps the read deadline fresh
func (h *hub) readPump(c *hubClient) {
	c.conn.SetReadLimit(maxClientMessage)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("Push channel read error", "conn_id", c.id, "error", err)
			}
			return
		}
	}
}
