package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zde37/chordkv/internal/chord"
	"github.com/zde37/chordkv/pkg"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512

	// Size of the send buffer per client
	sendBufferSize = 256
)

// Compile-time check to ensure WebSocketHub implements chord.RingUpdateBroadcaster
var _ chord.RingUpdateBroadcaster = (*WebSocketHub)(nil)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// client represents a connected WebSocket client.
type client struct {
	hub  *WebSocketHub
	conn *websocket.Conn
	send chan []byte // Buffered channel of outbound messages
}

// WebSocketHub fans ring updates out to connected WebSocket clients.
type WebSocketHub struct {
	// Registered clients
	clients map[*client]bool

	// Ring updates waiting to be fanned out
	broadcast chan []byte

	// Register requests from clients
	register chan *client

	// Unregister requests from clients
	unregister chan *client

	// Shutdown signal
	shutdown     chan struct{}
	shutdownOnce sync.Once

	// WaitGroup for graceful shutdown
	wg sync.WaitGroup

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex

	// Logger
	logger *pkg.Logger
}

// NewWebSocketHub creates a new WebSocket hub.
func NewWebSocketHub(logger *pkg.Logger) *WebSocketHub {
	if logger == nil {
		logger = pkg.NewNop()
	}
	return &WebSocketHub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		shutdown:   make(chan struct{}),
		logger:     logger.WithFields(pkg.Fields{"component": "ws_hub"}),
	}
}

// Start runs the hub loop in the background until Stop.
func (h *WebSocketHub) Start() {
	h.wg.Add(1)
	go h.run()
}

func (h *WebSocketHub) run() {
	defer h.wg.Done()

	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info().Int("total_clients", total).Msg("Client connected")

		case c := <-h.unregister:
			if h.remove(c) {
				h.logger.Info().Int("total_clients", h.ClientCount()).Msg("Client disconnected")
			}

		case message := <-h.broadcast:
			var slow []*client
			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.send <- message:
				default:
					slow = append(slow, c)
				}
			}
			h.mu.RUnlock()

			for _, c := range slow {
				h.logger.Warn().Msg("Client send buffer full, disconnecting slow client")
				h.remove(c)
			}

		case <-h.shutdown:
			h.logger.Info().Msg("Shutting down WebSocket hub")
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return
		}
	}
}

// remove unregisters c and closes its send channel; the write pump then
// closes the connection.
func (h *WebSocketHub) remove(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return false
	}
	delete(h.clients, c)
	close(c.send)
	return true
}

// Stop gracefully shuts down the WebSocket hub.
func (h *WebSocketHub) Stop() {
	h.shutdownOnce.Do(func() { close(h.shutdown) })
	h.wg.Wait()
}

// ClientCount returns the number of connected clients.
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// readPump pumps messages from the WebSocket connection to the hub.
// Inbound messages only keep the connection alive.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.shutdown:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn().Err(err).Msg("WebSocket unexpected close error")
			}
			return
		}
	}
}

// writePump pumps messages from the hub to the WebSocket connection.
// A goroutine running writePump is started for each connection.
// The application ensures that there is at most one writer to a connection
// by executing all writes from this goroutine.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// one event per frame keeps every frame valid JSON
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// HandleWebSocket upgrades the request and subscribes it to ring updates.
func (h *WebSocketHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to upgrade to websocket")
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}

	select {
	case h.register <- c:
	case <-h.shutdown:
		conn.Close()
		return
	}

	// Each client has exactly ONE writer goroutine (writePump)
	// and ONE reader goroutine (readPump)
	go c.writePump()
	go c.readPump()
}

// BroadcastRingUpdate queues a ring update for all connected clients. It
// never blocks; updates are dropped while the queue is full.
func (h *WebSocketHub) BroadcastRingUpdate(update any) error {
	data, err := json.Marshal(update)
	if err != nil {
		return err
	}

	select {
	case h.broadcast <- data:
	default:
		h.logger.Warn().Msg("Broadcast channel full, dropping message")
	}

	return nil
}
