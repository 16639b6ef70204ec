package webui

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"smartnotes/handlers"
	"smartnotes/logging"
)

// wsMessage is the envelope for every message pushed over the socket.
type wsMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// Hub manages websocket clients and broadcasts progress events to them.
// It implements handlers.ProgressSink so the orchestrator's progress
// reporter can publish straight into it.
type Hub struct {
	clients   map[*websocket.Conn]chan []byte
	clientsMu sync.RWMutex

	broadcast  chan wsMessage
	register   chan *websocket.Conn
	unregister chan *websocket.Conn

	upgrader websocket.Upgrader
	log      *logging.Logger
}

const (
	wsPingInterval   = 30 * time.Second
	wsPongWait       = 60 * time.Second
	wsWriteWait      = 10 * time.Second
	wsMaxMessageSize = 512
	wsSendBuffer     = 64
)

// NewHub creates a Hub. Call Run to start the broadcast loop.
func NewHub(log *logging.Logger) *Hub {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Hub{
		clients:    make(map[*websocket.Conn]chan []byte),
		broadcast:  make(chan wsMessage, 256),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		log:        log.Named("ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Same-origin deployment; the UI is served by this process.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Publish implements handlers.ProgressSink.
func (h *Hub) Publish(event handlers.ProgressEvent) {
	h.Broadcast(wsMessage{Type: "progress", Data: event})
}

// Broadcast queues a message for all connected clients. Non-blocking;
// drops the message if the broadcast buffer is full.
func (h *Hub) Broadcast(msg wsMessage) {
	select {
	case h.broadcast <- msg:
	default:
		h.log.Warnw("broadcast buffer full, dropping message", "type", msg.Type)
	}
}

// Run processes registrations, broadcasts, and pings until ctx is
// cancelled.
func (h *Hub) Run(ctx context.Context) {
	pingTicker := time.NewTicker(wsPingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case conn := <-h.register:
			h.addClient(conn)
		case conn := <-h.unregister:
			h.removeClient(conn)
		case msg := <-h.broadcast:
			h.broadcastToAll(msg)
		case <-pingTicker.C:
			h.pingAll()
		}
	}
}

// HandleConnection upgrades an HTTP request to a websocket and manages
// the client lifecycle.
func (h *Hub) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnw("websocket upgrade failed", "remote", r.RemoteAddr, "error", err.Error())
		return
	}

	conn.SetReadLimit(wsMaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	h.register <- conn
	go h.readPump(conn)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

func (h *Hub) addClient(conn *websocket.Conn) {
	h.clientsMu.Lock()
	send := make(chan []byte, wsSendBuffer)
	h.clients[conn] = send
	total := len(h.clients)
	h.clientsMu.Unlock()

	go h.writePump(conn, send)
	h.log.Debugw("client connected", "remote", conn.RemoteAddr().String(), "total", total)
}

func (h *Hub) removeClient(conn *websocket.Conn) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()

	if send, ok := h.clients[conn]; ok {
		close(send)
		delete(h.clients, conn)
		conn.Close()
	}
}

func (h *Hub) broadcastToAll(msg wsMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Errorw("broadcast marshal failed", "error", err.Error())
		return
	}

	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	for conn, send := range h.clients {
		select {
		case send <- data:
		default:
			// Slow client; drop it rather than block the hub.
			go func(c *websocket.Conn) { h.unregister <- c }(conn)
		}
	}
}

func (h *Hub) pingAll() {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	for conn := range h.clients {
		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
			go func(c *websocket.Conn) { h.unregister <- c }(conn)
		}
	}
}

func (h *Hub) closeAll() {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	for conn, send := range h.clients {
		close(send)
		conn.Close()
		delete(h.clients, conn)
	}
}

// readPump drains client messages; the UI never sends anything
// meaningful, so this only services pongs and close frames.
func (h *Hub) readPump(conn *websocket.Conn) {
	defer func() { h.unregister <- conn }()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Debugw("unexpected websocket close", "error", err.Error())
			}
			return
		}
	}
}

func (h *Hub) writePump(conn *websocket.Conn, send <-chan []byte) {
	defer conn.Close()
	for message := range send {
		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	conn.WriteMessage(websocket.CloseMessage, []byte{})
}
