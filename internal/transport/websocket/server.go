package websocket

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	// Mobile clients send no Origin; browsers are filtered by CORS upstream.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub fans notification messages out to every open connection of a user.
type Hub struct {
	connections map[int64]map[*Connection]bool

	register   chan *Connection
	unregister chan *Connection

	broadcast chan *Message

	// done is closed when Run returns so pumps never block on a dead hub.
	done chan struct{}

	log *zap.Logger
	mu  sync.RWMutex
}

type Connection struct {
	ws     *websocket.Conn
	userID int64
	send   chan *Message
	hub    *Hub
}

type Message struct {
	UserID  int64  `json:"user_id,omitempty"`
	Type    string `json:"type"`
	Channel string `json:"channel,omitempty"`
	Data    any    `json:"data"`
	SentAt  int64  `json:"sent_at,omitempty"`
}

func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		connections: make(map[int64]map[*Connection]bool),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		broadcast:   make(chan *Message, 256),
		done:        make(chan struct{}),
		log:         log,
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.RLock()
			var conns []*Connection
			for _, m := range h.connections {
				for c := range m {
					conns = append(conns, c)
				}
			}
			h.mu.RUnlock()

			// closed outside the lock so pumps can unregister
			for _, c := range conns {
				_ = c.ws.Close()
			}
			return

		case conn := <-h.register:
			h.mu.Lock()
			if h.connections[conn.userID] == nil {
				h.connections[conn.userID] = make(map[*Connection]bool)
			}
			h.connections[conn.userID][conn] = true
			h.mu.Unlock()
			h.log.Debug("websocket registered", zap.Int64("user_id", conn.userID))

		case conn := <-h.unregister:
			h.mu.Lock()
			h.drop(conn)
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for conn := range h.connections[message.UserID] {
				select {
				case conn.send <- message:
				default:
					h.log.Warn("websocket send buffer full, dropping connection", zap.Int64("user_id", conn.userID))
					h.drop(conn)
				}
			}
			h.mu.Unlock()
		}
	}
}

// drop must be called with mu held.
func (h *Hub) drop(conn *Connection) {
	connections, ok := h.connections[conn.userID]
	if !ok {
		return
	}
	if _, exists := connections[conn]; !exists {
		return
	}
	delete(connections, conn)
	close(conn.send)
	if len(connections) == 0 {
		delete(h.connections, conn.userID)
	}
}

// Broadcast queues message for every connection of userID. It never blocks;
// when the queue is full the message is dropped.
func (h *Hub) Broadcast(userID int64, message *Message) {
	message.UserID = userID
	if message.SentAt == 0 {
		message.SentAt = time.Now().Unix()
	}
	select {
	case h.broadcast <- message:
	default:
		h.log.Warn("hub broadcast queue full, dropping message",
			zap.Int64("user_id", userID), zap.String("type", message.Type))
	}
}

// ConnectedUsers lists users with at least one open connection.
func (h *Hub) ConnectedUsers() []int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	users := make([]int64, 0, len(h.connections))
	for id := range h.connections {
		users = append(users, id)
	}
	return users
}

func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request, userID int64) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	conn := &Connection{
		ws:     ws,
		userID: userID,
		send:   make(chan *Message, 64),
		hub:    h,
	}

	select {
	case h.register <- conn:
	case <-h.done:
		_ = ws.Close()
		return
	}

	go conn.writePump()
	go conn.readPump()
}

const (
	writeWait = 10 * time.Second

	pongWait = 60 * time.Second

	pingPeriod = (pongWait * 9) / 10
)

func (c *Connection) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.ws.Close()
	}()

	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug("websocket read error", zap.Int64("user_id", c.userID), zap.Error(err))
			}
			return
		}
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteJSON(message); err != nil {
				c.hub.log.Debug("websocket write failed", zap.Int64("user_id", c.userID), zap.Error(err))
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
