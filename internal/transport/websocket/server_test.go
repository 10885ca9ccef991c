package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func startHub(t *testing.T) (*Hub, *httptest.Server, context.CancelFunc) {
	t.Helper()
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
		if err != nil {
			userID = 1
		}
		hub.HandleWebSocket(w, r, userID)
	}))
	t.Cleanup(server.Close)
	t.Cleanup(cancel)
	return hub, server, cancel
}

func dial(t *testing.T, server *httptest.Server, userID int64) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + server.URL[4:] + "?user_id=" + strconv.FormatInt(userID, 10)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHub_RegisterAndUnregister(t *testing.T) {
	hub, server, _ := startHub(t)
	conn := dial(t, server, 1)

	time.Sleep(100 * time.Millisecond)

	hub.mu.RLock()
	connections, exists := hub.connections[1]
	hub.mu.RUnlock()
	if !exists || len(connections) != 1 {
		t.Fatalf("expected 1 registered connection, got %d", len(connections))
	}

	conn.Close()
	time.Sleep(100 * time.Millisecond)

	hub.mu.RLock()
	_, exists = hub.connections[1]
	hub.mu.RUnlock()
	if exists {
		t.Fatal("connection should be unregistered")
	}
}

func TestHub_Broadcast(t *testing.T) {
	hub, server, _ := startHub(t)
	conn := dial(t, server, 1)
	time.Sleep(100 * time.Millisecond)

	hub.Broadcast(1, &Message{
		Type:    "payment_verified",
		Channel: "payments#1",
		Data:    map[string]any{"reference": "ref-1"},
	})

	conn.SetReadDeadline(time.Now().Add(time.Second))
	var received Message
	if err := conn.ReadJSON(&received); err != nil {
		t.Fatalf("failed to read message: %v", err)
	}

	if received.Type != "payment_verified" {
		t.Errorf("expected type payment_verified, got %q", received.Type)
	}
	if received.Channel != "payments#1" {
		t.Errorf("expected channel payments#1, got %q", received.Channel)
	}
	if received.UserID != 1 {
		t.Errorf("expected user 1, got %d", received.UserID)
	}
	if received.SentAt == 0 {
		t.Error("expected sent_at to be stamped")
	}
}

func TestHub_MultipleConnections(t *testing.T) {
	hub, server, _ := startHub(t)

	var conns []*websocket.Conn
	for i := 0; i < 3; i++ {
		conns = append(conns, dial(t, server, 1))
	}
	time.Sleep(100 * time.Millisecond)

	hub.Broadcast(1, &Message{Type: "dashboard_update"})

	var wg sync.WaitGroup
	for i, conn := range conns {
		wg.Add(1)
		go func(idx int, c *websocket.Conn) {
			defer wg.Done()
			c.SetReadDeadline(time.Now().Add(time.Second))
			var received Message
			if err := c.ReadJSON(&received); err != nil {
				t.Errorf("connection %d failed to read: %v", idx, err)
				return
			}
			if received.Type != "dashboard_update" {
				t.Errorf("connection %d: unexpected type %q", idx, received.Type)
			}
		}(i, conn)
	}
	wg.Wait()
}

func TestHub_DifferentUsers(t *testing.T) {
	hub, server, _ := startHub(t)
	conn1 := dial(t, server, 1)
	conn2 := dial(t, server, 2)
	time.Sleep(100 * time.Millisecond)

	hub.Broadcast(1, &Message{Type: "private"})

	conn1.SetReadDeadline(time.Now().Add(time.Second))
	var received1 Message
	if err := conn1.ReadJSON(&received1); err != nil {
		t.Fatalf("user 1 failed to read: %v", err)
	}

	conn2.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	var received2 Message
	if err := conn2.ReadJSON(&received2); err == nil {
		t.Error("user 2 should not receive user 1's message")
	}
}

func TestHub_ConnectedUsers(t *testing.T) {
	hub, server, _ := startHub(t)
	dial(t, server, 7)
	dial(t, server, 3)
	dial(t, server, 7)
	time.Sleep(100 * time.Millisecond)

	users := hub.ConnectedUsers()
	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })
	if len(users) != 2 || users[0] != 3 || users[1] != 7 {
		t.Fatalf("unexpected connected users: %v", users)
	}
}

func TestHub_BroadcastQueueFull(t *testing.T) {
	hub := NewHub(nil)
	hub.broadcast = make(chan *Message, 1)

	hub.broadcast <- &Message{Type: "fill"}
	hub.Broadcast(1, &Message{Type: "dropped"})

	msg := <-hub.broadcast
	if msg.Type != "fill" {
		t.Fatalf("expected the queued message to survive, got %q", msg.Type)
	}
	select {
	case msg := <-hub.broadcast:
		t.Fatalf("message %q should have been dropped", msg.Type)
	default:
	}
}

func TestHub_ShutdownClosesConnections(t *testing.T) {
	_, server, cancel := startHub(t)
	conn := dial(t, server, 1)
	time.Sleep(50 * time.Millisecond)

	cancel()
	time.Sleep(100 * time.Millisecond)

	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected connection to be closed after hub shutdown")
	}
}
