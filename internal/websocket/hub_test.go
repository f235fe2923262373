package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/timenest/internal/auth"
)

// mockClient creates a Client with a send channel but no real connection.
func mockClient(hub *Hub, userID int64) *Client {
	return &Client{
		hub:    hub,
		userID: userID,
		send:   make(chan []byte, sendBufferSize),
	}
}

func receive(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case data := <-c.send:
		var got Message
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return got
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for message")
	}
	return Message{}
}

func assertEmpty(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data := <-c.send:
		t.Errorf("unexpected message for user %d: %s", c.userID, data)
	default:
	}
}

func TestRegisterUnregister(t *testing.T) {
	hub := NewHub(slog.Default())

	c1 := mockClient(hub, 1)
	c2 := mockClient(hub, 2)
	hub.Register(c1)
	hub.Register(c2)

	if got := hub.ClientCount(); got != 2 {
		t.Fatalf("expected 2 clients, got %d", got)
	}

	hub.Unregister(c1)
	hub.Unregister(c1)
	if got := hub.ClientCount(); got != 1 {
		t.Fatalf("expected 1 client after unregister, got %d", got)
	}

	hub.Unregister(c2)
	if got := hub.ClientCount(); got != 0 {
		t.Fatalf("expected 0 clients, got %d", got)
	}
}

func TestPublishEveryone(t *testing.T) {
	hub := NewHub(slog.Default())

	c1 := mockClient(hub, 1)
	c2 := mockClient(hub, 2)
	hub.Register(c1)
	hub.Register(c2)

	hub.Publish(NewMessage("event", "created", "abc"), nil)

	for _, c := range []*Client{c1, c2} {
		got := receive(t, c)
		if got.Type != "event_created" {
			t.Errorf("type = %s, want event_created", got.Type)
		}
		if got.ID != "abc" {
			t.Errorf("id = %s, want abc", got.ID)
		}
	}
}

func TestPublishAudience(t *testing.T) {
	hub := NewHub(slog.Default())

	alice := mockClient(hub, 1)
	bob := mockClient(hub, 2)
	aliceTab := mockClient(hub, 1)
	hub.Register(alice)
	hub.Register(bob)
	hub.Register(aliceTab)

	hub.Publish(NewMessage("event", "updated", "xyz"), []int64{1})

	receive(t, alice)
	receive(t, aliceTab)
	assertEmpty(t, bob)

	hub.Publish(NewMessage("event", "deleted", "xyz"), []int64{})
	assertEmpty(t, alice)
	assertEmpty(t, bob)
}

func TestPublishEmptyHub(t *testing.T) {
	hub := NewHub(slog.Default())
	hub.Publish(NewMessage("event", "deleted", "1"), nil)
}

func TestPublishFullBuffer(t *testing.T) {
	hub := NewHub(slog.Default())

	c := mockClient(hub, 1)
	hub.Register(c)

	for i := 0; i < sendBufferSize; i++ {
		hub.Publish(NewMessage("test", "fill", ""), nil)
	}
	hub.Publish(NewMessage("test", "dropped", ""), nil)

	if got := len(c.send); got != sendBufferSize {
		t.Errorf("expected %d buffered messages, got %d", sendBufferSize, got)
	}
}

func TestNewMessage(t *testing.T) {
	msg := NewMessage("contact_list", "updated", "5")
	if msg.Type != "contact_list_updated" {
		t.Errorf("type = %s, want contact_list_updated", msg.Type)
	}
	if msg.Entity != "contact_list" || msg.Action != "updated" || msg.ID != "5" {
		t.Errorf("got %+v", msg)
	}
}

func TestConcurrentAccess(t *testing.T) {
	hub := NewHub(slog.Default())
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			c := mockClient(hub, id)
			hub.Register(c)
			hub.Publish(NewMessage("test", "concurrent", ""), []int64{id})
			for {
				select {
				case <-c.send:
				default:
					hub.Unregister(c)
					return
				}
			}
		}(int64(i))
	}

	wg.Wait()

	if got := hub.ClientCount(); got != 0 {
		t.Errorf("expected 0 clients after concurrent test, got %d", got)
	}
}

func TestHandleWebSocketRequiresAuth(t *testing.T) {
	hub := NewHub(slog.Default())
	rec := httptest.NewRecorder()
	HandleWebSocket(hub, slog.Default(), nil)(rec, httptest.NewRequest("GET", "/ws", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestHandleWebSocketDelivers(t *testing.T) {
	hub := NewHub(slog.Default())
	handler := HandleWebSocket(hub, slog.Default(), nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := auth.WithAuth(r.Context(), auth.AuthContext{UserID: 7})
		handler(w, r.WithContext(ctx))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := ws.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	hub.Publish(NewMessage("event", "created", "e1"), []int64{7})

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got Message
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Type != "event_created" || got.ID != "e1" {
		t.Errorf("got %+v", got)
	}
}
