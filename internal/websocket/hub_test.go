package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	ws "github.com/coder/websocket"
)

// mockClient creates a Client with a send channel but no real connection.
func mockClient(hub *Hub) *Client {
	return &Client{
		hub:  hub,
		conn: nil,
		send: make(chan []byte, sendBufferSize),
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

func TestRegisterUnregister(t *testing.T) {
	hub := NewHub(slog.Default(), nil)

	c1 := mockClient(hub)
	c2 := mockClient(hub)
	hub.Register(c1)
	hub.Register(c2)

	if got := hub.ClientCount(); got != 2 {
		t.Fatalf("expected 2 clients, got %d", got)
	}

	hub.Unregister(c1)
	// Should not panic
	hub.Unregister(c1)

	if got := hub.ClientCount(); got != 1 {
		t.Fatalf("expected 1 client after unregister, got %d", got)
	}
	hub.Unregister(c2)
}

func TestBroadcast(t *testing.T) {
	hub := NewHub(slog.Default(), nil)

	c1 := mockClient(hub)
	c2 := mockClient(hub)
	hub.Register(c1)
	hub.Register(c2)

	hub.Broadcast(ShowMessage("Appointment today", true))

	for _, c := range []*Client{c1, c2} {
		got := receive(t, c)
		if got.Type != TypeShow {
			t.Errorf("expected type show, got %s", got.Type)
		}
		if got.Text != "Appointment today" || !got.Centered {
			t.Errorf("unexpected message %+v", got)
		}
	}

	hub.Unregister(c1)
	hub.Unregister(c2)
}

func TestLateClientGetsCurrentScreen(t *testing.T) {
	hub := NewHub(slog.Default(), nil)
	hub.Broadcast(ShowMessage("first", false))
	hub.Broadcast(BuzzMessage(true))
	hub.Broadcast(ShowMessage("second", false))

	c := mockClient(hub)
	hub.Register(c)

	got := receive(t, c)
	if got.Type != TypeShow || got.Text != "second" {
		t.Errorf("replayed %+v, want latest show message", got)
	}
	select {
	case data := <-c.send:
		t.Errorf("unexpected extra message %s", data)
	default:
	}
	hub.Unregister(c)
}

func TestBroadcastFullBuffer(t *testing.T) {
	hub := NewHub(slog.Default(), nil)

	c := mockClient(hub)
	hub.Register(c)

	for i := 0; i < sendBufferSize; i++ {
		hub.Broadcast(BuzzMessage(i%2 == 0))
	}

	// This should drop the message, not panic or block
	hub.Broadcast(BuzzMessage(true))

	count := 0
	for {
		select {
		case <-c.send:
			count++
		default:
			goto done
		}
	}
done:
	if count != sendBufferSize {
		t.Errorf("expected %d messages, got %d", sendBufferSize, count)
	}

	hub.Unregister(c)
}

func TestReceive(t *testing.T) {
	var got []Message
	hub := NewHub(slog.Default(), func(m Message) { got = append(got, m) })

	hub.Receive([]byte(`{"type":"button","button":"yes"}`))
	hub.Receive([]byte(`not json`))
	hub.Receive([]byte(`{"type":"fingerprint","score":88}`))

	if len(got) != 2 {
		t.Fatalf("received %d messages, want 2", len(got))
	}
	if got[0].Type != TypeButton || got[0].Button != "yes" {
		t.Errorf("first = %+v", got[0])
	}
	if got[1].Type != TypeFingerprint || got[1].Score != 88 {
		t.Errorf("second = %+v", got[1])
	}
}

func TestConcurrentAccess(t *testing.T) {
	hub := NewHub(slog.Default(), nil)
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := mockClient(hub)
			hub.Register(c)
			hub.Broadcast(ShowMessage("concurrent", false))
			for {
				select {
				case <-c.send:
				default:
					hub.Unregister(c)
					return
				}
			}
		}()
	}

	wg.Wait()

	if got := hub.ClientCount(); got != 0 {
		t.Errorf("expected 0 clients after concurrent test, got %d", got)
	}
}

func TestHandleWebSocketRoundTrip(t *testing.T) {
	inbound := make(chan Message, 1)
	hub := NewHub(slog.Default(), func(m Message) { inbound <- m })
	server := httptest.NewServer(HandleWebSocket(hub))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := ws.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	if err := conn.Write(ctx, ws.MessageText, []byte(`{"type":"button","button":"no"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case m := <-inbound:
		if m.Button != "no" {
			t.Errorf("button = %q, want no", m.Button)
		}
	case <-ctx.Done():
		t.Fatal("timeout waiting for inbound message")
	}

	hub.Broadcast(BuzzMessage(true))
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got Message
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Type != TypeBuzz || !got.On {
		t.Errorf("got %+v, want buzz on", got)
	}
}
