package server

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mdserve/mdserve/internal/notify"
)

// wsClient dials the reload socket of a running test server.
func wsClient(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// waitForSubscribers blocks until the server side has registered count
// subscriptions. Dial returns on the handshake response, which the server
// writes before subscribing, so tests that publish must wait.
func waitForSubscribers(t *testing.T, n *notify.Notifier, count int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for n.Subscribers() < count {
		if time.Now().After(deadline) {
			t.Fatalf("only %d of %d subscriptions registered", n.Subscribers(), count)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// readMessage reads one JSON message with a deadline.
func readMessage(t *testing.T, conn *websocket.Conn) serverMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg serverMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode %q: %v", data, err)
	}
	return msg
}

func TestWebSocketReloadOnPublish(t *testing.T) {
	srv, n, _ := newTestServer(t, map[string]string{"a.md": "# A"})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := wsClient(t, ts)
	waitForSubscribers(t, n, 1)

	n.Publish()

	if msg := readMessage(t, conn); msg.Type != "Reload" {
		t.Errorf("got %q, want Reload", msg.Type)
	}
}

func TestWebSocketPingPong(t *testing.T) {
	srv, _, _ := newTestServer(t, map[string]string{"a.md": "# A"})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := wsClient(t, ts)

	if err := conn.WriteJSON(clientMessage{Type: "Ping"}); err != nil {
		t.Fatal(err)
	}
	if msg := readMessage(t, conn); msg.Type != "Pong" {
		t.Errorf("got %q, want Pong", msg.Type)
	}
}

func TestWebSocketRequestRefresh(t *testing.T) {
	srv, _, _ := newTestServer(t, map[string]string{"a.md": "# A"})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := wsClient(t, ts)

	if err := conn.WriteJSON(clientMessage{Type: "RequestRefresh"}); err != nil {
		t.Fatal(err)
	}
	if msg := readMessage(t, conn); msg.Type != "Reload" {
		t.Errorf("got %q, want Reload", msg.Type)
	}
}

func TestWebSocketIgnoresMalformedMessages(t *testing.T) {
	srv, _, _ := newTestServer(t, map[string]string{"a.md": "# A"})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := wsClient(t, ts)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatal(err)
	}
	// The connection survives garbage; a well-formed ping after it still
	// answers.
	if err := conn.WriteJSON(clientMessage{Type: "Ping"}); err != nil {
		t.Fatal(err)
	}
	if msg := readMessage(t, conn); msg.Type != "Pong" {
		t.Errorf("got %q, want Pong", msg.Type)
	}
}

func TestWebSocketDisconnectUnsubscribes(t *testing.T) {
	srv, n, _ := newTestServer(t, map[string]string{"a.md": "# A"})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := wsClient(t, ts)
	waitForSubscribers(t, n, 1)

	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for n.Subscribers() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("subscriber leaked after disconnect: %d", n.Subscribers())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWebSocketMultipleViewers(t *testing.T) {
	srv, n, _ := newTestServer(t, map[string]string{"a.md": "# A"})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conns := make([]*websocket.Conn, 3)
	for i := range conns {
		conns[i] = wsClient(t, ts)
	}
	waitForSubscribers(t, n, len(conns))

	n.Publish()

	for i, conn := range conns {
		if msg := readMessage(t, conn); msg.Type != "Reload" {
			t.Errorf("viewer %d got %q, want Reload", i, msg.Type)
		}
	}
}
