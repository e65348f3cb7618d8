package server

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// The previewer binds to localhost; same-host pages are the
		// only expected origin.
		return true
	},
}

// clientMessage is what a viewer may send over the reload socket.
type clientMessage struct {
	Type string `json:"type"`
}

// serverMessage is what the previewer pushes to viewers. Reload is the only
// signal that matters; Pong answers keepalive pings.
type serverMessage struct {
	Type string `json:"type"`
}

var (
	msgReload = serverMessage{Type: "Reload"}
	msgPong   = serverMessage{Type: "Pong"}
)

// handleWebSocket upgrades the connection, subscribes it to the notifier and
// pumps reload signals until the viewer disconnects. Each connection is an
// independent subscriber; a slow viewer only loses its own signals.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WS] Failed to upgrade connection: %v", err)
		return
	}
	defer conn.Close()

	sub := s.notifier.Subscribe()
	defer sub.Close()

	// gorilla connections allow one concurrent writer; the reload pump
	// and the read loop's replies share this lock.
	var writeMu sync.Mutex
	send := func(msg serverMessage) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteJSON(msg)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range sub.C() {
			if err := send(msgReload); err != nil {
				return
			}
		}
	}()

readLoop:
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("[WS] Unexpected close: %v", err)
			}
			break
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		switch strings.ToLower(msg.Type) {
		case "ping":
			if err := send(msgPong); err != nil {
				break readLoop
			}
		case "requestrefresh":
			if err := send(msgReload); err != nil {
				break readLoop
			}
		}
	}

	// Detach before waiting so the pump's channel drains and exits.
	sub.Close()
	<-done
}
