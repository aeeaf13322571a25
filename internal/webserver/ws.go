package webserver

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	// Browser-side origin restriction is not provided by this layer.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsListener adapts one websocket connection to broadcast.Listener.
// gorilla permits a single concurrent writer, so writes are serialized.
type wsListener struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (l *wsListener) Push(payload []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn.WriteMessage(websocket.TextMessage, payload)
}

func (s *Server) handleUpdates(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	l := &wsListener{conn: conn}
	if !s.cfg.AutoRefresh {
		// One empty payload, then the connection idles; it is never
		// registered for ticks.
		l.Push([]byte("{}"))
		discard(conn)
		return
	}

	s.broadcast.Add(l)
	defer s.broadcast.Remove(l)
	discard(conn)
}

// discard consumes inbound messages until the connection closes. Clients
// have nothing to say on this channel.
func discard(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
