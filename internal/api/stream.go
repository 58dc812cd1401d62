package api

import (
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/avesia/backend/internal/results"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Same trust model as CORS: the dashboard may be served from anywhere.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// StreamHub fans ingested results out to websocket subscribers. Slow
// clients get disconnected rather than backing up the ingest path.
type StreamHub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]chan results.DetectionResult
}

func NewStreamHub() *StreamHub {
	return &StreamHub{clients: make(map[*websocket.Conn]chan results.DetectionResult)}
}

// Broadcast queues a result for every subscriber without blocking.
func (h *StreamHub) Broadcast(r results.DetectionResult) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, ch := range h.clients {
		select {
		case ch <- r:
		default:
			// Client is not keeping up. Drop it.
			delete(h.clients, conn)
			close(ch)
			conn.Close()
		}
	}
}

// Subscribers reports the current connection count.
func (h *StreamHub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *StreamHub) add(conn *websocket.Conn) chan results.DetectionResult {
	ch := make(chan results.DetectionResult, 16)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()
	return ch
}

func (h *StreamHub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	if ch, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		close(ch)
	}
	h.mu.Unlock()
	conn.Close()
}

// ServeWS upgrades the connection and streams results until the client
// disconnects.
func (h *StreamHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WARN] stream: upgrade failed: %v", err)
		return
	}

	ch := h.add(conn)

	// Reader: we ignore client messages but need the pump to notice closes.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.remove(conn)
				return
			}
		}
	}()

	for res := range ch {
		if err := conn.WriteJSON(res); err != nil {
			h.remove(conn)
			return
		}
	}
}
