package ops

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vkorchagin/oddsmesh/internal/catalog"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Ops surface; same-origin policy is handled by the deployment in front.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// passUpdate is the message pushed to websocket clients once per published
// aggregation pass.
type passUpdate struct {
	PassID        string    `json:"pass_id"`
	MergedAt      time.Time `json:"merged_at"`
	ActiveRecords int       `json:"active_records"`
}

// wsHub fans one update per aggregation pass out to connected clients. A
// client that cannot keep up is dropped rather than blocking the hub.
type wsHub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]chan passUpdate
}

func newWSHub() *wsHub {
	return &wsHub{clients: make(map[*websocket.Conn]chan passUpdate)}
}

// SnapshotHook is registered on the catalog store; it runs on the publishing
// goroutine and only does non-blocking channel sends.
func (h *wsHub) SnapshotHook(snap *catalog.Snapshot) {
	update := passUpdate{
		PassID:        snap.PassID.String(),
		MergedAt:      snap.MergedAt,
		ActiveRecords: len(snap.Active),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, ch := range h.clients {
		select {
		case ch <- update:
		default:
			slog.Warn("WS hub: client too slow, dropping", "remote", conn.RemoteAddr())
			close(ch)
			delete(h.clients, conn)
			conn.Close()
		}
	}
}

func (h *wsHub) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("WS hub: upgrade failed", "error", err)
		return
	}

	ch := make(chan passUpdate, 8)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()
	slog.Info("WS hub: client connected", "remote", conn.RemoteAddr())

	go func() {
		defer func() {
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				close(ch)
				delete(h.clients, conn)
			}
			h.mu.Unlock()
			conn.Close()
		}()
		for update := range ch {
			if err := conn.WriteJSON(update); err != nil {
				return
			}
		}
	}()

	// Drain reads so pings and close frames are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *wsHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, ch := range h.clients {
		close(ch)
		delete(h.clients, conn)
		conn.Close()
	}
}
