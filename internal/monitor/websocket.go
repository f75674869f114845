package monitor

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/banshee-data/mocap.bridge/internal/publish"
	"github.com/banshee-data/mocap.bridge/internal/tracker"
)

const (
	wsWriteDeadline = 10 * time.Second
	wsPingInterval  = 30 * time.Second
	wsClientQueue   = 128
)

type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// PoseHub streams every published pose as a JSON text message to connected
// websocket clients. A client that falls behind loses poses rather than
// slowing the update loop.
type PoseHub struct {
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*wsClient

	sent    atomic.Uint64
	dropped atomic.Uint64
}

// NewPoseHub creates a hub with no clients.
func NewPoseHub() *PoseHub {
	return &PoseHub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// The monitor only listens on trusted local networks.
				return true
			},
		},
		clients: make(map[string]*wsClient),
	}
}

// PublishPose implements device.Host.
func (h *PoseHub) PublishPose(index uint32, serial string, pose tracker.TrackerPose) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.clients) == 0 {
		return
	}
	data, err := json.Marshal(publish.NewPoseMessage(index, serial, pose))
	if err != nil {
		return
	}
	for _, c := range h.clients {
		select {
		case c.send <- data:
			h.sent.Add(1)
		default:
			h.dropped.Add(1)
		}
	}
}

// Clients returns the number of connected clients.
func (h *PoseHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and streams poses until the client leaves.
func (h *PoseHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[monitor] websocket upgrade error: %v", err)
		return
	}
	c := &wsClient{id: uuid.NewString(), conn: conn, send: make(chan []byte, wsClientQueue)}

	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	log.Printf("[monitor] websocket client %s connected from %s", c.id, r.RemoteAddr)

	done := make(chan struct{})
	go h.readLoop(c, done)
	h.writeLoop(c, done)

	h.mu.Lock()
	delete(h.clients, c.id)
	h.mu.Unlock()
	conn.Close()
	log.Printf("[monitor] websocket client %s disconnected", c.id)
}

// readLoop discards client messages and reports when the peer goes away.
func (h *PoseHub) readLoop(c *wsClient, done chan<- struct{}) {
	defer close(done)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[monitor] websocket client %s: %v", c.id, err)
			}
			return
		}
	}
}

func (h *PoseHub) writeLoop(c *wsClient, done <-chan struct{}) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteDeadline))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteDeadline)); err != nil {
				return
			}
		}
	}
}

// HubStats counts websocket deliveries.
type HubStats struct {
	Clients int    `json:"clients"`
	Sent    uint64 `json:"sent"`
	Dropped uint64 `json:"dropped"`
}

// Stats returns current counters.
func (h *PoseHub) Stats() HubStats {
	return HubStats{Clients: h.Clients(), Sent: h.sent.Load(), Dropped: h.dropped.Load()}
}

// Close disconnects every client.
func (h *PoseHub) Close() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		c.conn.Close()
	}
}
