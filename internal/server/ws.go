package server

import (
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bernardo/visionups/internal/overlay"
)

const writeWait = 2 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// overlayMessage is the websocket and snapshot payload.
type overlayMessage struct {
	Detections []overlay.DisplayDetection `json:"detections"`
	FPS        float64                    `json:"fps"`
	Version    uint64                     `json:"version"`
	Timestamp  int64                      `json:"timestamp"`
}

func newOverlayMessage(snap overlay.Snapshot, fps float64) overlayMessage {
	dets := snap.Detections
	if dets == nil {
		dets = []overlay.DisplayDetection{}
	}
	return overlayMessage{
		Detections: dets,
		FPS:        fps,
		Version:    snap.Version,
		Timestamp:  time.Now().UnixMilli(),
	}
}

// wsClient serialises writes to one connection.
type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) send(msg overlayMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	return c.conn.WriteJSON(msg)
}

// OverlayHandler pushes the overlay to websocket clients on every publish.
type OverlayHandler struct {
	state   *overlay.State
	fps     func() float64
	clients map[*wsClient]bool
	mu      sync.RWMutex

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewOverlayHandler creates a handler broadcasting state. fps reports the
// current frame rate and may be nil.
func NewOverlayHandler(state *overlay.State, fps func() float64) *OverlayHandler {
	if fps == nil {
		fps = func() float64 { return 0 }
	}
	h := &OverlayHandler{
		state:   state,
		fps:     fps,
		clients: make(map[*wsClient]bool),
		stopCh:  make(chan struct{}),
	}
	go h.broadcast()
	return h
}

// ServeHTTP handles WebSocket upgrade requests. The current overlay is sent
// immediately after connecting.
func (h *OverlayHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	c := &wsClient{conn: conn}
	if err := c.send(newOverlayMessage(h.state.Snapshot(), h.fps())); err != nil {
		return
	}

	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, c)
		h.mu.Unlock()
	}()

	// Keep connection alive by reading messages
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// Clients returns the number of connected clients.
func (h *OverlayHandler) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// broadcast sends each published overlay to all connected clients.
func (h *OverlayHandler) broadcast() {
	updates, cancel := h.state.Subscribe()
	defer cancel()

	for {
		select {
		case <-h.stopCh:
			return
		case <-updates:
		}

		msg := newOverlayMessage(h.state.Snapshot(), h.fps())

		h.mu.RLock()
		for c := range h.clients {
			if err := c.send(msg); err != nil {
				// The reader loop notices the broken connection and unregisters it.
				c.conn.Close()
			}
		}
		h.mu.RUnlock()
	}
}

// Close stops broadcasting and disconnects all clients.
func (h *OverlayHandler) Close() {
	h.stopOnce.Do(func() {
		close(h.stopCh)

		h.mu.RLock()
		defer h.mu.RUnlock()
		for c := range h.clients {
			c.conn.Close()
		}
	})
}
