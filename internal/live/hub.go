// Package live pushes lot change events to websocket subscribers so
// dashboards can refetch availability instead of polling.
package live

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const writeWait = 5 * time.Second

// Event is the message sent to subscribers.
type Event struct {
	Type  string    `json:"type"`
	LotID uint64    `json:"lot_id"`
	At    time.Time `json:"at"`
}

// Hub tracks subscribers and fans events out to them.  All mutations of
// the client set happen on the Run goroutine.
type Hub struct {
	upgrader   websocket.Upgrader
	clients    map[*websocket.Conn]bool
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	broadcast  chan []byte
	done       chan struct{}
	log        logrus.FieldLogger

	mu    sync.RWMutex
	count int
}

func NewHub(log logrus.FieldLogger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients:    make(map[*websocket.Conn]bool),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		broadcast:  make(chan []byte, 64),
		done:       make(chan struct{}),
		log:        log.WithField("component", "live"),
	}
}

// Run serves the hub until ctx is done, then closes every connection.
// It must be called once.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		close(h.done)
		for conn := range h.clients {
			_ = conn.Close()
		}
		h.setCount(0)
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case conn := <-h.register:
			h.clients[conn] = true
			h.setCount(len(h.clients))
			h.log.WithField("clients", len(h.clients)).Debug("subscriber connected")
		case conn := <-h.unregister:
			if h.clients[conn] {
				delete(h.clients, conn)
				_ = conn.Close()
				h.setCount(len(h.clients))
				h.log.WithField("clients", len(h.clients)).Debug("subscriber disconnected")
			}
		case msg := <-h.broadcast:
			for conn := range h.clients {
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					h.log.WithError(err).Debug("dropping subscriber")
					delete(h.clients, conn)
					_ = conn.Close()
				}
			}
			h.setCount(len(h.clients))
		}
	}
}

func (h *Hub) setCount(n int) {
	h.mu.Lock()
	h.count = n
	h.mu.Unlock()
}

// Clients returns the number of registered subscribers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Invalidate publishes a lot_changed event.  It never blocks: when the
// buffer is full the event is dropped, and subscribers catch up on the
// next one.
func (h *Hub) Invalidate(_ context.Context, lotID uint64) error {
	msg, err := json.Marshal(Event{Type: "lot_changed", LotID: lotID, At: time.Now().UTC()})
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- msg:
	default:
		h.log.WithField("lot_id", lotID).Warn("live broadcast buffer full, event dropped")
	}
	return nil
}

// Serve upgrades the request and keeps the connection registered until
// the client goes away.  Inbound messages are read and discarded so
// control frames are processed.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	select {
	case h.register <- conn:
	case <-h.done:
		_ = conn.Close()
		return nil
	}
	go func() {
		defer func() {
			select {
			case h.unregister <- conn:
			case <-h.done:
			}
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					h.log.WithError(err).Debug("subscriber read failed")
				}
				return
			}
		}
	}()
	return nil
}
