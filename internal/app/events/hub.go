// Package events broadcasts shipment lifecycle events to WebSocket
// subscribers so dashboards can refresh without polling.
package events

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chainsight-labs/chainsight/internal/app/domain/shipment"
	"github.com/chainsight-labs/chainsight/pkg/logger"
)

// Event types published by the hub.
const (
	TypeShipmentCreated = "shipment.created"
	TypeStatusChanged   = "shipment.status_changed"
)

// Event is the wire payload pushed to subscribers.
type Event struct {
	Type      string             `json:"type"`
	Shipment  *shipment.Shipment `json:"shipment,omitempty"`
	LedgerRef string             `json:"ledgerRef,omitempty"`
	At        time.Time          `json:"at"`
}

const (
	writeWait       = 5 * time.Second
	subscriberQueue = 16
)

type subscriber struct {
	conn *websocket.Conn
	send chan Event
}

// Hub fans events out to connected WebSocket clients. A subscriber that
// cannot keep up with the queue is dropped rather than blocking publishers.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[*subscriber]struct{}
	closed      bool
	upgrader    websocket.Upgrader
	log         *logger.Logger
}

// NewHub builds an empty hub.
func NewHub(log *logger.Logger) *Hub {
	if log == nil {
		log = logger.NewDefault("events")
	}
	return &Hub{
		subscribers: make(map[*subscriber]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browser clients connect cross-origin during development.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: log,
	}
}

// Publish delivers the event to every connected subscriber. It never blocks;
// slow subscribers lose the event and are disconnected.
func (h *Hub) Publish(event Event) {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for sub := range h.subscribers {
		select {
		case sub.send <- event:
		default:
			// Queue full. The writer goroutine will tear the
			// connection down once it drains.
			h.log.Warn("dropping event for slow subscriber")
			close(sub.send)
			delete(h.subscribers, sub)
		}
	}
}

// SubscriberCount reports the number of connected clients.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// ServeHTTP upgrades the request to a WebSocket and streams events until the
// client disconnects or the hub closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	sub := &subscriber{
		conn: conn,
		send: make(chan Event, subscriberQueue),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.subscribers[sub] = struct{}{}
	h.mu.Unlock()

	go h.writeLoop(sub)
	h.readLoop(sub)
}

func (h *Hub) writeLoop(sub *subscriber) {
	for event := range sub.send {
		sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := sub.conn.WriteJSON(event); err != nil {
			break
		}
	}
	sub.conn.Close()
}

// readLoop discards inbound frames; its purpose is noticing disconnects.
func (h *Hub) readLoop(sub *subscriber) {
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			break
		}
	}
	h.remove(sub)
}

func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subscribers[sub]; ok {
		delete(h.subscribers, sub)
		close(sub.send)
	}
}

// Close disconnects all subscribers. Publish becomes a no-op afterwards.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for sub := range h.subscribers {
		close(sub.send)
		delete(h.subscribers, sub)
	}
}
