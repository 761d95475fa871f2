package handler

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/raid-guild/x402-facilitator-go/types"
)

const (
	subscriberBuffer = 16
	writeTimeout     = 10 * time.Second
	pingInterval     = 30 * time.Second
)

// Hub fans settled ledger entries out to websocket subscribers. Slow
// subscribers miss entries rather than block settlement.
type Hub struct {
	mu   sync.Mutex
	subs map[chan types.LedgerEntry]struct{}
}

// NewHub creates a hub with no subscribers.
func NewHub() *Hub {
	return &Hub{subs: make(map[chan types.LedgerEntry]struct{})}
}

// Publish sends the entry to every subscriber that has room for it.
func (h *Hub) Publish(entry types.LedgerEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- entry:
		default:
			log.Printf("dropping payment %s for slow subscriber", entry.PaymentID)
		}
	}
}

// Subscribe registers a subscriber. The returned function unregisters it.
func (h *Hub) Subscribe() (<-chan types.LedgerEntry, func()) {
	ch := make(chan types.LedgerEntry, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		delete(h.subs, ch)
		h.mu.Unlock()
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// StreamPayments upgrades to a websocket and streams every payment settled
// after the connection opens.
func (h *Handler) StreamPayments(w http.ResponseWriter, r *http.Request) {
	if h.Events == nil {
		writeError(w, http.StatusNotFound, "payment stream is not enabled")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	entries, unsubscribe := h.Events.Subscribe()
	defer unsubscribe()

	// Read until the client goes away so close frames are processed
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case entry := <-entries:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(entry); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}
