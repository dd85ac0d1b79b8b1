package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/cloudx-io/nftauction/auctionapi"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 54 * time.Second
	sendBuffer   = 64
)

// allAuctions is the subscription key of clients watching every event.
const allAuctions uint64 = 0

// Hub fans envelopes out to websocket clients. It implements notify.Sink.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[uint64]map[*client]struct{}
	logger      *slog.Logger
}

type client struct {
	id        string
	auctionID uint64
	conn      *websocket.Conn
	send      chan []byte
	closeOnce sync.Once
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subscribers: make(map[uint64]map[*client]struct{}),
		logger:      logger.With("component", "hub"),
	}
}

func (*Hub) Name() string { return "websocket" }

// Publish queues the envelope for every client watching its auction or all
// auctions. A client whose queue is full is disconnected.
func (h *Hub) Publish(_ context.Context, env auctionapi.EventEnvelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	var slow []*client
	h.mu.RLock()
	for _, key := range []uint64{env.Event.AuctionID, allAuctions} {
		for c := range h.subscribers[key] {
			select {
			case c.send <- payload:
			default:
				slow = append(slow, c)
			}
		}
		if env.Event.AuctionID == allAuctions {
			break
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("client too slow, disconnecting", "client", c.id, "auction_id", c.auctionID)
		h.unregister(c)
	}
	return nil
}

// SubscriberCount returns the number of clients watching auctionID, or every
// auction when auctionID is zero.
func (h *Hub) SubscriberCount(auctionID uint64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[auctionID])
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	var all []*client
	for _, set := range h.subscribers {
		for c := range set {
			all = append(all, c)
		}
	}
	h.mu.Unlock()

	for _, c := range all {
		h.unregister(c)
	}
}

// serve registers conn and pumps messages until the client goes away.
func (h *Hub) serve(conn *websocket.Conn, auctionID uint64) {
	c := &client{
		id:        uuid.NewString(),
		auctionID: auctionID,
		conn:      conn,
		send:      make(chan []byte, sendBuffer),
	}

	h.mu.Lock()
	set, ok := h.subscribers[auctionID]
	if !ok {
		set = make(map[*client]struct{})
		h.subscribers[auctionID] = set
	}
	set[c] = struct{}{}
	h.mu.Unlock()

	h.logger.Info("client subscribed", "client", c.id, "auction_id", auctionID)

	go c.writePump()
	c.readPump()
	h.unregister(c)
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if set, ok := h.subscribers[c.auctionID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.subscribers, c.auctionID)
		}
	}
	h.mu.Unlock()

	c.closeOnce.Do(func() {
		close(c.send)
		h.logger.Info("client unsubscribed", "client", c.id, "auction_id", c.auctionID)
	})
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards client messages and returns once the connection fails.
func (c *client) readPump() {
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
