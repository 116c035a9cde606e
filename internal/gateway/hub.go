// Package gateway streams violation alerts to WebSocket clients.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"portfolio-clearinghouse/internal/notification"
	redisstore "portfolio-clearinghouse/internal/store/redis"

	"github.com/gorilla/websocket"
)

const defaultReplaySize = 500

// Hub fans alert envelopes out to connected clients. Alerts arrive either
// directly (the Hub is a notification.Notifier) or from Redis PubSub via a
// PubSubRouter when several instances share one Redis.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	seq     int64
	closed  bool

	replay *ReplayBuffer
	now    func() time.Time

	// OnClientCount is called with the new count on connect/disconnect (optional).
	OnClientCount func(n int)
}

var _ notification.Notifier = (*Hub)(nil)

// NewHub creates a Hub that keeps the last replaySize envelopes for catch-up.
func NewHub(replaySize int) *Hub {
	if replaySize <= 0 {
		replaySize = defaultReplaySize
	}
	return &Hub{
		clients: make(map[*Client]bool),
		replay:  NewReplayBuffer(replaySize),
		now:     time.Now,
	}
}

func (h *Hub) Name() string { return "websocket" }

// Send broadcasts an alert's event to clients following its account.
func (h *Hub) Send(_ context.Context, alert notification.Alert) error {
	payload, err := alert.Event.JSON()
	if err != nil {
		return fmt.Errorf("websocket: marshal: %w", err)
	}
	h.Broadcast(alert.Event.AccountID, payload)
	return nil
}

// Broadcast wraps payload in an envelope, stores it for replay and sends it
// to every client whose filter includes accountID. Slow clients whose send
// queue is full miss the message rather than block the hub.
func (h *Hub) Broadcast(accountID string, payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.seq++
	seq := h.seq
	env := buildEnvelope(redisstore.ChannelPrefix+accountID, payload, h.now().UTC(), seq)
	h.replay.Push(seq, accountID, env)

	for client := range h.clients {
		if !client.follows(accountID) {
			continue
		}
		select {
		case client.send <- env:
		default:
			slog.Warn("client too slow, alert skipped", "component", "gateway", "account_id", accountID, "seq", seq)
		}
	}
}

// Seed loads historical event payloads into the replay buffer without
// broadcasting them. Used at startup to restore recent alerts from Redis.
func (h *Hub) Seed(events []SeedEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ev := range events {
		h.seq++
		h.replay.Push(h.seq, ev.AccountID, buildEnvelope(redisstore.ChannelPrefix+ev.AccountID, ev.Payload, h.now().UTC(), h.seq))
	}
}

// SeedEvent is one historical event for Seed.
type SeedEvent struct {
	AccountID string
	Payload   []byte
}

// Register attaches a WebSocket connection. The client first receives every
// buffered envelope newer than lastSeq that matches accounts (empty = all).
func (h *Hub) Register(conn *websocket.Conn, accounts []string, lastSeq int64) *Client {
	client := newClient(h, conn, accounts)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return nil
	}
	// Replay under the hub lock so no live broadcast can interleave.
	for _, e := range h.replay.Since(lastSeq) {
		if !client.follows(e.Account) {
			continue
		}
		select {
		case client.send <- e.Data:
		default:
		}
	}
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	slog.Info("ws client connected", "component", "gateway", "clients", count, "accounts", accounts)
	if h.OnClientCount != nil {
		h.OnClientCount(count)
	}

	go client.writePump()
	go client.readPump()
	return client
}

// RemoveClient detaches a client and closes its send queue.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	count := len(h.clients)
	h.mu.Unlock()

	if h.OnClientCount != nil {
		h.OnClientCount(count)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Seq returns the sequence number of the latest envelope.
func (h *Hub) Seq() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.seq
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}
