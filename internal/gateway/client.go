package gateway

import (
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendQueue  = 256
)

// Client is one WebSocket peer following zero or more accounts.
// A client following no accounts receives every alert.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	mu       sync.RWMutex
	accounts map[string]bool
}

func newClient(h *Hub, conn *websocket.Conn, accounts []string) *Client {
	c := &Client{
		conn:     conn,
		send:     make(chan []byte, sendQueue),
		hub:      h,
		accounts: make(map[string]bool),
	}
	c.setAccounts(accounts, true)
	return c
}

// controlMsg is a client->server message:
//
//	{"type":"SUBSCRIBE","accounts":["ACC001"]}
//	{"type":"UNSUBSCRIBE","accounts":["ACC001"]}
//	{"type":"PING","ping":1700000000000}
type controlMsg struct {
	Type     string   `json:"type"`
	Accounts []string `json:"accounts"`
	Ping     int64    `json:"ping"`
}

func (c *Client) follows(accountID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.accounts) == 0 || c.accounts[accountID]
}

func (c *Client) setAccounts(accounts []string, on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, a := range accounts {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if on {
			c.accounts[a] = true
		} else {
			delete(c.accounts, a)
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.RemoveClient(c)
		c.conn.Close()
		slog.Info("ws client disconnected", "component", "gateway")
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg controlMsg
		if json.Unmarshal(raw, &msg) != nil {
			continue
		}

		switch strings.ToUpper(msg.Type) {
		case "SUBSCRIBE":
			c.setAccounts(msg.Accounts, true)
		case "UNSUBSCRIBE":
			c.setAccounts(msg.Accounts, false)
		case "PING":
			pong, _ := json.Marshal(map[string]interface{}{
				"type":      "pong",
				"ping":      msg.Ping,
				"server_ts": time.Now().UnixMilli(),
			})
			c.trySend(pong)
		}
	}
}

// trySend queues msg unless the client has been removed or is backed up.
func (c *Client) trySend(msg []byte) {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if !c.hub.clients[c] {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}
