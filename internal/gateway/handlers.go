package gateway

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWS upgrades the request and registers the connection with the hub.
//
// Query parameters:
//
//	accounts  comma-separated account IDs to follow (default: all)
//	last_seq  replay buffered alerts after this sequence number (default: none)
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	var accounts []string
	if v := r.URL.Query().Get("accounts"); v != "" {
		accounts = strings.Split(v, ",")
	}

	lastSeq := h.Seq()
	if v := r.URL.Query().Get("last_seq"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n >= 0 {
			lastSeq = n
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", "component", "gateway", "error", err)
		return
	}
	h.Register(conn, accounts, lastSeq)
}
