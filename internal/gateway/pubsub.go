package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	redisstore "portfolio-clearinghouse/internal/store/redis"

	goredis "github.com/go-redis/redis/v8"
)

// PubSubRouter relays alerts published on the per-account Redis channels
// to the hub, so every instance streams every instance's alerts.
type PubSubRouter struct {
	rdb *goredis.Client
	hub *Hub
}

// NewPubSubRouter creates a router feeding hub from rdb.
func NewPubSubRouter(rdb *goredis.Client, hub *Hub) *PubSubRouter {
	return &PubSubRouter{rdb: rdb, hub: hub}
}

// Run pattern-subscribes to the alert channels. Blocks until ctx is cancelled.
func (r *PubSubRouter) Run(ctx context.Context) {
	pubsub := r.rdb.PSubscribe(ctx, redisstore.ChannelPattern)
	defer pubsub.Close()

	slog.Info("subscribed to alert channels", "component", "gateway", "pattern", redisstore.ChannelPattern)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			account := strings.TrimPrefix(msg.Channel, redisstore.ChannelPrefix)
			r.hub.Broadcast(account, []byte(msg.Payload))
		}
	}
}

// RecentSource yields recent encoded events, oldest first.
type RecentSource interface {
	Recent(ctx context.Context, n int) ([][]byte, error)
}

// SeedFrom restores up to n recent events from src into the hub's replay buffer.
func SeedFrom(ctx context.Context, hub *Hub, src RecentSource, n int) error {
	payloads, err := src.Recent(ctx, n)
	if err != nil {
		return err
	}
	events := make([]SeedEvent, 0, len(payloads))
	for _, p := range payloads {
		var head struct {
			AccountID string `json:"account_id"`
		}
		if json.Unmarshal(p, &head) != nil || head.AccountID == "" {
			continue
		}
		events = append(events, SeedEvent{AccountID: head.AccountID, Payload: p})
	}
	hub.Seed(events)
	slog.Info("replay buffer seeded", "component", "gateway", "events", len(events))
	return nil
}
