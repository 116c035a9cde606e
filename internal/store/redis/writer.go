// Package redis fans violation events out through Redis: every event is
// appended to a capped stream for replay and published on a per-account
// PubSub channel for live subscribers.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

const (
	// StreamKey holds the recent violation events, newest last.
	StreamKey = "alerts:violations"
	// ChannelPrefix + account ID is the PubSub channel for an account's events.
	ChannelPrefix = "pub:alert:"
	// ChannelPattern matches every account channel.
	ChannelPattern = ChannelPrefix + "*"

	latestPrefix    = "alert:latest:"
	streamMaxLen    = 10000
	latestTTL       = 24 * time.Hour
	defaultReplayN  = 100
	connectTimeout  = 5 * time.Second
	eventPayloadKey = "data"
)

// WriterConfig configures the Redis connection.
type WriterConfig struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int
}

// Writer publishes encoded violation events.
type Writer struct {
	client *goredis.Client
}

// Client returns the underlying Redis client for health checks and PubSub.
func (w *Writer) Client() *goredis.Client { return w.client }

// New connects to Redis and pings it.
func New(cfg WriterConfig) (*Writer, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	slog.Info("connected", "component", "redis", "addr", cfg.Addr)
	return &Writer{client: client}, nil
}

// NewFromClient wraps an existing client.
func NewFromClient(client *goredis.Client) *Writer {
	return &Writer{client: client}
}

// Publish appends payload to the alert stream, stores it as the account's
// latest alert and publishes it on the account channel, in one pipeline.
func (w *Writer) Publish(ctx context.Context, accountID string, payload []byte) error {
	data := string(payload)

	pipe := w.client.Pipeline()
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: StreamKey,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"account_id":    accountID,
			eventPayloadKey: data,
		},
	})
	pipe.Set(ctx, latestPrefix+accountID, data, latestTTL)
	pipe.Publish(ctx, ChannelPrefix+accountID, data)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis publish alert for %s: %w", accountID, err)
	}
	return nil
}

// Recent returns up to n of the most recent events, oldest first.
func (w *Writer) Recent(ctx context.Context, n int) ([][]byte, error) {
	if n <= 0 {
		n = defaultReplayN
	}
	msgs, err := w.client.XRevRangeN(ctx, StreamKey, "+", "-", int64(n)).Result()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis XREVRANGE %s: %w", StreamKey, err)
	}

	out := make([][]byte, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		if s, ok := msgs[i].Values[eventPayloadKey].(string); ok {
			out = append(out, []byte(s))
		}
	}
	return out, nil
}

// Latest returns the account's most recent event, or nil when none is cached.
func (w *Writer) Latest(ctx context.Context, accountID string) ([]byte, error) {
	s, err := w.client.Get(ctx, latestPrefix+accountID).Result()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis GET latest alert %s: %w", accountID, err)
	}
	return []byte(s), nil
}

// Close closes the Redis client.
func (w *Writer) Close() error {
	return w.client.Close()
}
