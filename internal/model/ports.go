package model

import (
	"context"
	"time"
)

// ── Storage Port Interfaces ──
// These interfaces decouple the aggregation engine and ingestion from the
// concrete trade stores (SQLite, Postgres).

// TradeReader fetches stored trades.
type TradeReader interface {
	// TradesByDate returns every trade for the calendar date, in the order
	// the trades were stored. Returns an empty slice when none exist.
	TradesByDate(ctx context.Context, date time.Time) ([]Trade, error)
}

// TradeWriter persists ingested trades.
type TradeWriter interface {
	// SaveTrades inserts trades in a single transaction and returns how many
	// were written. On error nothing is written.
	SaveTrades(ctx context.Context, trades []Trade) (int, error)
}

// TradeStore is the full storage contract used by the server and CLI.
type TradeStore interface {
	TradeReader
	TradeWriter

	// DeleteAll removes every stored trade and returns the number removed.
	DeleteAll(ctx context.Context) (int64, error)

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	// Close releases underlying resources.
	Close() error
}
