// Package sqlite is the default TradeStore: a single WAL-mode SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"portfolio-clearinghouse/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Store persists trades in SQLite. Decimals are stored as TEXT so values
// round-trip exactly; dates are stored as YYYY-MM-DD.
type Store struct {
	db *sql.DB
}

var _ model.TradeStore = (*Store)(nil)

// Open opens (creating if needed) the database at path and ensures the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && path != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite mkdir %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single writer; readers queue behind it via busy_timeout.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	slog.Info("opened database", "component", "sqlite", "path", path)
	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS trades (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			trade_date      TEXT    NOT NULL,
			account_id      TEXT    NOT NULL,
			ticker          TEXT    NOT NULL,
			quantity        TEXT    NOT NULL,
			price           TEXT,
			trade_type      TEXT,
			settlement_date TEXT,
			market_value    TEXT,
			source_system   TEXT,
			file_format     TEXT    NOT NULL,
			created_at      INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_trades_date_account ON trades (trade_date, account_id);
		CREATE INDEX IF NOT EXISTS idx_trades_date_ticker  ON trades (trade_date, ticker);
	`)
	return err
}

// SaveTrades inserts trades in a single transaction.
func (s *Store) SaveTrades(ctx context.Context, trades []model.Trade) (int, error) {
	if len(trades) == 0 {
		return 0, nil
	}
	start := time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite begin: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trades (trade_date, account_id, ticker, quantity, price, trade_type,
		                    settlement_date, market_value, source_system, file_format, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("sqlite prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i := range trades {
		t := &trades[i]
		_, err := stmt.ExecContext(ctx,
			model.FormatDate(t.TradeDate),
			t.AccountID,
			t.Ticker,
			t.Shares.String(),
			nullDecimal(t.Price),
			nullString(t.TradeType),
			nullDate(t.SettlementDate),
			nullDecimal(t.MarketValue),
			nullString(t.SourceSystem),
			string(t.Format),
			now.UnixMilli(),
		)
		if err != nil {
			tx.Rollback()
			return 0, fmt.Errorf("sqlite insert trade %s: %w", t.Key(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite commit: %w", err)
	}
	slog.Debug("committed trades", "component", "sqlite", "count", len(trades), "took", time.Since(start))
	return len(trades), nil
}

// DeleteAll removes every stored trade.
func (s *Store) DeleteAll(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM trades`)
	if err != nil {
		return 0, fmt.Errorf("sqlite delete trades: %w", err)
	}
	return res.RowsAffected()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
