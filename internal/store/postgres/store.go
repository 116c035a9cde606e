// Package postgres is the PostgreSQL TradeStore used when STORE_DRIVER=postgres.
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"portfolio-clearinghouse/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const schema = `
	CREATE TABLE IF NOT EXISTS trades (
		id              BIGSERIAL PRIMARY KEY,
		trade_date      DATE           NOT NULL,
		account_id      TEXT           NOT NULL,
		ticker          TEXT           NOT NULL,
		quantity        NUMERIC        NOT NULL,
		price           NUMERIC,
		trade_type      TEXT,
		settlement_date DATE,
		market_value    NUMERIC,
		source_system   TEXT,
		file_format     TEXT           NOT NULL,
		created_at      TIMESTAMPTZ    NOT NULL DEFAULT now()
	);

	CREATE INDEX IF NOT EXISTS idx_trades_date_account ON trades (trade_date, account_id);
	CREATE INDEX IF NOT EXISTS idx_trades_date_ticker  ON trades (trade_date, ticker);
`

const insertTrade = `
	INSERT INTO trades (trade_date, account_id, ticker, quantity, price, trade_type,
	                    settlement_date, market_value, source_system, file_format)
	VALUES ($1::date, $2, $3, $4::numeric, $5::numeric, $6, $7::date, $8::numeric, $9, $10)
`

// Store persists trades in PostgreSQL through a pgx connection pool.
// Numerics cross the wire as text so shopspring decimals stay exact.
type Store struct {
	pool *pgxpool.Pool
}

var _ model.TradeStore = (*Store)(nil)

// Open connects to databaseURL and ensures the schema exists.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres schema: %w", err)
	}
	slog.Info("connected", "component", "postgres")
	return &Store{pool: pool}, nil
}

// SaveTrades inserts trades in one transaction using a pipelined batch.
func (s *Store) SaveTrades(ctx context.Context, trades []model.Trade) (int, error) {
	if len(trades) == 0 {
		return 0, nil
	}
	start := time.Now()

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for i := range trades {
			t := &trades[i]
			batch.Queue(insertTrade,
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
			)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return 0, fmt.Errorf("postgres insert trades: %w", err)
	}

	slog.Debug("committed trades", "component", "postgres", "count", len(trades), "took", time.Since(start))
	return len(trades), nil
}

// TradesByDate returns all trades for date in insertion order.
func (s *Store) TradesByDate(ctx context.Context, date time.Time) ([]model.Trade, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, to_char(trade_date, 'YYYY-MM-DD'), account_id, ticker, quantity::text,
		       price::text, trade_type, to_char(settlement_date, 'YYYY-MM-DD'),
		       market_value::text, source_system, file_format, created_at
		FROM trades
		WHERE trade_date = $1::date
		ORDER BY id ASC
	`, model.FormatDate(date))
	if err != nil {
		return nil, fmt.Errorf("postgres query trades: %w", err)
	}
	defer rows.Close()

	trades := make([]model.Trade, 0)
	for rows.Next() {
		var (
			t                   model.Trade
			tradeDate, quantity string
			format              string
			price, mv, settle   *string
			tradeType, src      *string
		)
		if err := rows.Scan(&t.ID, &tradeDate, &t.AccountID, &t.Ticker, &quantity, &price, &tradeType,
			&settle, &mv, &src, &format, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres scan trade: %w", err)
		}

		if t.TradeDate, err = model.ParseDate(tradeDate); err != nil {
			return nil, fmt.Errorf("postgres trade %d: trade_date %q: %w", t.ID, tradeDate, err)
		}
		if t.Shares, err = decimal.NewFromString(quantity); err != nil {
			return nil, fmt.Errorf("postgres trade %d: quantity %q: %w", t.ID, quantity, err)
		}
		if t.Price, err = parseNullDecimal(price); err != nil {
			return nil, fmt.Errorf("postgres trade %d: price: %w", t.ID, err)
		}
		if t.MarketValue, err = parseNullDecimal(mv); err != nil {
			return nil, fmt.Errorf("postgres trade %d: market_value: %w", t.ID, err)
		}
		if settle != nil {
			d, err := model.ParseDate(*settle)
			if err != nil {
				return nil, fmt.Errorf("postgres trade %d: settlement_date %q: %w", t.ID, *settle, err)
			}
			t.SettlementDate = &d
		}
		if tradeType != nil {
			t.TradeType = *tradeType
		}
		if src != nil {
			t.SourceSystem = *src
		}
		t.Format = model.FileFormat(format)
		t.CreatedAt = t.CreatedAt.UTC()

		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// DeleteAll removes every stored trade.
func (s *Store) DeleteAll(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM trades`)
	if err != nil {
		return 0, fmt.Errorf("postgres delete trades: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func parseNullDecimal(s *string) (decimal.NullDecimal, error) {
	if s == nil {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}

func nullDecimal(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := d.Decimal.String()
	return &s
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := model.FormatDate(*t)
	return &s
}
