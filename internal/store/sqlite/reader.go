package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"portfolio-clearinghouse/internal/model"

	"github.com/shopspring/decimal"
)

// TradesByDate returns all trades for date in insertion order.
func (s *Store) TradesByDate(ctx context.Context, date time.Time) ([]model.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, trade_date, account_id, ticker, quantity, price, trade_type,
		       settlement_date, market_value, source_system, file_format, created_at
		FROM trades
		WHERE trade_date = ?
		ORDER BY id ASC
	`, model.FormatDate(date))
	if err != nil {
		return nil, fmt.Errorf("sqlite query trades: %w", err)
	}
	defer rows.Close()

	trades := make([]model.Trade, 0)
	for rows.Next() {
		var (
			t                                 model.Trade
			tradeDate, quantity, format       string
			price, tradeType, settle, mv, src sql.NullString
			createdMillis                     int64
		)
		if err := rows.Scan(&t.ID, &tradeDate, &t.AccountID, &t.Ticker, &quantity, &price, &tradeType,
			&settle, &mv, &src, &format, &createdMillis); err != nil {
			return nil, fmt.Errorf("sqlite scan trade: %w", err)
		}

		if t.TradeDate, err = model.ParseDate(tradeDate); err != nil {
			return nil, fmt.Errorf("sqlite trade %d: trade_date %q: %w", t.ID, tradeDate, err)
		}
		if t.Shares, err = decimal.NewFromString(quantity); err != nil {
			return nil, fmt.Errorf("sqlite trade %d: quantity %q: %w", t.ID, quantity, err)
		}
		if t.Price, err = parseNullDecimal(price); err != nil {
			return nil, fmt.Errorf("sqlite trade %d: price: %w", t.ID, err)
		}
		if t.MarketValue, err = parseNullDecimal(mv); err != nil {
			return nil, fmt.Errorf("sqlite trade %d: market_value: %w", t.ID, err)
		}
		if settle.Valid {
			d, err := model.ParseDate(settle.String)
			if err != nil {
				return nil, fmt.Errorf("sqlite trade %d: settlement_date %q: %w", t.ID, settle.String, err)
			}
			t.SettlementDate = &d
		}
		t.TradeType = tradeType.String
		t.SourceSystem = src.String
		t.Format = model.FileFormat(format)
		t.CreatedAt = time.UnixMilli(createdMillis).UTC()

		trades = append(trades, t)
	}
	return trades, rows.Err()
}

func parseNullDecimal(s sql.NullString) (decimal.NullDecimal, error) {
	if !s.Valid {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}

func nullDecimal(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal.String()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return model.FormatDate(*t)
}
