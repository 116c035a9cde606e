package model

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// FileFormat tags which inbound file layout produced a trade.
type FileFormat string

const (
	// Format1 is the comma-separated layout carrying price, trade type and settlement date.
	Format1 FileFormat = "format1"
	// Format2 is the pipe-delimited custodian layout carrying market value and source system.
	Format2 FileFormat = "format2"
)

// ParseFileFormat maps a user-supplied format name onto a known FileFormat.
func ParseFileFormat(s string) (FileFormat, bool) {
	switch FileFormat(strings.ToLower(strings.TrimSpace(s))) {
	case Format1:
		return Format1, true
	case Format2:
		return Format2, true
	}
	return "", false
}

// DateLayout is the calendar-date layout used on the API and in storage.
const DateLayout = "2006-01-02"

// ErrInvalidDate is returned when a trade date cannot be parsed.
var ErrInvalidDate = errors.New("invalid date format, use YYYY-MM-DD")

// ParseDate parses a YYYY-MM-DD calendar date as midnight UTC.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return t, nil
}

// FormatDate renders t as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// Trade is one normalized trade or position line, regardless of the file
// layout it was ingested from. Date, account, ticker, shares and format are
// always set; everything else is optional and depends on the source layout.
// Shares are signed: sells and shorts are negative.
type Trade struct {
	ID             int64               `json:"id"`
	TradeDate      time.Time           `json:"trade_date"`
	AccountID      string              `json:"account_id"`
	Ticker         string              `json:"ticker"`
	Shares         decimal.Decimal     `json:"shares"`
	Price          decimal.NullDecimal `json:"price"`
	TradeType      string              `json:"trade_type,omitempty"`
	SettlementDate *time.Time          `json:"settlement_date,omitempty"`
	MarketValue    decimal.NullDecimal `json:"market_value"`
	SourceSystem   string              `json:"source_system,omitempty"`
	Format         FileFormat          `json:"file_format"`
	CreatedAt      time.Time           `json:"created_at"`
}

// Key returns "account:ticker", the exposure bucket this trade falls into.
func (t *Trade) Key() string {
	return t.AccountID + ":" + t.Ticker
}
