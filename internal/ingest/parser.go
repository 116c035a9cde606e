// Package ingest parses the two inbound trade file layouts into model.Trade
// rows and persists them.
package ingest

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"portfolio-clearinghouse/internal/model"

	"github.com/shopspring/decimal"
)

// Format1Header is the required header of a format1 file. Column order may vary.
var Format1Header = []string{"TradeDate", "AccountID", "Ticker", "Quantity", "Price", "TradeType", "SettlementDate"}

const format2Fields = 6

// format2DateLayout is the compact report date used by custodian files.
const format2DateLayout = "20060102"

// RowError describes one rejected input row.
type RowError struct {
	Line int // 1-based line number in the input
	Err  error
}

func (e RowError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e RowError) Unwrap() error { return e.Err }

var (
	errMissingHeader = errors.New("missing header row")
	errEmptyField    = errors.New("empty field")
)

// ParseFormat1 parses a comma-separated file with a Format1Header header.
// Each bad row is rejected on its own; the rest are returned in file order.
// SELL trades (any case) always carry a negative quantity.
func ParseFormat1(r io.Reader) ([]model.Trade, []RowError) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, []RowError{{Line: 1, Err: errMissingHeader}}
	}
	if err != nil {
		return nil, []RowError{{Line: 1, Err: err}}
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	for _, want := range Format1Header {
		if _, ok := cols[want]; !ok {
			return nil, []RowError{{Line: 1, Err: fmt.Errorf("header: missing column %q", want)}}
		}
	}

	var (
		trades []model.Trade
		errs   []RowError
	)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var line int
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				line = pe.Line
			}
			errs = append(errs, RowError{Line: line, Err: err})
			continue
		}
		line, _ := cr.FieldPos(0)
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}

		t, err := parseFormat1Row(rec, cols)
		if err != nil {
			errs = append(errs, RowError{Line: line, Err: err})
			continue
		}
		trades = append(trades, t)
	}
	return trades, errs
}

func parseFormat1Row(rec []string, cols map[string]int) (model.Trade, error) {
	field := func(name string) (string, error) {
		i := cols[name]
		if i >= len(rec) {
			return "", fmt.Errorf("%s: missing column", name)
		}
		return strings.TrimSpace(rec[i]), nil
	}
	required := func(name string) (string, error) {
		v, err := field(name)
		if err != nil {
			return "", err
		}
		if v == "" {
			return "", fmt.Errorf("%s: %w", name, errEmptyField)
		}
		return v, nil
	}

	var t model.Trade
	t.Format = model.Format1

	s, err := required("TradeDate")
	if err != nil {
		return t, err
	}
	if t.TradeDate, err = model.ParseDate(s); err != nil {
		return t, fmt.Errorf("TradeDate %q: %w", s, err)
	}

	if t.AccountID, err = required("AccountID"); err != nil {
		return t, err
	}
	if t.Ticker, err = required("Ticker"); err != nil {
		return t, err
	}

	if s, err = required("Quantity"); err != nil {
		return t, err
	}
	if t.Shares, err = decimal.NewFromString(s); err != nil {
		return t, fmt.Errorf("Quantity %q: %w", s, err)
	}

	if s, err = required("Price"); err != nil {
		return t, err
	}
	price, err := decimal.NewFromString(s)
	if err != nil {
		return t, fmt.Errorf("Price %q: %w", s, err)
	}
	t.Price = decimal.NewNullDecimal(price)

	if t.TradeType, err = required("TradeType"); err != nil {
		return t, err
	}
	if strings.EqualFold(t.TradeType, "SELL") {
		t.Shares = t.Shares.Abs().Neg()
	}

	if s, err = field("SettlementDate"); err != nil {
		return t, err
	}
	if s != "" {
		d, err := model.ParseDate(s)
		if err != nil {
			return t, fmt.Errorf("SettlementDate %q: %w", s, err)
		}
		t.SettlementDate = &d
	}
	return t, nil
}

// ParseFormat2 parses a pipe-delimited custodian file:
//
//	YYYYMMDD|account|ticker|shares|market_value|source_system
//
// Lines must have exactly six fields; blank lines are skipped.
func ParseFormat2(r io.Reader) ([]model.Trade, []RowError) {
	var (
		trades []model.Trade
		errs   []RowError
	)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		t, err := parseFormat2Line(text)
		if err != nil {
			errs = append(errs, RowError{Line: line, Err: err})
			continue
		}
		trades = append(trades, t)
	}
	if err := sc.Err(); err != nil {
		errs = append(errs, RowError{Line: line + 1, Err: err})
	}
	return trades, errs
}

func parseFormat2Line(text string) (model.Trade, error) {
	var t model.Trade
	parts := strings.Split(text, "|")
	if len(parts) != format2Fields {
		return t, fmt.Errorf("expected %d fields, got %d", format2Fields, len(parts))
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	t.Format = model.Format2

	d, err := time.Parse(format2DateLayout, parts[0])
	if err != nil {
		return t, fmt.Errorf("report date %q: %w", parts[0], model.ErrInvalidDate)
	}
	t.TradeDate = d

	if parts[1] == "" {
		return t, fmt.Errorf("account: %w", errEmptyField)
	}
	if parts[2] == "" {
		return t, fmt.Errorf("ticker: %w", errEmptyField)
	}
	t.AccountID, t.Ticker = parts[1], parts[2]

	if t.Shares, err = decimal.NewFromString(parts[3]); err != nil {
		return t, fmt.Errorf("shares %q: %w", parts[3], err)
	}
	mv, err := decimal.NewFromString(parts[4])
	if err != nil {
		return t, fmt.Errorf("market value %q: %w", parts[4], err)
	}
	t.MarketValue = decimal.NewNullDecimal(mv)
	t.SourceSystem = parts[5]
	return t, nil
}
