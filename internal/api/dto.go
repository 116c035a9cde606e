package api

import (
	"portfolio-clearinghouse/internal/model"

	"github.com/shopspring/decimal"
)

// BlotterItem is one trade as shown on the blotter. Only the detail block
// matching the trade's source layout is present.
type BlotterItem struct {
	Date      string  `json:"date"`
	AccountID string  `json:"account_id"`
	Ticker    string  `json:"ticker"`
	Shares    float64 `json:"shares"`

	*Format1Detail
	*Format2Detail
}

// Format1Detail carries the comma-separated layout's fields.
type Format1Detail struct {
	Price          *float64 `json:"price"`
	TradeType      string   `json:"trade_type"`
	SettlementDate *string  `json:"settlement_date"`
}

// Format2Detail carries the custodian layout's fields.
type Format2Detail struct {
	MarketValue  *float64 `json:"market_value"`
	SourceSystem string   `json:"source_system"`
}

// BlotterResponse is the body of GET /api/blotter.
type BlotterResponse struct {
	Date  string        `json:"date"`
	Count int           `json:"count"`
	Data  []BlotterItem `json:"data"`
}

// PositionsResponse is the body of GET /api/positions.
type PositionsResponse struct {
	Date      string                        `json:"date"`
	Positions map[string]map[string]float64 `json:"positions"`
}

// AlarmsResponse is the body of GET /api/alarms.
type AlarmsResponse struct {
	Date       string                    `json:"date"`
	Alarms     map[string]bool           `json:"alarms"`
	Violations []model.AccountViolations `json:"violations"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Version  string `json:"version"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func newBlotterItem(t model.Trade) BlotterItem {
	item := BlotterItem{
		Date:      model.FormatDate(t.TradeDate),
		AccountID: t.AccountID,
		Ticker:    t.Ticker,
		Shares:    t.Shares.InexactFloat64(),
	}
	switch t.Format {
	case model.Format1:
		d := &Format1Detail{
			Price:     floatPtr(t.Price),
			TradeType: t.TradeType,
		}
		if t.SettlementDate != nil {
			s := model.FormatDate(*t.SettlementDate)
			d.SettlementDate = &s
		}
		item.Format1Detail = d
	case model.Format2:
		item.Format2Detail = &Format2Detail{
			MarketValue:  floatPtr(t.MarketValue),
			SourceSystem: t.SourceSystem,
		}
	}
	return item
}

func floatPtr(d decimal.NullDecimal) *float64 {
	if !d.Valid {
		return nil
	}
	f := d.Decimal.InexactFloat64()
	return &f
}
