// Package portfolio derives per-account position concentration and
// limit-violation alarms from a day's trades.
//
// Every query recomputes from the trades the store returns for the date:
// trades are aggregated into a Book of net exposures, exposures are turned
// into percentages of each account's total, and a Detector flags accounts
// holding an instrument over the concentration limit. Nothing is cached
// between queries, so an Engine is safe for concurrent use.
package portfolio

import (
	"context"
	"fmt"
	"time"

	"portfolio-clearinghouse/internal/model"
)

// Engine answers blotter, position and alarm queries for a trade date.
type Engine struct {
	store    model.TradeReader
	detector *Detector
}

// NewEngine creates an Engine reading trades from store.
func NewEngine(store model.TradeReader, detector *Detector) *Engine {
	if detector == nil {
		detector = NewDetector(DefaultRiskLimits(), nil)
	}
	return &Engine{store: store, detector: detector}
}

// Blotter returns the raw trades for date.
func (e *Engine) Blotter(ctx context.Context, date time.Time) ([]model.Trade, error) {
	trades, err := e.store.TradesByDate(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("fetch trades %s: %w", model.FormatDate(date), err)
	}
	return trades, nil
}

// Book aggregates the trades for date into net exposures.
func (e *Engine) Book(ctx context.Context, date time.Time) (*Book, error) {
	trades, err := e.Blotter(ctx, date)
	if err != nil {
		return nil, err
	}
	return Aggregate(trades), nil
}

// Positions returns account -> ticker -> concentration percentage for date.
func (e *Engine) Positions(ctx context.Context, date time.Time) (map[string]map[string]float64, error) {
	b, err := e.Book(ctx, date)
	if err != nil {
		return nil, err
	}
	return Positions(b), nil
}

// Alarms runs the violation check for date, dispatching one alert per
// violating account.
func (e *Engine) Alarms(ctx context.Context, date time.Time) (AlarmReport, error) {
	b, err := e.Book(ctx, date)
	if err != nil {
		return AlarmReport{}, err
	}
	return e.detector.Detect(ctx, date, b), nil
}
