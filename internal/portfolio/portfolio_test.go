package portfolio

import (
	"context"
	"errors"
	"testing"
	"time"

	"portfolio-clearinghouse/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	trades map[string][]model.Trade
	err    error
	calls  int
}

func (f *fakeReader) TradesByDate(_ context.Context, date time.Time) ([]model.Trade, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.trades[model.FormatDate(date)], nil
}

func TestEngine_PositionsAndAlarms(t *testing.T) {
	store := &fakeReader{trades: map[string][]model.Trade{
		"2025-01-15": {
			csvTrade("A1", "AAPL", "100", "185.50"),
			pipeTrade("A1", "MSFT", "50", "21012.50"),
			pipeTrade("A3", "AAPL", "100", "10000"),
			pipeTrade("A3", "MSFT", "-100", "-10000"),
		},
	}}
	rec := &recordingDispatcher{}
	e := NewEngine(store, NewDetector(DefaultRiskLimits(), rec))
	ctx := context.Background()

	pos, err := e.Positions(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, map[string]map[string]float64{
		"A1": {"AAPL": 46.89, "MSFT": 53.11},
		"A3": {"AAPL": 0, "MSFT": 0},
	}, pos)
	assert.Zero(t, rec.count(), "positions must not dispatch")

	report, err := e.Alarms(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"A1": true, "A3": false}, report.Alarms)
	assert.Equal(t, 1, rec.count())

	// Each query recomputes from the store and dispatches again.
	_, err = e.Alarms(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.count())
	assert.Equal(t, 3, store.calls)
}

func TestEngine_EmptyDate(t *testing.T) {
	rec := &recordingDispatcher{}
	e := NewEngine(&fakeReader{}, NewDetector(DefaultRiskLimits(), rec))

	pos, err := e.Positions(context.Background(), day)
	require.NoError(t, err)
	assert.Empty(t, pos)

	report, err := e.Alarms(context.Background(), day)
	require.NoError(t, err)
	assert.Empty(t, report.Alarms)
	assert.Empty(t, report.Violations)
	assert.Zero(t, rec.count())
}

func TestEngine_StoreError(t *testing.T) {
	boom := errors.New("disk on fire")
	e := NewEngine(&fakeReader{err: boom}, nil)

	_, err := e.Positions(context.Background(), day)
	assert.ErrorIs(t, err, boom)

	_, err = e.Alarms(context.Background(), day)
	assert.ErrorIs(t, err, boom)

	_, err = e.Blotter(context.Background(), day)
	assert.ErrorIs(t, err, boom)
}
