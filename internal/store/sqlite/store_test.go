package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"portfolio-clearinghouse/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "data", "trades.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func date(s string) time.Time {
	d, err := model.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func sampleTrades() []model.Trade {
	settle := date("2025-01-17")
	return []model.Trade{
		{
			TradeDate:      date("2025-01-15"),
			AccountID:      "ACC001",
			Ticker:         "AAPL",
			Shares:         decimal.RequireFromString("100"),
			Price:          decimal.NewNullDecimal(decimal.RequireFromString("185.50")),
			TradeType:      "BUY",
			SettlementDate: &settle,
			Format:         model.Format1,
		},
		{
			TradeDate:    date("2025-01-15"),
			AccountID:    "ACC002",
			Ticker:       "MSFT",
			Shares:       decimal.RequireFromString("-50"),
			MarketValue:  decimal.NewNullDecimal(decimal.RequireFromString("-21012.50")),
			SourceSystem: "CUSTODIAN_A",
			Format:       model.Format2,
		},
		{
			TradeDate: date("2025-01-16"),
			AccountID: "ACC001",
			Ticker:    "GOOGL",
			Shares:    decimal.RequireFromString("10"),
			Price:     decimal.NewNullDecimal(decimal.RequireFromString("0.0001")),
			TradeType: "BUY",
			Format:    model.Format1,
		},
	}
}

func TestStore_SaveAndReadByDate(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	n, err := s.SaveTrades(ctx, sampleTrades())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	got, err := s.TradesByDate(ctx, date("2025-01-15"))
	require.NoError(t, err)
	require.Len(t, got, 2)

	first := got[0]
	assert.NotZero(t, first.ID)
	assert.Equal(t, "ACC001", first.AccountID)
	assert.Equal(t, "AAPL", first.Ticker)
	assert.True(t, first.Shares.Equal(decimal.NewFromInt(100)))
	require.True(t, first.Price.Valid)
	assert.Equal(t, "185.5", first.Price.Decimal.String())
	assert.False(t, first.MarketValue.Valid)
	assert.Equal(t, "BUY", first.TradeType)
	require.NotNil(t, first.SettlementDate)
	assert.Equal(t, "2025-01-17", model.FormatDate(*first.SettlementDate))
	assert.Equal(t, model.Format1, first.Format)
	assert.False(t, first.CreatedAt.IsZero())

	second := got[1]
	assert.Greater(t, second.ID, first.ID)
	assert.Equal(t, "-50", second.Shares.String())
	assert.False(t, second.Price.Valid)
	require.True(t, second.MarketValue.Valid)
	assert.Equal(t, "-21012.5", second.MarketValue.Decimal.String())
	assert.Equal(t, "CUSTODIAN_A", second.SourceSystem)
	assert.Nil(t, second.SettlementDate)
	assert.Equal(t, model.Format2, second.Format)
}

func TestStore_DecimalsRoundTripExactly(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	_, err := s.SaveTrades(ctx, sampleTrades())
	require.NoError(t, err)

	got, err := s.TradesByDate(ctx, date("2025-01-16"))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "0.0001", got[0].Price.Decimal.String())
}

func TestStore_EmptyDate(t *testing.T) {
	s := openTemp(t)

	got, err := s.TradesByDate(context.Background(), date("2030-01-01"))
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestStore_SaveNothing(t *testing.T) {
	s := openTemp(t)
	n, err := s.SaveTrades(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStore_DeleteAll(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	_, err := s.SaveTrades(ctx, sampleTrades())
	require.NoError(t, err)

	n, err := s.DeleteAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	got, err := s.TradesByDate(ctx, date("2025-01-15"))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStore_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trades.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.SaveTrades(ctx, sampleTrades())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Ping(ctx))
	got, err := s.TradesByDate(ctx, date("2025-01-15"))
	require.NoError(t, err)
	assert.Len(t, got, 2)
}
