package portfolio

import (
	"testing"
	"time"

	"portfolio-clearinghouse/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func nullDec(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(dec(s))
}

// csvTrade builds a format1 trade (price × shares).
func csvTrade(acct, ticker, shares, price string) model.Trade {
	return model.Trade{
		TradeDate: day,
		AccountID: acct,
		Ticker:    ticker,
		Shares:    dec(shares),
		Price:     nullDec(price),
		TradeType: "BUY",
		Format:    model.Format1,
	}
}

// pipeTrade builds a format2 trade (explicit market value).
func pipeTrade(acct, ticker, shares, mv string) model.Trade {
	return model.Trade{
		TradeDate:    day,
		AccountID:    acct,
		Ticker:       ticker,
		Shares:       dec(shares),
		MarketValue:  nullDec(mv),
		SourceSystem: "CUSTODIAN_A",
		Format:       model.Format2,
	}
}

func TestContribution(t *testing.T) {
	tests := []struct {
		name  string
		trade model.Trade
		want  string
	}{
		{"market value wins", model.Trade{Shares: dec("10"), Price: nullDec("5"), MarketValue: nullDec("123.45")}, "123.45"},
		{"price times shares", model.Trade{Shares: dec("100"), Price: nullDec("185.50")}, "18550"},
		{"sell is negative", model.Trade{Shares: dec("-50"), Price: nullDec("420.25")}, "-21012.5"},
		{"nothing to value", model.Trade{Shares: dec("100")}, "0"},
		{"zero market value is not absent", model.Trade{Shares: dec("10"), Price: nullDec("5"), MarketValue: nullDec("0")}, "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Contribution(tt.trade)
			assert.True(t, got.Equal(dec(tt.want)), "got %s want %s", got, tt.want)
		})
	}
}

func TestAggregate_SumsPerAccountAndTicker(t *testing.T) {
	trades := []model.Trade{
		csvTrade("ACC001", "AAPL", "100", "185.50"),
		pipeTrade("ACC002", "MSFT", "50", "21012.50"),
		csvTrade("ACC001", "AAPL", "-20", "185.50"),
		pipeTrade("ACC001", "MSFT", "50", "21012.50"),
		{TradeDate: day, AccountID: "ACC001", Ticker: "TSLA", Shares: dec("10"), Format: model.Format2},
	}

	b := Aggregate(trades)
	require.Equal(t, 2, b.Len())

	acc1, ok := b.Account("ACC001")
	require.True(t, ok)
	assert.Equal(t, []string{"AAPL", "MSFT", "TSLA"}, tickers(acc1))

	aapl, _ := holding(acc1, "AAPL")
	assert.True(t, aapl.Equal(dec("14840")), "AAPL = %s", aapl)

	tsla, ok := holding(acc1, "TSLA")
	assert.True(t, ok, "unvalued trade must still create its bucket")
	assert.True(t, tsla.IsZero())

	acc2, _ := b.Account("ACC002")
	assert.True(t, acc2.Total().Equal(dec("21012.50")))
}

func TestAggregate_KeepsFirstSeenOrder(t *testing.T) {
	trades := []model.Trade{
		pipeTrade("B", "Z", "1", "1"),
		pipeTrade("A", "Y", "1", "1"),
		pipeTrade("B", "X", "1", "1"),
	}
	b := Aggregate(trades)
	require.Equal(t, 2, b.Len())
	assert.Equal(t, "B", b.Accounts[0].AccountID)
	assert.Equal(t, "A", b.Accounts[1].AccountID)
	assert.Equal(t, []string{"Z", "X"}, tickers(b.Accounts[0]))
}

func TestAggregate_Empty(t *testing.T) {
	b := Aggregate(nil)
	assert.Equal(t, 0, b.Len())
	assert.Empty(t, b.Accounts)
}

func TestAggregate_Pure(t *testing.T) {
	trades := []model.Trade{
		csvTrade("ACC001", "AAPL", "100", "185.50"),
		pipeTrade("ACC001", "MSFT", "50", "21012.50"),
		pipeTrade("ACC003", "TSLA", "-150", "-35767.50"),
	}
	first := Aggregate(trades)
	second := Aggregate(trades)
	require.Equal(t, first.Len(), second.Len())
	for i := range first.Accounts {
		assert.Equal(t, first.Accounts[i].Holdings, second.Accounts[i].Holdings)
	}
}

func tickers(a *AccountExposure) []string {
	out := make([]string, len(a.Holdings))
	for i, h := range a.Holdings {
		out[i] = h.Ticker
	}
	return out
}

func holding(a *AccountExposure, ticker string) (decimal.Decimal, bool) {
	for _, h := range a.Holdings {
		if h.Ticker == ticker {
			return h.Value, true
		}
	}
	return decimal.Zero, false
}
