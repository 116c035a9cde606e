package ingest

import (
	"strings"
	"testing"

	"portfolio-clearinghouse/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const format1Sample = `TradeDate,AccountID,Ticker,Quantity,Price,TradeType,SettlementDate
2025-01-15,ACC001,AAPL,100,185.50,BUY,2025-01-17
2025-01-15,ACC001,MSFT,50,420.25,SELL,2025-01-17
`

func TestParseFormat1(t *testing.T) {
	trades, errs := ParseFormat1(strings.NewReader(format1Sample))
	require.Empty(t, errs)
	require.Len(t, trades, 2)

	aapl := trades[0]
	assert.Equal(t, "2025-01-15", model.FormatDate(aapl.TradeDate))
	assert.Equal(t, "ACC001", aapl.AccountID)
	assert.Equal(t, "AAPL", aapl.Ticker)
	assert.Equal(t, "100", aapl.Shares.String())
	assert.Equal(t, "185.5", aapl.Price.Decimal.String())
	assert.Equal(t, "BUY", aapl.TradeType)
	require.NotNil(t, aapl.SettlementDate)
	assert.Equal(t, "2025-01-17", model.FormatDate(*aapl.SettlementDate))
	assert.Equal(t, model.Format1, aapl.Format)
	assert.False(t, aapl.MarketValue.Valid)

	msft := trades[1]
	assert.Equal(t, "-50", msft.Shares.String(), "SELL forces a negative quantity")
	assert.Equal(t, "SELL", msft.TradeType)
}

func TestParseFormat1_SellIsCaseInsensitiveAndAlreadyNegative(t *testing.T) {
	in := `TradeDate,AccountID,Ticker,Quantity,Price,TradeType,SettlementDate
2025-01-15,ACC001,AAPL,-10,1,sell,2025-01-17
2025-01-15,ACC001,AAPL,10,1,Sell,
`
	trades, errs := ParseFormat1(strings.NewReader(in))
	require.Empty(t, errs)
	require.Len(t, trades, 2)
	assert.Equal(t, "-10", trades[0].Shares.String())
	assert.Equal(t, "-10", trades[1].Shares.String())
	assert.Nil(t, trades[1].SettlementDate)
}

func TestParseFormat1_RejectsBadRowsIndividually(t *testing.T) {
	in := `TradeDate,AccountID,Ticker,Quantity,Price,TradeType,SettlementDate
2025-01-15,ACC001,AAPL,100,185.50,BUY,2025-01-17
invalid-date,ACC002,GOOGL,75,142.80,BUY,2025-01-17
2025-01-15,ACC003,MSFT,abc,420.25,BUY,2025-01-17
2025-01-15,ACC004,TSLA,5
2025-01-15,ACC005,MSFT,50,420.25,BUY,2025-01-17
`
	trades, errs := ParseFormat1(strings.NewReader(in))
	require.Len(t, trades, 2)
	assert.Equal(t, "AAPL", trades[0].Ticker)
	assert.Equal(t, "MSFT", trades[1].Ticker)

	require.Len(t, errs, 3)
	assert.Equal(t, 3, errs[0].Line)
	assert.ErrorIs(t, errs[0], model.ErrInvalidDate)
	assert.Equal(t, 4, errs[1].Line)
	assert.Contains(t, errs[1].Error(), "Quantity")
	assert.Equal(t, 5, errs[2].Line)
	assert.Contains(t, errs[2].Error(), "missing column")
}

func TestParseFormat1_ColumnOrderFollowsHeader(t *testing.T) {
	in := "Ticker,AccountID,TradeDate,TradeType,Quantity,Price,SettlementDate\nAAPL,ACC001,2025-01-15,BUY,7,2.5,2025-01-17\n"
	trades, errs := ParseFormat1(strings.NewReader(in))
	require.Empty(t, errs)
	require.Len(t, trades, 1)
	assert.Equal(t, "AAPL", trades[0].Ticker)
	assert.Equal(t, "7", trades[0].Shares.String())
}

func TestParseFormat1_BadHeader(t *testing.T) {
	trades, errs := ParseFormat1(strings.NewReader("Date,Account\n2025-01-15,ACC001\n"))
	assert.Empty(t, trades)
	require.Len(t, errs, 1)
	assert.Equal(t, 1, errs[0].Line)

	trades, errs = ParseFormat1(strings.NewReader(""))
	assert.Empty(t, trades)
	require.Len(t, errs, 1)
}

func TestParseFormat2(t *testing.T) {
	in := "20250115|ACC001|AAPL|100|18550.00|CUSTODIAN_A\n20250115|ACC002|MSFT|50|21012.50|CUSTODIAN_B\n"
	trades, errs := ParseFormat2(strings.NewReader(in))
	require.Empty(t, errs)
	require.Len(t, trades, 2)

	first := trades[0]
	assert.Equal(t, "2025-01-15", model.FormatDate(first.TradeDate))
	assert.Equal(t, "ACC001", first.AccountID)
	assert.Equal(t, "AAPL", first.Ticker)
	assert.Equal(t, "100", first.Shares.String())
	assert.Equal(t, "18550", first.MarketValue.Decimal.String())
	assert.Equal(t, "CUSTODIAN_A", first.SourceSystem)
	assert.Equal(t, model.Format2, first.Format)
	assert.False(t, first.Price.Valid)
}

func TestParseFormat2_NegativeShares(t *testing.T) {
	trades, errs := ParseFormat2(strings.NewReader("20250115|ACC003|TSLA|-150|-35767.50|CUSTODIAN_A"))
	require.Empty(t, errs)
	require.Len(t, trades, 1)
	assert.Equal(t, "-150", trades[0].Shares.String())
	assert.Equal(t, "-35767.5", trades[0].MarketValue.Decimal.String())
}

func TestParseFormat2_MalformedAndBlankLines(t *testing.T) {
	in := "20250115|ACC001|AAPL|100|18550.00|CUSTODIAN_A\r\n" +
		"\n" +
		"invalid|data|here\n" +
		"2025-01-15|ACC001|AAPL|1|1|X\n" +
		"20250115|ACC002|MSFT|50|21012.50|CUSTODIAN_B|extra\n" +
		"   \n" +
		"20250115|ACC002|MSFT|50|21012.50|CUSTODIAN_B\n"

	trades, errs := ParseFormat2(strings.NewReader(in))
	require.Len(t, trades, 2)
	assert.Equal(t, "AAPL", trades[0].Ticker)
	assert.Equal(t, "CUSTODIAN_A", trades[0].SourceSystem)
	assert.Equal(t, "MSFT", trades[1].Ticker)

	require.Len(t, errs, 3)
	assert.Equal(t, 3, errs[0].Line)
	assert.Contains(t, errs[0].Error(), "expected 6 fields, got 3")
	assert.Equal(t, 4, errs[1].Line)
	assert.ErrorIs(t, errs[1], model.ErrInvalidDate)
	assert.Equal(t, 5, errs[2].Line)
}
