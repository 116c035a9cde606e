package portfolio

import (
	"portfolio-clearinghouse/internal/model"

	"github.com/shopspring/decimal"
)

// Contribution returns the signed market value a trade adds to its
// account's exposure: the stated market value when present, otherwise
// price × shares, otherwise zero. A trade is never rejected for missing
// optional fields.
func Contribution(t model.Trade) decimal.Decimal {
	if t.MarketValue.Valid {
		return t.MarketValue.Decimal
	}
	if t.Price.Valid {
		return t.Price.Decimal.Mul(t.Shares)
	}
	return decimal.Zero
}

// Holding is an account's net exposure to one instrument.
type Holding struct {
	Ticker string
	Value  decimal.Decimal
}

// AccountExposure holds an account's holdings in the order each
// instrument was first seen.
type AccountExposure struct {
	AccountID string
	Holdings  []Holding

	index map[string]int // ticker -> position in Holdings
}

func newAccountExposure(accountID string) *AccountExposure {
	return &AccountExposure{
		AccountID: accountID,
		index:     make(map[string]int),
	}
}

func (a *AccountExposure) add(ticker string, v decimal.Decimal) {
	i, ok := a.index[ticker]
	if !ok {
		a.index[ticker] = len(a.Holdings)
		a.Holdings = append(a.Holdings, Holding{Ticker: ticker, Value: v})
		return
	}
	a.Holdings[i].Value = a.Holdings[i].Value.Add(v)
}

// Total returns the signed sum of every holding.
func (a *AccountExposure) Total() decimal.Decimal {
	total := decimal.Zero
	for _, h := range a.Holdings {
		total = total.Add(h.Value)
	}
	return total
}

// Book is the per-account, per-instrument exposure for one trade date.
// Accounts keep first-seen order so every derived report is reproducible.
type Book struct {
	Accounts []*AccountExposure

	index map[string]int // account -> position in Accounts
}

// Aggregate reduces trades into a Book. Contributions are accumulated in the
// order trades are given; no pre-grouping by account is assumed.
func Aggregate(trades []model.Trade) *Book {
	b := &Book{index: make(map[string]int)}
	for i := range trades {
		t := &trades[i]
		acct, ok := b.Account(t.AccountID)
		if !ok {
			acct = newAccountExposure(t.AccountID)
			b.index[t.AccountID] = len(b.Accounts)
			b.Accounts = append(b.Accounts, acct)
		}
		acct.add(t.Ticker, Contribution(*t))
	}
	return b
}

// Account looks up an account's exposure.
func (b *Book) Account(accountID string) (*AccountExposure, bool) {
	i, ok := b.index[accountID]
	if !ok {
		return nil, false
	}
	return b.Accounts[i], true
}

// Len returns the number of accounts in the book.
func (b *Book) Len() int {
	return len(b.Accounts)
}
