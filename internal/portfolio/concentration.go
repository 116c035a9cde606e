package portfolio

import "github.com/shopspring/decimal"

// PercentPlaces is the number of decimal places every percentage and
// reported market value is rounded to. Rounding is half away from zero.
const PercentPlaces = 2

var hundred = decimal.NewFromInt(100)

// Round applies the package-wide rounding rule.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(PercentPlaces)
}

// Concentration is one instrument's share of its account's total exposure.
type Concentration struct {
	Ticker   string
	Percent  decimal.Decimal // rounded
	Exposure decimal.Decimal // unrounded net exposure
}

// Concentrate converts an account's holdings into percentages of the signed
// total. A total of exactly zero yields 0 for every holding. Percentages can
// be negative or above 100 when long and short exposures offset.
// Every holding produces exactly one entry, in holding order.
func Concentrate(holdings []Holding) []Concentration {
	total := decimal.Zero
	for _, h := range holdings {
		total = total.Add(h.Value)
	}

	out := make([]Concentration, len(holdings))
	for i, h := range holdings {
		out[i] = Concentration{Ticker: h.Ticker, Exposure: h.Value, Percent: decimal.Zero}
		if total.IsZero() {
			continue
		}
		out[i].Percent = Round(h.Value.Mul(hundred).Div(total))
	}
	return out
}

// Positions returns account -> ticker -> concentration percentage for a book.
func Positions(b *Book) map[string]map[string]float64 {
	out := make(map[string]map[string]float64, b.Len())
	for _, acct := range b.Accounts {
		out[acct.AccountID] = toFloatMap(Concentrate(acct.Holdings))
	}
	return out
}

func toFloatMap(cs []Concentration) map[string]float64 {
	m := make(map[string]float64, len(cs))
	for _, c := range cs {
		m[c.Ticker] = c.Percent.InexactFloat64()
	}
	return m
}
