package model

// Violation is one instrument of one account whose concentration is above
// the configured limit. Percentage and MarketValue are rounded to 2 places.
type Violation struct {
	Ticker      string  `json:"ticker"`
	Percentage  float64 `json:"percentage"`
	MarketValue float64 `json:"market_value"`
}

// AccountViolations groups the violations found for a single account,
// in the order the account's instruments were first seen.
type AccountViolations struct {
	AccountID  string      `json:"account_id"`
	Violations []Violation `json:"violations"`
}
