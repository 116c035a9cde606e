package portfolio

import (
	"context"
	"log/slog"
	"time"

	"portfolio-clearinghouse/internal/logger"
	"portfolio-clearinghouse/internal/model"

	"github.com/shopspring/decimal"
)

// RiskLimits defines the concentration rule applied to every account.
type RiskLimits struct {
	// MaxConcentrationPct is the highest compliant share of an account's
	// total exposure a single instrument may hold (0-100). The bound is
	// inclusive: exactly MaxConcentrationPct is compliant.
	MaxConcentrationPct decimal.Decimal `json:"max_concentration_pct"`
}

// DefaultRiskLimits returns the standard 20% single-instrument limit.
func DefaultRiskLimits() RiskLimits {
	return RiskLimits{
		MaxConcentrationPct: decimal.NewFromInt(20),
	}
}

// AlertDispatcher receives one notification per violating account.
// Dispatch must return promptly and must not fail the caller: delivery
// errors are the dispatcher's own concern.
type AlertDispatcher interface {
	Dispatch(ctx context.Context, tradeDate time.Time, accountID string, violations []model.Violation)
}

// NopDispatcher discards every alert.
type NopDispatcher struct{}

func (NopDispatcher) Dispatch(context.Context, time.Time, string, []model.Violation) {}

// AlarmReport is the result of one violation check.
type AlarmReport struct {
	// Alarms has an entry for every account in the book, true when the
	// account holds at least one instrument over the limit.
	Alarms map[string]bool `json:"alarms"`
	// Violations lists violating accounts in first-seen order.
	Violations []model.AccountViolations `json:"violations"`
}

// Violators returns the number of accounts in violation.
func (r AlarmReport) Violators() int {
	return len(r.Violations)
}

// Detector applies RiskLimits to a Book and dispatches alerts.
type Detector struct {
	limits     RiskLimits
	dispatcher AlertDispatcher
}

// NewDetector creates a Detector. A nil dispatcher discards alerts.
func NewDetector(limits RiskLimits, dispatcher AlertDispatcher) *Detector {
	if dispatcher == nil {
		dispatcher = NopDispatcher{}
	}
	return &Detector{limits: limits, dispatcher: dispatcher}
}

// Detect flags every account holding an instrument whose rounded
// concentration is strictly above the limit, and dispatches exactly one
// alert per flagged account before returning.
func (d *Detector) Detect(ctx context.Context, tradeDate time.Time, b *Book) AlarmReport {
	report := AlarmReport{
		Alarms:     make(map[string]bool, b.Len()),
		Violations: []model.AccountViolations{},
	}

	for _, acct := range b.Accounts {
		var found []model.Violation
		for _, c := range Concentrate(acct.Holdings) {
			if !c.Percent.GreaterThan(d.limits.MaxConcentrationPct) {
				continue
			}
			found = append(found, model.Violation{
				Ticker:      c.Ticker,
				Percentage:  c.Percent.InexactFloat64(),
				MarketValue: Round(c.Exposure).InexactFloat64(),
			})
		}

		report.Alarms[acct.AccountID] = len(found) > 0
		if len(found) == 0 {
			continue
		}

		report.Violations = append(report.Violations, model.AccountViolations{
			AccountID:  acct.AccountID,
			Violations: found,
		})
		// The dispatcher may hold on to its copy after we return.
		d.dispatch(ctx, tradeDate, acct.AccountID, append([]model.Violation(nil), found...))
	}
	return report
}

func (d *Detector) dispatch(ctx context.Context, tradeDate time.Time, accountID string, violations []model.Violation) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("alert dispatch panicked",
				append(logger.LogWithTrace(ctx),
					slog.String("component", "risk"),
					slog.String("account_id", accountID),
					slog.Any("panic", r))...)
		}
	}()
	d.dispatcher.Dispatch(ctx, tradeDate, accountID, violations)
}
