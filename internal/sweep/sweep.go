// Package sweep runs the alarm check on a schedule so violations are
// raised even when nobody queries the API.
package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"portfolio-clearinghouse/internal/logger"
	"portfolio-clearinghouse/internal/model"
	"portfolio-clearinghouse/internal/portfolio"

	"github.com/robfig/cron/v3"
)

// AlarmRunner evaluates alarms for a trade date. *portfolio.Engine satisfies it.
type AlarmRunner interface {
	Alarms(ctx context.Context, date time.Time) (portfolio.AlarmReport, error)
}

// Sweeper triggers an alarm run for the current trade date on every tick
// of a cron schedule.
type Sweeper struct {
	cron    *cron.Cron
	runner  AlarmRunner
	now     func() time.Time
	timeout time.Duration

	// OnRun is called after every run (optional, set before Start).
	OnRun func(violators int, err error)
}

// parser accepts standard 5-field specs, an optional leading seconds field
// and descriptors such as @daily.
var parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// New creates a Sweeper for schedule. It does not start it.
func New(schedule string, runner AlarmRunner) (*Sweeper, error) {
	s := &Sweeper{
		cron:    cron.New(cron.WithParser(parser)),
		runner:  runner,
		now:     time.Now,
		timeout: time.Minute,
	}
	if _, err := s.cron.AddFunc(schedule, s.tick); err != nil {
		return nil, fmt.Errorf("sweep: schedule %q: %w", schedule, err)
	}
	return s, nil
}

// TradeDate returns the calendar date of t as midnight UTC, the form the
// stores key trades by.
func TradeDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// RunOnce evaluates alarms for today's trade date. Alerts for violating
// accounts are dispatched by the runner.
func (s *Sweeper) RunOnce(ctx context.Context) (portfolio.AlarmReport, error) {
	date := TradeDate(s.now())
	ctx = logger.WithTraceID(ctx, logger.NewTraceID())

	report, err := s.runner.Alarms(ctx, date)
	if s.OnRun != nil {
		s.OnRun(report.Violators(), err)
	}
	if err != nil {
		return report, fmt.Errorf("sweep %s: %w", model.FormatDate(date), err)
	}

	slog.Info("alarm sweep complete",
		append(logger.LogWithTrace(ctx),
			"component", "sweep",
			"trade_date", model.FormatDate(date),
			"accounts", len(report.Alarms),
			"violators", report.Violators())...)
	return report, nil
}

func (s *Sweeper) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if _, err := s.RunOnce(ctx); err != nil {
		slog.Error("alarm sweep failed", "component", "sweep", "error", err)
	}
}

// Start begins the schedule in the background.
func (s *Sweeper) Start() {
	s.cron.Start()
	slog.Info("alarm sweep scheduled", "component", "sweep", "next", s.Next())
}

// Next returns the next scheduled run, or the zero time before Start.
func (s *Sweeper) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}
