// Package notification delivers position-limit alerts to external channels
// (logs, webhooks, Telegram, Kafka, Redis, WebSocket clients).
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"portfolio-clearinghouse/internal/model"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// EventPositionLimitViolation is the event type of every violation alert.
const EventPositionLimitViolation = "POSITION_LIMIT_VIOLATION"

// ViolationEvent is the structured payload describing one violating account.
type ViolationEvent struct {
	ID         string            `json:"id"`
	Timestamp  time.Time         `json:"timestamp"`
	Type       string            `json:"type"`
	AccountID  string            `json:"account_id"`
	TradeDate  string            `json:"trade_date"`
	Violations []model.Violation `json:"violations"`
}

// JSON returns the JSON-encoded event.
func (e ViolationEvent) JSON() ([]byte, error) {
	return json.Marshal(e)
}

// Alert represents a notification to be sent.
type Alert struct {
	Level   AlertLevel     `json:"level"`
	Title   string         `json:"title"`
	Message string         `json:"message"`
	Event   ViolationEvent `json:"event"`

	// TraceID links delivery logs back to the request that raised the alert.
	TraceID string `json:"-"`
}

// NewViolationAlert builds the human-readable alert for an event.
func NewViolationAlert(ev ViolationEvent) Alert {
	var b strings.Builder
	fmt.Fprintf(&b, "Account %s breached the concentration limit on %s:", ev.AccountID, ev.TradeDate)
	for _, v := range ev.Violations {
		fmt.Fprintf(&b, "\n%s %.2f%% (market value %.2f)", v.Ticker, v.Percentage, v.MarketValue)
	}
	return Alert{
		Level:   AlertCritical,
		Title:   "Position limit violation: " + ev.AccountID,
		Message: b.String(),
		Event:   ev,
	}
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Name identifies the channel in logs and metrics.
	Name() string
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to the structured log (useful for development).
type LogNotifier struct {
	log *slog.Logger
}

// NewLogNotifier creates a log-based notifier. A nil logger uses slog.Default.
func NewLogNotifier(log *slog.Logger) *LogNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Name() string { return "log" }

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	payload, err := alert.Event.JSON()
	if err != nil {
		return fmt.Errorf("log: marshal: %w", err)
	}
	n.log.LogAttrs(ctx, slog.LevelWarn, "[ALERT] "+alert.Title,
		slog.String("component", "notify"),
		slog.String("alert_level", string(alert.Level)),
		slog.String("payload", string(payload)),
	)
	return nil
}
