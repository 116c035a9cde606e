package notification

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"portfolio-clearinghouse/internal/logger"
	"portfolio-clearinghouse/internal/model"

	"github.com/google/uuid"
)

// DispatcherConfig configures the alert queue and its workers.
type DispatcherConfig struct {
	QueueSize   int           // bounded queue; alerts are dropped when full
	Workers     int           // delivery goroutines
	SendTimeout time.Duration // per-notifier delivery timeout
}

func (c *DispatcherConfig) withDefaults() {
	if c.QueueSize <= 0 {
		c.QueueSize = 1024
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 5 * time.Second
	}
}

// Dispatcher turns violation reports into alerts and delivers them to every
// notifier in the background. Dispatch only enqueues, so the query that
// raised the alert never waits on, or fails because of, a delivery channel.
type Dispatcher struct {
	cfg       DispatcherConfig
	notifiers []Notifier
	queue     chan Alert

	mu     sync.RWMutex // guards closed against sends on a closed queue
	closed bool
	start  sync.Once
	wg     sync.WaitGroup

	now   func() time.Time
	newID func() string

	// Callbacks (optional, set before Start)
	OnEnqueue   func()
	OnDrop      func()
	OnDelivered func(channel string)
	OnFailed    func(channel string)
}

// NewDispatcher creates a Dispatcher delivering to notifiers.
func NewDispatcher(cfg DispatcherConfig, notifiers ...Notifier) *Dispatcher {
	cfg.withDefaults()
	return &Dispatcher{
		cfg:       cfg,
		notifiers: notifiers,
		queue:     make(chan Alert, cfg.QueueSize),
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Start launches the delivery workers. Calling it more than once is a no-op.
func (d *Dispatcher) Start() {
	d.start.Do(func() {
		for i := 0; i < d.cfg.Workers; i++ {
			d.wg.Add(1)
			go d.worker()
		}
		slog.Info("alert dispatcher started",
			"component", "dispatcher",
			"workers", d.cfg.Workers,
			"queue_size", d.cfg.QueueSize,
			"channels", d.channelNames())
	})
}

// Dispatch enqueues one alert for accountID. It never blocks: when the queue
// is full or the dispatcher is closed the alert is dropped and logged.
func (d *Dispatcher) Dispatch(ctx context.Context, tradeDate time.Time, accountID string, violations []model.Violation) {
	ev := ViolationEvent{
		ID:         d.newID(),
		Timestamp:  d.now().UTC(),
		Type:       EventPositionLimitViolation,
		AccountID:  accountID,
		TradeDate:  model.FormatDate(tradeDate),
		Violations: violations,
	}
	alert := NewViolationAlert(ev)
	alert.TraceID = logger.TraceID(ctx)

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.drop(ctx, alert, "dispatcher closed")
		return
	}
	select {
	case d.queue <- alert:
		if d.OnEnqueue != nil {
			d.OnEnqueue()
		}
	default:
		d.drop(ctx, alert, "queue full")
	}
}

func (d *Dispatcher) drop(ctx context.Context, alert Alert, reason string) {
	if d.OnDrop != nil {
		d.OnDrop()
	}
	slog.Warn("alert dropped",
		append(logger.LogWithTrace(ctx),
			"component", "dispatcher",
			"reason", reason,
			"event_id", alert.Event.ID,
			"account_id", alert.Event.AccountID)...)
}

// Pending returns the number of queued, undelivered alerts.
func (d *Dispatcher) Pending() int {
	return len(d.queue)
}

// Close stops accepting alerts, delivers what is already queued and waits
// for the workers to exit.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for alert := range d.queue {
		d.deliver(alert)
	}
}

func (d *Dispatcher) deliver(alert Alert) {
	for _, n := range d.notifiers {
		ctx, cancel := context.WithTimeout(context.Background(), d.cfg.SendTimeout)
		if alert.TraceID != "" {
			ctx = logger.WithTraceID(ctx, alert.TraceID)
		}
		err := safeSend(ctx, n, alert)
		cancel()

		if err != nil {
			if d.OnFailed != nil {
				d.OnFailed(n.Name())
			}
			slog.Error("alert delivery failed",
				append(logger.LogWithTrace(ctx),
					"component", "dispatcher",
					"channel", n.Name(),
					"event_id", alert.Event.ID,
					"account_id", alert.Event.AccountID,
					"error", err)...)
			continue
		}
		if d.OnDelivered != nil {
			d.OnDelivered(n.Name())
		}
	}
}

// safeSend converts a notifier panic into an error.
func safeSend(ctx context.Context, n Notifier, alert Alert) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: panic: %v", n.Name(), r)
		}
	}()
	return n.Send(ctx, alert)
}

func (d *Dispatcher) channelNames() []string {
	names := make([]string, len(d.notifiers))
	for i, n := range d.notifiers {
		names[i] = n.Name()
	}
	return names
}
