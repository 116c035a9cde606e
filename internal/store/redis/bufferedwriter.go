package redis

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// publisher is the subset of *Writer the buffered publisher needs.
type publisher interface {
	Publish(ctx context.Context, accountID string, payload []byte) error
}

type pendingAlert struct {
	accountID string
	payload   []byte
}

// BufferedPublisher wraps a Writer with a circuit breaker. While the circuit
// is open, events are buffered in memory (oldest dropped past maxBuf) and
// replayed once the breaker closes.
type BufferedPublisher struct {
	pub publisher
	cb  *CircuitBreaker

	mu     sync.Mutex
	buffer []pendingAlert
	maxBuf int

	// Callbacks (optional)
	OnBuffer func()          // an event was buffered
	OnFlush  func(count int) // buffered events were replayed
}

// NewBufferedPublisher creates a BufferedPublisher around w.
func NewBufferedPublisher(w publisher, cb *CircuitBreaker, maxBufferSize int) *BufferedPublisher {
	if maxBufferSize <= 0 {
		maxBufferSize = 10000
	}
	bp := &BufferedPublisher{
		pub:    w,
		cb:     cb,
		buffer: make([]pendingAlert, 0, 64),
		maxBuf: maxBufferSize,
	}

	prev := cb.OnStateChange
	cb.OnStateChange = func(from, to State) {
		if prev != nil {
			prev(from, to)
		}
		if to == StateClosed {
			go bp.Flush(context.Background())
		}
	}
	return bp
}

// Publish sends payload through the breaker. Events rejected by an open
// breaker are buffered and reported as delivered; transport errors are
// returned.
func (bp *BufferedPublisher) Publish(ctx context.Context, accountID string, payload []byte) error {
	err := bp.cb.Execute(func() error {
		return bp.pub.Publish(ctx, accountID, payload)
	})
	if errors.Is(err, ErrCircuitOpen) {
		bp.bufferAlert(accountID, payload)
		return nil
	}
	return err
}

func (bp *BufferedPublisher) bufferAlert(accountID string, payload []byte) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	if len(bp.buffer) >= bp.maxBuf {
		bp.buffer = bp.buffer[1:]
	}
	bp.buffer = append(bp.buffer, pendingAlert{accountID: accountID, payload: payload})

	if bp.OnBuffer != nil {
		bp.OnBuffer()
	}
}

// Flush replays buffered events. Events that fail again are re-buffered.
func (bp *BufferedPublisher) Flush(ctx context.Context) {
	bp.mu.Lock()
	if len(bp.buffer) == 0 {
		bp.mu.Unlock()
		return
	}
	toFlush := bp.buffer
	bp.buffer = make([]pendingAlert, 0, 64)
	bp.mu.Unlock()

	flushed := 0
	for i, pa := range toFlush {
		if err := bp.pub.Publish(ctx, pa.accountID, pa.payload); err != nil {
			slog.Warn("flush interrupted", "component", "redis-buffer", "remaining", len(toFlush)-i, "error", err)
			for _, rest := range toFlush[i:] {
				bp.bufferAlert(rest.accountID, rest.payload)
			}
			break
		}
		flushed++
	}

	slog.Info("flushed buffered alerts", "component", "redis-buffer", "count", flushed)
	if bp.OnFlush != nil {
		bp.OnFlush(flushed)
	}
}

// PendingCount returns the number of buffered events.
func (bp *BufferedPublisher) PendingCount() int {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return len(bp.buffer)
}
