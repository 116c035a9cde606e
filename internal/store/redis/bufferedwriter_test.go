package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	mu   sync.Mutex
	err  error
	sent []string
}

func (f *fakePublisher) Publish(_ context.Context, accountID string, _ []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, accountID)
	return nil
}

func (f *fakePublisher) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fakePublisher) accounts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func TestBufferedPublisher_PassesThrough(t *testing.T) {
	pub := &fakePublisher{}
	bp := NewBufferedPublisher(pub, NewCircuitBreaker(2, time.Second), 10)

	require.NoError(t, bp.Publish(context.Background(), "ACC001", []byte(`{}`)))
	assert.Equal(t, []string{"ACC001"}, pub.accounts())
	assert.Zero(t, bp.PendingCount())
}

func TestBufferedPublisher_ReturnsTransportErrors(t *testing.T) {
	pub := &fakePublisher{err: errFail}
	bp := NewBufferedPublisher(pub, NewCircuitBreaker(5, time.Second), 10)

	assert.ErrorIs(t, bp.Publish(context.Background(), "ACC001", nil), errFail)
	assert.Zero(t, bp.PendingCount())
}

func TestBufferedPublisher_BuffersWhileOpenAndFlushesOnClose(t *testing.T) {
	pub := &fakePublisher{err: errFail}
	cb := NewCircuitBreaker(1, 30*time.Millisecond)

	var flushed sync.WaitGroup
	flushed.Add(1)
	bp := NewBufferedPublisher(pub, cb, 10)
	bp.OnFlush = func(int) { flushed.Done() }

	ctx := context.Background()
	bp.Publish(ctx, "ACC001", nil) // trips the breaker
	require.Equal(t, StateOpen, cb.CurrentState())

	require.NoError(t, bp.Publish(ctx, "ACC002", nil))
	require.NoError(t, bp.Publish(ctx, "ACC003", nil))
	assert.Equal(t, 2, bp.PendingCount())

	pub.setErr(nil)
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, bp.Publish(ctx, "ACC004", nil)) // probe closes the breaker

	flushed.Wait()
	assert.ElementsMatch(t, []string{"ACC004", "ACC002", "ACC003"}, pub.accounts())
	assert.Zero(t, bp.PendingCount())
}

func TestBufferedPublisher_DropsOldestWhenFull(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Hour)
	bp := NewBufferedPublisher(&fakePublisher{err: errFail}, cb, 2)
	var buffered int
	bp.OnBuffer = func() { buffered++ }

	ctx := context.Background()
	bp.Publish(ctx, "trip", nil)
	for _, acct := range []string{"A", "B", "C"} {
		require.NoError(t, bp.Publish(ctx, acct, nil))
	}

	assert.Equal(t, 3, buffered)
	assert.Equal(t, 2, bp.PendingCount())
	assert.Equal(t, "B", bp.buffer[0].accountID)
	assert.Equal(t, "C", bp.buffer[1].accountID)
}
