package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mstgnz/academypay/payment"
	"github.com/mstgnz/academypay/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collectingSink struct {
	mu  sync.Mutex
	got []payment.Notification
}

func (s *collectingSink) Deliver(_ context.Context, n payment.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, n)
	return nil
}

func (s *collectingSink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.got)
}

func note(i int) payment.Notification {
	return payment.Notification{
		ID:        fmt.Sprintf("n-%d", i),
		TenantID:  "academy-a",
		PaymentID: fmt.Sprintf("pay-%d", i),
		Gateway:   "easykash",
		Previous:  provider.StatusPending,
		Status:    provider.StatusSucceeded,
		Amount:    provider.NewMoney(5000, "EGP"),
		Version:   2,
	}
}

func TestDispatcher_DeliversAll(t *testing.T) {
	sink := &collectingSink{}
	d := NewDispatcher(sink, Options{Workers: 3, QueueSize: 64})

	for i := 0; i < 50; i++ {
		d.Notify(context.Background(), note(i))
	}
	require.NoError(t, d.Close(context.Background()))

	assert.Equal(t, 50, sink.len())
	stats := d.Stats()
	assert.Equal(t, int64(50), stats.Queued)
	assert.Equal(t, int64(50), stats.Delivered)
	assert.Zero(t, stats.Dropped)
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	release := make(chan struct{})
	var started atomic.Int32
	sink := SinkFunc(func(ctx context.Context, n payment.Notification) error {
		started.Add(1)
		<-release
		return nil
	})
	d := NewDispatcher(sink, Options{Workers: 1, QueueSize: 2})

	d.Notify(context.Background(), note(0))
	require.Eventually(t, func() bool { return started.Load() == 1 }, time.Second, 5*time.Millisecond)

	d.Notify(context.Background(), note(1))
	d.Notify(context.Background(), note(2))
	d.Notify(context.Background(), note(3))

	assert.Equal(t, int64(1), d.Stats().Dropped)

	close(release)
	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, int64(3), d.Stats().Delivered)
}

func TestDispatcher_NotifyAfterClose(t *testing.T) {
	sink := &collectingSink{}
	d := NewDispatcher(sink, Options{Workers: 1})
	require.NoError(t, d.Close(context.Background()))
	require.NoError(t, d.Close(context.Background()))

	d.Notify(context.Background(), note(1))
	assert.Equal(t, int64(1), d.Stats().Dropped)
	assert.Zero(t, sink.len())
}

func TestDispatcher_RetriesThenFails(t *testing.T) {
	var calls atomic.Int32
	sink := SinkFunc(func(ctx context.Context, n payment.Notification) error {
		if calls.Add(1) < 2 {
			return errors.New("temporary")
		}
		return nil
	})
	d := NewDispatcher(sink, Options{Workers: 1, MaxAttempts: 3})
	d.Notify(context.Background(), note(1))
	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, int64(1), d.Stats().Delivered)

	failing := NewDispatcher(SinkFunc(func(context.Context, payment.Notification) error {
		panic("boom")
	}), Options{Workers: 1, MaxAttempts: 2})
	failing.Notify(context.Background(), note(2))
	require.NoError(t, failing.Close(context.Background()))
	assert.Equal(t, int64(1), failing.Stats().Failed)
}

func TestDispatcher_CloseTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	d := NewDispatcher(SinkFunc(func(context.Context, payment.Notification) error {
		<-release
		return nil
	}), Options{Workers: 1})
	d.Notify(context.Background(), note(1))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Close(ctx), context.DeadlineExceeded)
}

func TestLogSink(t *testing.T) {
	assert.NoError(t, LogSink{}.Deliver(context.Background(), note(1)))
}
