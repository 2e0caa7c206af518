package notify

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mstgnz/academypay/infra/logger"
	"github.com/mstgnz/academypay/payment"
)

const (
	defaultWorkers     = 4
	defaultQueueSize   = 256
	defaultTimeout     = 10 * time.Second
	defaultMaxAttempts = 3
	retryBackoff       = 100 * time.Millisecond
)

// Sink delivers one notification to its destination
type Sink interface {
	Deliver(ctx context.Context, n payment.Notification) error
}

// SinkFunc adapts a function to Sink
type SinkFunc func(ctx context.Context, n payment.Notification) error

func (f SinkFunc) Deliver(ctx context.Context, n payment.Notification) error {
	return f(ctx, n)
}

// Options configures a Dispatcher
type Options struct {
	Workers     int
	QueueSize   int
	Timeout     time.Duration
	MaxAttempts int
}

// Stats counts what a dispatcher did with the notifications it was given
type Stats struct {
	Queued    int64 `json:"queued"`
	Delivered int64 `json:"delivered"`
	Failed    int64 `json:"failed"`
	Dropped   int64 `json:"dropped"`
}

// Dispatcher hands notifications to a Sink from a bounded queue served by a
// fixed pool of workers. Notify never blocks; a full queue drops.
type Dispatcher struct {
	sink        Sink
	queue       chan payment.Notification
	timeout     time.Duration
	maxAttempts int

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	queued    atomic.Int64
	delivered atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

// NewDispatcher starts the worker pool
func NewDispatcher(sink Sink, opts Options) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}

	d := &Dispatcher{
		sink:        sink,
		queue:       make(chan payment.Notification, opts.QueueSize),
		timeout:     opts.Timeout,
		maxAttempts: opts.MaxAttempts,
	}

	d.wg.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go d.work()
	}
	return d
}

// Notify implements payment.Notifier
func (d *Dispatcher) Notify(_ context.Context, n payment.Notification) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.drop(n, "dispatcher closed")
		return
	}

	select {
	case d.queue <- n:
		d.queued.Add(1)
	default:
		d.drop(n, "queue full")
	}
}

func (d *Dispatcher) drop(n payment.Notification, reason string) {
	d.dropped.Add(1)
	logger.WithPayment(n.TenantID, n.Gateway, n.PaymentID).
		AddField("status", string(n.Status)).
		AddField("notification_id", n.ID).
		Warn("notification dropped: " + reason)
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for n := range d.queue {
		d.deliver(n)
	}
}

func (d *Dispatcher) deliver(n payment.Notification) {
	var err error
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		err = d.deliverOnce(ctx, n)
		cancel()
		if err == nil {
			d.delivered.Add(1)
			return
		}
		if attempt < d.maxAttempts {
			time.Sleep(time.Duration(attempt) * retryBackoff)
		}
	}

	d.failed.Add(1)
	logger.WithPayment(n.TenantID, n.Gateway, n.PaymentID).
		AddField("notification_id", n.ID).
		AddField("attempts", d.maxAttempts).
		Error("notification delivery failed", err)
}

func (d *Dispatcher) deliverOnce(ctx context.Context, n payment.Notification) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panicked: %v", r)
		}
	}()
	return d.sink.Deliver(ctx, n)
}

// Close stops accepting notifications and waits for the queue to drain or
// ctx to end
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("notification queue not drained: %w", ctx.Err())
	}
}

// Stats returns a snapshot of the dispatcher counters
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Queued:    d.queued.Load(),
		Delivered: d.delivered.Load(),
		Failed:    d.failed.Load(),
		Dropped:   d.dropped.Load(),
	}
}
