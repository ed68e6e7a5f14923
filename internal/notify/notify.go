// Package notify delivers owner notifications off the request path.
//
// A Dispatcher owns a bounded queue and a single goroutine that hands each
// Event to a Sink. Delivery is at most once: a full queue drops the event and
// a sink failure is logged and counted, never reported to the caller.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/teemow/applytrack/internal/instrumentation"
	"github.com/teemow/applytrack/internal/logging"
)

// Event types.
const (
	EventApplicationSent = "application.sent"
)

const (
	// DefaultQueueSize is the queue capacity when none is configured.
	DefaultQueueSize = 100
	// DefaultPublishTimeout bounds one sink call.
	DefaultPublishTimeout = 10 * time.Second
)

// ErrClosed is returned by Notify after Close.
var ErrClosed = errors.New("notify: dispatcher closed")

// Event is what the owner is told about.
type Event struct {
	Type          string    `json:"type"`
	Owner         string    `json:"owner"`
	ApplicationID string    `json:"application_id,omitempty"`
	JobID         string    `json:"job_id,omitempty"`
	MessageID     string    `json:"message_id,omitempty"`
	Recipient     string    `json:"recipient,omitempty"`
	Subject       string    `json:"subject,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Sink delivers events somewhere.
type Sink interface {
	Name() string
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Options configures a Dispatcher.
type Options struct {
	QueueSize      int
	PublishTimeout time.Duration
	Logger         *slog.Logger
	Metrics        *instrumentation.Metrics
}

// Dispatcher queues events for a Sink.
type Dispatcher struct {
	sink    Sink
	queue   chan Event
	timeout time.Duration
	logger  *slog.Logger
	metrics *instrumentation.Metrics

	// runCtx parents every publish; stop aborts the one in flight.
	runCtx context.Context
	stop   context.CancelFunc

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewDispatcher creates a Dispatcher and starts its worker.
func NewDispatcher(sink Sink, opts Options) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = DefaultPublishTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	d := &Dispatcher{
		sink:    sink,
		queue:   make(chan Event, opts.QueueSize),
		timeout: opts.PublishTimeout,
		logger:  logging.WithOperation(opts.Logger, "notify").With(slog.String("sink", sink.Name())),
		metrics: opts.Metrics,
		done:    make(chan struct{}),
	}
	d.runCtx, d.stop = context.WithCancel(context.Background())
	go d.run()
	return d
}

// Notify enqueues ev without blocking. It returns false when the event was
// dropped because the queue is full or the dispatcher is closed.
func (d *Dispatcher) Notify(ctx context.Context, ev Event) bool {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.drop(ctx, ev, ErrClosed)
		return false
	}
	select {
	case d.queue <- ev:
		return true
	default:
		d.drop(ctx, ev, errors.New("queue full"))
		return false
	}
}

func (d *Dispatcher) drop(ctx context.Context, ev Event, reason error) {
	d.metrics.RecordNotification(ctx, d.sink.Name(), instrumentation.NotifyResultDropped)
	d.logger.Warn("notification dropped",
		slog.String("type", ev.Type),
		logging.OwnerHash(ev.Owner),
		logging.Err(reason))
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for ev := range d.queue {
		if d.runCtx.Err() != nil {
			d.drop(context.Background(), ev, ErrClosed)
			continue
		}
		d.deliver(ev)
	}
}

func (d *Dispatcher) deliver(ev Event) {
	ctx, cancel := context.WithTimeout(d.runCtx, d.timeout)
	defer cancel()

	if err := d.sink.Publish(ctx, ev); err != nil {
		d.metrics.RecordNotification(ctx, d.sink.Name(), instrumentation.NotifyResultFailed)
		d.logger.Warn("notification failed",
			slog.String("type", ev.Type),
			logging.OwnerHash(ev.Owner),
			logging.Application(ev.ApplicationID),
			logging.Err(err))
		return
	}
	d.metrics.RecordNotification(ctx, d.sink.Name(), instrumentation.NotifyResultDelivered)
}

// Close stops accepting events and drains the queue until ctx is done.
// After that the publish in flight is aborted and the rest of the queue is
// dropped. The sink is closed only once the worker has returned.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	defer d.stop()
	select {
	case <-d.done:
		return d.sink.Close()
	case <-ctx.Done():
	}

	d.stop()
	<-d.done
	return errors.Join(ctx.Err(), d.sink.Close())
}
