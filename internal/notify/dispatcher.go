package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gatekeeper/pkg/platform/circuit"
)

var (
	// ErrCircuitOpen is returned when sends are short-circuited after repeated failures.
	ErrCircuitOpen = errors.New("notification circuit open")
	// ErrBufferFull is returned when the async queue cannot take another notification.
	ErrBufferFull = errors.New("notification buffer full")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("dispatcher closed")
)

// Dispatcher fans a notification out to recipients over a Transport.
// Each send has its own timeout; a circuit breaker stops hammering a
// transport that keeps failing.
type Dispatcher struct {
	transport Transport
	breaker   *circuit.Breaker
	timeout   time.Duration
	logger    *slog.Logger
	metrics   *Metrics

	queue  chan Notification
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

type Option func(*Dispatcher)

// WithTimeout bounds each individual send. Default 5s.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(d *Dispatcher) {
		if b != nil {
			d.breaker = b
		}
	}
}

// WithAsyncBuffer queues notifications and sends them from a background
// goroutine. When the buffer is full new notifications are dropped.
func WithAsyncBuffer(size int) Option {
	return func(d *Dispatcher) {
		if size > 0 {
			d.queue = make(chan Notification, size)
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

func NewDispatcher(transport Transport, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		transport: transport,
		timeout:   5 * time.Second,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.breaker == nil {
		d.breaker = circuit.New("notify")
	}
	if d.queue != nil {
		d.wg.Add(1)
		go d.drain()
	}
	return d
}

// Notify sends template to every recipient. Failures for one recipient do
// not stop the others; they are logged, counted and returned joined.
func (d *Dispatcher) Notify(ctx context.Context, recipients []string, template Notification) error {
	var errs []error
	for _, recipient := range recipients {
		n := template
		n.RecipientID = recipient
		if err := d.dispatch(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("notify %s: %w", recipient, err))
		}
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) dispatch(ctx context.Context, n Notification) error {
	if d.queue == nil {
		if d.isClosed() {
			return ErrClosed
		}
		return d.send(ctx, n)
	}

	// The read lock keeps Close from closing the queue mid-send.
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	select {
	case d.queue <- n:
		d.metrics.setQueueDepth(len(d.queue))
		return nil
	default:
		d.metrics.recordOutcome(n.EventType, outcomeDropped)
		d.logger.WarnContext(ctx, "notification buffer full, dropping",
			"recipient_id", n.RecipientID,
			"event_type", n.EventType,
			"workflow_id", n.WorkflowID,
		)
		return ErrBufferFull
	}
}

func (d *Dispatcher) isClosed() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.closed
}

func (d *Dispatcher) drain() {
	defer d.wg.Done()
	for n := range d.queue {
		d.metrics.setQueueDepth(len(d.queue))
		// Queued sends outlive the request that produced them.
		_ = d.send(context.Background(), n)
	}
}

func (d *Dispatcher) send(ctx context.Context, n Notification) error {
	if !d.breaker.Allow() {
		d.metrics.recordOutcome(n.EventType, outcomeSkipped)
		d.logger.WarnContext(ctx, "notification skipped, circuit open",
			"recipient_id", n.RecipientID,
			"event_type", n.EventType,
			"workflow_id", n.WorkflowID,
		)
		return ErrCircuitOpen
	}

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	start := time.Now()
	err := d.transport.Send(sendCtx, n)
	d.metrics.observeLatency(time.Since(start))

	if err != nil {
		d.metrics.recordOutcome(n.EventType, outcomeFailed)
		if d.breaker.RecordFailure() {
			d.logger.ErrorContext(ctx, "notification circuit opened", "breaker", d.breaker.Name())
		}
		d.logger.ErrorContext(ctx, "notification delivery failed",
			"recipient_id", n.RecipientID,
			"event_type", n.EventType,
			"workflow_id", n.WorkflowID,
			"error", err,
		)
		return err
	}

	d.metrics.recordOutcome(n.EventType, outcomeSent)
	if d.breaker.RecordSuccess() {
		d.logger.InfoContext(ctx, "notification circuit closed", "breaker", d.breaker.Name())
	}
	return nil
}

// Close stops accepting notifications and waits for queued ones to be sent.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	if d.queue != nil {
		close(d.queue)
		d.wg.Wait()
	}
}
