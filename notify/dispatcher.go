// Package notify fans committed registry events out to external sinks.
//
// The registry calls Emit while holding its lock, so the Dispatcher only
// enqueues there. A single goroutine signs each event and publishes it to
// every sink in journal order.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cloudx-io/nftauction/auctionapi"
	"github.com/cloudx-io/nftauction/core"
)

// ErrClosed is returned by Close when the dispatcher was already closed.
var ErrClosed = errors.New("notify: dispatcher closed")

// Sink receives event envelopes in journal order.
type Sink interface {
	Name() string
	Publish(ctx context.Context, env auctionapi.EventEnvelope) error
}

// ReceiptSigner produces a signed receipt for an event.
type ReceiptSigner interface {
	Sign(e core.Event) (auctionapi.ReceiptCOSE, error)
}

const (
	defaultQueueSize      = 1024
	defaultPublishTimeout = 5 * time.Second
)

// Dispatcher implements core.Emitter.
type Dispatcher struct {
	sinks   []Sink
	signer  ReceiptSigner
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.RWMutex // Guards closed against concurrent Emit and Close.
	closed bool
	queue  chan core.Event
	done   chan struct{}

	dropped atomic.Uint64
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithSigner attaches a receipt to every envelope.
func WithSigner(signer ReceiptSigner) Option {
	return func(d *Dispatcher) { d.signer = signer }
}

// WithQueueSize bounds the number of events waiting for delivery.
func WithQueueSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queue = make(chan core.Event, n)
		}
	}
}

// WithPublishTimeout bounds each call to Sink.Publish.
func WithPublishTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

// NewDispatcher starts the delivery goroutine. Call Close to stop it.
func NewDispatcher(sinks []Sink, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		sinks:   sinks,
		timeout: defaultPublishTimeout,
		logger:  slog.Default(),
		queue:   make(chan core.Event, defaultQueueSize),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With("component", "notify")

	go d.run()
	return d
}

// Emit enqueues the event without blocking. Events arriving while the queue
// is full, or after Close, are dropped and counted.
func (d *Dispatcher) Emit(event core.Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.dropped.Add(1)
		return
	}

	select {
	case d.queue <- event:
	default:
		d.dropped.Add(1)
		d.logger.Error("event queue full, dropping event",
			"seq", event.Seq, "type", event.Type, "auction_id", event.AuctionID)
	}
}

// Dropped returns the number of events that were never delivered.
func (d *Dispatcher) Dropped() uint64 {
	return d.dropped.Load()
}

// Close stops accepting events and waits until queued events are delivered
// or ctx expires.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)

	for event := range d.queue {
		env := d.envelope(event)
		for _, sink := range d.sinks {
			d.publish(sink, env)
		}
	}
}

func (d *Dispatcher) envelope(event core.Event) auctionapi.EventEnvelope {
	env := auctionapi.EventEnvelope{Event: event}
	if d.signer == nil {
		return env
	}

	receipt, err := d.signer.Sign(event)
	if err != nil {
		// Deliver unsigned rather than not at all
		d.logger.Error("failed to sign receipt", "seq", event.Seq, "error", err)
		return env
	}
	env.Receipt = receipt.EncodeBase64()
	return env
}

func (d *Dispatcher) publish(sink Sink, env auctionapi.EventEnvelope) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := sink.Publish(ctx, env); err != nil {
		d.logger.Error("failed to publish event",
			"sink", sink.Name(), "seq", env.Event.Seq, "type", env.Event.Type, "error", err)
	}
}
