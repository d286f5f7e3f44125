package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

type Observer interface {
	EventPublished()
	EventFailed()
	EventDropped()
}

type nopObserver struct{}

func (nopObserver) EventPublished() {}
func (nopObserver) EventFailed()    {}
func (nopObserver) EventDropped()   {}

type DispatcherOptions struct {
	BufferSize     int
	PublishTimeout time.Duration
	Observer       Observer
}

// Dispatcher hands events to a Publisher on a background worker. Notify never
// blocks the caller: when the buffer is full the event is dropped.
type Dispatcher struct {
	pub     Publisher
	log     *slog.Logger
	obs     Observer
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	events chan Event
	done   chan struct{}
}

func NewDispatcher(pub Publisher, log *slog.Logger, opts DispatcherOptions) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = 1024
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = 5 * time.Second
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}

	d := &Dispatcher{
		pub:     pub,
		log:     log.With(slog.String("component", "notify.dispatcher")),
		obs:     opts.Observer,
		timeout: opts.PublishTimeout,
		events:  make(chan Event, opts.BufferSize),
		done:    make(chan struct{}),
	}
	go d.worker()
	return d
}

func (d *Dispatcher) Notify(_ context.Context, ev Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.drop(ev, "dispatcher closed")
		return
	}
	select {
	case d.events <- ev:
	default:
		d.drop(ev, "buffer full")
	}
}

func (d *Dispatcher) drop(ev Event, reason string) {
	d.obs.EventDropped()
	d.log.Warn("appointment event dropped",
		slog.String("reason", reason),
		slog.String("event_type", string(ev.Type)),
		slog.String("appointment_id", ev.AppointmentID.String()),
	)
}

// Shutdown stops accepting events and waits for the queue to drain.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.events)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		d.log.Warn("dispatcher shutdown timed out; some events may be lost")
		return ctx.Err()
	}
}

func (d *Dispatcher) worker() {
	defer close(d.done)
	for ev := range d.events {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		err := d.pub.Publish(ctx, ev)
		cancel()
		if err != nil {
			d.obs.EventFailed()
			d.log.Error("appointment event publish failed",
				slog.Any("err", err),
				slog.String("event_type", string(ev.Type)),
				slog.String("appointment_id", ev.AppointmentID.String()),
			)
			continue
		}
		d.obs.EventPublished()
	}
}
