package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/social-platform-sessions/internal/core/domain"
	"github.com/arklim/social-platform-sessions/internal/core/port"
)

const (
	defaultBufferSize = 1024
	forwardTimeout    = 5 * time.Second
)

// Options tunes dispatcher buffering. OnDrop is invoked for every event lost
// to a full buffer, typically to bump a metrics counter.
type Options struct {
	BufferSize int
	OnDrop     func()
}

// Dispatcher decouples request handling from the audit sink. Events are
// buffered and forwarded by a single consumer goroutine; a full buffer drops
// the event and a broken sink never fails the caller.
type Dispatcher struct {
	sink   port.SecurityEventPublisher
	logger *zap.Logger
	buf    chan domain.SecurityEvent
	onDrop func()
	done   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

// NewDispatcher starts the forwarding goroutine.
func NewDispatcher(sink port.SecurityEventPublisher, logger *zap.Logger, opts Options) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}

	size := opts.BufferSize
	if size <= 0 {
		size = defaultBufferSize
	}

	d := &Dispatcher{
		sink:   sink,
		logger: logger,
		buf:    make(chan domain.SecurityEvent, size),
		onDrop: opts.OnDrop,
		done:   make(chan struct{}),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

// PublishSecurityEvent enqueues the event without ever blocking the caller.
// The returned error is always nil; losing an audit record must not fail the
// authentication flow it describes.
func (d *Dispatcher) PublishSecurityEvent(_ context.Context, event domain.SecurityEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	select {
	case <-d.done:
		d.drop(event)
		return nil
	default:
	}

	select {
	case d.buf <- event:
	default:
		d.drop(event)
	}

	return nil
}

func (d *Dispatcher) drop(event domain.SecurityEvent) {
	d.logger.Warn("audit buffer full, dropping security event",
		zap.String("event_type", string(event.Type)),
		zap.String("severity", string(event.Severity)),
	)
	if d.onDrop != nil {
		d.onDrop()
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case event := <-d.buf:
			d.forward(event)
		case <-d.done:
			for {
				select {
				case event := <-d.buf:
					d.forward(event)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) forward(event domain.SecurityEvent) {
	if d.sink == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), forwardTimeout)
	defer cancel()

	if err := d.sink.PublishSecurityEvent(ctx, event); err != nil {
		d.logger.Error("forward security event",
			zap.Error(err),
			zap.String("event_type", string(event.Type)),
			zap.String("severity", string(event.Severity)),
		)
	}
}

// Close stops accepting events, drains the buffer, and waits for the consumer.
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		close(d.done)
	})
	d.wg.Wait()
}

var _ port.SecurityEventPublisher = (*Dispatcher)(nil)
