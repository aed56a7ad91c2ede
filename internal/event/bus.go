package event

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rynowak/tye/internal/domain"
)

const DefaultCapacity = 1000

// Bus is an ordered, bounded broadcast queue. Producers block while the
// queue is full. A single dispatch goroutine delivers each event to every
// subscriber in registration order before taking the next one.
type Bus struct {
	logger zerolog.Logger
	queue  chan domain.ContainerEvent

	// closing is closed first on Stop so senders blocked on a full queue
	// give up before the queue itself is closed.
	closing chan struct{}
	mu      sync.RWMutex
	closed  bool

	subMu       sync.Mutex
	subscribers []Subscriber

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
}

func NewBus(logger zerolog.Logger, capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bus{
		logger:  logger.With().Str("component", "event_bus").Logger(),
		queue:   make(chan domain.ContainerEvent, capacity),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Subscribe registers s. Subscribers added after Start see only events
// dispatched after registration.
func (b *Bus) Subscribe(s Subscriber) {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	b.subscribers = append(b.subscribers, s)
}

// Send enqueues ev, waiting for room when the queue is full. Once Stop has
// been called the event is discarded and Send reports false. A cancelled ctx
// also abandons the wait.
func (b *Bus) Send(ctx context.Context, ev domain.ContainerEvent) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		b.logger.Debug().Str("event", ev.ID).Msg("Bus stopped, dropping event")
		return false
	}
	select {
	case b.queue <- ev:
		return true
	case <-b.closing:
		b.logger.Debug().Str("event", ev.ID).Msg("Bus stopping, dropping event")
		return false
	case <-ctx.Done():
		b.logger.Warn().Err(ctx.Err()).Str("event", ev.ID).Msg("Send abandoned while waiting for queue space")
		return false
	}
}

// Start launches the dispatch goroutine. Subscribers receive a context that
// is not cancelled with ctx, so events accepted before Stop are still
// delivered while the bus drains.
func (b *Bus) Start(ctx context.Context) {
	b.startOnce.Do(func() {
		go b.dispatch(context.WithoutCancel(ctx))
	})
}

// Stop closes the bus to new events and waits until every accepted event has
// been dispatched, or ctx is done. Stopping a bus that was never started
// discards whatever is queued.
func (b *Bus) Stop(ctx context.Context) error {
	b.stopOnce.Do(func() {
		close(b.closing)
		b.mu.Lock()
		b.closed = true
		close(b.queue)
		b.mu.Unlock()
	})

	b.startOnce.Do(func() {
		if n := len(b.queue); n > 0 {
			b.logger.Warn().Int("pending", n).Msg("Bus stopped before start, discarding events")
		}
		close(b.done)
	})

	select {
	case <-b.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for event bus to drain: %w", ctx.Err())
	}
}

// Done is closed when the dispatch goroutine has exited.
func (b *Bus) Done() <-chan struct{} {
	return b.done
}

func (b *Bus) dispatch(ctx context.Context) {
	defer close(b.done)
	b.logger.Debug().Msg("Event dispatch started")

	for ev := range b.queue {
		b.subMu.Lock()
		subs := make([]Subscriber, len(b.subscribers))
		copy(subs, b.subscribers)
		b.subMu.Unlock()

		for _, s := range subs {
			if err := deliver(ctx, s, ev); err != nil {
				b.logger.Error().
					Err(err).
					Str("subscriber", fmt.Sprintf("%T", s)).
					Str("event", ev.ID).
					Str("kind", ev.Kind.String()).
					Str("resource", ev.Identity().String()).
					Msg("Subscriber failed to handle event")
			}
		}
	}

	b.logger.Debug().Msg("Event dispatch drained")
}

func deliver(ctx context.Context, s Subscriber, ev domain.ContainerEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewSubscriberPanicError(r)
		}
	}()
	return s.OnEvent(ctx, ev)
}
