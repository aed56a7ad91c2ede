package view

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/rynowak/tye/internal/domain"
)

// Sink folds the event stream into the current Model. Readers load the
// latest snapshot without locking; snapshots are never mutated.
type Sink struct {
	logger  zerolog.Logger
	current atomic.Pointer[Model]

	mu        sync.Mutex
	nextID    int
	listeners []listener
}

type listener struct {
	id int
	fn func(*Model)
}

func NewSink(logger zerolog.Logger) *Sink {
	s := &Sink{logger: logger.With().Str("component", "view_sink").Logger()}
	s.current.Store(emptyModel)
	return s
}

func (s *Sink) Current() *Model {
	return s.current.Load()
}

// OnChange registers fn to be called with every new snapshot, in
// registration order, on the bus dispatch goroutine. The returned func
// unregisters it.
func (s *Sink) OnChange(fn func(*Model)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.listeners = append(s.listeners, listener{id: id, fn: fn})
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, l := range s.listeners {
			if l.id == id {
				s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

// OnEvent implements event.Subscriber.
func (s *Sink) OnEvent(_ context.Context, ev domain.ContainerEvent) error {
	prev := s.current.Load()
	next := Fold(prev, ev)
	if next == prev {
		s.logger.Debug().Str("kind", ev.Kind.String()).Str("resource", ev.Identity().String()).Msg("Event did not change the view")
		return nil
	}
	s.current.Store(next)

	s.mu.Lock()
	listeners := append([]listener(nil), s.listeners...)
	s.mu.Unlock()
	for _, l := range listeners {
		l.fn(next)
	}
	return nil
}
