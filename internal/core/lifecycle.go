package core

import (
	"context"
	"fmt"
	"sync"
)

type State int

const (
	StateNotStarted State = iota
	StateStarted
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateStarted:
		return "started"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// lifecycle is a one-way state machine. ready is closed on the first
// transition out of StateNotStarted, releasing everyone blocked in wait.
type lifecycle struct {
	mu    sync.Mutex
	state State
	ready chan struct{}
}

func newLifecycle() *lifecycle {
	return &lifecycle{ready: make(chan struct{})}
}

func (l *lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *lifecycle) start() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateNotStarted {
		return false
	}
	l.state = StateStarted
	close(l.ready)
	return true
}

func (l *lifecycle) beginStop() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch l.state {
	case StateNotStarted:
		close(l.ready)
	case StateStarted:
	default:
		return false
	}
	l.state = StateStopping
	return true
}

func (l *lifecycle) finishStop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = StateStopped
}

// wait blocks until the lifecycle has left StateNotStarted and reports
// whether requests are accepted.
func (l *lifecycle) wait(ctx context.Context) error {
	select {
	case <-l.ready:
	case <-ctx.Done():
		return cancelled(ctx.Err())
	}
	if s := l.State(); s != StateStarted {
		return fmt.Errorf("%w: runtime is %s", ErrCancelled, s)
	}
	return nil
}
