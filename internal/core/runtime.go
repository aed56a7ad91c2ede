package core

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rynowak/tye/internal/domain"
	"github.com/rynowak/tye/internal/util"
)

type Option func(*Runtime)

// WithStopTimeout bounds each engine stop/remove pair.
func WithStopTimeout(d time.Duration) Option {
	return func(r *Runtime) {
		if d > 0 {
			r.stopTimeout = d
		}
	}
}

// Runtime routes container requests to one ContainerMonitor per resource
// identity and coordinates startup and shutdown.
type Runtime struct {
	logger      zerolog.Logger
	engine      containerEngine
	bus         publisher
	stopTimeout time.Duration

	life     *lifecycle
	monitors *util.SyncMap[domain.Identity, *ContainerMonitor]
	// retiring holds monitors removed by Delete that are still stopping.
	retiring sync.Map
}

func NewRuntime(engine containerEngine, bus publisher, logger zerolog.Logger, opts ...Option) *Runtime {
	r := &Runtime{
		logger:      logger.With().Str("component", "runtime").Logger(),
		engine:      engine,
		bus:         bus,
		stopTimeout: DefaultStopTimeout,
		life:        newLifecycle(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.monitors = util.NewSyncMap(r.newMonitor)
	return r
}

// newMonitor runs under the monitor map's write lock, as does the retiring
// hand-off in Delete, so a successor always sees its predecessor.
func (r *Runtime) newMonitor(identity domain.Identity) *ContainerMonitor {
	var predecessor <-chan struct{}
	if v, ok := r.retiring.Load(identity); ok {
		predecessor = v.(*ContainerMonitor).Done()
	}
	return newContainerMonitor(identity, r.engine, r.bus, predecessor, r.stopTimeout, r.logger)
}

// Start releases every request waiting for startup.
func (r *Runtime) Start() {
	if r.life.start() {
		r.logger.Info().Msg("Runtime started")
	}
}

func (r *Runtime) State() State {
	return r.life.State()
}

// Len returns the number of live resource monitors.
func (r *Runtime) Len() int {
	return r.monitors.Len()
}

// Put converges the container resource to spec. It waits for startup and
// fails with ErrCancelled once the runtime is stopping.
func (r *Runtime) Put(ctx context.Context, spec *domain.Container) (domain.ContainerStatus, error) {
	if err := r.life.wait(ctx); err != nil {
		return domain.ContainerStatus{}, err
	}
	identity := spec.Identity()

	for {
		m, created := r.monitors.GetOrAdd(identity)
		if created && r.life.State() != StateStarted {
			// Stop may already have taken its snapshot of monitors and
			// another Put may already hold this one. Once retired, that Put
			// fails fast or its instance is torn down.
			if retired, ok := r.retire(identity); ok {
				<-retired.Done()
			}
			return domain.ContainerStatus{}, fmt.Errorf("%w: runtime is %s", ErrCancelled, r.life.State())
		}

		status, err := m.Put(ctx, spec)
		if errors.Is(err, errMonitorStopped) && r.life.State() == StateStarted {
			// Lost a race with Delete; the next monitor for this identity
			// takes over.
			continue
		}
		return status, err
	}
}

// Delete stops and forgets the resource. Deleting an unknown resource is a
// no-op. Only the caller that removes the monitor stops it. If ctx is
// cancelled the caller is released but the stop still completes.
func (r *Runtime) Delete(ctx context.Context, identity domain.Identity) error {
	if err := r.life.wait(ctx); err != nil {
		return err
	}

	m, ok := r.retire(identity)
	if !ok {
		return nil
	}

	select {
	case <-m.Done():
		return nil
	case <-ctx.Done():
		return cancelled(ctx.Err())
	}
}

// retire removes the monitor for identity and stops it in the background.
// Until it has stopped it stays in the retiring set, where a successor and
// Stop find it.
func (r *Runtime) retire(identity domain.Identity) (*ContainerMonitor, bool) {
	m, ok := r.monitors.RemoveFunc(identity, func(m *ContainerMonitor) {
		r.retiring.Store(identity, m)
	})
	if !ok {
		return nil, false
	}
	go func() {
		m.Stop(context.Background())
		r.retiring.CompareAndDelete(identity, m)
	}()
	return m, true
}

// Stop rejects new requests, then stops every monitor one at a time. A
// monitor that fails to stop is logged and the rest are still stopped.
func (r *Runtime) Stop(ctx context.Context) {
	if !r.life.beginStop() {
		return
	}
	r.logger.Info().Msg("Stopping runtime")

	snapshot := r.monitors.Snapshot()
	identities := make([]domain.Identity, 0, len(snapshot))
	for id := range snapshot {
		identities = append(identities, id)
	}
	slices.Sort(identities)

	for _, id := range identities {
		r.stopMonitor(ctx, snapshot[id])
	}

	r.retiring.Range(func(_, v any) bool {
		<-v.(*ContainerMonitor).Done()
		return true
	})

	r.monitors.Clear()
	r.life.finishStop()
	r.logger.Info().Int("stopped", len(identities)).Msg("Runtime stopped")
}

func (r *Runtime) stopMonitor(ctx context.Context, m *ContainerMonitor) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error().Str("resource", m.identity.String()).Interface("panic", p).Msg("Failed to stop resource monitor")
		}
	}()
	m.Stop(ctx)
}
