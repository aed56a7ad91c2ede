package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rynowak/tye/internal/domain"
	"github.com/rynowak/tye/internal/util"
	"golang.org/x/sync/semaphore"
)

const DefaultStopTimeout = 30 * time.Second

type containerHandle struct {
	containerName string
	containerID   string
	image         string
}

// ContainerMonitor owns the lifecycle of one container resource. All engine
// calls for the resource are made while holding lock, so start and stop never
// overlap. The semaphore hands the lock out in arrival order.
type ContainerMonitor struct {
	logger      zerolog.Logger
	identity    domain.Identity
	engine      containerEngine
	bus         publisher
	stopTimeout time.Duration

	lock     *semaphore.Weighted
	stopping atomic.Bool
	stopOnce sync.Once
	done     chan struct{}

	// Guarded by lock.
	predecessor <-chan struct{}
	resource    domain.ResourceID
	snapshot    []byte
	handle      *containerHandle
}

func newContainerMonitor(identity domain.Identity, engine containerEngine, bus publisher, predecessor <-chan struct{}, stopTimeout time.Duration, logger zerolog.Logger) *ContainerMonitor {
	return &ContainerMonitor{
		logger:      logger.With().Str("resource", identity.String()).Logger(),
		identity:    identity,
		engine:      engine,
		bus:         bus,
		stopTimeout: stopTimeout,
		lock:        semaphore.NewWeighted(1),
		done:        make(chan struct{}),
		predecessor: predecessor,
	}
}

// Done is closed once Stop has finished.
func (m *ContainerMonitor) Done() <-chan struct{} {
	return m.done
}

// Put converges the resource to spec. A spec identical to the one the
// running instance was started from is a no-op. Otherwise the running
// instance, if any, is stopped before the new one is started. Once the lock
// is held, engine calls run to completion even if ctx is cancelled.
func (m *ContainerMonitor) Put(ctx context.Context, spec *domain.Container) (domain.ContainerStatus, error) {
	if m.stopping.Load() {
		return domain.ContainerStatus{}, errMonitorStopped
	}
	if err := m.lock.Acquire(ctx, 1); err != nil {
		return domain.ContainerStatus{}, cancelled(err)
	}
	defer m.lock.Release(1)

	if m.stopping.Load() {
		return domain.ContainerStatus{}, errMonitorStopped
	}
	if err := m.awaitPredecessor(ctx); err != nil {
		return domain.ContainerStatus{}, err
	}

	resource, err := spec.ResourceID()
	if err != nil {
		return domain.ContainerStatus{}, err
	}
	snapshot, err := json.Marshal(spec)
	if err != nil {
		return domain.ContainerStatus{}, fmt.Errorf("serializing container %s: %w", spec.Name, err)
	}
	if m.handle != nil && bytes.Equal(snapshot, m.snapshot) {
		m.logger.Debug().Msg("Container unchanged")
		return m.status(), nil
	}

	ectx := context.WithoutCancel(ctx)
	existed := m.handle != nil
	if existed {
		m.logger.Info().Str("container", m.handle.containerName).Msg("Container changed, replacing instance")
		m.stopContainer(ectx)
	}
	m.resource = resource

	ref := spec.Properties.Reference()
	containerID, err := m.engine.Start(ectx, spec.Name, ref, spec.Properties.Labels)
	if err != nil {
		m.logger.Error().Err(err).Str("container", spec.Name).Str("image", ref).Msg("Failed to start container")
		if existed {
			m.publish(ectx, domain.NewContainerEvent(m.resource, nil, domain.EventKindRemoved))
		}
		return domain.ContainerStatus{}, NewEngineStartError(spec.Name, ref, err)
	}

	kind := domain.EventKindAdded
	if existed {
		kind = domain.EventKindUpdated
	}
	m.handle = &containerHandle{
		containerName: spec.Name,
		containerID:   util.ShortID(containerID),
		image:         ref,
	}
	m.snapshot = snapshot
	m.publish(ectx, domain.NewContainerEvent(m.resource, spec.Clone(), kind))

	m.logger.Info().
		Str("container", m.handle.containerName).
		Str("id", m.handle.containerID).
		Str("kind", kind.String()).
		Msg("Container running")
	return m.status(), nil
}

// Stop stops any running instance and publishes Removed for it. Put fails
// fast from the moment Stop is called. Stop is idempotent; every caller
// returns once the first call has finished. It is not cancellable because an
// abandoned stop would leave a container nobody owns.
func (m *ContainerMonitor) Stop(ctx context.Context) {
	m.stopping.Store(true)
	m.stopOnce.Do(func() {
		defer close(m.done)
		ctx := context.WithoutCancel(ctx)

		// Acquire only fails on a cancelled context.
		_ = m.lock.Acquire(ctx, 1)
		defer m.lock.Release(1)

		if m.handle == nil {
			return
		}
		m.stopContainer(ctx)
		m.publish(ctx, domain.NewContainerEvent(m.resource, nil, domain.EventKindRemoved))
		m.logger.Info().Msg("Container removed")
	})
	<-m.done
}

// stopContainer stops and removes the running instance, each step bounded
// by the stop timeout. Failures and timeouts are logged and the instance is
// forgotten regardless, since the engine may be wedged.
func (m *ContainerMonitor) stopContainer(ctx context.Context) {
	h := m.handle
	m.handle = nil
	m.snapshot = nil

	log := m.logger.With().Str("container", h.containerName).Str("id", h.containerID).Logger()
	m.bounded(ctx, log, "stop", func(ctx context.Context) error {
		return m.engine.Stop(ctx, h.containerID)
	})
	m.bounded(ctx, log, "remove", func(ctx context.Context) error {
		return m.engine.Remove(ctx, h.containerID)
	})
}

func (m *ContainerMonitor) bounded(ctx context.Context, log zerolog.Logger, op string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(ctx, m.stopTimeout)
	defer cancel()
	err := fn(ctx)
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		log.Warn().Err(err).Str("op", op).Dur("timeout", m.stopTimeout).Msg("Timed out waiting for engine, treating container as stopped")
	case err != nil:
		log.Warn().Err(err).Str("op", op).Msg("Engine command failed, treating container as stopped")
	}
}

// awaitPredecessor waits for a monitor of the same identity that is still
// being torn down, so the two never hold the container name at once.
func (m *ContainerMonitor) awaitPredecessor(ctx context.Context) error {
	if m.predecessor == nil {
		return nil
	}
	select {
	case <-m.predecessor:
		m.predecessor = nil
		return nil
	case <-ctx.Done():
		return cancelled(ctx.Err())
	}
}

func (m *ContainerMonitor) publish(ctx context.Context, ev domain.ContainerEvent) {
	if !m.bus.Send(ctx, ev) {
		m.logger.Debug().Str("kind", ev.Kind.String()).Msg("Event not accepted by bus")
	}
}

func (m *ContainerMonitor) status() domain.ContainerStatus {
	return domain.ContainerStatus{
		ContainerName: m.handle.containerName,
		ContainerID:   m.handle.containerID,
		Image:         m.handle.image,
		Running:       true,
	}
}
