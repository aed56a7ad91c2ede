package core

import (
	"errors"
	"fmt"
)

var (
	// ErrCancelled is returned when the runtime is not started, is stopping,
	// or the caller gave up waiting. Retrying against the same runtime will
	// not help.
	ErrCancelled = errors.New("runtime is not accepting requests")

	// ErrEngineStartFailed matches every EngineStartError.
	ErrEngineStartFailed = errors.New("container failed to start")

	errMonitorStopped = fmt.Errorf("%w: resource monitor stopped", ErrCancelled)
)

func cancelled(err error) error {
	return fmt.Errorf("%w: %w", ErrCancelled, err)
}

// EngineStartError reports a container the engine could not start. The
// resource is left with no running instance.
type EngineStartError struct {
	ContainerName string
	Image         string
	Err           error
}

func NewEngineStartError(containerName, image string, err error) *EngineStartError {
	return &EngineStartError{ContainerName: containerName, Image: image, Err: err}
}

func (e *EngineStartError) Error() string {
	return fmt.Sprintf("starting container %s from %s: %v", e.ContainerName, e.Image, e.Err)
}

func (e *EngineStartError) Unwrap() error {
	return e.Err
}

func (e *EngineStartError) Is(target error) bool {
	return target == ErrEngineStartFailed
}
