package engine

import "fmt"

// CommandError reports a failed Docker API call for one container.
type CommandError struct {
	Op            string
	ContainerName string
	Err           error
}

func NewCommandError(op, containerName string, err error) *CommandError {
	return &CommandError{Op: op, ContainerName: containerName, Err: err}
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("docker %s %s: %v", e.Op, e.ContainerName, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}
