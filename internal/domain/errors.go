package domain

import "fmt"

// InvalidResourceIDError is returned when a resource path cannot be parsed.
type InvalidResourceIDError struct {
	ID     string
	Reason string
}

func NewInvalidResourceIDError(id, reason string) *InvalidResourceIDError {
	return &InvalidResourceIDError{ID: id, Reason: reason}
}

func (e *InvalidResourceIDError) Error() string {
	return fmt.Sprintf("invalid resource id %q: %s", e.ID, e.Reason)
}

// ValidationError reports a field of a submitted resource that is not acceptable.
type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}
