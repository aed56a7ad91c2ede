package event

import "fmt"

// SubscriberPanicError wraps a value recovered from a panicking subscriber.
type SubscriberPanicError struct {
	Value any
}

func NewSubscriberPanicError(value any) *SubscriberPanicError {
	return &SubscriberPanicError{Value: value}
}

func (e *SubscriberPanicError) Error() string {
	return fmt.Sprintf("subscriber panicked: %v", e.Value)
}
