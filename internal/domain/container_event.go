package domain

import (
	"time"

	"github.com/google/uuid"
)

type EventKind string

const (
	EventKindAdded   EventKind = "added"
	EventKindUpdated EventKind = "updated"
	EventKindRemoved EventKind = "removed"
)

func (k EventKind) IsValid() bool {
	switch k {
	case EventKindAdded,
		EventKindUpdated,
		EventKindRemoved:
		return true
	}
	return false
}

func (k EventKind) String() string {
	return string(k)
}

// ContainerEvent is a lifecycle transition of one container resource.
// Events are shared between subscribers and must be treated as read-only.
type ContainerEvent struct {
	ID        string
	Kind      EventKind
	Resource  ResourceID
	Container *Container // nil for EventKindRemoved
	Timestamp time.Time
}

func NewContainerEvent(id ResourceID, container *Container, kind EventKind) ContainerEvent {
	if kind == EventKindRemoved {
		container = nil
	}
	return ContainerEvent{
		ID:        uuid.NewString(),
		Kind:      kind,
		Resource:  id,
		Container: container,
		Timestamp: time.Now(),
	}
}

func (e ContainerEvent) Identity() Identity {
	return e.Resource.Identity()
}
