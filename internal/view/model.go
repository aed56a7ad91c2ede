package view

import (
	"slices"
	"strings"

	"github.com/rynowak/tye/internal/domain"
)

// Entry is one container as shown on the dashboard.
type Entry struct {
	ID        domain.Identity   `json:"id"`
	Name      string            `json:"name"`
	Container *domain.Container `json:"container"`
}

// Model is an immutable snapshot of the reconciled containers, sorted by
// display name. Identities are unique.
type Model struct {
	Containers []Entry `json:"containers"`
}

var emptyModel = &Model{Containers: []Entry{}}

func (m *Model) indexOf(id domain.Identity) int {
	return slices.IndexFunc(m.Containers, func(e Entry) bool { return e.ID == id })
}

// Fold applies ev to current and returns the next snapshot. When ev changes
// nothing, current itself is returned so callers can detect no-ops by
// pointer comparison. current is never modified.
func Fold(current *Model, ev domain.ContainerEvent) *Model {
	id := ev.Identity()
	i := current.indexOf(id)

	switch {
	case i >= 0 && ev.Kind == domain.EventKindRemoved:
		next := slices.Clone(current.Containers)
		return &Model{Containers: slices.Delete(next, i, i+1)}

	case i >= 0 && ev.Container != nil:
		// Duplicate Added is folded as an update.
		next := slices.Clone(current.Containers)
		next[i] = newEntry(ev)
		return &Model{Containers: next}

	case i < 0 && ev.Kind == domain.EventKindAdded && ev.Container != nil:
		next := append(slices.Clone(current.Containers), newEntry(ev))
		slices.SortStableFunc(next, func(a, b Entry) int {
			return strings.Compare(a.Name, b.Name)
		})
		return &Model{Containers: next}
	}

	// Removed or Updated for an unknown resource is already converged.
	return current
}

func newEntry(ev domain.ContainerEvent) Entry {
	return Entry{
		ID:        ev.Identity(),
		Name:      ev.Resource.Name(),
		Container: ev.Container,
	}
}
