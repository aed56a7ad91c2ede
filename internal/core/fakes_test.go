package core

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rynowak/tye/internal/domain"
)

type fakeEngine struct {
	mu       sync.Mutex
	calls    []string
	nextID   int
	running  map[string]int    // container name -> live instances
	names    map[string]string // short id -> container name
	overlaps int

	labels    map[string]map[string]string // container name -> labels of the last start
	startErr  map[string]error             // by image
	stopErr   map[string]error             // by container name
	startGate chan struct{}
	stopGate  chan struct{}
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		running:  map[string]int{},
		names:    map[string]string{},
		labels:   map[string]map[string]string{},
		startErr: map[string]error{},
		stopErr:  map[string]error{},
	}
}

func (f *fakeEngine) Start(_ context.Context, name, image string, labels map[string]string) (string, error) {
	if f.startGate != nil {
		<-f.startGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "start "+name+" "+image)
	f.labels[name] = labels
	if err := f.startErr[image]; err != nil {
		return "", err
	}
	f.nextID++
	short := fmt.Sprintf("%012x", f.nextID)
	f.names[short] = name
	f.running[name]++
	if f.running[name] > 1 {
		f.overlaps++
	}
	return short + strings.Repeat("f", 52), nil
}

func (f *fakeEngine) Stop(ctx context.Context, id string) error {
	if f.stopGate != nil {
		select {
		case <-f.stopGate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	name := f.names[id]
	f.calls = append(f.calls, "stop "+name)
	return f.stopErr[name]
}

func (f *fakeEngine) Remove(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	name, ok := f.names[id]
	f.calls = append(f.calls, "remove "+name)
	if ok {
		delete(f.names, id)
		f.running[name]--
	}
	return nil
}

func (f *fakeEngine) snapshot() ([]string, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...), f.overlaps
}

func (f *fakeEngine) live(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running[name]
}

type recordingBus struct {
	mu     sync.Mutex
	events []domain.ContainerEvent
}

func (b *recordingBus) Send(_ context.Context, ev domain.ContainerEvent) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
	return true
}

// kinds renders events as kind:name[:image].
func (b *recordingBus) kinds() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.events))
	for _, ev := range b.events {
		s := ev.Kind.String() + ":" + ev.Resource.Name()
		if ev.Container != nil {
			s += ":" + ev.Container.Properties.Image
		}
		out = append(out, s)
	}
	return out
}

func newSpec(name, image string) *domain.Container {
	return &domain.Container{
		ID:         domain.NewContainerID("sub", "rg", name).String(),
		Name:       name,
		Type:       domain.ContainerResourceType,
		Properties: domain.ContainerProperties{Image: image},
	}
}
