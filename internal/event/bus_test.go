package event

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rynowak/tye/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []string
	failOn map[string]error
	gate   chan struct{}
}

func (r *recorder) OnEvent(_ context.Context, ev domain.ContainerEvent) error {
	if r.gate != nil {
		<-r.gate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	name := ev.Resource.Name()
	r.events = append(r.events, name)
	return r.failOn[name]
}

func (r *recorder) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func newEvent(name string) domain.ContainerEvent {
	id := domain.NewContainerID("sub", "rg", name)
	c := &domain.Container{ID: id.String(), Name: name, Properties: domain.ContainerProperties{Image: "nginx"}}
	return domain.NewContainerEvent(id, c, domain.EventKindAdded)
}

func stopBus(t *testing.T, b *Bus) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, b.Stop(ctx))
}

// waitDequeued waits until the dispatch goroutine has taken everything off
// the queue.
func waitDequeued(t *testing.T, b *Bus) {
	t.Helper()
	require.Eventually(t, func() bool { return len(b.queue) == 0 }, time.Second, time.Millisecond)
}

func TestBus_DeliversInOrderToAllSubscribers(t *testing.T) {
	b := NewBus(zerolog.Nop(), 0)
	first := &recorder{failOn: map[string]error{"b": errors.New("boom")}}
	second := &recorder{}
	b.Subscribe(first)
	b.Subscribe(second)
	b.Start(context.Background())

	names := []string{"a", "b", "c", "d"}
	for _, n := range names {
		require.True(t, b.Send(context.Background(), newEvent(n)))
	}
	stopBus(t, b)

	assert.Equal(t, names, first.seen())
	assert.Equal(t, names, second.seen())
}

func TestBus_IsolatesPanickingSubscriber(t *testing.T) {
	b := NewBus(zerolog.Nop(), 0)
	var calls int
	b.Subscribe(SubscriberFunc(func(context.Context, domain.ContainerEvent) error {
		calls++
		panic("bad subscriber")
	}))
	after := &recorder{}
	b.Subscribe(after)
	b.Start(context.Background())

	b.Send(context.Background(), newEvent("a"))
	b.Send(context.Background(), newEvent("b"))
	stopBus(t, b)

	assert.Equal(t, 2, calls)
	assert.Equal(t, []string{"a", "b"}, after.seen())
}

func TestBus_SubscribersRunSequentially(t *testing.T) {
	b := NewBus(zerolog.Nop(), 0)
	var mu sync.Mutex
	var trace []string
	add := func(s string) {
		mu.Lock()
		defer mu.Unlock()
		trace = append(trace, s)
	}
	b.Subscribe(SubscriberFunc(func(_ context.Context, ev domain.ContainerEvent) error {
		time.Sleep(5 * time.Millisecond)
		add("slow:" + ev.Resource.Name())
		return nil
	}))
	b.Subscribe(SubscriberFunc(func(_ context.Context, ev domain.ContainerEvent) error {
		add("fast:" + ev.Resource.Name())
		return nil
	}))
	b.Start(context.Background())

	b.Send(context.Background(), newEvent("a"))
	b.Send(context.Background(), newEvent("b"))
	stopBus(t, b)

	assert.Equal(t, []string{"slow:a", "fast:a", "slow:b", "fast:b"}, trace)
}

func TestBus_BackPressureBlocksProducer(t *testing.T) {
	const capacity = 4
	b := NewBus(zerolog.Nop(), capacity)
	rec := &recorder{gate: make(chan struct{})}
	b.Subscribe(rec)
	b.Start(context.Background())

	// One event is held by the blocked subscriber, capacity more fill the queue.
	require.True(t, b.Send(context.Background(), newEvent("held")))
	waitDequeued(t, b)
	for i := 0; i < capacity; i++ {
		require.True(t, b.Send(context.Background(), newEvent("e")))
	}

	sent := make(chan bool)
	go func() {
		sent <- b.Send(context.Background(), newEvent("last"))
	}()

	select {
	case <-sent:
		t.Fatal("send should block while the queue is full")
	case <-time.After(50 * time.Millisecond):
	}

	close(rec.gate)
	select {
	case ok := <-sent:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("send should resume once the subscriber drains")
	}

	stopBus(t, b)
	seen := rec.seen()
	require.Len(t, seen, capacity+2)
	assert.Equal(t, "last", seen[len(seen)-1])
}

func TestNewBus_Capacity(t *testing.T) {
	assert.Equal(t, 1000, DefaultCapacity)
	assert.Equal(t, DefaultCapacity, cap(NewBus(zerolog.Nop(), 0).queue))
	assert.Equal(t, DefaultCapacity, cap(NewBus(zerolog.Nop(), -1).queue))
	assert.Equal(t, 4, cap(NewBus(zerolog.Nop(), 4).queue))
}

func TestBus_BlockedSendAbandonedByContext(t *testing.T) {
	b := NewBus(zerolog.Nop(), 1)
	rec := &recorder{gate: make(chan struct{})}
	b.Subscribe(rec)
	b.Start(context.Background())

	b.Send(context.Background(), newEvent("held"))
	waitDequeued(t, b)
	b.Send(context.Background(), newEvent("queued"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.False(t, b.Send(ctx, newEvent("late")))

	close(rec.gate)
	stopBus(t, b)
	assert.Equal(t, []string{"held", "queued"}, rec.seen())
}

func TestBus_StopDrainsAcceptedEvents(t *testing.T) {
	b := NewBus(zerolog.Nop(), 0)
	rec := &recorder{gate: make(chan struct{})}
	b.Subscribe(rec)
	b.Start(context.Background())

	for _, n := range []string{"a", "b", "c"} {
		require.True(t, b.Send(context.Background(), newEvent(n)))
	}

	stopped := make(chan error)
	go func() {
		stopped <- b.Stop(context.Background())
	}()

	// Stop waits for the queue to drain.
	select {
	case <-stopped:
		t.Fatal("stop returned before the queue drained")
	case <-time.After(20 * time.Millisecond):
	}

	close(rec.gate)
	require.NoError(t, <-stopped)
	assert.Equal(t, []string{"a", "b", "c"}, rec.seen())
}

func TestBus_DropsAfterStop(t *testing.T) {
	b := NewBus(zerolog.Nop(), 0)
	rec := &recorder{}
	b.Subscribe(rec)
	b.Start(context.Background())
	stopBus(t, b)

	assert.False(t, b.Send(context.Background(), newEvent("late")))
	assert.Empty(t, rec.seen())
}

func TestBus_StopReleasesBlockedSenders(t *testing.T) {
	b := NewBus(zerolog.Nop(), 1)
	rec := &recorder{gate: make(chan struct{})}
	b.Subscribe(rec)
	b.Start(context.Background())

	b.Send(context.Background(), newEvent("held"))
	waitDequeued(t, b)
	b.Send(context.Background(), newEvent("queued"))

	sent := make(chan bool)
	go func() {
		sent <- b.Send(context.Background(), newEvent("blocked"))
	}()
	time.Sleep(20 * time.Millisecond)

	stopped := make(chan error)
	go func() {
		stopped <- b.Stop(context.Background())
	}()

	select {
	case ok := <-sent:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("blocked sender was not released by Stop")
	}

	close(rec.gate)
	require.NoError(t, <-stopped)
	assert.Equal(t, []string{"held", "queued"}, rec.seen())
}

func TestBus_StopTimesOutWhileSubscriberIsStuck(t *testing.T) {
	b := NewBus(zerolog.Nop(), 0)
	rec := &recorder{gate: make(chan struct{})}
	defer close(rec.gate)
	b.Subscribe(rec)
	b.Start(context.Background())
	b.Send(context.Background(), newEvent("a"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := b.Stop(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBus_StopWithoutStart(t *testing.T) {
	b := NewBus(zerolog.Nop(), 0)
	b.Send(context.Background(), newEvent("a"))
	stopBus(t, b)

	select {
	case <-b.Done():
	default:
		t.Fatal("done should be closed")
	}
}
