package event

import (
	"context"

	"github.com/rynowak/tye/internal/domain"
)

// Subscriber receives every event published on a Bus, in publish order.
// OnEvent runs on the dispatch goroutine; a slow subscriber delays all
// subscribers registered after it.
type Subscriber interface {
	OnEvent(ctx context.Context, ev domain.ContainerEvent) error
}

// SubscriberFunc adapts a function to a Subscriber.
type SubscriberFunc func(ctx context.Context, ev domain.ContainerEvent) error

func (f SubscriberFunc) OnEvent(ctx context.Context, ev domain.ContainerEvent) error {
	return f(ctx, ev)
}
