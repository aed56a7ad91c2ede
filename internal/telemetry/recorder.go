package telemetry

import (
	"context"

	"github.com/rynowak/tye/internal/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// EventRecorder is a bus subscriber that counts lifecycle events and tracks
// how many container resources are running.
type EventRecorder struct {
	events  metric.Int64Counter
	running metric.Int64UpDownCounter
}

func NewEventRecorder(provider metric.MeterProvider) (*EventRecorder, error) {
	meter := provider.Meter("github.com/rynowak/tye/internal/telemetry")

	events, err := meter.Int64Counter("tye.container.events",
		metric.WithDescription("Container lifecycle events published by the runtime"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}
	running, err := meter.Int64UpDownCounter("tye.container.running",
		metric.WithDescription("Container resources with a running instance"),
		metric.WithUnit("{container}"),
	)
	if err != nil {
		return nil, err
	}
	return &EventRecorder{events: events, running: running}, nil
}

// OnEvent implements event.Subscriber.
func (r *EventRecorder) OnEvent(ctx context.Context, ev domain.ContainerEvent) error {
	r.events.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", ev.Kind.String())))
	switch ev.Kind {
	case domain.EventKindAdded:
		r.running.Add(ctx, 1)
	case domain.EventKindRemoved:
		r.running.Add(ctx, -1)
	}
	return nil
}
