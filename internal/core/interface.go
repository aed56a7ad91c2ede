package core

import (
	"context"

	"github.com/rynowak/tye/internal/domain"
)

type containerEngine interface {
	Start(ctx context.Context, name, image string, labels map[string]string) (string, error)
	Stop(ctx context.Context, containerID string) error
	Remove(ctx context.Context, containerID string) error
}

type publisher interface {
	Send(ctx context.Context, ev domain.ContainerEvent) bool
}
