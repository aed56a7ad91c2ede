package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rynowak/tye/internal/domain"
)

var ErrNotFound = errors.New("resource not found")

// Repository stores the last document accepted for each resource. It is a
// record of desired state only; nothing in it is replayed to the engine.
type Repository interface {
	Init(ctx context.Context) error
	List(ctx context.Context, subscriptionID, resourceGroup, resourceType string) ([]*domain.Container, error)
	Get(ctx context.Context, id domain.ResourceID) (*domain.Container, error)
	Upsert(ctx context.Context, c *domain.Container) error
	Delete(ctx context.Context, id domain.ResourceID) error
	Close() error
}

// scopePrefix is the normalized id prefix shared by every resource of one
// type in a resource group.
func scopePrefix(subscriptionID, resourceGroup, resourceType string) string {
	return strings.ToLower(fmt.Sprintf("/subscriptions/%s/resourceGroups/%s/providers/%s/",
		subscriptionID, resourceGroup, strings.Trim(resourceType, "/")))
}
