package registry

import (
	"strings"

	"github.com/rynowak/tye/internal/domain"
)

// keyForID maps a resource id to its etcd key, e.g.
// /tye/resources/subscriptions/s/resourcegroups/rg/providers/radius.tye/containers/web
func keyForID(prefix string, id domain.ResourceID) string {
	return strings.TrimRight(prefix, "/") + id.Identity().String()
}

func keyForScope(prefix, subscriptionID, resourceGroup, resourceType string) string {
	return strings.TrimRight(prefix, "/") + scopePrefix(subscriptionID, resourceGroup, resourceType)
}

// isDirectChild reports whether key names a resource directly under scope
// rather than a nested resource type.
func isDirectChild(scope, key string) bool {
	rest := strings.TrimPrefix(key, scope)
	return rest != "" && rest != key && !strings.Contains(rest, "/")
}
