package domain

import (
	"fmt"
	"strings"
)

const (
	ContainerNamespace    = "Radius.Tye"
	ContainerResourceType = ContainerNamespace + "/containers"
)

// Identity is the normalized, case-insensitive key of a resource.
type Identity string

// NewIdentity normalizes a fully qualified resource id.
func NewIdentity(id string) Identity {
	return Identity(strings.ToLower(strings.TrimSpace(id)))
}

func (i Identity) String() string {
	return string(i)
}

// ResourceID is a parsed resource-group-level resource path:
//
//	/subscriptions/{sub}/resourceGroups/{rg}/providers/{namespace}/{type}/{name}[/{type}/{name}...]
type ResourceID struct {
	SubscriptionID string
	ResourceGroup  string
	Namespace      string
	Types          []string
	Names          []string
}

// ParseResourceID parses a fully qualified resource id. Keywords are matched
// case-insensitively; segment values keep their original casing.
func ParseResourceID(s string) (ResourceID, error) {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "/") {
		return ResourceID{}, NewInvalidResourceIDError(s, "must start with '/'")
	}
	parts := strings.Split(strings.Trim(trimmed, "/"), "/")
	// subscriptions/{sub}/resourceGroups/{rg}/providers/{ns}/{type}/{name}
	if len(parts) < 8 {
		return ResourceID{}, NewInvalidResourceIDError(s, "too few segments")
	}
	for i, p := range parts {
		if p == "" {
			return ResourceID{}, NewInvalidResourceIDError(s, fmt.Sprintf("segment %d is empty", i))
		}
	}
	if !strings.EqualFold(parts[0], "subscriptions") {
		return ResourceID{}, NewInvalidResourceIDError(s, "expected 'subscriptions' segment")
	}
	if !strings.EqualFold(parts[2], "resourceGroups") {
		return ResourceID{}, NewInvalidResourceIDError(s, "expected 'resourceGroups' segment")
	}
	if !strings.EqualFold(parts[4], "providers") {
		return ResourceID{}, NewInvalidResourceIDError(s, "expected 'providers' segment")
	}

	rest := parts[6:]
	if len(rest)%2 != 0 {
		return ResourceID{}, NewInvalidResourceIDError(s, "resource types and names must come in pairs")
	}

	id := ResourceID{
		SubscriptionID: parts[1],
		ResourceGroup:  parts[3],
		Namespace:      parts[5],
	}
	for i := 0; i < len(rest); i += 2 {
		id.Types = append(id.Types, rest[i])
		id.Names = append(id.Names, rest[i+1])
	}
	return id, nil
}

// NewContainerID builds the id of a Radius.Tye/containers resource.
func NewContainerID(subscriptionID, resourceGroup, name string) ResourceID {
	return ResourceID{
		SubscriptionID: subscriptionID,
		ResourceGroup:  resourceGroup,
		Namespace:      ContainerNamespace,
		Types:          []string{"containers"},
		Names:          []string{name},
	}
}

// IsZero reports whether the id was never parsed or built.
func (id ResourceID) IsZero() bool {
	return id.SubscriptionID == "" && id.Namespace == ""
}

// Type returns the fully qualified type, e.g. Radius.Tye/containers.
func (id ResourceID) Type() string {
	return id.Namespace + "/" + strings.Join(id.Types, "/")
}

// Name returns the resource name segments joined by '/'. This is the display
// name of the resource.
func (id ResourceID) Name() string {
	return strings.Join(id.Names, "/")
}

func (id ResourceID) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "/subscriptions/%s/resourceGroups/%s/providers/%s", id.SubscriptionID, id.ResourceGroup, id.Namespace)
	for i := range id.Types {
		fmt.Fprintf(&b, "/%s/%s", id.Types[i], id.Names[i])
	}
	return b.String()
}

func (id ResourceID) Identity() Identity {
	return NewIdentity(id.String())
}
