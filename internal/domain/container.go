package domain

import (
	"maps"
	"regexp"
	"strings"

	gcrname "github.com/google/go-containerregistry/pkg/name"
	gcr "github.com/google/go-containerregistry/pkg/v1"
)

// Docker accepts container names matching this pattern.
var containerNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)

// Container is the desired state of a container resource. A submitted
// Container is never modified; every Put carries a complete new document.
type Container struct {
	ID         string              `json:"id"`
	Name       string              `json:"name"`
	Type       string              `json:"type"`
	Properties ContainerProperties `json:"properties"`
}

type ContainerProperties struct {
	Image  string            `json:"image"`
	Digest string            `json:"digest,omitempty"`
	Labels map[string]string `json:"labels,omitempty"`
}

// ContainerStatus describes the instance a monitor is running for a resource.
type ContainerStatus struct {
	ContainerName string `json:"containerName"`
	ContainerID   string `json:"containerId"`
	Image         string `json:"image"`
	Running       bool   `json:"running"`
}

// ReservedLabelPrefix marks labels the daemon sets on every container it runs.
const ReservedLabelPrefix = "tye."

// Reference is the image reference the engine runs: the image pinned to
// Digest when one is set.
func (p ContainerProperties) Reference() string {
	if p.Digest == "" {
		return p.Image
	}
	return p.Image + "@" + p.Digest
}

// Identity returns the normalized key of the container's resource id.
func (c *Container) Identity() Identity {
	if id, err := c.ResourceID(); err == nil {
		return id.Identity()
	}
	return NewIdentity(c.ID)
}

// ResourceID parses the container's id.
func (c *Container) ResourceID() (ResourceID, error) {
	return ParseResourceID(c.ID)
}

// Clone returns a deep copy so the caller's document can't leak into
// published events.
func (c *Container) Clone() *Container {
	if c == nil {
		return nil
	}
	out := *c
	out.Properties.Labels = maps.Clone(c.Properties.Labels)
	return &out
}

// Validate checks the document before it is handed to the runtime.
func (c *Container) Validate() error {
	id, err := c.ResourceID()
	if err != nil {
		return NewValidationError("id", err.Error())
	}
	if !strings.EqualFold(id.Type(), ContainerResourceType) {
		return NewValidationError("id", "resource type must be "+ContainerResourceType)
	}
	if c.Type != "" && !strings.EqualFold(c.Type, ContainerResourceType) {
		return NewValidationError("type", "must be "+ContainerResourceType)
	}
	if c.Name == "" {
		return NewValidationError("name", "is required")
	}
	if !containerNamePattern.MatchString(c.Name) {
		return NewValidationError("name", "must match "+containerNamePattern.String())
	}
	if c.Properties.Image == "" {
		return NewValidationError("properties.image", "is required")
	}
	ref, err := gcrname.ParseReference(c.Properties.Image)
	if err != nil {
		return NewValidationError("properties.image", err.Error())
	}
	if c.Properties.Digest != "" {
		if _, pinned := ref.(gcrname.Digest); pinned {
			return NewValidationError("properties.digest", "image already pins a digest")
		}
		if _, err := gcr.NewHash(c.Properties.Digest); err != nil {
			return NewValidationError("properties.digest", err.Error())
		}
	}
	for k := range c.Properties.Labels {
		if strings.HasPrefix(strings.ToLower(k), ReservedLabelPrefix) {
			return NewValidationError("properties.labels", "label "+k+" uses the reserved prefix "+ReservedLabelPrefix)
		}
	}
	return nil
}
