package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResourceID(t *testing.T) {
	id, err := ParseResourceID("/Subscriptions/S1/resourcegroups/RG/providers/Radius.Tye/containers/Web")
	require.NoError(t, err)

	assert.Equal(t, "S1", id.SubscriptionID)
	assert.Equal(t, "RG", id.ResourceGroup)
	assert.Equal(t, "Radius.Tye/containers", id.Type())
	assert.Equal(t, "Web", id.Name())
	assert.Equal(t, "/subscriptions/S1/resourceGroups/RG/providers/Radius.Tye/containers/Web", id.String())
	assert.Equal(t, Identity("/subscriptions/s1/resourcegroups/rg/providers/radius.tye/containers/web"), id.Identity())
}

func TestParseResourceID_Nested(t *testing.T) {
	id, err := ParseResourceID("/subscriptions/s/resourceGroups/rg/providers/Radius.Tye/containers/web/ports/http")
	require.NoError(t, err)
	assert.Equal(t, "Radius.Tye/containers/ports", id.Type())
	assert.Equal(t, "web/http", id.Name())
}

func TestParseResourceID_Invalid(t *testing.T) {
	cases := []string{
		"",
		"subscriptions/s/resourceGroups/rg/providers/Radius.Tye/containers/web",
		"/subscriptions/s/resourceGroups/rg/providers/Radius.Tye/containers",
		"/subscriptions/s/resourceGroups/rg/providers/Radius.Tye/containers/web/ports",
		"/subs/s/resourceGroups/rg/providers/Radius.Tye/containers/web",
		"/subscriptions/s/groups/rg/providers/Radius.Tye/containers/web",
		"/subscriptions/s/resourceGroups/rg/provider/Radius.Tye/containers/web",
		"/subscriptions//resourceGroups/rg/providers/Radius.Tye/containers/web",
	}
	for _, in := range cases {
		_, err := ParseResourceID(in)
		var invalid *InvalidResourceIDError
		assert.ErrorAs(t, err, &invalid, in)
	}
}

func TestIdentity_IgnoresCase(t *testing.T) {
	a := NewContainerID("SUB", "RG", "Web").Identity()
	b := NewContainerID("sub", "rg", "web").Identity()
	assert.Equal(t, a, b)
	assert.Equal(t, b, NewIdentity("  "+NewContainerID("Sub", "Rg", "WEB").String()+" "))
}
