package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCapability_Filesystem(t *testing.T) {
	c, err := ParseCapability("filesystem:read:/docs")
	require.NoError(t, err)
	assert.Equal(t, ClassFilesystem, c.Class)
	assert.Equal(t, FSRead, c.FSOp)
	assert.Equal(t, "/docs", c.PathPrefix)
}

func TestParseCapability_Network(t *testing.T) {
	c, err := ParseCapability("network:http:localhost")
	require.NoError(t, err)
	assert.Equal(t, "http", c.Protocol)
	assert.Equal(t, "localhost", c.Host)
	assert.Equal(t, 0, c.Port)
}

func TestParseCapability_Memory(t *testing.T) {
	c, err := ParseCapability("memory:limit:100MB")
	require.NoError(t, err)
	assert.Equal(t, uint64(100<<20), c.LimitBytes)
}

func TestParseCapability_Module(t *testing.T) {
	c, err := ParseCapability("module:call:parser")
	require.NoError(t, err)
	assert.Equal(t, "parser", c.TargetID)
}

func TestParseCapability_Malformed(t *testing.T) {
	_, err := ParseCapability("nonsense")
	assert.Error(t, err)
}

func TestCapability_DominatesPathPrefix(t *testing.T) {
	grant, _ := ParseCapability("filesystem:read:/docs")
	within, _ := ParseCapability("filesystem:read:/docs/readme.md")
	outside, _ := ParseCapability("filesystem:read:/etc/passwd")

	assert.True(t, grant.Dominates(within))
	assert.False(t, grant.Dominates(outside))
}

func TestCapabilitySet_Allow(t *testing.T) {
	grant, _ := ParseCapability("network:http:localhost")
	set := NewCapabilitySet(grant)

	allowed, _ := ParseCapability("network:http:localhost")
	denied, _ := ParseCapability("network:http:example.com")

	assert.True(t, set.Allow(allowed))
	assert.False(t, set.Allow(denied))
}
