package module

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersion_CompatibleWithSameMajor(t *testing.T) {
	v1, err := ParseVersion("1.0.0")
	require.NoError(t, err)
	v2, err := ParseVersion("1.5.2")
	require.NoError(t, err)
	v3, err := ParseVersion("2.0.0")
	require.NoError(t, err)

	assert.True(t, v1.CompatibleWith(v2))
	assert.False(t, v1.CompatibleWith(v3))
}

func TestVersion_String(t *testing.T) {
	v, err := ParseVersion("1.2.3")
	require.NoError(t, err)
	assert.Equal(t, "1.2.3", v.String())
}

func TestStateVersion_RequiresSchemaMatch(t *testing.T) {
	base, _ := ParseVersion("1.0.0")
	a := StateVersion{Version: base, Schema: 1}
	b := StateVersion{Version: base, Schema: 2}
	assert.False(t, a.CompatibleWith(b))

	c := StateVersion{Version: base, Schema: 1}
	assert.True(t, a.CompatibleWith(c))
}
