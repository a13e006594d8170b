package sandbox

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitor_SamplesCurrentProcess(t *testing.T) {
	m, err := NewMonitor(int32(os.Getpid()))
	require.NoError(t, err)

	usage, err := m.Sample()
	require.NoError(t, err)
	assert.Greater(t, usage.MemoryBytes, uint64(0))
	assert.Equal(t, usage, m.Last())
}

func TestMonitor_Track(t *testing.T) {
	m, err := NewMonitor(int32(os.Getpid()))
	require.NoError(t, err)

	stop := m.Track()
	usage, elapsed := stop()
	assert.GreaterOrEqual(t, elapsed.Nanoseconds(), int64(0))
	assert.Greater(t, usage.MemoryBytes, uint64(0))
}
