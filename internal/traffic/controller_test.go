package traffic

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingAudit struct {
	entries []string
}

func (a *recordingAudit) Record(moduleID, action, reason string) {
	a.entries = append(a.entries, moduleID+":"+action+":"+reason)
}

func TestController_StartDrainingRequiresNormal(t *testing.T) {
	c := NewController(Config{})
	require.NoError(t, c.StartDraining("m1"))

	err := c.StartDraining("m1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIllegalTransition))
}

func TestController_IsDrained(t *testing.T) {
	c := NewController(Config{})
	require.NoError(t, c.StartDraining("m1"))
	assert.True(t, c.IsDrained("m1"))

	c.BeginRequest("m1")
	assert.False(t, c.IsDrained("m1"))
	c.EndRequest("m1")
	assert.True(t, c.IsDrained("m1"))
}

func TestController_RouteMessage_PerState(t *testing.T) {
	c := NewController(Config{})

	passThrough, err := c.RouteMessage("m1", "x")
	require.NoError(t, err)
	assert.True(t, passThrough)

	require.NoError(t, c.StartDraining("m1"))
	_, err = c.RouteMessage("m1", "x")
	assert.True(t, errors.Is(err, ErrRejected))

	c.StartBuffering("m1")
	passThrough, err = c.RouteMessage("m1", "x")
	require.NoError(t, err)
	assert.False(t, passThrough)
}

// TestController_BufferingBound covers seed scenario S5: the 10,000th
// enqueue succeeds, the 10,001st fails with ErrBufferFull, buffer length
// stays at 10,000 — no silent drop.
func TestController_BufferingBound(t *testing.T) {
	c := NewController(Config{BufferCapacity: 10_000})
	c.StartBuffering("m1")

	for i := 0; i < 10_000; i++ {
		_, err := c.RouteMessage("m1", i)
		require.NoError(t, err)
	}

	_, err := c.RouteMessage("m1", 10_000)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBufferFull))
	assert.Equal(t, 10_000, c.BufferLen("m1"))
}

func TestController_ResumeTrafficDrainsInFIFOOrder(t *testing.T) {
	c := NewController(Config{})
	c.StartBuffering("m1")
	for i := 0; i < 5; i++ {
		_, err := c.RouteMessage("m1", i)
		require.NoError(t, err)
	}

	count, err := c.ResumeTraffic("m1")
	require.NoError(t, err)
	assert.Equal(t, 5, count)

	state, _ := c.State("m1")
	assert.Equal(t, Normal, state)
	assert.Equal(t, 0, c.BufferLen("m1"))
}

func TestController_ResumeTrafficRequiresBuffering(t *testing.T) {
	c := NewController(Config{})
	_, err := c.ResumeTraffic("m1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIllegalTransition))
}

func TestController_ForceDrainRecordsAudit(t *testing.T) {
	audit := &recordingAudit{}
	c := NewController(Config{Audit: audit})

	require.NoError(t, c.StartDraining("m1"))
	c.BeginRequest("m1")

	c.ForceDrain("m1", "drain_timeout exceeded")

	state, active := c.State("m1")
	assert.Equal(t, Normal, state)
	assert.Equal(t, int64(0), active)
	require.Len(t, audit.entries, 1)
	assert.Contains(t, audit.entries[0], "force_drain")
}

func TestController_GetBufferedMessagesPreservesOrder(t *testing.T) {
	c := NewController(Config{})
	c.StartBuffering("m1")
	for _, v := range []any{"a", "b", "c"} {
		_, err := c.RouteMessage("m1", v)
		require.NoError(t, err)
	}

	msgs := c.GetBufferedMessages("m1")
	assert.Equal(t, []any{"a", "b", "c"}, msgs)
	assert.Equal(t, 0, c.BufferLen("m1"))
}
