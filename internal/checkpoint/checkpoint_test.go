package checkpoint

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autodevd/daemon/internal/safety"
)

type snapshot struct {
	Counter int
	Label   string
}

func TestStore_CreateAndRestoreRoundTrip(t *testing.T) {
	s := NewStore(10)
	id, err := s.Create("before risky change", snapshot{Counter: 1, Label: "a"}, time.Now())
	require.NoError(t, err)

	var out snapshot
	ok, err := s.Restore(id, &out)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, snapshot{Counter: 1, Label: "a"}, out)
}

func TestStore_RestoreUnknownIDReturnsFalse(t *testing.T) {
	s := NewStore(10)
	var out snapshot
	ok, err := s.Restore("nope", &out)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_EvictsOldestBeyondMaxEntries(t *testing.T) {
	s := NewStore(2)
	now := time.Now()
	id1, _ := s.Create("first", snapshot{Counter: 1}, now)
	_, _ = s.Create("second", snapshot{Counter: 2}, now.Add(time.Second))
	_, _ = s.Create("third", snapshot{Counter: 3}, now.Add(2*time.Second))

	assert.Equal(t, 2, s.Len())
	_, ok := s.Get(id1)
	assert.False(t, ok, "oldest checkpoint must be evicted once capacity is exceeded")

	latest, ok := s.Latest()
	require.True(t, ok)
	assert.Equal(t, "third", latest.Description)
}

func TestChecker_CanCheckpointTrueByDefault(t *testing.T) {
	s := NewStore(0) // non-positive max defaults to 50, never zero capacity
	c := NewChecker(s)
	assert.True(t, c.CanCheckpoint(&safety.ProposedChange{}))
}
