package audit

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrail_AppendAssignsStrictlyIncreasingSequence(t *testing.T) {
	store := NewMemStore()
	trail, err := NewTrail(context.Background(), store, nil, nil)
	require.NoError(t, err)

	var last Entry
	for i := 0; i < 5; i++ {
		e, err := trail.Append(context.Background(), "gate-pass", "decision-engine", "ok", "")
		require.NoError(t, err)
		if i > 0 {
			assert.Equal(t, last.Sequence+1, e.Sequence)
			assert.Equal(t, last.Hash, e.PrevHash)
		}
		last = e
	}

	entries, err := store.Recent(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, entries, 5)
	for i, e := range entries {
		assert.Equal(t, int64(i+1), e.Sequence)
	}
}

func TestTrail_FirstEntryChainsFromGenesis(t *testing.T) {
	store := NewMemStore()
	trail, err := NewTrail(context.Background(), store, nil, nil)
	require.NoError(t, err)

	e, err := trail.Append(context.Background(), "gate-pass", "decision-engine", "ok", "")
	require.NoError(t, err)
	assert.Equal(t, GenesisHash, e.PrevHash)
}

func TestTrail_ResumesFromExistingStore(t *testing.T) {
	store := NewMemStore()
	trail, err := NewTrail(context.Background(), store, nil, nil)
	require.NoError(t, err)
	first, err := trail.Append(context.Background(), "a", "x", "ok", "")
	require.NoError(t, err)

	resumed, err := NewTrail(context.Background(), store, nil, nil)
	require.NoError(t, err)
	second, err := resumed.Append(context.Background(), "b", "x", "ok", "")
	require.NoError(t, err)

	assert.Equal(t, first.Sequence+1, second.Sequence)
	assert.Equal(t, first.Hash, second.PrevHash)
}

func TestTrail_VerifyDetectsTamperedEntry(t *testing.T) {
	store := NewMemStore()
	trail, err := NewTrail(context.Background(), store, nil, nil)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := trail.Append(context.Background(), "a", "x", "ok", "")
		require.NoError(t, err)
	}
	require.NoError(t, trail.Verify(context.Background(), 0))

	store.entries[1].Result = "tampered"
	err = trail.Verify(context.Background(), 0)
	assert.ErrorIs(t, err, ErrTamperedChain)
}

func TestTrail_RotateWritesSealedEntryAndContinuesChain(t *testing.T) {
	store := NewMemStore()
	trail, err := NewTrail(context.Background(), store, nil, nil)
	require.NoError(t, err)
	_, err = trail.Append(context.Background(), "a", "x", "ok", "")
	require.NoError(t, err)

	sealed, err := trail.Rotate(context.Background(), "operator")
	require.NoError(t, err)
	assert.Equal(t, "segment-sealed", sealed.Action)

	next, err := trail.Append(context.Background(), "b", "x", "ok", "")
	require.NoError(t, err)
	assert.Equal(t, sealed.Hash, next.PrevHash, "new segment's first entry must chain from the sealed terminal hash")
}

func TestTrail_AppendWritesMirrorLine(t *testing.T) {
	store := NewMemStore()
	var buf bytes.Buffer
	trail, err := NewTrail(context.Background(), store, &buf, nil)
	require.NoError(t, err)

	_, err = trail.Append(context.Background(), "gate-pass", "decision-engine", "ok", "")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "action=gate-pass")
}

func TestTrail_NeverDeletesEntries(t *testing.T) {
	store := NewMemStore()
	trail, err := NewTrail(context.Background(), store, nil, nil)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		_, err := trail.Append(context.Background(), "a", "x", "ok", "")
		require.NoError(t, err)
	}
	entries, err := store.Recent(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, entries, 10)
}
