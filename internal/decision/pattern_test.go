package decision

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/autodevd/daemon/internal/event"
)

func TestPatternIndex_LearnAndForget(t *testing.T) {
	idx := NewPatternIndex()
	idx.Learn(Pattern{ID: "p1", Fingerprint: "fp1"})

	e := newEvent(event.KindCodeModified, "a", "fp1")
	d, ok := idx.TryDecide(e)
	assert.True(t, ok)
	assert.Equal(t, "p1", d.PatternID)

	idx.Forget("fp1")
	_, ok = idx.TryDecide(e)
	assert.False(t, ok)
}

func TestSimilarityIndex_DifferentKindNeverMatches(t *testing.T) {
	idx := NewSimilarityIndex()
	idx.Observe(event.New(event.KindCodeModified, "a", time.Now()).WithMetadata("ext", ".go"))

	e := event.New(event.KindConfigChanged, "b", time.Now()).WithMetadata("ext", ".go")
	_, ok := idx.TryDecide(e)
	assert.False(t, ok)
}
