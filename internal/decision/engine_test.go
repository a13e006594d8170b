package decision

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autodevd/daemon/internal/event"
)

func newEvent(kind event.Kind, path, fingerprint string) event.Event {
	e := event.New(kind, path, time.Now())
	e = e.WithFingerprint(fingerprint)
	return e
}

func TestEngine_TierOrderPatternWins(t *testing.T) {
	patterns := NewPatternIndex()
	patterns.Learn(Pattern{ID: "p1", Fingerprint: "fp1"})

	templates := NewTemplateIndex()
	require.NoError(t, templates.AddRule(TemplateRule{ID: "t1", Pattern: ".*"}))

	eng := NewEngine(Config{Patterns: patterns, Templates: templates})

	d := eng.Decide(newEvent(event.KindCodeModified, "src/a.go", "fp1"))
	assert.Equal(t, KindUsePattern, d.Kind)
	assert.Equal(t, "p1", d.PatternID)
}

func TestEngine_FallsThroughToTemplate(t *testing.T) {
	templates := NewTemplateIndex()
	require.NoError(t, templates.AddRule(TemplateRule{ID: "t1", Pattern: `\.go$`}))

	eng := NewEngine(Config{Templates: templates})
	d := eng.Decide(newEvent(event.KindCodeModified, "src/a.go", "fp-none"))
	assert.Equal(t, KindUseTemplate, d.Kind)
	assert.Equal(t, "t1", d.TemplateID)
}

func TestEngine_CacheHitWithinTTL(t *testing.T) {
	cache, err := NewCacheTier(10, time.Minute)
	require.NoError(t, err)

	e := newEvent(event.KindCodeModified, "src/a.go", "fp-cache")
	cache.Put(e, usePattern(e, "ignored"))

	eng := NewEngine(Config{Cache: cache})
	d := eng.Decide(e)
	assert.Equal(t, KindUseCached, d.Kind)
}

func TestEngine_CacheMissAfterTTL(t *testing.T) {
	cache, err := NewCacheTier(10, time.Millisecond)
	require.NoError(t, err)
	e := newEvent(event.KindCodeModified, "src/a.go", "fp-expired")
	cache.Put(e, usePattern(e, "ignored"))
	cache.now = func() time.Time { return time.Now().Add(time.Hour) }

	eng := NewEngine(Config{Cache: cache})
	d := eng.Decide(e)
	assert.Equal(t, KindRequiresModel, d.Kind)
}

func TestEngine_SimilarityThreshold(t *testing.T) {
	sim := NewSimilarityIndex()
	known := newEvent(event.KindCodeModified, "src/a.go", "fp-a").WithMetadata("ext", ".go").WithMetadata("size_bytes", "10")
	sim.Observe(known)

	eng := NewEngine(Config{Similar: sim})

	similar := newEvent(event.KindCodeModified, "src/b.go", "fp-b").WithMetadata("ext", ".go").WithMetadata("size_bytes", "10")
	d := eng.Decide(similar)
	assert.Equal(t, KindAdaptSimilar, d.Kind)
	assert.GreaterOrEqual(t, d.Similarity, 0.85)
}

func TestEngine_BudgetExhaustedSkips(t *testing.T) {
	eng := NewEngine(Config{Budget: NewBudget(0)})
	eng.budget = NewBudget(1)
	eng.Decide(newEvent(event.KindCodeModified, "a", "fp-1"))
	d := eng.Decide(newEvent(event.KindCodeModified, "b", "fp-2"))
	assert.Equal(t, KindSkip, d.Kind)
	assert.Equal(t, "budget-exhausted", d.Reason)
}

func TestEngine_VetoSkips(t *testing.T) {
	eng := NewEngine(Config{Veto: vetoFunc(func(event.Event) (string, bool) { return "unsafe", true })})
	d := eng.Decide(newEvent(event.KindCodeModified, "a", "fp"))
	assert.Equal(t, KindSkip, d.Kind)
	assert.Equal(t, "unsafe", d.Reason)
}

func TestEngine_RequiresModelWhenNoTierAccepts(t *testing.T) {
	eng := NewEngine(Config{})
	d := eng.Decide(newEvent(event.KindCodeModified, "a", "fp"))
	assert.Equal(t, KindRequiresModel, d.Kind)
}

func TestEngine_ExecuteCollapsesConcurrentCalls(t *testing.T) {
	eng := NewEngine(Config{})
	var calls int
	fn := func() (int64, error) {
		calls++
		return 10, nil
	}

	done := make(chan struct{})
	go func() {
		_, _ = eng.Execute("same-fp", fn)
		done <- struct{}{}
	}()
	tokens, err := eng.Execute("same-fp", fn)
	<-done

	require.NoError(t, err)
	assert.Equal(t, int64(10), tokens)
}

func TestEngine_ExecuteOpensBreakerOnRepeatedFailure(t *testing.T) {
	breaker := NewCircuitBreaker(2, time.Hour)
	eng := NewEngine(Config{Breaker: breaker})

	failing := func() (int64, error) { return 0, errors.New("boom") }
	_, _ = eng.Execute("fp1", failing)
	_, _ = eng.Execute("fp2", failing)

	assert.True(t, breaker.Open())

	d := eng.Decide(newEvent(event.KindCodeModified, "a", "fp3"))
	assert.Equal(t, KindSkip, d.Kind)
	assert.Equal(t, "circuit-breaker-open", d.Reason)
}

type vetoFunc func(event.Event) (string, bool)

func (f vetoFunc) Veto(e event.Event) (string, bool) { return f(e) }

// TestEngine_TokensSavedReflectsIsCode covers the IsCode heuristic's one
// load-bearing use (per the spec's Open Question note it must never gate
// tier routing itself): a tier hit on a code-classified event records
// more tokens-saved than an identically-sized non-code event.
func TestEngine_TokensSavedReflectsIsCode(t *testing.T) {
	patterns := NewPatternIndex()
	patterns.Learn(Pattern{ID: "p1", Fingerprint: "fp-code"})
	patterns.Learn(Pattern{ID: "p2", Fingerprint: "fp-text"})

	eng := NewEngine(Config{Patterns: patterns})

	codeEvent := newEvent(event.KindCodeModified, "src/a.go", "fp-code").WithMetadata("ext", ".go")
	d := eng.Decide(codeEvent)
	require.Equal(t, KindUsePattern, d.Kind)
	codeTokens := eng.Budget().TokensSaved

	textEvent := newEvent(event.KindCodeModified, "docs/a.md", "fp-text").WithMetadata("ext", ".md")
	d = eng.Decide(textEvent)
	require.Equal(t, KindUsePattern, d.Kind)
	totalTokens := eng.Budget().TokensSaved

	assert.Greater(t, codeTokens, totalTokens-codeTokens, "a code event should be estimated as costlier than a same-shaped text event")
	assert.True(t, eng.IsCode(codeEvent))
	assert.False(t, eng.IsCode(textEvent))
}
