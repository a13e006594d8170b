package decision

import (
	"regexp"
	"sync"

	"github.com/autodevd/daemon/internal/event"
)

// TemplateRule matches events whose source path satisfies Pattern (a regex)
// and, when Kind is non-empty, whose kind equals it.
type TemplateRule struct {
	ID      string
	Kind    event.Kind
	Pattern string
}

// TemplateIndex is T2's backing store: a regex-compiled rule set, reusing
// the teacher's RegexCache shape (compile-once, match-many) generalized
// from route-label regexes to source-path regexes.
type TemplateIndex struct {
	cache *regexCache
	mu    sync.RWMutex
	rules []compiledRule
}

type compiledRule struct {
	TemplateRule
	re *regexp.Regexp
}

// NewTemplateIndex returns an empty index with a 1000-entry regex cache.
func NewTemplateIndex() *TemplateIndex {
	return &TemplateIndex{cache: newRegexCache(1000)}
}

// AddRule compiles and registers rule, returning a compile error if Pattern
// is not a valid regex.
func (idx *TemplateIndex) AddRule(rule TemplateRule) error {
	re, err := idx.cache.compile(rule.Pattern)
	if err != nil {
		return err
	}
	idx.mu.Lock()
	idx.rules = append(idx.rules, compiledRule{TemplateRule: rule, re: re})
	idx.mu.Unlock()
	return nil
}

// TryDecide implements DecisionTier for T2 Template.
func (idx *TemplateIndex) TryDecide(e event.Event) (Decision, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	for _, rule := range idx.rules {
		if rule.Kind != "" && rule.Kind != e.Kind {
			continue
		}
		if rule.re.MatchString(e.SourcePath) {
			return useTemplate(e, rule.ID), true
		}
	}
	return Decision{}, false
}

// regexCache is a minimal LRU-free compile cache: template rule sets are
// small and static relative to the event stream, so a capped map without
// eviction bookkeeping is sufficient. Once maxSize patterns are cached,
// further patterns are compiled on each call and not stored.
type regexCache struct {
	mu       sync.Mutex
	maxSize  int
	compiled map[string]*regexp.Regexp
}

func newRegexCache(maxSize int) *regexCache {
	return &regexCache{maxSize: maxSize, compiled: make(map[string]*regexp.Regexp)}
}

func (c *regexCache) compile(pattern string) (*regexp.Regexp, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if re, ok := c.compiled[pattern]; ok {
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	if len(c.compiled) < c.maxSize {
		c.compiled[pattern] = re
	}
	return re, nil
}
