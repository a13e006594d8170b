package state

import (
	"errors"
	"fmt"

	"dario.cat/mergo"

	"github.com/autodevd/daemon/internal/module"
)

// ErrNoMigrationPath is returned when no chain of registered MigrationRules
// connects a state's current version to the target version — per spec §3
// invariant 4, this failure must be deterministic and must never silently
// drop data.
var ErrNoMigrationPath = errors.New("state: no migration path between versions")

// MigrationRule is a declarative mapping between two schema versions of a
// module's state, per spec §9 glossary.
type MigrationRule struct {
	From             module.StateVersion
	To               module.StateVersion
	FieldRenames     map[string]string // old key -> new key
	NewFieldDefaults map[string]any    // new key -> default value
	RemovedFields    []string
	Transform        func(map[string]any) (map[string]any, error)
}

func (r MigrationRule) apply(data map[string]any) (map[string]any, error) {
	out := cloneMap(data)

	for oldKey, newKey := range r.FieldRenames {
		if v, ok := out[oldKey]; ok {
			out[newKey] = v
			delete(out, oldKey)
		}
	}

	for _, k := range r.RemovedFields {
		delete(out, k)
	}

	if len(r.NewFieldDefaults) > 0 {
		if err := mergo.Merge(&out, r.NewFieldDefaults); err != nil {
			return nil, fmt.Errorf("state: merge new-field defaults: %w", err)
		}
	}

	if r.Transform != nil {
		transformed, err := r.Transform(out)
		if err != nil {
			return nil, fmt.Errorf("state: custom transform: %w", err)
		}
		out = transformed
	}

	return out, nil
}

// MigrationEngine holds a graph of registered MigrationRules and applies
// the shortest chain of rules bridging a from/to StateVersion pair,
// searching the rule graph when no direct rule exists (spec §4 "Migration").
type MigrationEngine struct {
	rules []MigrationRule
}

// NewMigrationEngine returns an empty engine; rules are added with Register.
func NewMigrationEngine() *MigrationEngine {
	return &MigrationEngine{}
}

// Register adds a migration rule to the engine's graph.
func (e *MigrationEngine) Register(r MigrationRule) {
	e.rules = append(e.rules, r)
}

// Migrate walks the shortest path of registered rules from data's current
// version to target, applying each rule's transform in turn. It returns
// ErrNoMigrationPath if no chain connects the two versions.
func (e *MigrationEngine) Migrate(data map[string]any, from, to module.StateVersion) (map[string]any, error) {
	if from.CompatibleWith(to) {
		return data, nil
	}

	path := e.shortestPath(from, to)
	if path == nil {
		return nil, fmt.Errorf("%w: %s -> %s", ErrNoMigrationPath, from, to)
	}

	current := data
	for _, rule := range path {
		var err error
		current, err = rule.apply(current)
		if err != nil {
			return nil, err
		}
	}
	return current, nil
}

// shortestPath runs a breadth-first search over the rule graph, where an
// edge is a registered rule's (From, To) pair, matched on version equality
// (major+schema — the same equality StateVersion.CompatibleWith tests).
func (e *MigrationEngine) shortestPath(from, to module.StateVersion) []MigrationRule {
	type node struct {
		version module.StateVersion
		path    []MigrationRule
	}

	visited := map[module.StateVersion]bool{from: true}
	queue := []node{{version: from}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		for _, rule := range e.rules {
			if !rule.From.CompatibleWith(cur.version) {
				continue
			}
			if visited[rule.To] {
				continue
			}
			nextPath := append(append([]MigrationRule{}, cur.path...), rule)
			if rule.To.CompatibleWith(to) {
				return nextPath
			}
			visited[rule.To] = true
			queue = append(queue, node{version: rule.To, path: nextPath})
		}
	}
	return nil
}
