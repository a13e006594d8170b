package state

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"

	jsonpatch "github.com/evanphx/json-patch"
)

// ChangedKeys reports which top-level keys of two state data maps differ,
// grounded on the teacher's recursive config comparator
// (config.DefaultConfigComparator.compareRecursive): a key is changed if
// it is new, removed, or not reflect.DeepEqual to its previous value.
// Unlike the teacher's comparator this does not recurse into nested
// structures — module state keys are the unit of diffing the spec
// describes ("keys whose value differs"), not nested fields within them.
func ChangedKeys(oldData, newData map[string]any) []string {
	changed := make(map[string]struct{})
	for k, v := range newData {
		old, existed := oldData[k]
		if !existed || !reflect.DeepEqual(old, v) {
			changed[k] = struct{}{}
		}
	}
	for k := range oldData {
		if _, stillPresent := newData[k]; !stillPresent {
			changed[k] = struct{}{}
		}
	}
	out := make([]string, 0, len(changed))
	for k := range changed {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Patch computes a JSON merge patch from oldData to newData, the form a
// differential snapshot carries in its Patch field so a restore can apply
// the patch mechanically rather than re-deriving it.
func Patch(oldData, newData map[string]any) ([]byte, error) {
	oldJSON, err := json.Marshal(oldData)
	if err != nil {
		return nil, fmt.Errorf("state: marshal old data: %w", err)
	}
	newJSON, err := json.Marshal(newData)
	if err != nil {
		return nil, fmt.Errorf("state: marshal new data: %w", err)
	}
	patch, err := jsonpatch.CreateMergePatch(oldJSON, newJSON)
	if err != nil {
		return nil, fmt.Errorf("state: create merge patch: %w", err)
	}
	return patch, nil
}

// ApplyPatch applies a JSON merge patch (as produced by Patch) on top of
// base, returning the resulting data map.
func ApplyPatch(base map[string]any, patch []byte) (map[string]any, error) {
	baseJSON, err := json.Marshal(base)
	if err != nil {
		return nil, fmt.Errorf("state: marshal base: %w", err)
	}
	merged, err := jsonpatch.MergePatch(baseJSON, patch)
	if err != nil {
		return nil, fmt.Errorf("state: apply merge patch: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(merged, &out); err != nil {
		return nil, fmt.Errorf("state: unmarshal merged result: %w", err)
	}
	return out, nil
}
