package event

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
)

// Fingerprinter generates a deterministic fingerprint for an Event, used by
// the decision engine's pattern/cache/similarity tiers and by the loop
// detector's per-path identity.
//
// Grounded on the teacher's alert FingerprintGenerator (FNV-1a over sorted
// label pairs); generalized here from "alert labels" to "event kind, source
// path and metadata".
type Fingerprinter interface {
	Fingerprint(e Event) string
}

type fnv1aFingerprinter struct{}

// NewFingerprinter returns the default FNV-1a based Fingerprinter.
func NewFingerprinter() Fingerprinter { return fnv1aFingerprinter{} }

func (fnv1aFingerprinter) Fingerprint(e Event) string {
	keys := make([]string, 0, len(e.Metadata)+2)
	keys = append(keys, "kind="+string(e.Kind), "path="+e.SourcePath)
	for k, v := range e.Metadata {
		keys = append(keys, fmt.Sprintf("%s=%s", k, v))
	}
	sort.Strings(keys)

	h := fnv.New64a()
	_, _ = h.Write([]byte(strings.Join(keys, "\x1f")))
	return fmt.Sprintf("%016x", h.Sum64())
}
