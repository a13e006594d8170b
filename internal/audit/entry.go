// Package audit implements the tamper-evident, append-only audit trail
// (spec component C10): every safety-relevant action — gate verdicts,
// force-drains, sandbox violations, upgrade outcomes — is recorded as a
// hash-chained Entry that can never be edited or deleted, only appended
// or sealed by rotation.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// GenesisHash is the well-known H(-1) value chained into Entry 0 of the
// very first segment. Any store's first entry must chain from this.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Entry is one append-only audit record.
type Entry struct {
	Sequence   int64     `json:"sequence"`
	Hash       string    `json:"hash"`
	PrevHash   string    `json:"prev_hash"`
	Action     string    `json:"action"`
	Initiator  string    `json:"initiator"`
	Result     string    `json:"result"`
	PayloadRef string    `json:"payload_ref"`
	Timestamp  time.Time `json:"timestamp"`
}

// canonicalBytes returns the deterministic byte representation of e used
// to compute its hash — every field except Hash itself, since Hash is
// derived from the rest.
func canonicalBytes(e Entry) []byte {
	// struct field order is fixed and json.Marshal of a struct (not a map)
	// preserves it, so this is deterministic without a custom canonicalizer.
	unsigned := struct {
		Sequence   int64     `json:"sequence"`
		PrevHash   string    `json:"prev_hash"`
		Action     string    `json:"action"`
		Initiator  string    `json:"initiator"`
		Result     string    `json:"result"`
		PayloadRef string    `json:"payload_ref"`
		Timestamp  string    `json:"timestamp"`
	}{
		Sequence:   e.Sequence,
		PrevHash:   e.PrevHash,
		Action:     e.Action,
		Initiator:  e.Initiator,
		Result:     e.Result,
		PayloadRef: e.PayloadRef,
		Timestamp:  e.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	b, _ := json.Marshal(unsigned)
	return b
}

// computeHash derives an entry's hash from its predecessor's hash and its
// own canonical content: H(i) = sha256(H(i-1) || canonical-bytes(entry_i)).
func computeHash(e Entry) string {
	h := sha256.New()
	h.Write([]byte(e.PrevHash))
	h.Write(canonicalBytes(e))
	return hex.EncodeToString(h.Sum(nil))
}
