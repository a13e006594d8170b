package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFingerprint_DeterministicRegardlessOfMetadataOrder(t *testing.T) {
	fp := NewFingerprinter()
	base := time.Now()

	a := New(KindCodeModified, "src/a.rs", base).WithMetadata("ext", ".rs").WithMetadata("size_bytes", "42")
	b := New(KindCodeModified, "src/a.rs", base).WithMetadata("size_bytes", "42").WithMetadata("ext", ".rs")

	assert.Equal(t, fp.Fingerprint(a), fp.Fingerprint(b))
}

func TestFingerprint_DiffersOnKindOrPath(t *testing.T) {
	fp := NewFingerprinter()
	now := time.Now()

	a := New(KindCodeModified, "src/a.rs", now)
	b := New(KindCodeModified, "src/b.rs", now)
	c := New(KindConfigChanged, "src/a.rs", now)

	assert.NotEqual(t, fp.Fingerprint(a), fp.Fingerprint(b))
	assert.NotEqual(t, fp.Fingerprint(a), fp.Fingerprint(c))
}
