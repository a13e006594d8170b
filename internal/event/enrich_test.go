package event

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnrich_ExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "main.go")
	require.NoError(t, os.WriteFile(path, []byte("package main\n"), 0o644))

	e := New(KindCodeModified, path, time.Now())
	got := Enrich(e, NewFingerprinter())

	assert.True(t, got.Enriched())
	assert.Equal(t, ".go", got.Metadata["ext"])
	assert.NotEmpty(t, got.Metadata["size_bytes"])
	assert.NotEmpty(t, got.Fingerprint)
}

func TestEnrich_MissingFileNeverFails(t *testing.T) {
	e := New(KindCodeModified, "/nonexistent/path/does-not-exist.rs", time.Now())
	got := Enrich(e, NewFingerprinter())

	assert.True(t, got.Enriched())
	assert.NotEmpty(t, got.Fingerprint)
	_, hasSize := got.Metadata["size_bytes"]
	assert.False(t, hasSize)
}

func TestEnrich_EmptySourcePath(t *testing.T) {
	e := New(KindHealthCheck, "", time.Now())
	got := Enrich(e, NewFingerprinter())
	assert.True(t, got.Enriched())
}
