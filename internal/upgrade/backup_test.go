package upgrade

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFakeBinary(t *testing.T, path, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o755))
}

func TestBackupManager_CreateCopiesBinary(t *testing.T) {
	dir := t.TempDir()
	binPath := filepath.Join(dir, "daemon")
	writeFakeBinary(t, binPath, "#!/bin/sh\necho v1\n")

	bm := NewBackupManager(binPath, filepath.Join(dir, "backups"), 3, nil)
	backupPath, err := bm.Create()
	require.NoError(t, err)

	data, err := os.ReadFile(backupPath)
	require.NoError(t, err)
	assert.Equal(t, "#!/bin/sh\necho v1\n", string(data))

	info, err := os.Stat(backupPath)
	require.NoError(t, err)
	assert.True(t, info.Mode()&0o100 != 0, "backup should preserve executable bit")
}

func TestBackupManager_LatestReturnsErrWhenEmpty(t *testing.T) {
	dir := t.TempDir()
	bm := NewBackupManager(filepath.Join(dir, "daemon"), filepath.Join(dir, "backups"), 3, nil)
	_, err := bm.Latest()
	assert.ErrorIs(t, err, ErrNoBackupAvailable)
}

func TestBackupManager_EvictOldestKeepsOnlyNewest(t *testing.T) {
	dir := t.TempDir()
	backupDir := filepath.Join(dir, "backups")
	require.NoError(t, os.MkdirAll(backupDir, 0o755))

	names := []string{
		backupPrefix + "20260101_000000",
		backupPrefix + "20260102_000000",
		backupPrefix + "20260103_000000",
		backupPrefix + "20260104_000000",
	}
	for _, name := range names {
		writeFakeBinary(t, filepath.Join(backupDir, name), "stub")
	}

	bm := NewBackupManager(filepath.Join(dir, "daemon"), backupDir, 2, nil)
	require.NoError(t, bm.evictOldest())

	remaining, err := bm.list()
	require.NoError(t, err)
	assert.Equal(t, []string{names[2], names[3]}, remaining)

	latest, err := bm.Latest()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(backupDir, names[3]), latest)
}

func TestBackupManager_ListIgnoresUnrelatedFiles(t *testing.T) {
	dir := t.TempDir()
	backupDir := filepath.Join(dir, "backups")
	require.NoError(t, os.MkdirAll(backupDir, 0o755))
	writeFakeBinary(t, filepath.Join(backupDir, backupPrefix+"20260101_000000"), "stub")
	writeFakeBinary(t, filepath.Join(backupDir, "README.txt"), "not a backup")
	require.NoError(t, os.MkdirAll(filepath.Join(backupDir, backupPrefix+"subdir"), 0o755))

	bm := NewBackupManager(filepath.Join(dir, "daemon"), backupDir, 3, nil)
	names, err := bm.list()
	require.NoError(t, err)
	assert.Equal(t, []string{backupPrefix + "20260101_000000"}, names)
}
