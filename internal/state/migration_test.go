package state

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationEngine_DirectRule(t *testing.T) {
	e := NewMigrationEngine()
	e.Register(MigrationRule{
		From:             v(1),
		To:               v(2),
		NewFieldDefaults: map[string]any{"schema_note": "v2"},
	})

	data := map[string]any{"count": 42}
	migrated, err := e.Migrate(data, v(1), v(2))
	require.NoError(t, err)
	assert.Equal(t, 42, migrated["count"])
	assert.Equal(t, "v2", migrated["schema_note"])
}

func TestMigrationEngine_ChainsShortestPath(t *testing.T) {
	e := NewMigrationEngine()
	e.Register(MigrationRule{From: v(1), To: v(2), FieldRenames: map[string]string{"old_name": "name"}})
	e.Register(MigrationRule{From: v(2), To: v(3), NewFieldDefaults: map[string]any{"added": true}})

	data := map[string]any{"old_name": "hello"}
	migrated, err := e.Migrate(data, v(1), v(3))
	require.NoError(t, err)
	assert.Equal(t, "hello", migrated["name"])
	assert.Equal(t, true, migrated["added"])
	_, stillPresent := migrated["old_name"]
	assert.False(t, stillPresent)
}

func TestMigrationEngine_NoPathFails(t *testing.T) {
	e := NewMigrationEngine()
	e.Register(MigrationRule{From: v(1), To: v(2)})

	_, err := e.Migrate(map[string]any{}, v(1), v(5))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoMigrationPath))
}

func TestMigrationEngine_CompatibleNeedsNoMigration(t *testing.T) {
	e := NewMigrationEngine()
	data := map[string]any{"count": 1}
	migrated, err := e.Migrate(data, v(1), v(1))
	require.NoError(t, err)
	assert.Equal(t, data, migrated)
}

func TestMigrationRule_RemovedFields(t *testing.T) {
	e := NewMigrationEngine()
	e.Register(MigrationRule{From: v(1), To: v(2), RemovedFields: []string{"legacy"}})

	migrated, err := e.Migrate(map[string]any{"legacy": "x", "keep": 1}, v(1), v(2))
	require.NoError(t, err)
	_, present := migrated["legacy"]
	assert.False(t, present)
	assert.Equal(t, 1, migrated["keep"])
}
