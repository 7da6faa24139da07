package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMigrateUpDown(t *testing.T) {
	database, err := New(filepath.Join(t.TempDir(), "migrate.db"))
	require.NoError(t, err)
	defer database.Close()

	version, dirty, err := database.MigrateVersion()
	require.NoError(t, err)
	require.False(t, dirty)
	require.Zero(t, version, "fresh database has no migrations applied")

	require.NoError(t, database.MigrateUp())

	version, dirty, err = database.MigrateVersion()
	require.NoError(t, err)
	require.False(t, dirty)
	require.EqualValues(t, 2, version)

	// Idempotent on an up-to-date schema.
	require.NoError(t, database.MigrateUp())

	require.NoError(t, database.MigrateDown())
	version, _, err = database.MigrateVersion()
	require.NoError(t, err)
	require.EqualValues(t, 1, version)
}

func TestMigrateCreatesTables(t *testing.T) {
	database := setupTestDB(t)

	for _, table := range []string{"runs", "point_clouds"} {
		var name string
		err := database.QueryRow(
			`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table,
		).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
	}
}
