package database

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationNamesSorted(t *testing.T) {
	names, err := migrationNames()
	require.NoError(t, err)
	require.NotEmpty(t, names)
	assert.Equal(t, "001_schema.sql", names[0])
	for i := 1; i < len(names); i++ {
		assert.Less(t, names[i-1], names[i])
	}
}

func TestSchemaDeclaresFunnelTables(t *testing.T) {
	raw, err := migrationsFS.ReadFile("migrations/001_schema.sql")
	require.NoError(t, err)
	sql := string(raw)
	for _, table := range []string{"webinars", "lessons", "leads", "lead_progress", "lead_events", "lead_sessions", "users"} {
		assert.True(t, strings.Contains(sql, "CREATE TABLE IF NOT EXISTS "+table+" ("), table)
	}
	assert.Contains(t, sql, "UNIQUE (lead_id, lesson_id)")
	assert.Contains(t, sql, "UNIQUE (webinar_id, email)")
	assert.Contains(t, sql, "DEFERRABLE INITIALLY DEFERRED")
}
