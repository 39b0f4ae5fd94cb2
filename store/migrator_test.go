package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/chatdigest/internal/profile"
)

func TestShouldApplyMigration(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		current  string
		target   string
		expected bool
	}{
		{"pending", "0.2.1", "0.1.0", "0.2.1", true},
		{"empty database version", "0.2.1", "", "0.2.1", true},
		{"already applied", "0.2.1", "0.2.1", "0.2.1", false},
		{"beyond target", "0.3.1", "0.2.1", "0.2.1", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, shouldApplyMigration(tt.file, tt.current, tt.target))
		})
	}
}

func TestValidateMigrationFileName(t *testing.T) {
	assert.NoError(t, validateMigrationFileName("00__create_index.sql"))
	assert.Error(t, validateMigrationFileName("create_index.sql"))
	assert.Error(t, validateMigrationFileName("ab__create_index.sql"))
}

func TestGetSchemaVersionOfMigrateScript(t *testing.T) {
	s := New(nil, &profile.Profile{Mode: "dev", Driver: "sqlite"})

	v, err := s.getSchemaVersionOfMigrateScript("migration/sqlite/0.2/00__conversation_line_created_ts_index.sql")
	require.NoError(t, err)
	assert.Equal(t, "0.2.1", v)

	v, err = s.getSchemaVersionOfMigrateScript("migration/sqlite/0.2/01__conversation_line_claim.sql")
	require.NoError(t, err)
	assert.Equal(t, "0.2.2", v)

	v, err = s.getSchemaVersionOfMigrateScript("migration/sqlite/" + LatestSchemaFileName)
	require.NoError(t, err)
	assert.Equal(t, "0.2.2", v)

	_, err = s.getSchemaVersionOfMigrateScript("migration/sqlite/0.2/xx__bad.sql")
	assert.Error(t, err)
}

func TestSplitSQL(t *testing.T) {
	script := `-- header
CREATE TABLE a (v TEXT DEFAULT 'x;y');
/* block; comment */
CREATE INDEX i ON a (v);

`
	statements := splitSQL(script)
	require.Len(t, statements, 2)
	assert.Equal(t, "CREATE TABLE a (v TEXT DEFAULT 'x;y')", statements[0])
	assert.Equal(t, "CREATE INDEX i ON a (v)", statements[1])
}
