package persistence

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListMigrationFiles_SortedBySuffix(t *testing.T) {
	fsys := fstest.MapFS{
		"000002_b.up.sql":   {Data: []byte("SELECT 2")},
		"000001_a.up.sql":   {Data: []byte("SELECT 1")},
		"000001_a.down.sql": {Data: []byte("SELECT 0")},
		"README.md":         {Data: []byte("notes")},
	}

	up, err := listMigrationFiles(fsys, ".up.sql")
	require.NoError(t, err)
	assert.Equal(t, []string{"000001_a.up.sql", "000002_b.up.sql"}, up)
	assert.Equal(t, "000002", extractVersion(up[1]))
}

func TestEmbeddedMigrations_Paired(t *testing.T) {
	fsys := EmbeddedMigrations()

	up, err := listMigrationFiles(fsys, ".up.sql")
	require.NoError(t, err)
	down, err := listMigrationFiles(fsys, ".down.sql")
	require.NoError(t, err)

	require.NotEmpty(t, up)
	assert.Len(t, down, len(up))
}

func TestBuildInsert_Placeholders(t *testing.T) {
	query, args := buildInsert("replay.balances", []string{"venue", "asset"}, "(venue, asset)", 2, func(i int) []interface{} {
		return []interface{}{"A", i}
	})

	assert.Equal(t,
		"INSERT INTO replay.balances (venue, asset) VALUES ($1, $2), ($3, $4) ON CONFLICT (venue, asset) DO NOTHING",
		query)
	assert.Equal(t, []interface{}{"A", 0, "A", 1}, args)
}
