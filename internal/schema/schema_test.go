package schema

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefineMergesDefaultColumns(t *testing.T) {
	table, err := Define("widgets", Column{Name: "label", Type: "text", NotNull: true})
	require.NoError(t, err)

	names := make([]string, 0, len(table.Columns))
	for _, c := range table.Columns {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"id", "created_at", "updated_at", "label"}, names)

	id, ok := table.Column("id")
	require.True(t, ok)
	assert.True(t, id.PrimaryKey)
	assert.Equal(t, "gen_random_uuid()", id.Default)
}

func TestDefineRejectsInvalidColumns(t *testing.T) {
	tests := []struct {
		name  string
		table string
		cols  []Column
	}{
		{name: "shadows default column", table: "widgets", cols: []Column{{Name: "created_at", Type: "date"}}},
		{name: "duplicate column", table: "widgets", cols: []Column{{Name: "a", Type: "text"}, {Name: "a", Type: "text"}}},
		{name: "missing type", table: "widgets", cols: []Column{{Name: "a"}}},
		{name: "bad column name", table: "widgets", cols: []Column{{Name: "Bad Name", Type: "text"}}},
		{name: "bad table name", table: "1widgets"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Define(tt.table, tt.cols...)
			assert.Error(t, err)
		})
	}
}

func TestDefaultColumnsAreFresh(t *testing.T) {
	cols := DefaultColumns()
	cols[0].Name = "mutated"
	assert.Equal(t, "id", DefaultColumns()[0].Name)
}

func TestCreateSQL(t *testing.T) {
	sql := Projects.CreateSQL()

	assert.Contains(t, sql, "CREATE TABLE IF NOT EXISTS projects (")
	assert.Contains(t, sql, "id uuid PRIMARY KEY DEFAULT gen_random_uuid()")
	assert.Contains(t, sql, "created_at timestamptz NOT NULL DEFAULT now()")
	assert.Contains(t, sql, "owner_id uuid NOT NULL REFERENCES profiles(id) ON DELETE CASCADE")
	assert.Contains(t, sql, "CONSTRAINT projects_owner_id_name_key UNIQUE (owner_id, name)")
	assert.Contains(t, sql, "CREATE INDEX IF NOT EXISTS projects_owner_id_idx ON projects (owner_id);")
}

func TestDownSQLReversesOrder(t *testing.T) {
	down := DownSQL(Tables())
	assert.Less(t, strings.Index(down, "projects"), strings.Index(down, "profiles"))
}

func TestCommittedInitialMigrationMatchesTables(t *testing.T) {
	up, err := os.ReadFile(filepath.Join("..", "..", MigrationsDir, "000001_init.up.sql"))
	require.NoError(t, err)
	down, err := os.ReadFile(filepath.Join("..", "..", MigrationsDir, "000001_init.down.sql"))
	require.NoError(t, err)

	assert.Equal(t, UpSQL(Tables()), string(up))
	assert.Equal(t, DownSQL(Tables()), string(down))
}

func TestGenerate(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "migrations")

	first, err := Generate(dir, "Initial Schema", Tables())
	require.NoError(t, err)
	assert.Equal(t, 1, first.Version)
	assert.Equal(t, filepath.Join(dir, "000001_initial_schema.up.sql"), first.UpPath)

	up, err := os.ReadFile(first.UpPath)
	require.NoError(t, err)
	assert.Equal(t, UpSQL(Tables()), string(up))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("ignored"), 0o644))

	second, err := Generate(dir, "add-widgets", []Table{MustDefine("widgets")})
	require.NoError(t, err)
	assert.Equal(t, 2, second.Version)
	assert.FileExists(t, filepath.Join(dir, "000002_add_widgets.down.sql"))

	latest, err := LatestVersion(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, latest)
}

func TestGenerateOnlyCoversNewTables(t *testing.T) {
	dir := t.TempDir()

	_, err := Generate(dir, "init", Tables())
	require.NoError(t, err)

	_, err = Generate(dir, "nothing new", Tables())
	require.ErrorIs(t, err, ErrNoNewTables)
	latest, err := LatestVersion(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, latest, "no pair is written when nothing is new")

	widgets := MustDefine("widgets", Column{Name: "label", Type: "text"})
	m, err := Generate(dir, "add widgets", append(Tables(), widgets))
	require.NoError(t, err)

	up, err := os.ReadFile(m.UpPath)
	require.NoError(t, err)
	assert.Contains(t, string(up), "CREATE TABLE IF NOT EXISTS widgets")
	assert.NotContains(t, string(up), "projects")

	down, err := os.ReadFile(m.DownPath)
	require.NoError(t, err)
	assert.Equal(t, "DROP TABLE IF EXISTS widgets;\n", string(down))
}

func TestCreatedTablesReadsCommittedMigrations(t *testing.T) {
	created, err := CreatedTables(filepath.Join("..", "..", MigrationsDir))
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"profiles": true, "projects": true}, created)
}

func TestGenerateValidation(t *testing.T) {
	dir := t.TempDir()

	_, err := Generate(dir, "  ", Tables())
	assert.Error(t, err)

	_, err = Generate(dir, "empty", nil)
	assert.Error(t, err)
}

func TestLatestVersionMissingDir(t *testing.T) {
	v, err := LatestVersion(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Equal(t, 0, v)
}
