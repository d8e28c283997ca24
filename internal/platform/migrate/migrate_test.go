package migrate

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/estatebook/estatebook/testing"
)

func TestDriverURL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@localhost:5432/db?sslmode=disable", DriverURL("postgres://u:p@localhost:5432/db?sslmode=disable"))
	assert.Equal(t, "pgx5://localhost/db", DriverURL("postgresql://localhost/db"))
	assert.Equal(t, "pgx5://already", DriverURL("pgx5://already"))
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(migrationFS, "migrations")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		}
	}
	assert.Equal(t, ups, downs)
}

func TestInitMigrationCreatesArchiveTwins(t *testing.T) {
	raw, err := fs.ReadFile(migrationFS, "migrations/0001_init.up.sql")
	require.NoError(t, err)
	sql := string(raw)
	for _, table := range []string{"users", "projects", "units", "project_members", "installment_definitions", "user_installments", "payments", "penalties", "documents"} {
		assert.Contains(t, sql, "CREATE TABLE IF NOT EXISTS archived_"+table+" (LIKE "+table)
	}
}
