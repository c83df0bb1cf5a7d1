package migrate

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/and161185/grovi/migrations"
)

func TestEmbeddedMigrations(t *testing.T) {
	t.Parallel()
	names, err := fs.Glob(migrations.FS, "*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, names)

	raw, err := fs.ReadFile(migrations.FS, names[0])
	require.NoError(t, err)
	sql := string(raw)
	require.Contains(t, sql, "-- +goose Up")
	require.Contains(t, sql, "-- +goose Down")
	for _, table := range []string{"users", "fields", "field_thumbnails", "vi_snapshots", "auth_limiter"} {
		require.True(t, strings.Contains(sql, "CREATE TABLE "+table+" ("), "missing table %s", table)
	}
}
