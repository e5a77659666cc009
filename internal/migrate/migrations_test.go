package migrate_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cyclescope/internal/db"
	"cyclescope/internal/migrate"
)

func TestMigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	v, err := migrate.Version(ctx, conn)
	require.NoError(t, err)
	assert.Zero(t, v)

	require.NoError(t, migrate.Migrate(ctx, conn))
	require.NoError(t, migrate.Migrate(ctx, conn))

	migrations, err := migrate.Load()
	require.NoError(t, err)
	require.NotEmpty(t, migrations)
	v, err = migrate.Version(ctx, conn)
	require.NoError(t, err)
	assert.Equal(t, migrations[len(migrations)-1].Version, v)

	for _, table := range []string{"runs", "snapshots", "diagnostics", "events", "api_keys"} {
		var name string
		err := conn.QueryRowContext(ctx, `SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		require.NoError(t, err, table)
	}
}
