//go:build cgo

package migration

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/dataflow/persistence"
	"github.com/BaSui01/dataflow/workflow"
)

func TestMigrator_SQLite_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "checkpoints.db")

	cfg := persistence.DefaultStoreConfig()
	cfg.Type = persistence.StoreTypeSQLite3
	cfg.SQL.DSN = dbPath
	cfg.SQL.AutoMigrate = false
	cfg.SQL.Pool.HealthCheckInterval = 0

	migrator, err := NewMigratorFromStoreConfig(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer migrator.Close()

	version, dirty, err := migrator.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)
	assert.False(t, dirty)

	require.NoError(t, migrator.Up(ctx))
	// a second Up is a no-op
	require.NoError(t, migrator.Up(ctx))

	info, err := migrator.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(1), info.CurrentVersion)
	assert.Equal(t, 0, info.PendingMigrations)

	// the migrated table serves the GORM store without AutoMigrate
	store, err := persistence.OpenGormCheckpointStore(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	id, err := store.Save(ctx, &workflow.Checkpoint{WorkflowID: "stats", SuperstepIndex: 1})
	require.NoError(t, err)
	loaded, err := store.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "stats", loaded.WorkflowID)
	require.NoError(t, store.Close())

	require.NoError(t, migrator.Down(ctx))
	version, _, err = migrator.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)
}
