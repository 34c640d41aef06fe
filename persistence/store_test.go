package persistence

import (
	"context"
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	glebarez "github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"

	"github.com/BaSui01/dataflow/internal/tlsutil"
	"github.com/BaSui01/dataflow/workflow"
)

// =============================================================================
// 🧪 通用存储契约测试
// =============================================================================

func sampleCheckpoint(workflowID string, superstep int) *workflow.Checkpoint {
	return &workflow.Checkpoint{
		WorkflowID:     workflowID,
		CreatedAt:      time.Date(2026, 3, 4, 5, 6, 7, 123456000, time.UTC),
		SuperstepIndex: superstep,
		PendingMessages: []workflow.MessageRecord{
			{TargetID: "sum", SourceID: "dispatcher", Payload: json.RawMessage(`[1,2,3]`), ProducedAt: superstep - 1},
		},
		FanInBuffers: []workflow.FanInRecord{{
			TargetID:      "aggregator",
			Contributions: []workflow.FanInContribution{{SourceID: "sum", Payload: json.RawMessage(`6`)}},
		}},
		ExecutorStates: map[string][]byte{"aggregator": []byte(`{"messages":[[6,2]]}`)},
		SharedState:    map[string]json.RawMessage{"k": json.RawMessage(`"v"`)},
		Metadata: map[string]any{
			workflow.MetadataRunID:  "run-1",
			workflow.MetadataReason: workflow.ReasonSuperstep,
		},
		Version: workflow.CheckpointSchemaVersion,
	}
}

func testCheckpointStore(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("Ping", func(t *testing.T) {
		store := newStore(t)
		assert.NoError(t, store.Ping(context.Background()))
	})

	t.Run("SaveAndLoad", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		cp := sampleCheckpoint("stats", 1)
		id, err := store.Save(ctx, cp)
		require.NoError(t, err)
		assert.NotEmpty(t, id)
		assert.Empty(t, cp.ID, "caller's checkpoint is not modified")

		loaded, err := store.Load(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, id, loaded.ID)
		assert.Equal(t, "stats", loaded.WorkflowID)
		assert.Equal(t, 1, loaded.SuperstepIndex)
		assert.True(t, cp.CreatedAt.Equal(loaded.CreatedAt), "got %v", loaded.CreatedAt)
		assert.Equal(t, "run-1", loaded.RunID())
		assert.Equal(t, workflow.CheckpointSchemaVersion, loaded.Version)
		require.Len(t, loaded.PendingMessages, 1)
		assert.JSONEq(t, `[1,2,3]`, string(loaded.PendingMessages[0].Payload))
		assert.Equal(t, "dispatcher", loaded.PendingMessages[0].SourceID)
		require.Len(t, loaded.FanInBuffers, 1)
		assert.JSONEq(t, `6`, string(loaded.FanInBuffers[0].Contributions[0].Payload))
		assert.JSONEq(t, `{"messages":[[6,2]]}`, string(loaded.ExecutorStates["aggregator"]))
		assert.JSONEq(t, `"v"`, string(loaded.SharedState["k"]))
	})

	t.Run("AppendOnly", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		cp := sampleCheckpoint("stats", 1)
		cp.ID = "fixed-id"
		id, err := store.Save(ctx, cp)
		require.NoError(t, err)
		assert.Equal(t, "fixed-id", id)

		cp.SuperstepIndex = 7
		_, err = store.Save(ctx, cp)
		assert.ErrorIs(t, err, workflow.ErrCheckpointExists)

		loaded, err := store.Load(ctx, "fixed-id")
		require.NoError(t, err)
		assert.Equal(t, 1, loaded.SuperstepIndex, "first write wins")
	})

	t.Run("LoadMissing", func(t *testing.T) {
		_, err := newStore(t).Load(context.Background(), "missing")
		assert.ErrorIs(t, err, workflow.ErrCheckpointNotFound)
	})

	t.Run("ListOrderAndFilter", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		third, err := store.Save(ctx, sampleCheckpoint("stats", 3))
		require.NoError(t, err)
		first, err := store.Save(ctx, sampleCheckpoint("stats", 1))
		require.NoError(t, err)
		other, err := store.Save(ctx, sampleCheckpoint("text", 2))
		require.NoError(t, err)

		ids, err := store.List(ctx, "stats")
		require.NoError(t, err)
		assert.Equal(t, []string{first, third}, ids)

		all, err := store.List(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, []string{first, other, third}, all)

		none, err := store.List(ctx, "unknown")
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("ListSameSuperstepByTime", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		later := sampleCheckpoint("stats", 2)
		later.CreatedAt = later.CreatedAt.Add(time.Second)
		laterID, err := store.Save(ctx, later)
		require.NoError(t, err)
		earlierID, err := store.Save(ctx, sampleCheckpoint("stats", 2))
		require.NoError(t, err)

		ids, err := store.List(ctx, "stats")
		require.NoError(t, err)
		assert.Equal(t, []string{earlierID, laterID}, ids)
	})

	t.Run("Delete", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		id, err := store.Save(ctx, sampleCheckpoint("stats", 1))
		require.NoError(t, err)

		deleted, err := store.Delete(ctx, id)
		require.NoError(t, err)
		assert.True(t, deleted)

		deleted, err = store.Delete(ctx, id)
		require.NoError(t, err)
		assert.False(t, deleted)

		_, err = store.Load(ctx, id)
		assert.ErrorIs(t, err, workflow.ErrCheckpointNotFound)

		ids, err := store.List(ctx, "stats")
		require.NoError(t, err)
		assert.Empty(t, ids)
	})
}

func TestMemoryCheckpointStore(t *testing.T) {
	testCheckpointStore(t, func(t *testing.T) Store {
		store, err := NewCheckpointStore(context.Background(), DefaultStoreConfig(), nil)
		require.NoError(t, err)
		return store
	})
}

func TestFileCheckpointStore(t *testing.T) {
	testCheckpointStore(t, func(t *testing.T) Store {
		config := DefaultStoreConfig()
		config.Type = StoreTypeFile
		config.BaseDir = t.TempDir()

		store, err := NewCheckpointStore(context.Background(), config, zaptest.NewLogger(t))
		require.NoError(t, err)
		t.Cleanup(func() { store.Close() })
		return store
	})
}

func TestRedisCheckpointStore(t *testing.T) {
	testCheckpointStore(t, func(t *testing.T) Store {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		store := NewRedisCheckpointStoreWithClient(client, "test:", zaptest.NewLogger(t))
		t.Cleanup(func() { store.Close() })
		return store
	})
}

func TestSQLiteCheckpointStore(t *testing.T) {
	testCheckpointStore(t, func(t *testing.T) Store {
		db, err := gorm.Open(glebarez.Open(":memory:"), &gorm.Config{})
		require.NoError(t, err)
		sqlDB, err := db.DB()
		require.NoError(t, err)
		// :memory: databases are per connection
		sqlDB.SetMaxOpenConns(1)
		t.Cleanup(func() { sqlDB.Close() })

		return NewGormCheckpointStore(db, true, zaptest.NewLogger(t))
	})
}

// =============================================================================
// 🏭 工厂测试
// =============================================================================

func TestNewCheckpointStore_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	config := DefaultStoreConfig()
	config.Type = StoreTypeRedis
	config.Redis.Host = mr.Host()
	config.Redis.Port = port

	store, err := NewCheckpointStore(context.Background(), config, nil)
	require.NoError(t, err)
	defer store.Close()

	_, ok := store.(*RedisCheckpointStore)
	assert.True(t, ok)

	id, err := store.Save(context.Background(), sampleCheckpoint("stats", 1))
	require.NoError(t, err)
	assert.True(t, mr.Exists("dataflow:checkpoint:data:"+id))
}

func TestNewCheckpointStore_SQLiteFile(t *testing.T) {
	config := DefaultStoreConfig()
	config.Type = StoreTypeSQLite
	config.SQL.DSN = "file:" + t.TempDir() + "/checkpoints.db"
	config.SQL.Pool.HealthCheckInterval = 0

	store, err := NewCheckpointStore(context.Background(), config, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.Ping(ctx))
	id, err := store.Save(ctx, sampleCheckpoint("stats", 1))
	require.NoError(t, err)
	loaded, err := store.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "stats", loaded.WorkflowID)
}

func TestNewCheckpointStore_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := NewCheckpointStore(ctx, StoreConfig{Type: "cassandra"}, nil)
	assert.Error(t, err)

	_, err = NewCheckpointStore(ctx, StoreConfig{Type: StoreTypePostgres}, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	badTLS := tlsutil.Options{Enabled: true, CAFile: t.TempDir() + "/missing.pem"}

	redisCfg := DefaultStoreConfig()
	redisCfg.Type = StoreTypeRedis
	redisCfg.Redis.TLS = badTLS
	_, err = NewCheckpointStore(ctx, redisCfg, nil)
	assert.ErrorContains(t, err, "invalid Redis TLS config")

	mongoCfg := DefaultStoreConfig()
	mongoCfg.Type = StoreTypeMongo
	mongoCfg.Mongo.TLS = badTLS
	_, err = NewCheckpointStore(ctx, mongoCfg, nil)
	assert.ErrorContains(t, err, "invalid MongoDB TLS config")
}

func TestStoreType_IsSQL(t *testing.T) {
	for _, st := range []StoreType{StoreTypePostgres, StoreTypeMySQL, StoreTypeSQLite, StoreTypeSQLite3} {
		assert.True(t, st.IsSQL(), st)
	}
	for _, st := range []StoreType{StoreTypeMemory, StoreTypeFile, StoreTypeRedis, StoreTypeMongo} {
		assert.False(t, st.IsSQL(), st)
	}
}

func TestFileCheckpointStore_RejectsPathIDs(t *testing.T) {
	config := DefaultStoreConfig()
	config.BaseDir = t.TempDir()
	store, err := NewFileCheckpointStore(config, nil)
	require.NoError(t, err)

	cp := sampleCheckpoint("stats", 1)
	cp.ID = "../escape"
	_, err = store.Save(context.Background(), cp)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = store.Load(context.Background(), "../escape")
	assert.ErrorIs(t, err, workflow.ErrCheckpointNotFound)
}

func TestFileCheckpointStore_Closed(t *testing.T) {
	config := DefaultStoreConfig()
	config.BaseDir = t.TempDir()
	store, err := NewFileCheckpointStore(config, nil)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = store.Save(context.Background(), sampleCheckpoint("stats", 1))
	assert.ErrorIs(t, err, ErrStoreClosed)
	assert.ErrorIs(t, store.Ping(context.Background()), ErrStoreClosed)
}

func TestListCheckpoints(t *testing.T) {
	ctx := context.Background()
	store := workflow.NewInMemoryCheckpointStore()

	second, err := store.Save(ctx, sampleCheckpoint("stats", 2))
	require.NoError(t, err)
	first, err := store.Save(ctx, sampleCheckpoint("stats", 1))
	require.NoError(t, err)

	cps, err := ListCheckpoints(ctx, store, "stats")
	require.NoError(t, err)
	require.Len(t, cps, 2)
	assert.Equal(t, first, cps[0].ID)
	assert.Equal(t, second, cps[1].ID)
}
