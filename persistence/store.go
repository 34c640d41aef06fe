package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/BaSui01/dataflow/internal/database"
	"github.com/BaSui01/dataflow/internal/tlsutil"
	"github.com/BaSui01/dataflow/workflow"
)

// Common errors
var (
	ErrStoreClosed  = errors.New("store is closed")
	ErrInvalidInput = errors.New("invalid input")
)

// StoreType represents the type of checkpoint storage backend
type StoreType string

const (
	StoreTypeMemory   StoreType = "memory"
	StoreTypeFile     StoreType = "file"
	StoreTypeRedis    StoreType = "redis"
	StoreTypePostgres StoreType = "postgres"
	StoreTypeMySQL    StoreType = "mysql"
	// StoreTypeSQLite uses the pure-Go driver; StoreTypeSQLite3 the cgo one.
	StoreTypeSQLite  StoreType = "sqlite"
	StoreTypeSQLite3 StoreType = "sqlite3"
	StoreTypeMongo   StoreType = "mongo"
)

// IsSQL reports whether t is served by the GORM store.
func (t StoreType) IsSQL() bool {
	switch t {
	case StoreTypePostgres, StoreTypeMySQL, StoreTypeSQLite, StoreTypeSQLite3:
		return true
	}
	return false
}

// StoreConfig is the configuration for all checkpoint store implementations
type StoreConfig struct {
	// Type is the storage backend type
	Type StoreType `json:"type" yaml:"type" env:"TYPE"`

	// BaseDir is the base directory for file-based storage
	BaseDir string `json:"base_dir" yaml:"base_dir" env:"BASE_DIR"`

	// Redis configuration (only used when Type is "redis")
	Redis RedisStoreConfig `json:"redis" yaml:"redis" env:"REDIS"`

	// SQL configuration (postgres, mysql, sqlite, sqlite3)
	SQL SQLStoreConfig `json:"sql" yaml:"sql" env:"SQL"`

	// Mongo configuration (only used when Type is "mongo")
	Mongo MongoStoreConfig `json:"mongo" yaml:"mongo" env:"MONGO"`
}

// RedisStoreConfig contains Redis-specific configuration
type RedisStoreConfig struct {
	Host      string `json:"host" yaml:"host" env:"HOST"`
	Port      int    `json:"port" yaml:"port" env:"PORT"`
	Password  string `json:"password" yaml:"password" env:"PASSWORD"`
	DB        int    `json:"db" yaml:"db" env:"DB"`
	PoolSize  int    `json:"pool_size" yaml:"pool_size" env:"POOL_SIZE"`
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix" env:"KEY_PREFIX"`

	TLS tlsutil.Options `json:"tls" yaml:"tls" env:"TLS"`
}

// SQLStoreConfig contains configuration for the GORM-backed store
type SQLStoreConfig struct {
	// DSN is passed to the GORM dialector unchanged
	DSN string `json:"dsn" yaml:"dsn" env:"DSN"`

	// AutoMigrate creates the checkpoint table on first use
	AutoMigrate bool `json:"auto_migrate" yaml:"auto_migrate" env:"AUTO_MIGRATE"`

	// Pool configures the underlying sql.DB
	Pool database.PoolConfig `json:"pool" yaml:"pool" env:"POOL"`
}

// MongoStoreConfig contains MongoDB-specific configuration
type MongoStoreConfig struct {
	URI            string        `json:"uri" yaml:"uri" env:"URI"`
	Database       string        `json:"database" yaml:"database" env:"DATABASE"`
	Collection     string        `json:"collection" yaml:"collection" env:"COLLECTION"`
	ConnectTimeout time.Duration `json:"connect_timeout" yaml:"connect_timeout" env:"CONNECT_TIMEOUT"`

	TLS tlsutil.Options `json:"tls" yaml:"tls" env:"TLS"`
}

// DefaultStoreConfig returns the default store configuration
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Type:    StoreTypeMemory,
		BaseDir: "./data/checkpoints",
		Redis: RedisStoreConfig{
			Host:      "localhost",
			Port:      6379,
			DB:        0,
			PoolSize:  10,
			KeyPrefix: "dataflow:",
		},
		SQL: SQLStoreConfig{
			AutoMigrate: true,
			Pool:        database.DefaultPoolConfig(),
		},
		Mongo: MongoStoreConfig{
			URI:            "mongodb://localhost:27017",
			Database:       "dataflow",
			Collection:     "workflow_checkpoints",
			ConnectTimeout: 10 * time.Second,
		},
	}
}

// Store is a workflow.CheckpointStore that owns external resources.
type Store interface {
	workflow.CheckpointStore

	// Close closes the store and releases resources
	Close() error

	// Ping checks if the store is healthy
	Ping(ctx context.Context) error
}

// memoryStore adapts the in-process store to Store.
type memoryStore struct {
	*workflow.InMemoryCheckpointStore
}

func (memoryStore) Close() error                   { return nil }
func (memoryStore) Ping(ctx context.Context) error { return nil }

// ListCheckpoints loads every checkpoint of workflowID in List order.
func ListCheckpoints(ctx context.Context, store workflow.CheckpointStore, workflowID string) ([]*workflow.Checkpoint, error) {
	ids, err := store.List(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	out := make([]*workflow.Checkpoint, 0, len(ids))
	for _, id := range ids {
		cp, err := store.Load(ctx, id)
		if err != nil {
			// deleted between List and Load
			if errors.Is(err, workflow.ErrCheckpointNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, cp)
	}
	return out, nil
}
