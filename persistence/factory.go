package persistence

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/dataflow/internal/database"
	"github.com/BaSui01/dataflow/workflow"
)

// NewCheckpointStore creates a Store based on the configuration. poolOpts
// only apply to SQL stores.
func NewCheckpointStore(ctx context.Context, config StoreConfig, logger *zap.Logger, poolOpts ...database.PoolOption) (Store, error) {
	switch {
	case config.Type == StoreTypeMemory || config.Type == "":
		return memoryStore{workflow.NewInMemoryCheckpointStore()}, nil
	case config.Type == StoreTypeFile:
		return NewFileCheckpointStore(config, logger)
	case config.Type == StoreTypeRedis:
		return NewRedisCheckpointStore(config, logger)
	case config.Type.IsSQL():
		return OpenGormCheckpointStore(config, logger, poolOpts...)
	case config.Type == StoreTypeMongo:
		return NewMongoCheckpointStore(ctx, config.Mongo, logger)
	default:
		return nil, fmt.Errorf("unsupported checkpoint store type: %s", config.Type)
	}
}

// MustNewCheckpointStore creates a Store or panics on error.
//
// WARNING: This function should ONLY be used during application initialization.
// For runtime store creation, use NewCheckpointStore instead.
func MustNewCheckpointStore(ctx context.Context, config StoreConfig, logger *zap.Logger) Store {
	store, err := NewCheckpointStore(ctx, config, logger)
	if err != nil {
		panic(fmt.Sprintf("failed to create checkpoint store: %v", err))
	}
	return store
}
