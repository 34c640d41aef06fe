package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/dataflow/internal/tlsutil"
	"github.com/BaSui01/dataflow/workflow"
)

// RedisCheckpointStore is a Redis-based implementation of workflow.CheckpointStore.
// Suitable for distributed deployments.
// Checkpoint bodies are stored as JSON strings, indexed by sorted sets
// scored by superstep.
type RedisCheckpointStore struct {
	client    *redis.Client
	keyPrefix string
	logger    *zap.Logger
}

// NewRedisCheckpointStore creates a new Redis-based checkpoint store
func NewRedisCheckpointStore(config StoreConfig, logger *zap.Logger) (*RedisCheckpointStore, error) {
	tlsConfig, err := tlsutil.ClientConfig(config.Redis.TLS)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis TLS config: %w", err)
	}
	client := redis.NewClient(&redis.Options{
		Addr:      fmt.Sprintf("%s:%d", config.Redis.Host, config.Redis.Port),
		Password:  config.Redis.Password,
		DB:        config.Redis.DB,
		PoolSize:  config.Redis.PoolSize,
		TLSConfig: tlsConfig,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisCheckpointStoreWithClient(client, config.Redis.KeyPrefix, logger), nil
}

// NewRedisCheckpointStoreWithClient wraps an existing client. The store
// takes ownership and closes it on Close.
func NewRedisCheckpointStoreWithClient(client *redis.Client, keyPrefix string, logger *zap.Logger) *RedisCheckpointStore {
	if keyPrefix == "" {
		keyPrefix = "dataflow:"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisCheckpointStore{
		client:    client,
		keyPrefix: keyPrefix + "checkpoint:",
		logger:    logger.With(zap.String("component", "redis_checkpoint_store")),
	}
}

// Close closes the store
func (s *RedisCheckpointStore) Close() error {
	return s.client.Close()
}

// Ping checks if the store is healthy
func (s *RedisCheckpointStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// dataKey returns the Redis key for a checkpoint body
func (s *RedisCheckpointStore) dataKey(checkpointID string) string {
	return s.keyPrefix + "data:" + checkpointID
}

// workflowKey returns the Redis key for a workflow's checkpoint index
func (s *RedisCheckpointStore) workflowKey(workflowID string) string {
	return s.keyPrefix + "workflow:" + workflowID
}

// allKey returns the Redis key for the index of all checkpoints
func (s *RedisCheckpointStore) allKey() string {
	return s.keyPrefix + "all"
}

// Save persists a checkpoint. SETNX guarantees an existing id is never
// overwritten.
func (s *RedisCheckpointStore) Save(ctx context.Context, cp *workflow.Checkpoint) (string, error) {
	stored, err := prepare(cp)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(stored)
	if err != nil {
		return "", fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	ok, err := s.client.SetNX(ctx, s.dataKey(stored.ID), data, 0).Result()
	if err != nil {
		return "", fmt.Errorf("failed to save checkpoint: %w", err)
	}
	if !ok {
		return "", workflow.ErrCheckpointExists
	}

	member := redis.Z{Score: float64(stored.SuperstepIndex), Member: stored.ID}
	pipe := s.client.Pipeline()
	pipe.ZAdd(ctx, s.workflowKey(stored.WorkflowID), member)
	pipe.ZAdd(ctx, s.allKey(), member)
	if _, err := pipe.Exec(ctx); err != nil {
		// 索引写入失败时回滚数据, 避免出现无法列出的检查点
		if delErr := s.client.Del(ctx, s.dataKey(stored.ID)).Err(); delErr != nil {
			s.logger.Warn("failed to roll back checkpoint body",
				zap.String("checkpoint_id", stored.ID),
				zap.Error(delErr),
			)
		}
		return "", fmt.Errorf("failed to index checkpoint: %w", err)
	}
	return stored.ID, nil
}

// Load retrieves a checkpoint by id
func (s *RedisCheckpointStore) Load(ctx context.Context, checkpointID string) (*workflow.Checkpoint, error) {
	data, err := s.client.Get(ctx, s.dataKey(checkpointID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, workflow.ErrCheckpointNotFound
		}
		return nil, fmt.Errorf("failed to get checkpoint: %w", err)
	}

	var cp workflow.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return &cp, nil
}

// List returns checkpoint ids ordered by superstep then creation time
func (s *RedisCheckpointStore) List(ctx context.Context, workflowID string) ([]string, error) {
	key := s.allKey()
	if workflowID != "" {
		key = s.workflowKey(workflowID)
	}

	ids, err := s.client.ZRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	if len(ids) == 0 {
		return []string{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.dataKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoints: %w", err)
	}

	cps := make([]*workflow.Checkpoint, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// index entry without body
			s.logger.Debug("dangling checkpoint index entry", zap.String("checkpoint_id", ids[i]))
			continue
		}
		var cp workflow.Checkpoint
		if err := json.Unmarshal([]byte(raw), &cp); err != nil {
			return nil, fmt.Errorf("failed to unmarshal checkpoint %s: %w", ids[i], err)
		}
		cps = append(cps, &cp)
	}

	sortCheckpoints(cps)
	out := make([]string, len(cps))
	for i, cp := range cps {
		out[i] = cp.ID
	}
	return out, nil
}

// Delete removes a checkpoint and its index entries
func (s *RedisCheckpointStore) Delete(ctx context.Context, checkpointID string) (bool, error) {
	cp, err := s.Load(ctx, checkpointID)
	if err != nil {
		if errors.Is(err, workflow.ErrCheckpointNotFound) {
			return false, nil
		}
		return false, err
	}

	pipe := s.client.TxPipeline()
	del := pipe.Del(ctx, s.dataKey(checkpointID))
	pipe.ZRem(ctx, s.workflowKey(cp.WorkflowID), checkpointID)
	pipe.ZRem(ctx, s.allKey(), checkpointID)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return del.Val() > 0, nil
}
