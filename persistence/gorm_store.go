package persistence

import (
	"context"
	"errors"
	"fmt"
	"sync"

	glebarez "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/BaSui01/dataflow/internal/database"
	"github.com/BaSui01/dataflow/workflow"
)

// GormCheckpointStore stores checkpoints in the workflow_checkpoints table.
type GormCheckpointStore struct {
	db     *gorm.DB
	pool   *database.PoolManager
	logger *zap.Logger

	autoMigrate bool
	migrateMu   sync.Mutex
	migrated    bool
}

// NewGormCheckpointStore wraps an open connection. The caller keeps
// ownership of db.
func NewGormCheckpointStore(db *gorm.DB, autoMigrate bool, logger *zap.Logger) *GormCheckpointStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GormCheckpointStore{
		db:          db,
		logger:      logger.With(zap.String("component", "gorm_checkpoint_store")),
		autoMigrate: autoMigrate,
	}
}

// saveRetries bounds Save attempts on deadlocks and busy databases.
const saveRetries = 3

// OpenGormCheckpointStore opens a pooled connection for config.Type.
// poolOpts are passed to the pool manager.
func OpenGormCheckpointStore(config StoreConfig, logger *zap.Logger, poolOpts ...database.PoolOption) (*GormCheckpointStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dialector, err := openDialector(config.Type, config.SQL.DSN)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", config.Type, err)
	}

	pool, err := database.NewPoolManager(db, config.SQL.Pool, logger, poolOpts...)
	if err != nil {
		return nil, err
	}

	store := NewGormCheckpointStore(db, config.SQL.AutoMigrate, logger)
	store.pool = pool
	return store, nil
}

// openDialector 根据存储类型选择 GORM 方言
func openDialector(t StoreType, dsn string) (gorm.Dialector, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%w: sql dsn is required for %s store", ErrInvalidInput, t)
	}
	switch t {
	case StoreTypePostgres:
		return postgres.Open(dsn), nil
	case StoreTypeMySQL:
		return mysql.Open(dsn), nil
	case StoreTypeSQLite:
		return glebarez.Open(dsn), nil
	case StoreTypeSQLite3:
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported sql store type: %s", t)
	}
}

// DB returns the underlying connection
func (s *GormCheckpointStore) DB() *gorm.DB {
	return s.db
}

// Close closes the pool if the store opened it
func (s *GormCheckpointStore) Close() error {
	if s.pool != nil {
		return s.pool.Close()
	}
	return nil
}

// Ping checks database connectivity
func (s *GormCheckpointStore) Ping(ctx context.Context) error {
	if s.pool != nil {
		return s.pool.Ping(ctx)
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Migrate creates or updates the checkpoint table
func (s *GormCheckpointStore) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&CheckpointRecord{}); err != nil {
		return fmt.Errorf("failed to migrate %s: %w", CheckpointTableName, err)
	}
	return nil
}

// ensureSchema runs Migrate once when auto migration is enabled.
func (s *GormCheckpointStore) ensureSchema(ctx context.Context) error {
	if !s.autoMigrate {
		return nil
	}
	s.migrateMu.Lock()
	defer s.migrateMu.Unlock()
	if s.migrated {
		return nil
	}
	if err := s.Migrate(ctx); err != nil {
		return err
	}
	s.migrated = true
	s.logger.Debug("checkpoint table ready", zap.String("table", CheckpointTableName))
	return nil
}

// Save inserts a checkpoint row
func (s *GormCheckpointStore) Save(ctx context.Context, cp *workflow.Checkpoint) (string, error) {
	stored, err := prepare(cp)
	if err != nil {
		return "", err
	}
	rec, err := NewCheckpointRecord(stored)
	if err != nil {
		return "", err
	}
	if err := s.ensureSchema(ctx); err != nil {
		return "", err
	}

	err = s.transaction(ctx, func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&CheckpointRecord{}).Where("checkpoint_id = ?", rec.CheckpointID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return workflow.ErrCheckpointExists
		}
		return tx.Create(rec).Error
	})
	switch {
	case err == nil:
		return rec.CheckpointID, nil
	case errors.Is(err, workflow.ErrCheckpointExists), errors.Is(err, gorm.ErrDuplicatedKey):
		return "", workflow.ErrCheckpointExists
	default:
		return "", fmt.Errorf("failed to save checkpoint: %w", err)
	}
}

// transaction runs fn through the pool, retrying transient failures, or
// directly on db for stores wrapping a caller-owned connection.
func (s *GormCheckpointStore) transaction(ctx context.Context, fn database.TransactionFunc) error {
	if s.pool != nil {
		return s.pool.WithTransactionRetry(ctx, saveRetries, fn)
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

// PoolStats reports connection statistics when the store owns its pool.
func (s *GormCheckpointStore) PoolStats() (database.PoolStats, bool) {
	if s.pool == nil {
		return database.PoolStats{}, false
	}
	return s.pool.GetStats(), true
}

// Load retrieves a checkpoint by id
func (s *GormCheckpointStore) Load(ctx context.Context, checkpointID string) (*workflow.Checkpoint, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}

	var rec CheckpointRecord
	err := s.db.WithContext(ctx).Where("checkpoint_id = ?", checkpointID).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, workflow.ErrCheckpointNotFound
		}
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	return rec.Checkpoint()
}

// List returns checkpoint ids ordered by iteration count then timestamp
func (s *GormCheckpointStore) List(ctx context.Context, workflowID string) ([]string, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}

	q := s.db.WithContext(ctx).Model(&CheckpointRecord{})
	if workflowID != "" {
		q = q.Where("workflow_id = ?", workflowID)
	}

	ids := []string{}
	err := q.Order(clause.OrderBy{Columns: []clause.OrderByColumn{
		{Column: clause.Column{Name: "iteration_count"}},
		{Column: clause.Column{Name: "timestamp"}},
		{Column: clause.Column{Name: "checkpoint_id"}},
	}}).Pluck("checkpoint_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	return ids, nil
}

// Delete removes a checkpoint row
func (s *GormCheckpointStore) Delete(ctx context.Context, checkpointID string) (bool, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return false, err
	}

	res := s.db.WithContext(ctx).Where("checkpoint_id = ?", checkpointID).Delete(&CheckpointRecord{})
	if res.Error != nil {
		return false, fmt.Errorf("failed to delete checkpoint: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}
