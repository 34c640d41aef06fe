package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.uber.org/zap"

	"github.com/BaSui01/dataflow/internal/tlsutil"
	"github.com/BaSui01/dataflow/workflow"
)

// MongoCheckpointStore stores one document per checkpoint, keyed by
// checkpoint id.
type MongoCheckpointStore struct {
	client *mongo.Client
	col    *mongo.Collection
	logger *zap.Logger
	owned  bool
}

// NewMongoCheckpointStore connects to MongoDB and ensures indexes exist.
func NewMongoCheckpointStore(ctx context.Context, config MongoStoreConfig, logger *zap.Logger) (*MongoCheckpointStore, error) {
	timeout := config.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	tlsConfig, err := tlsutil.ClientConfig(config.TLS)
	if err != nil {
		return nil, fmt.Errorf("invalid MongoDB TLS config: %w", err)
	}
	clientOpts := options.Client().ApplyURI(config.URI).SetConnectTimeout(timeout)
	if tlsConfig != nil {
		clientOpts.SetTLSConfig(tlsConfig)
	}

	client, err := mongo.Connect(clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	collection := config.Collection
	if collection == "" {
		collection = CheckpointTableName
	}
	store := NewMongoCheckpointStoreWithCollection(client.Database(config.Database).Collection(collection), logger)
	store.client = client
	store.owned = true

	if err := store.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return store, nil
}

// NewMongoCheckpointStoreWithCollection uses an existing collection. The
// caller owns the client lifecycle.
func NewMongoCheckpointStoreWithCollection(col *mongo.Collection, logger *zap.Logger) *MongoCheckpointStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MongoCheckpointStore{
		client: col.Database().Client(),
		col:    col,
		logger: logger.With(zap.String("component", "mongo_checkpoint_store")),
	}
}

// EnsureIndexes creates the listing index.
func (s *MongoCheckpointStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.col.Indexes().CreateMany(ctx, checkpointIndexes())
	if err != nil {
		return fmt.Errorf("dataflow/mongo: create %s indexes: %w", s.col.Name(), err)
	}
	return nil
}

func checkpointIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		// List order: workflow + iteration + timestamp.
		{
			Keys: bson.D{
				{Key: "workflow_id", Value: 1},
				{Key: "iteration_count", Value: 1},
				{Key: "timestamp", Value: 1},
			},
			Options: options.Index().SetName("idx_workflow_checkpoints_order"),
		},
	}
}

// Ping checks database connectivity.
func (s *MongoCheckpointStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client if the store created it.
func (s *MongoCheckpointStore) Close() error {
	if !s.owned {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Save inserts a checkpoint document.
func (s *MongoCheckpointStore) Save(ctx context.Context, cp *workflow.Checkpoint) (string, error) {
	stored, err := prepare(cp)
	if err != nil {
		return "", err
	}
	rec, err := NewCheckpointRecord(stored)
	if err != nil {
		return "", err
	}

	if _, err := s.col.InsertOne(ctx, rec); err != nil {
		if isDuplicateKey(err) {
			return "", workflow.ErrCheckpointExists
		}
		return "", fmt.Errorf("dataflow/mongo: save checkpoint: %w", err)
	}
	return rec.CheckpointID, nil
}

// Load retrieves a checkpoint by id.
func (s *MongoCheckpointStore) Load(ctx context.Context, checkpointID string) (*workflow.Checkpoint, error) {
	var rec CheckpointRecord
	err := s.col.FindOne(ctx, bson.M{"_id": checkpointID}).Decode(&rec)
	if err != nil {
		if isNoDocuments(err) {
			return nil, workflow.ErrCheckpointNotFound
		}
		return nil, fmt.Errorf("dataflow/mongo: load checkpoint: %w", err)
	}
	return rec.Checkpoint()
}

// List returns checkpoint ids ordered by iteration count then timestamp.
func (s *MongoCheckpointStore) List(ctx context.Context, workflowID string) ([]string, error) {
	filter := listFilter(workflowID)
	findOpts := options.Find().
		SetSort(listSort()).
		SetProjection(bson.M{"_id": 1})

	cursor, err := s.col.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("dataflow/mongo: list checkpoints: %w", err)
	}

	var docs []struct {
		ID string `bson:"_id"`
	}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("dataflow/mongo: decode checkpoints: %w", err)
	}

	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	return ids, nil
}

// Delete removes a checkpoint document.
func (s *MongoCheckpointStore) Delete(ctx context.Context, checkpointID string) (bool, error) {
	res, err := s.col.DeleteOne(ctx, bson.M{"_id": checkpointID})
	if err != nil {
		return false, fmt.Errorf("dataflow/mongo: delete checkpoint: %w", err)
	}
	return res.DeletedCount > 0, nil
}

// ── helpers ──────────────────────────────────────────────────────

func listFilter(workflowID string) bson.M {
	if workflowID == "" {
		return bson.M{}
	}
	return bson.M{"workflow_id": workflowID}
}

func listSort() bson.D {
	return bson.D{
		{Key: "iteration_count", Value: 1},
		{Key: "timestamp", Value: 1},
		{Key: "_id", Value: 1},
	}
}

// isNoDocuments returns true when err indicates no MongoDB documents found.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// isDuplicateKey checks if a MongoDB error is a duplicate key violation.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if mongo.IsDuplicateKeyError(err) {
		return true
	}
	return strings.Contains(err.Error(), "duplicate key") ||
		strings.Contains(err.Error(), "E11000")
}
