package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/dataflow/workflow"
)

// FileCheckpointStore 是基于文件的检查点存储, 每个检查点一个 JSON 文件.
// 适合单节点部署.
type FileCheckpointStore struct {
	baseDir string
	logger  *zap.Logger
	mu      sync.RWMutex
	closed  bool
}

// 新建文件检查点存储器
func NewFileCheckpointStore(config StoreConfig, logger *zap.Logger) (*FileCheckpointStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	baseDir := filepath.Join(config.BaseDir, "checkpoints")
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint store directory: %w", err)
	}

	return &FileCheckpointStore{
		baseDir: baseDir,
		logger:  logger.With(zap.String("component", "file_checkpoint_store")),
	}, nil
}

// Close closes the store
func (s *FileCheckpointStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Ping checks the store directory is still accessible
func (s *FileCheckpointStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	_, err := os.Stat(s.baseDir)
	return err
}

// 检查点文件路径
func (s *FileCheckpointStore) checkpointPath(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return "", fmt.Errorf("%w: checkpoint id %q", ErrInvalidInput, id)
	}
	return filepath.Join(s.baseDir, id+".json"), nil
}

// Save writes the checkpoint to a temporary file and links it into place,
// failing if the id already exists.
func (s *FileCheckpointStore) Save(ctx context.Context, cp *workflow.Checkpoint) (string, error) {
	stored, err := prepare(cp)
	if err != nil {
		return "", err
	}
	path, err := s.checkpointPath(stored.ID)
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrStoreClosed
	}

	// 原子写入: 临时文件 + 硬链接
	tmp, err := os.CreateTemp(s.baseDir, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to sync checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close checkpoint file: %w", err)
	}

	if err := os.Link(tmpPath, path); err != nil {
		if errors.Is(err, os.ErrExist) {
			return "", workflow.ErrCheckpointExists
		}
		return "", fmt.Errorf("failed to commit checkpoint: %w", err)
	}
	return stored.ID, nil
}

// Load reads a checkpoint by id
func (s *FileCheckpointStore) Load(ctx context.Context, checkpointID string) (*workflow.Checkpoint, error) {
	path, err := s.checkpointPath(checkpointID)
	if err != nil {
		return nil, workflow.ErrCheckpointNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	return readCheckpointFile(path)
}

func readCheckpointFile(path string) (*workflow.Checkpoint, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, workflow.ErrCheckpointNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	var cp workflow.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint %s: %w", filepath.Base(path), err)
	}
	return &cp, nil
}

// List returns checkpoint ids ordered by superstep then creation time
func (s *FileCheckpointStore) List(ctx context.Context, workflowID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint directory: %w", err)
	}

	var matched []*workflow.Checkpoint
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".json") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cp, err := readCheckpointFile(filepath.Join(s.baseDir, name))
		if err != nil {
			// 跳过损坏的文件
			s.logger.Warn("skipping unreadable checkpoint file",
				zap.String("file", name),
				zap.Error(err),
			)
			continue
		}
		if workflowID == "" || cp.WorkflowID == workflowID {
			matched = append(matched, cp)
		}
	}

	sortCheckpoints(matched)
	ids := make([]string, len(matched))
	for i, cp := range matched {
		ids[i] = cp.ID
	}
	return ids, nil
}

// Delete removes a checkpoint file
func (s *FileCheckpointStore) Delete(ctx context.Context, checkpointID string) (bool, error) {
	path, err := s.checkpointPath(checkpointID)
	if err != nil {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrStoreClosed
	}

	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return true, nil
}

// sortCheckpoints orders by superstep, creation time, then id.
func sortCheckpoints(cps []*workflow.Checkpoint) {
	sort.SliceStable(cps, func(i, j int) bool {
		a, b := cps[i], cps[j]
		if a.SuperstepIndex != b.SuperstepIndex {
			return a.SuperstepIndex < b.SuperstepIndex
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}
