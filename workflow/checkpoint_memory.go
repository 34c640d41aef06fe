package workflow

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// InMemoryCheckpointStore keeps checkpoints in process memory. Stored
// checkpoints are deep copies, so callers cannot mutate them afterwards.
type InMemoryCheckpointStore struct {
	checkpoints map[string]*Checkpoint
	seq         map[string]int
	next        int
	mu          sync.RWMutex
}

// NewInMemoryCheckpointStore creates an empty store.
func NewInMemoryCheckpointStore() *InMemoryCheckpointStore {
	return &InMemoryCheckpointStore{
		checkpoints: make(map[string]*Checkpoint),
		seq:         make(map[string]int),
	}
}

// Save stores a copy of cp.
func (s *InMemoryCheckpointStore) Save(_ context.Context, cp *Checkpoint) (string, error) {
	stored, err := cp.Clone()
	if err != nil {
		return "", err
	}
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.checkpoints[stored.ID]; exists {
		return "", ErrCheckpointExists
	}
	s.checkpoints[stored.ID] = stored
	s.seq[stored.ID] = s.next
	s.next++
	return stored.ID, nil
}

// Load returns a copy of the checkpoint.
func (s *InMemoryCheckpointStore) Load(_ context.Context, checkpointID string) (*Checkpoint, error) {
	s.mu.RLock()
	cp, ok := s.checkpoints[checkpointID]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrCheckpointNotFound
	}
	return cp.Clone()
}

// List returns checkpoint ids ordered by superstep, creation time and
// insertion order.
func (s *InMemoryCheckpointStore) List(_ context.Context, workflowID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*Checkpoint
	for _, cp := range s.checkpoints {
		if workflowID == "" || cp.WorkflowID == workflowID {
			matched = append(matched, cp)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if a.SuperstepIndex != b.SuperstepIndex {
			return a.SuperstepIndex < b.SuperstepIndex
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return s.seq[a.ID] < s.seq[b.ID]
	})

	ids := make([]string, len(matched))
	for i, cp := range matched {
		ids[i] = cp.ID
	}
	return ids, nil
}

// Delete removes a checkpoint.
func (s *InMemoryCheckpointStore) Delete(_ context.Context, checkpointID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.checkpoints[checkpointID]; !ok {
		return false, nil
	}
	delete(s.checkpoints, checkpointID)
	delete(s.seq, checkpointID)
	return true, nil
}
