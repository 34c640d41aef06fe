package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// CheckpointSchemaVersion is the snapshot format written by this package.
const CheckpointSchemaVersion = "1.0"

// Metadata keys written into every checkpoint.
const (
	MetadataRunID       = "run_id"
	MetadataReason      = "reason"
	MetadataResumedFrom = "resumed_from"
)

// Checkpoint reasons.
const (
	ReasonSuperstep = "superstep"
	ReasonSuspend   = "suspend"
)

// Checkpoint is a self-sufficient snapshot of a run taken at a superstep
// boundary.
type Checkpoint struct {
	ID              string                     `json:"checkpoint_id"`
	WorkflowID      string                     `json:"workflow_id"`
	CreatedAt       time.Time                  `json:"timestamp"`
	SuperstepIndex  int                        `json:"iteration_count"`
	PendingMessages []MessageRecord            `json:"messages"`
	FanInBuffers    []FanInRecord              `json:"pending_fanin"`
	ExecutorStates  map[string][]byte          `json:"executor_states"`
	SharedState     map[string]json.RawMessage `json:"shared_state"`
	Metadata        map[string]any             `json:"metadata,omitempty"`
	Version         string                     `json:"version"`
}

// MessageRecord is a persisted Message. PayloadType names the Go type the
// payload was sent as.
type MessageRecord struct {
	TargetID    string          `json:"target_id"`
	SourceID    string          `json:"source_id,omitempty"`
	Payload     json.RawMessage `json:"payload"`
	PayloadType string          `json:"payload_type,omitempty"`
	ProducedAt  int             `json:"produced_at"`
}

// FanInRecord is a persisted, partially filled FanIn buffer.
type FanInRecord struct {
	TargetID      string              `json:"target_id"`
	Generation    int                 `json:"generation"`
	Contributions []FanInContribution `json:"contributions"`
}

// FanInContribution is one source's payload held in a FanIn buffer.
type FanInContribution struct {
	SourceID    string          `json:"source_id"`
	Payload     json.RawMessage `json:"payload"`
	PayloadType string          `json:"payload_type,omitempty"`
}

// RunID returns the run id recorded in the metadata.
func (c *Checkpoint) RunID() string {
	if c.Metadata == nil {
		return ""
	}
	id, _ := c.Metadata[MetadataRunID].(string)
	return id
}

// Clone returns a deep copy.
func (c *Checkpoint) Clone() (*Checkpoint, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("clone checkpoint: %w", err)
	}
	var out Checkpoint
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("clone checkpoint: %w", err)
	}
	return &out, nil
}

// CheckpointStore persists checkpoints. Implementations are append-only:
// Save never overwrites an existing id.
type CheckpointStore interface {
	// Save stores cp and returns its id. An empty cp.ID is assigned by the
	// store. Saving an existing id returns ErrCheckpointExists.
	Save(ctx context.Context, cp *Checkpoint) (string, error)
	// Load returns ErrCheckpointNotFound for unknown ids.
	Load(ctx context.Context, checkpointID string) (*Checkpoint, error)
	// List returns ids for workflowID (all workflows when empty), ordered
	// by superstep index then creation time.
	List(ctx context.Context, workflowID string) ([]string, error)
	// Delete reports whether a checkpoint was removed.
	Delete(ctx context.Context, checkpointID string) (bool, error)
}
