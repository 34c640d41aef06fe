package persistence

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/BaSui01/dataflow/workflow"
)

// TimestampLayout is the fixed-width ISO-8601 UTC form of the timestamp
// column, so lexical order matches chronological order.
const TimestampLayout = "2006-01-02T15:04:05.000000Z07:00"

// CheckpointTableName is the table (and Mongo collection) holding checkpoints.
const CheckpointTableName = "workflow_checkpoints"

// CheckpointRecord 是检查点在 SQL 表与 Mongo 文档中的持久化形式.
// 嵌套字段以 JSON 文本存储.
type CheckpointRecord struct {
	CheckpointID   string `gorm:"column:checkpoint_id;primaryKey;size:64" bson:"_id" json:"checkpoint_id"`
	WorkflowID     string `gorm:"column:workflow_id;size:255;not null;index:idx_workflow_checkpoints_order,priority:1" bson:"workflow_id" json:"workflow_id"`
	IterationCount int    `gorm:"column:iteration_count;not null;index:idx_workflow_checkpoints_order,priority:2" bson:"iteration_count" json:"iteration_count"`
	Timestamp      string `gorm:"column:timestamp;size:32;not null;index:idx_workflow_checkpoints_order,priority:3" bson:"timestamp" json:"timestamp"`
	Messages       string `gorm:"column:messages;type:text" bson:"messages" json:"messages"`
	PendingFanIn   string `gorm:"column:pending_fanin;type:text" bson:"pending_fanin" json:"pending_fanin"`
	ExecutorStates string `gorm:"column:executor_states;type:text" bson:"executor_states" json:"executor_states"`
	SharedState    string `gorm:"column:shared_state;type:text" bson:"shared_state" json:"shared_state"`
	Metadata       string `gorm:"column:metadata;type:text" bson:"metadata" json:"metadata"`
	Version        string `gorm:"column:version;size:16;not null" bson:"version" json:"version"`
}

// TableName 返回检查点表名
func (CheckpointRecord) TableName() string {
	return CheckpointTableName
}

// prepare copies cp and fills the id and creation time a store assigns.
func prepare(cp *workflow.Checkpoint) (*workflow.Checkpoint, error) {
	if cp == nil {
		return nil, ErrInvalidInput
	}
	out, err := cp.Clone()
	if err != nil {
		return nil, err
	}
	if out.ID == "" {
		out.ID = uuid.NewString()
	}
	if out.CreatedAt.IsZero() {
		out.CreatedAt = time.Now()
	}
	out.CreatedAt = out.CreatedAt.UTC().Truncate(time.Microsecond)
	if out.Version == "" {
		out.Version = workflow.CheckpointSchemaVersion
	}
	return out, nil
}

// NewCheckpointRecord converts a checkpoint into its row form.
func NewCheckpointRecord(cp *workflow.Checkpoint) (*CheckpointRecord, error) {
	if cp == nil {
		return nil, ErrInvalidInput
	}
	rec := &CheckpointRecord{
		CheckpointID:   cp.ID,
		WorkflowID:     cp.WorkflowID,
		IterationCount: cp.SuperstepIndex,
		Timestamp:      cp.CreatedAt.UTC().Format(TimestampLayout),
		Version:        cp.Version,
	}

	columns := []struct {
		name string
		dst  *string
		v    any
	}{
		{"messages", &rec.Messages, cp.PendingMessages},
		{"pending_fanin", &rec.PendingFanIn, cp.FanInBuffers},
		{"executor_states", &rec.ExecutorStates, cp.ExecutorStates},
		{"shared_state", &rec.SharedState, cp.SharedState},
		{"metadata", &rec.Metadata, cp.Metadata},
	}
	for _, c := range columns {
		data, err := json.Marshal(c.v)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", c.name, err)
		}
		*c.dst = string(data)
	}
	return rec, nil
}

// Checkpoint converts the row back into a workflow checkpoint.
func (r *CheckpointRecord) Checkpoint() (*workflow.Checkpoint, error) {
	createdAt, err := time.Parse(time.RFC3339Nano, r.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp %q: %w", r.Timestamp, err)
	}
	cp := &workflow.Checkpoint{
		ID:             r.CheckpointID,
		WorkflowID:     r.WorkflowID,
		CreatedAt:      createdAt,
		SuperstepIndex: r.IterationCount,
		Version:        r.Version,
	}

	columns := []struct {
		name string
		src  string
		dst  any
	}{
		{"messages", r.Messages, &cp.PendingMessages},
		{"pending_fanin", r.PendingFanIn, &cp.FanInBuffers},
		{"executor_states", r.ExecutorStates, &cp.ExecutorStates},
		{"shared_state", r.SharedState, &cp.SharedState},
		{"metadata", r.Metadata, &cp.Metadata},
	}
	for _, c := range columns {
		if c.src == "" {
			continue
		}
		if err := json.Unmarshal([]byte(c.src), c.dst); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", c.name, err)
		}
	}
	return cp, nil
}
