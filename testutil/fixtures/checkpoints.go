// =============================================================================
// 📦 测试数据工厂 - 检查点
// =============================================================================
// 提供与 executors 内置工作流一致的检查点样例
// =============================================================================
package fixtures

import (
	"encoding/json"
	"time"

	"github.com/BaSui01/dataflow/executors"
	"github.com/BaSui01/dataflow/workflow"
)

// FixedTime is the creation time of every fixture checkpoint.
var FixedTime = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func raw(v any) json.RawMessage {
	out, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return out
}

// StatsAfterFanOut is the stats workflow checkpoint taken after the
// dispatcher ran on input.
func StatsAfterFanOut(input []int) *workflow.Checkpoint {
	return &workflow.Checkpoint{
		WorkflowID:     executors.StatsWorkflowName,
		CreatedAt:      FixedTime,
		SuperstepIndex: 1,
		PendingMessages: []workflow.MessageRecord{
			{TargetID: executors.SumID, SourceID: executors.DispatcherID, Payload: raw(input), ProducedAt: 0},
			{TargetID: executors.AverageID, SourceID: executors.DispatcherID, Payload: raw(input), ProducedAt: 0},
		},
		ExecutorStates: map[string][]byte{},
		SharedState:    map[string]json.RawMessage{},
		Metadata:       map[string]any{workflow.MetadataRunID: "fixture-run"},
		Version:        workflow.CheckpointSchemaVersion,
	}
}

// StatsAtFanIn is the stats workflow checkpoint taken once sum and average
// have produced their results.
func StatsAtFanIn(sum int, average float64) *workflow.Checkpoint {
	return &workflow.Checkpoint{
		WorkflowID:     executors.StatsWorkflowName,
		CreatedAt:      FixedTime.Add(time.Second),
		SuperstepIndex: 2,
		PendingMessages: []workflow.MessageRecord{
			{TargetID: executors.AggregatorID, SourceID: executors.SumID, Payload: raw(sum), ProducedAt: 1},
			{TargetID: executors.AggregatorID, SourceID: executors.AverageID, Payload: raw(average), ProducedAt: 1},
		},
		ExecutorStates: map[string][]byte{},
		SharedState:    map[string]json.RawMessage{},
		Metadata:       map[string]any{workflow.MetadataRunID: "fixture-run"},
		Version:        workflow.CheckpointSchemaVersion,
	}
}

// TextCheckpoint is a text workflow checkpoint with text waiting for the
// reverse executor.
func TextCheckpoint(text string) *workflow.Checkpoint {
	return &workflow.Checkpoint{
		WorkflowID:     executors.TextWorkflowName,
		CreatedAt:      FixedTime,
		SuperstepIndex: 1,
		PendingMessages: []workflow.MessageRecord{
			{TargetID: executors.ReverseTextID, SourceID: executors.UpperCaseID, Payload: raw(text), ProducedAt: 0},
		},
		Version: workflow.CheckpointSchemaVersion,
	}
}
