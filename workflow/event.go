package workflow

import "time"

// EventType identifies a run event.
type EventType string

const (
	// EventMessageDelivered is emitted for every message taken off the queue,
	// including contributions buffered by a FanIn barrier.
	EventMessageDelivered EventType = "message_delivered"
	// EventExecutorEmitted is emitted after an executor invocation returns.
	EventExecutorEmitted EventType = "executor_emitted"
	// EventOutputProduced carries the run output.
	EventOutputProduced EventType = "output_produced"
	// EventCheckpointSaved is emitted after a checkpoint was persisted.
	EventCheckpointSaved EventType = "checkpoint_saved"
	// EventRunFailed is the last event of a failed run.
	EventRunFailed EventType = "run_failed"
)

// Event is an observable step of a run. Only the fields relevant to Type
// are set.
type Event struct {
	Type         EventType
	WorkflowID   string
	RunID        string
	Superstep    int
	ExecutorID   string
	SourceID     string
	Kind         EmitKind
	Payload      any
	CheckpointID string
	Err          error
	Timestamp    time.Time
}
