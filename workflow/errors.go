package workflow

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrCheckpointNotFound is returned by stores when an id is unknown.
	ErrCheckpointNotFound = errors.New("checkpoint not found")
	// ErrCheckpointExists is returned by stores on a second Save of the same id.
	ErrCheckpointExists = errors.New("checkpoint already exists")
	// ErrRunInProgress is returned when a workflow already has an active run.
	ErrRunInProgress = errors.New("workflow already has an active run")
	// ErrRunCancelled is the cause recorded when the run context is cancelled.
	ErrRunCancelled = errors.New("run cancelled")
	// ErrCheckpointingDisabled is returned by Suspend when no store is configured.
	ErrCheckpointingDisabled = errors.New("checkpointing is disabled: no checkpoint store configured")
	// ErrRunFinished is returned by Suspend after the run reached a terminal state.
	ErrRunFinished = errors.New("run already finished")
)

// GraphValidationError lists every problem found while building a graph.
type GraphValidationError struct {
	Reasons []string
}

func (e *GraphValidationError) Error() string {
	return "graph validation failed: " + strings.Join(e.Reasons, "; ")
}

// ExecutorFailure wraps an error returned (or a panic raised) by an executor.
type ExecutorFailure struct {
	ExecutorID string
	Superstep  int
	Cause      error
}

func (e *ExecutorFailure) Error() string {
	return fmt.Sprintf("executor %s failed in superstep %d: %v", e.ExecutorID, e.Superstep, e.Cause)
}

func (e *ExecutorFailure) Unwrap() error {
	return e.Cause
}

// CheckpointStoreError wraps a failure reported by a CheckpointStore.
type CheckpointStoreError struct {
	Op           string
	CheckpointID string
	Cause        error
}

func (e *CheckpointStoreError) Error() string {
	if e.CheckpointID == "" {
		return fmt.Sprintf("checkpoint store %s: %v", e.Op, e.Cause)
	}
	return fmt.Sprintf("checkpoint store %s %s: %v", e.Op, e.CheckpointID, e.Cause)
}

func (e *CheckpointStoreError) Unwrap() error {
	return e.Cause
}

// ResumeErrorKind classifies why a resume was rejected.
type ResumeErrorKind string

const (
	ResumeNotFound              ResumeErrorKind = "not_found"
	ResumeSchemaVersionMismatch ResumeErrorKind = "schema_version_mismatch"
	ResumeWorkflowMismatch      ResumeErrorKind = "workflow_mismatch"
	ResumeUnknownExecutor       ResumeErrorKind = "unknown_executor"
	ResumeDecodeFailed          ResumeErrorKind = "decode_failed"
	ResumeRestoreFailed         ResumeErrorKind = "restore_failed"
	ResumeStoreFailed           ResumeErrorKind = "store_failed"
)

// ResumeError is returned synchronously by Workflow.Resume.
type ResumeError struct {
	Kind         ResumeErrorKind
	CheckpointID string
	Detail       string
	Cause        error
}

func (e *ResumeError) Error() string {
	msg := fmt.Sprintf("resume from checkpoint %s: %s", e.CheckpointID, e.Kind)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ResumeError) Unwrap() error {
	return e.Cause
}

// IsResumeError reports whether err is a ResumeError of the given kind.
func IsResumeError(err error, kind ResumeErrorKind) bool {
	var re *ResumeError
	return errors.As(err, &re) && re.Kind == kind
}
