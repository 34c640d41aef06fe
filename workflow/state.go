package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// SharedState is the run-wide key/value store visible to every executor.
// Values are held as JSON so a checkpoint captures them exactly.
type SharedState struct {
	values map[string]json.RawMessage
}

// NewSharedState creates an empty shared state.
func NewSharedState() *SharedState {
	return &SharedState{values: make(map[string]json.RawMessage)}
}

func sharedStateFrom(values map[string]json.RawMessage) *SharedState {
	s := NewSharedState()
	for k, v := range values {
		s.values[k] = append(json.RawMessage(nil), v...)
	}
	return s
}

// Get decodes the value under key into out.
func (s *SharedState) Get(key string, out any) (bool, error) {
	raw, ok := s.values[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return true, fmt.Errorf("decode shared state %q: %w", key, err)
	}
	return true, nil
}

// Keys returns the stored keys in sorted order.
func (s *SharedState) Keys() []string {
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of keys.
func (s *SharedState) Len() int {
	return len(s.values)
}

// snapshot copies the values for a checkpoint.
func (s *SharedState) snapshot() map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(s.values))
	for k, v := range s.values {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}

// stagedWrite is a pending write; a nil value deletes the key.
type stagedWrite struct {
	key   string
	value json.RawMessage
}

// apply commits staged writes in order.
func (s *SharedState) apply(writes []stagedWrite) {
	for _, w := range writes {
		if w.value == nil {
			delete(s.values, w.key)
			continue
		}
		s.values[w.key] = w.value
	}
}

// RunContext is handed to every executor invocation. Shared state writes
// made through it become visible to other executors only after the
// current superstep finishes.
type RunContext struct {
	workflowID string
	runID      string
	executorID string
	superstep  int
	logger     *zap.Logger

	committed *SharedState
	writes    []stagedWrite
}

func newRunContext(workflowID, runID, executorID string, superstep int, committed *SharedState, logger *zap.Logger) *RunContext {
	return &RunContext{
		workflowID: workflowID,
		runID:      runID,
		executorID: executorID,
		superstep:  superstep,
		committed:  committed,
		logger:     logger,
	}
}

// WorkflowID returns the id of the running workflow.
func (rc *RunContext) WorkflowID() string { return rc.workflowID }

// RunID returns the id of the current run.
func (rc *RunContext) RunID() string { return rc.runID }

// ExecutorID returns the id of the invoked executor.
func (rc *RunContext) ExecutorID() string { return rc.executorID }

// Superstep returns the index of the current superstep.
func (rc *RunContext) Superstep() int { return rc.superstep }

// Logger returns a logger tagged with the run and executor ids.
func (rc *RunContext) Logger() *zap.Logger {
	if rc.logger == nil {
		return zap.NewNop()
	}
	return rc.logger
}

// SetState stages a write of value under key.
func (rc *RunContext) SetState(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode shared state %q: %w", key, err)
	}
	rc.writes = append(rc.writes, stagedWrite{key: key, value: raw})
	return nil
}

// DeleteState stages the removal of key.
func (rc *RunContext) DeleteState(key string) {
	rc.writes = append(rc.writes, stagedWrite{key: key})
}

// GetState reads key, seeing this invocation's own staged writes on top of
// the committed state.
func (rc *RunContext) GetState(key string, out any) (bool, error) {
	for i := len(rc.writes) - 1; i >= 0; i-- {
		w := rc.writes[i]
		if w.key != key {
			continue
		}
		if w.value == nil {
			return false, nil
		}
		if err := json.Unmarshal(w.value, out); err != nil {
			return true, fmt.Errorf("decode shared state %q: %w", key, err)
		}
		return true, nil
	}
	if rc.committed == nil {
		return false, nil
	}
	return rc.committed.Get(key, out)
}

type runContextKey struct{}

// RunContextFrom returns the RunContext stored in ctx by the scheduler.
func RunContextFrom(ctx context.Context) (*RunContext, bool) {
	rc, ok := ctx.Value(runContextKey{}).(*RunContext)
	return rc, ok
}

func withRunContext(ctx context.Context, rc *RunContext) context.Context {
	return context.WithValue(ctx, runContextKey{}, rc)
}
