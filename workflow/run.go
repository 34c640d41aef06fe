package workflow

import (
	"sync"
)

// RunState is the lifecycle state of a run.
type RunState string

const (
	RunInitializing RunState = "initializing"
	RunRunning      RunState = "running"
	RunSuspended    RunState = "suspended"
	RunCompleted    RunState = "completed"
	RunFailed       RunState = "failed"
)

// IsTerminal reports whether no further supersteps will execute.
func (s RunState) IsTerminal() bool {
	return s == RunSuspended || s == RunCompleted || s == RunFailed
}

// Run is the handle of a single execution. Events must be drained (or
// Wait called) for the run to make progress once the event buffer fills.
// After the run context is cancelled an unread terminal event is dropped
// once a short grace period passes; State and Err still report the
// outcome.
type Run struct {
	id         string
	workflowID string
	events     chan Event
	done       chan struct{}

	suspendable bool
	suspendCh   chan struct{}
	suspendOnce sync.Once

	mu             sync.RWMutex
	state          RunState
	output         any
	hasOutput      bool
	err            error
	lastCheckpoint string
}

func newRun(id, workflowID string, buffer int, suspendable bool) *Run {
	return &Run{
		id:          id,
		workflowID:  workflowID,
		events:      make(chan Event, buffer),
		done:        make(chan struct{}),
		suspendable: suspendable,
		suspendCh:   make(chan struct{}),
		state:       RunInitializing,
	}
}

// ID returns the run id.
func (r *Run) ID() string { return r.id }

// WorkflowID returns the id of the workflow being run.
func (r *Run) WorkflowID() string { return r.workflowID }

// Events returns the event stream. The channel is closed when the run
// reaches a terminal state.
func (r *Run) Events() <-chan Event { return r.events }

// Done is closed when the run has finished.
func (r *Run) Done() <-chan struct{} { return r.done }

// Suspend asks the run to stop after the current superstep and persist a
// checkpoint. It returns immediately; the run ends in RunSuspended.
func (r *Run) Suspend() error {
	if !r.suspendable {
		return ErrCheckpointingDisabled
	}
	if r.State().IsTerminal() {
		return ErrRunFinished
	}
	r.suspendOnce.Do(func() { close(r.suspendCh) })
	return nil
}

func (r *Run) suspendRequested() bool {
	select {
	case <-r.suspendCh:
		return true
	default:
		return false
	}
}

// Wait discards unread events, blocks until the run finishes and returns
// its error.
func (r *Run) Wait() error {
	for range r.events {
	}
	<-r.done
	return r.Err()
}

// State returns the current lifecycle state.
func (r *Run) State() RunState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Output returns the yielded output, if any.
func (r *Run) Output() (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.output, r.hasOutput
}

// Err returns the failure cause of a failed run.
func (r *Run) Err() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.err
}

// LastCheckpointID returns the id of the most recent checkpoint written by
// this run.
func (r *Run) LastCheckpointID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastCheckpoint
}

func (r *Run) setState(s RunState) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

func (r *Run) setCheckpoint(id string) {
	r.mu.Lock()
	r.lastCheckpoint = id
	r.mu.Unlock()
}

func (r *Run) finish(state RunState, output any, hasOutput bool, err error) {
	r.mu.Lock()
	r.state = state
	r.output = output
	r.hasOutput = hasOutput
	r.err = err
	r.mu.Unlock()
}

// RunResult is the collected outcome of Workflow.Run.
type RunResult struct {
	RunID            string
	State            RunState
	Output           any
	HasOutput        bool
	Events           []Event
	LastCheckpointID string
}

// collect drains run and builds a RunResult.
func collect(run *Run) (*RunResult, error) {
	res := &RunResult{RunID: run.ID()}
	for ev := range run.Events() {
		res.Events = append(res.Events, ev)
	}
	<-run.Done()

	res.State = run.State()
	res.Output, res.HasOutput = run.Output()
	res.LastCheckpointID = run.LastCheckpointID()
	return res, run.Err()
}
