package workflow

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/BaSui01/dataflow/workflow"

// Workflow is a built, validated graph together with its default run
// options. A Workflow runs at most one execution at a time.
type Workflow struct {
	name        string
	description string
	graph       *Graph
	defaults    []RunOption
	logger      *zap.Logger
	tracer      trace.Tracer

	mu     sync.Mutex
	active bool
}

func newWorkflow(name, desc string, g *Graph, logger *zap.Logger, defaults []RunOption) *Workflow {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Workflow{
		name:        name,
		description: desc,
		graph:       g,
		defaults:    append([]RunOption(nil), defaults...),
		logger:      logger.With(zap.String("component", "workflow"), zap.String("workflow_id", name)),
		tracer:      otel.Tracer(instrumentationName),
	}
}

// Name returns the workflow id.
func (w *Workflow) Name() string { return w.name }

// Description returns the workflow description.
func (w *Workflow) Description() string { return w.description }

// Graph returns the workflow topology.
func (w *Workflow) Graph() *Graph { return w.graph }

// RunStream starts a run delivering input to the start executor and
// returns its handle immediately.
func (w *Workflow) RunStream(ctx context.Context, input any, opts ...RunOption) (*Run, error) {
	if err := w.acquire(); err != nil {
		return nil, err
	}

	o := w.options(opts)
	r := w.newRunner(o)
	r.queue = []Message{{TargetID: w.graph.start, Payload: input}}

	w.logger.Info("starting workflow run",
		zap.String("run_id", r.run.ID()),
		zap.String("start", w.graph.start),
	)

	go r.loop(ctx)
	return r.run, nil
}

// Run executes the workflow and waits for it to finish. The returned error
// is the run failure, if any.
func (w *Workflow) Run(ctx context.Context, input any, opts ...RunOption) (*RunResult, error) {
	run, err := w.RunStream(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return collect(run)
}

// ResumeAndWait resumes from a checkpoint and waits for the run to finish.
func (w *Workflow) ResumeAndWait(ctx context.Context, checkpointID string, store CheckpointStore, opts ...RunOption) (*RunResult, error) {
	run, err := w.Resume(ctx, checkpointID, store, opts...)
	if err != nil {
		return nil, err
	}
	return collect(run)
}

func (w *Workflow) options(opts []RunOption) runOptions {
	o := defaultRunOptions()
	for _, opt := range w.defaults {
		opt(&o)
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.runID == "" {
		o.runID = uuid.NewString()
	}
	return o
}

func (w *Workflow) newRunner(o runOptions) *runner {
	return &runner{
		wf:     w,
		graph:  w.graph,
		opts:   o,
		run:    newRun(o.runID, w.name, o.eventBuffer, o.store != nil),
		logger: w.logger.With(zap.String("run_id", o.runID)),
		fanIn:  newFanInState(w.graph),
		shared: NewSharedState(),
	}
}

func (w *Workflow) acquire() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.active {
		return ErrRunInProgress
	}
	w.active = true
	return nil
}

func (w *Workflow) release() {
	w.mu.Lock()
	w.active = false
	w.mu.Unlock()
}
