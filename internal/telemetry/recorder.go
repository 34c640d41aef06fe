package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/BaSui01/dataflow/workflow"
)

const instrumentationName = "github.com/BaSui01/dataflow"

var _ workflow.MetricsRecorder = (*Recorder)(nil)

// Recorder exports workflow measurements through an OTel meter.
type Recorder struct {
	runs        metric.Int64Counter
	runDuration metric.Float64Histogram
	supersteps  metric.Int64Counter
	messages    metric.Int64Histogram
	executors   metric.Int64Counter
	execLatency metric.Float64Histogram
	checkpoints metric.Int64Counter
}

// NewRecorder creates the workflow instruments on meter.
func NewRecorder(meter metric.Meter) (*Recorder, error) {
	r := &Recorder{}
	var err error

	if r.runs, err = meter.Int64Counter("dataflow.workflow.runs",
		metric.WithDescription("Finished workflow runs")); err != nil {
		return nil, err
	}
	if r.runDuration, err = meter.Float64Histogram("dataflow.workflow.run.duration",
		metric.WithDescription("Workflow run duration"), metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if r.supersteps, err = meter.Int64Counter("dataflow.workflow.supersteps",
		metric.WithDescription("Executed supersteps")); err != nil {
		return nil, err
	}
	if r.messages, err = meter.Int64Histogram("dataflow.workflow.superstep.messages",
		metric.WithDescription("Messages delivered per superstep")); err != nil {
		return nil, err
	}
	if r.executors, err = meter.Int64Counter("dataflow.executor.invocations",
		metric.WithDescription("Executor invocations")); err != nil {
		return nil, err
	}
	if r.execLatency, err = meter.Float64Histogram("dataflow.executor.duration",
		metric.WithDescription("Executor invocation duration"), metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if r.checkpoints, err = meter.Int64Counter("dataflow.checkpoint.writes",
		metric.WithDescription("Checkpoint writes")); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Recorder) RecordRun(workflowID string, state workflow.RunState, d time.Duration) {
	ctx := context.Background()
	attrs := metric.WithAttributes(
		attribute.String("workflow", workflowID),
		attribute.String("state", string(state)),
	)
	r.runs.Add(ctx, 1, attrs)
	r.runDuration.Record(ctx, d.Seconds(), attrs)
}

func (r *Recorder) RecordSuperstep(workflowID string, messages int, _ time.Duration) {
	ctx := context.Background()
	attrs := metric.WithAttributes(attribute.String("workflow", workflowID))
	r.supersteps.Add(ctx, 1, attrs)
	r.messages.Record(ctx, int64(messages), attrs)
}

func (r *Recorder) RecordExecutor(workflowID, executorID string, d time.Duration, err error) {
	ctx := context.Background()
	r.executors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("workflow", workflowID),
		attribute.String("executor", executorID),
		attribute.Bool("error", err != nil),
	))
	r.execLatency.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("workflow", workflowID),
		attribute.String("executor", executorID),
	))
}

func (r *Recorder) RecordCheckpoint(workflowID string, _ time.Duration, err error) {
	r.checkpoints.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("workflow", workflowID),
		attribute.Bool("error", err != nil),
	))
}
