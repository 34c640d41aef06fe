package executors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/dataflow/workflow"
)

// 统计工作流中各执行器的 ID
const (
	DispatcherID = "dispatcher"
	SumID        = "sum"
	AverageID    = "average"
	AggregatorID = "aggregator"

	StatsWorkflowName = "stats_workflow"
)

// ErrEmptyInput is returned by the dispatcher for an empty number list.
var ErrEmptyInput = errors.New("input must be a non-empty list of integers")

// NewDispatcher forwards its input unchanged and rejects empty lists.
func NewDispatcher() *workflow.FuncExecutor[[]int, []int] {
	return workflow.NewTransformExecutor(DispatcherID, func(_ context.Context, numbers []int) ([]int, error) {
		if len(numbers) == 0 {
			return nil, ErrEmptyInput
		}
		return numbers, nil
	})
}

// NewSum forwards the sum of its input.
func NewSum() *workflow.FuncExecutor[[]int, int] {
	return workflow.NewTransformExecutor(SumID, func(_ context.Context, numbers []int) (int, error) {
		return sum(numbers), nil
	})
}

// NewAverage forwards the arithmetic mean of its input.
func NewAverage() *workflow.FuncExecutor[[]int, float64] {
	return workflow.NewTransformExecutor(AverageID, func(_ context.Context, numbers []int) (float64, error) {
		if len(numbers) == 0 {
			return 0, ErrEmptyInput
		}
		return float64(sum(numbers)) / float64(len(numbers)), nil
	})
}

func sum(numbers []int) int {
	total := 0
	for _, n := range numbers {
		total += n
	}
	return total
}

// =============================================================================
// 📦 Aggregator
// =============================================================================

var _ workflow.StatefulExecutor = (*Aggregator)(nil)

// Aggregator yields the fan-in result list as the run output and keeps the
// history of every list it received. The history is captured in checkpoints.
type Aggregator struct {
	id string

	mu      sync.Mutex
	history [][]any
}

// aggregatorState is the checkpointed form of Aggregator.
type aggregatorState struct {
	History [][]any `json:"history"`
}

// NewAggregator creates an aggregator with the given id.
func NewAggregator(id string) *Aggregator {
	return &Aggregator{id: id}
}

func (a *Aggregator) ID() string { return a.id }

func (a *Aggregator) InputType() reflect.Type  { return reflect.TypeFor[[]any]() }
func (a *Aggregator) OutputType() reflect.Type { return reflect.TypeFor[[]any]() }

// Handle records results and yields them.
func (a *Aggregator) Handle(_ context.Context, input any, rc *workflow.RunContext) (workflow.EmitResult, error) {
	results, ok := input.([]any)
	if !ok {
		return workflow.EmitResult{}, fmt.Errorf("aggregator %s: unexpected input type %T", a.id, input)
	}

	a.mu.Lock()
	a.history = append(a.history, append([]any(nil), results...))
	received := len(a.history)
	a.mu.Unlock()

	if rc != nil {
		rc.Logger().Debug("results aggregated",
			zap.Int("results", len(results)),
			zap.Int("received", received))
	}
	return workflow.Yield(results), nil
}

// History returns a copy of every result list received so far.
func (a *Aggregator) History() [][]any {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([][]any, len(a.history))
	for i, h := range a.history {
		out[i] = append([]any(nil), h...)
	}
	return out
}

func (a *Aggregator) SaveState(context.Context) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return json.Marshal(aggregatorState{History: a.history})
}

func (a *Aggregator) RestoreState(_ context.Context, state []byte) error {
	var s aggregatorState
	if err := json.Unmarshal(state, &s); err != nil {
		return fmt.Errorf("failed to decode aggregator state: %w", err)
	}
	a.mu.Lock()
	a.history = s.History
	a.mu.Unlock()
	return nil
}

// NewStatsWorkflow builds dispatcher -> {sum, average} -> aggregator.
func NewStatsWorkflow(logger *zap.Logger, opts ...workflow.RunOption) (*workflow.Workflow, error) {
	return workflow.NewWorkflowBuilder(StatsWorkflowName).
		WithDescription("computes the sum and average of a list of integers").
		WithLogger(logger).
		AddExecutor(NewDispatcher()).
		AddExecutor(NewSum()).
		AddExecutor(NewAverage()).
		AddExecutor(NewAggregator(AggregatorID)).
		SetStartExecutor(DispatcherID).
		AddFanOutEdges(DispatcherID, SumID, AverageID).
		AddFanInEdges([]string{SumID, AverageID}, AggregatorID).
		WithOptions(opts...).
		Build()
}
