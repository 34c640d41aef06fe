package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestWorkflowBuilder_BasicWorkflow(t *testing.T) {
	wf, err := NewWorkflowBuilder("text").
		WithDescription("upper then reverse").
		WithLogger(zaptest.NewLogger(t)).
		AddExecutor(passthrough("upper")).
		AddExecutor(yielder("reverse")).
		AddEdge("upper", "reverse").
		SetStartExecutor("upper").
		Build()

	require.NoError(t, err)
	assert.Equal(t, "text", wf.Name())
	assert.Equal(t, "upper then reverse", wf.Description())
	assert.Equal(t, []string{"upper", "reverse"}, wf.Graph().ExecutorIDs())
	assert.Equal(t, "upper", wf.Graph().StartExecutor())
	assert.Equal(t, []string{"reverse"}, wf.Graph().Targets("upper"))
}

func TestWorkflowBuilder_FanInRouting(t *testing.T) {
	wf := buildStatsWorkflow(t)
	g := wf.Graph()

	assert.Equal(t, []string{"sum", "average"}, g.Targets("dispatcher"))
	assert.Equal(t, []string{"aggregator"}, g.Targets("sum"))
	assert.True(t, g.IsFanInTarget("aggregator"))
	assert.False(t, g.IsFanInTarget("sum"))

	edge, ok := g.FanInEdge("aggregator")
	require.True(t, ok)
	assert.Equal(t, []string{"sum", "average"}, edge.Sources)
}

func TestWorkflowBuilder_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		build   func() *WorkflowBuilder
		wantMsg string
	}{
		{
			name: "no start executor",
			build: func() *WorkflowBuilder {
				return NewWorkflowBuilder("wf").AddExecutor(yielder("a"))
			},
			wantMsg: "start executor not set",
		},
		{
			name: "unknown start executor",
			build: func() *WorkflowBuilder {
				return NewWorkflowBuilder("wf").AddExecutor(yielder("a")).SetStartExecutor("missing")
			},
			wantMsg: "start executor does not exist: missing",
		},
		{
			name: "duplicate executor id",
			build: func() *WorkflowBuilder {
				return NewWorkflowBuilder("wf").
					AddExecutor(yielder("a")).
					AddExecutor(yielder("a")).
					SetStartExecutor("a")
			},
			wantMsg: "duplicate executor id: a",
		},
		{
			name: "edge to unknown executor",
			build: func() *WorkflowBuilder {
				return NewWorkflowBuilder("wf").
					AddExecutor(passthrough("a")).
					AddEdge("a", "ghost").
					SetStartExecutor("a")
			},
			wantMsg: "unknown target executor: ghost",
		},
		{
			name: "fan-in with a single source",
			build: func() *WorkflowBuilder {
				return NewWorkflowBuilder("wf").
					AddExecutor(passthrough("a")).
					AddExecutor(yielder("b")).
					AddFanInEdges([]string{"a"}, "b").
					SetStartExecutor("a")
			},
			wantMsg: "needs at least two distinct sources",
		},
		{
			name: "fan-in target with direct edge",
			build: func() *WorkflowBuilder {
				return NewWorkflowBuilder("wf").
					AddExecutor(passthrough("start")).
					AddExecutor(passthrough("a")).
					AddExecutor(passthrough("b")).
					AddExecutor(yielder("join")).
					AddFanOutEdges("start", "a", "b").
					AddFanInEdges([]string{"a", "b"}, "join").
					AddEdge("start", "join").
					SetStartExecutor("start")
			},
			wantMsg: "fan-in target join also receives direct or fan-out edges",
		},
		{
			name: "duplicate edge",
			build: func() *WorkflowBuilder {
				return NewWorkflowBuilder("wf").
					AddExecutor(passthrough("a")).
					AddExecutor(yielder("b")).
					AddEdge("a", "b").
					AddEdge("a", "b").
					SetStartExecutor("a")
			},
			wantMsg: "duplicate edge",
		},
		{
			name: "unreachable executor",
			build: func() *WorkflowBuilder {
				return NewWorkflowBuilder("wf").
					AddExecutor(yielder("a")).
					AddExecutor(yielder("island")).
					SetStartExecutor("a")
			},
			wantMsg: "executors not reachable from start: [island]",
		},
		{
			name: "fan-in source only reachable through its target",
			build: func() *WorkflowBuilder {
				return NewWorkflowBuilder("wf").
					AddExecutor(passthrough("start")).
					AddExecutor(passthrough("late")).
					AddExecutor(passthrough("join")).
					AddFanInEdges([]string{"start", "late"}, "join").
					AddEdge("join", "late").
					SetStartExecutor("start")
			},
			wantMsg: "fan-in into join can never complete",
		},
		{
			name: "type mismatch on direct edge",
			build: func() *WorkflowBuilder {
				return NewWorkflowBuilder("wf").
					AddExecutor(newSum()).
					AddExecutor(newDispatcher()).
					AddEdge("sum", "dispatcher").
					SetStartExecutor("sum")
			},
			wantMsg: "type mismatch",
		},
		{
			name: "fan-in target not accepting a slice",
			build: func() *WorkflowBuilder {
				join := NewOutputExecutor("join", func(_ context.Context, in int) (int, error) {
					return in, nil
				})
				return NewWorkflowBuilder("wf").
					AddExecutor(newDispatcher()).
					AddExecutor(newSum()).
					AddExecutor(newAverage()).
					AddExecutor(join).
					AddFanOutEdges("dispatcher", "sum", "average").
					AddFanInEdges([]string{"sum", "average"}, "join").
					SetStartExecutor("dispatcher")
			},
			wantMsg: "fan-in target join must accept a slice, accepts int",
		},
		{
			name: "start executor as fan-in target",
			build: func() *WorkflowBuilder {
				return NewWorkflowBuilder("wf").
					AddExecutor(passthrough("a")).
					AddExecutor(passthrough("b")).
					AddExecutor(passthrough("c")).
					AddFanOutEdges("a", "b", "c").
					AddFanInEdges([]string{"b", "c"}, "a").
					SetStartExecutor("a")
			},
			wantMsg: "start executor a cannot be a fan-in target",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wf, err := tt.build().Build()
			require.Error(t, err)
			assert.Nil(t, wf)

			var gve *GraphValidationError
			require.True(t, errors.As(err, &gve))
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

// A target declared behind two FanIn barriers is rejected.
func TestWorkflowBuilder_DoubleFanInRejected(t *testing.T) {
	_, err := NewWorkflowBuilder("stats").
		AddExecutor(newDispatcher()).
		AddExecutor(newSum()).
		AddExecutor(newAverage()).
		AddExecutor(&collector{id: "aggregator"}).
		SetStartExecutor("dispatcher").
		AddFanOutEdges("dispatcher", "sum", "average").
		AddFanInEdges([]string{"sum"}, "aggregator").
		AddFanInEdges([]string{"average"}, "aggregator").
		Build()

	var gve *GraphValidationError
	require.ErrorAs(t, err, &gve)
	assert.Contains(t, err.Error(), "executor aggregator is the target of 2 fan-in edges")
}

func TestWorkflowBuilder_FanInElementTypeMismatch(t *testing.T) {
	join := NewOutputExecutor("join", func(_ context.Context, in []string) ([]string, error) {
		return in, nil
	})

	_, err := NewWorkflowBuilder("wf").
		AddExecutor(newDispatcher()).
		AddExecutor(newSum()).
		AddExecutor(newAverage()).
		AddExecutor(join).
		AddFanOutEdges("dispatcher", "sum", "average").
		AddFanInEdges([]string{"sum", "average"}, "join").
		SetStartExecutor("dispatcher").
		Build()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "sum emits int, join collects string")
	assert.Contains(t, err.Error(), "average emits float64, join collects string")
}

func TestWorkflowBuilder_CollectsAllReasons(t *testing.T) {
	_, err := NewWorkflowBuilder("wf").
		AddExecutor(nil).
		AddExecutor(passthrough("a")).
		AddEdge("a", "ghost").
		Build()

	var gve *GraphValidationError
	require.ErrorAs(t, err, &gve)
	assert.Len(t, gve.Reasons, 3)
}
