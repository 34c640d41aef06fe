package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// ====== test executors ======

func newDispatcher() *FuncExecutor[[]int, []int] {
	return NewTransformExecutor("dispatcher", func(_ context.Context, numbers []int) ([]int, error) {
		if len(numbers) == 0 {
			return nil, errors.New("input must be a non-empty list of integers")
		}
		return numbers, nil
	})
}

func newSum() *FuncExecutor[[]int, int] {
	return NewTransformExecutor("sum", func(_ context.Context, numbers []int) (int, error) {
		total := 0
		for _, n := range numbers {
			total += n
		}
		return total, nil
	})
}

func newAverage() *FuncExecutor[[]int, float64] {
	return NewTransformExecutor("average", func(_ context.Context, numbers []int) (float64, error) {
		total := 0
		for _, n := range numbers {
			total += n
		}
		return float64(total) / float64(len(numbers)), nil
	})
}

// collector yields whatever the fan-in delivers and remembers how many
// result sets it saw.
type collector struct {
	id   string
	mu   sync.Mutex
	seen int
}

func (c *collector) ID() string { return c.id }

func (c *collector) InputType() reflect.Type  { return reflect.TypeFor[[]any]() }
func (c *collector) OutputType() reflect.Type { return reflect.TypeFor[[]any]() }

func (c *collector) Handle(_ context.Context, input any, _ *RunContext) (EmitResult, error) {
	c.mu.Lock()
	c.seen++
	c.mu.Unlock()
	return Yield(input), nil
}

func (c *collector) SaveState(context.Context) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return json.Marshal(map[string]int{"seen": c.seen})
}

func (c *collector) RestoreState(_ context.Context, state []byte) error {
	var s map[string]int
	if err := json.Unmarshal(state, &s); err != nil {
		return err
	}
	c.mu.Lock()
	c.seen = s["seen"]
	c.mu.Unlock()
	return nil
}

// counter loops on itself and yields once it has been invoked limit times.
type counter struct {
	id    string
	limit int
	mu    sync.Mutex
	calls int
}

func (c *counter) ID() string { return c.id }

func (c *counter) Handle(_ context.Context, input any, rc *RunContext) (EmitResult, error) {
	c.mu.Lock()
	c.calls++
	calls := c.calls
	c.mu.Unlock()

	if err := rc.SetState("last_call", calls); err != nil {
		return EmitResult{}, err
	}
	if calls >= c.limit {
		return Yield(fmt.Sprintf("%v:%d", input, calls)), nil
	}
	return Forward(input), nil
}

func (c *counter) SaveState(context.Context) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return json.Marshal(c.calls)
}

func (c *counter) RestoreState(_ context.Context, state []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return json.Unmarshal(state, &c.calls)
}

// funcExec is an untyped executor backed by a closure.
type funcExec struct {
	id string
	fn func(ctx context.Context, input any, rc *RunContext) (EmitResult, error)
}

func (f *funcExec) ID() string { return f.id }

func (f *funcExec) Handle(ctx context.Context, input any, rc *RunContext) (EmitResult, error) {
	return f.fn(ctx, input, rc)
}

func passthrough(id string) *funcExec {
	return &funcExec{id: id, fn: func(_ context.Context, input any, _ *RunContext) (EmitResult, error) {
		return Forward(input), nil
	}}
}

func yielder(id string) *funcExec {
	return &funcExec{id: id, fn: func(_ context.Context, input any, _ *RunContext) (EmitResult, error) {
		return Yield(input), nil
	}}
}

// ====== graph fixtures ======

// buildStatsWorkflow builds dispatcher -> {sum, average} -> collector.
func buildStatsWorkflow(t *testing.T, opts ...RunOption) *Workflow {
	t.Helper()
	wf, err := NewWorkflowBuilder("stats").
		AddExecutor(newDispatcher()).
		AddExecutor(newSum()).
		AddExecutor(newAverage()).
		AddExecutor(&collector{id: "aggregator"}).
		SetStartExecutor("dispatcher").
		AddFanOutEdges("dispatcher", "sum", "average").
		AddFanInEdges([]string{"sum", "average"}, "aggregator").
		WithOptions(opts...).
		Build()
	require.NoError(t, err)
	return wf
}

// buildCounterWorkflow builds a self-looping counter.
func buildCounterWorkflow(t *testing.T, limit int, opts ...RunOption) (*Workflow, *counter) {
	t.Helper()
	c := &counter{id: "counter", limit: limit}
	wf, err := NewWorkflowBuilder("counter").
		AddExecutor(c).
		SetStartExecutor("counter").
		AddEdge("counter", "counter").
		WithOptions(opts...).
		Build()
	require.NoError(t, err)
	return wf, c
}

func eventsOfType(events []Event, typ EventType) []Event {
	var out []Event
	for _, ev := range events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

// eventSignature strips timestamps and run ids so two runs can be compared.
func eventSignature(events []Event) []string {
	out := make([]string, 0, len(events))
	for _, ev := range events {
		if ev.Type == EventCheckpointSaved {
			out = append(out, fmt.Sprintf("%s@%d", ev.Type, ev.Superstep))
			continue
		}
		out = append(out, fmt.Sprintf("%s@%d:%s<-%s:%s:%v", ev.Type, ev.Superstep, ev.ExecutorID, ev.SourceID, ev.Kind, ev.Payload))
	}
	return out
}
