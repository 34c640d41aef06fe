package workflow

import (
	"context"
	"fmt"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// Property: identical graphs and inputs produce identical event sequences,
// sequential or parallel.
func TestProperty_Determinism(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("event sequences are independent of concurrency", prop.ForAll(
		func(numbers []int, concurrency int) bool {
			if len(numbers) == 0 {
				return true
			}
			wf := buildStatsWorkflow(t)

			first, err := wf.Run(context.Background(), numbers)
			if err != nil {
				t.Logf("sequential run failed: %v", err)
				return false
			}
			second, err := wf.Run(context.Background(), numbers, WithMaxConcurrency(concurrency))
			if err != nil {
				t.Logf("parallel run failed: %v", err)
				return false
			}
			return reflect.DeepEqual(eventSignature(first.Events), eventSignature(second.Events))
		},
		gen.SliceOf(gen.IntRange(-1000, 1000)),
		gen.IntRange(1, 8),
	))

	properties.TestingRun(t)
}

// Property: a FanIn target fires exactly once per complete set, with
// payloads in declared source order.
func TestProperty_FanInCompleteness(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("fan-in delivers one ordered list per generation", prop.ForAll(
		func(width int) bool {
			b := NewWorkflowBuilder("fanin").AddExecutor(passthrough("start"))
			sources := make([]string, width)
			for i := range sources {
				// declared order deliberately differs from id order
				sources[i] = fmt.Sprintf("src-%02d", width-i)
				id := sources[i]
				b.AddExecutor(&funcExec{id: id, fn: func(_ context.Context, _ any, _ *RunContext) (EmitResult, error) {
					return Forward(id), nil
				}})
			}
			fires := 0
			b.AddExecutor(&funcExec{id: "join", fn: func(_ context.Context, input any, _ *RunContext) (EmitResult, error) {
				fires++
				return Yield(input), nil
			}})
			wf, err := b.AddFanOutEdges("start", sources...).
				AddFanInEdges(sources, "join").
				SetStartExecutor("start").
				Build()
			if err != nil {
				t.Logf("build failed: %v", err)
				return false
			}

			res, err := wf.Run(context.Background(), nil)
			if err != nil {
				return false
			}
			got, ok := res.Output.([]any)
			if !ok || len(got) != width || fires != 1 {
				return false
			}
			for i, src := range sources {
				if got[i] != src {
					return false
				}
			}
			return true
		},
		gen.IntRange(2, 12),
	))

	properties.TestingRun(t)
}

func TestFanInState_Generations(t *testing.T) {
	wf := buildStatsWorkflow(t)
	s := newFanInState(wf.Graph())

	_, fired := s.deliver(Message{TargetID: "aggregator", SourceID: "sum", Payload: 1})
	require.False(t, fired)
	// a second contribution from sum opens the next generation
	_, fired = s.deliver(Message{TargetID: "aggregator", SourceID: "sum", Payload: 2})
	require.False(t, fired)
	require.Equal(t, 2, s.pending())

	got, fired := s.deliver(Message{TargetID: "aggregator", SourceID: "average", Payload: 1.5})
	require.True(t, fired)
	require.Equal(t, []any{1, 1.5}, got)

	got, fired = s.deliver(Message{TargetID: "aggregator", SourceID: "average", Payload: 2.5})
	require.True(t, fired)
	require.Equal(t, []any{2, 2.5}, got)
	require.Equal(t, 0, s.pending())
}

// Property: resuming from any checkpoint yields the same output as the
// uninterrupted run.
func TestProperty_ResumeEquivalence(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		limit := rapid.IntRange(2, 12).Draw(rt, "limit")
		input := rapid.StringMatching(`[a-z]{1,8}`).Draw(rt, "input")

		store := NewInMemoryCheckpointStore()
		wf, _ := buildCounterWorkflow(t, limit, WithCheckpointStore(store))
		original, err := wf.Run(context.Background(), input)
		require.NoError(rt, err)

		ids, err := store.List(context.Background(), "counter")
		require.NoError(rt, err)
		require.Len(rt, ids, limit-1)

		pick := rapid.IntRange(0, len(ids)-1).Draw(rt, "checkpoint")
		fresh, _ := buildCounterWorkflow(t, limit)
		resumed, err := fresh.ResumeAndWait(context.Background(), ids[pick], store)
		require.NoError(rt, err)
		require.Equal(rt, original.Output, resumed.Output)
	})
}

type reading struct {
	Sensor string
	Value  int
}

// buildUntypedWorkflow builds split -> {bump, relay -> label} -> join with
// no declared types anywhere. bump only accepts the concrete types it was
// sent, so a payload decoded as generic JSON fails the run.
func buildUntypedWorkflow(t *testing.T, opts ...RunOption) *Workflow {
	t.Helper()
	bump := &funcExec{id: "bump", fn: func(_ context.Context, input any, _ *RunContext) (EmitResult, error) {
		switch v := input.(type) {
		case int:
			return Forward(v + 1), nil
		case reading:
			v.Value++
			return Forward(v), nil
		case []string:
			return Forward(append(v, "x")), nil
		default:
			return EmitResult{}, fmt.Errorf("unexpected payload %T", input)
		}
	}}
	label := &funcExec{id: "label", fn: func(_ context.Context, input any, _ *RunContext) (EmitResult, error) {
		return Forward(fmt.Sprintf("%T", input)), nil
	}}
	join := &funcExec{id: "join", fn: func(_ context.Context, input any, _ *RunContext) (EmitResult, error) {
		return Yield(fmt.Sprintf("%T=%v", input, input)), nil
	}}

	wf, err := NewWorkflowBuilder("untyped").
		AddExecutor(passthrough("split")).
		AddExecutor(bump).
		AddExecutor(passthrough("relay")).
		AddExecutor(label).
		AddExecutor(join).
		SetStartExecutor("split").
		AddFanOutEdges("split", "bump", "relay").
		AddEdge("relay", "label").
		AddFanInEdges([]string{"bump", "label"}, "join").
		WithOptions(opts...).
		Build()
	require.NoError(t, err)
	return wf
}

// Property: resume equivalence holds for executors without declared types,
// through both pending messages and partially filled fan-in buffers.
func TestProperty_ResumeEquivalenceUntyped(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		var input any
		switch rapid.IntRange(0, 2).Draw(rt, "kind") {
		case 0:
			input = rapid.Int().Draw(rt, "int")
		case 1:
			input = reading{
				Sensor: rapid.StringMatching(`[a-z]{1,6}`).Draw(rt, "sensor"),
				Value:  rapid.IntRange(-100, 100).Draw(rt, "value"),
			}
		default:
			input = rapid.SliceOfN(rapid.StringMatching(`[a-z]{1,4}`), 1, 4).Draw(rt, "strings")
		}

		ctx := context.Background()
		store := NewInMemoryCheckpointStore()
		original, err := buildUntypedWorkflow(t, WithCheckpointStore(store)).Run(ctx, input)
		require.NoError(rt, err)

		ids, err := store.List(ctx, "untyped")
		require.NoError(rt, err)
		require.Len(rt, ids, 3)

		last, err := store.Load(ctx, ids[2])
		require.NoError(rt, err)
		require.Len(rt, last.FanInBuffers, 1, "bump's contribution waits for label")

		for _, id := range ids {
			resumed, err := buildUntypedWorkflow(t).ResumeAndWait(ctx, id, store)
			require.NoError(rt, err)
			require.Equal(rt, original.Output, resumed.Output)
		}
	})
}
