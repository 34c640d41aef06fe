package workflow

import (
	"context"
	"fmt"
	"reflect"
)

// Executor is a node in a workflow graph. Handle is invoked once per
// delivered payload and decides what happens next through its EmitResult.
type Executor interface {
	ID() string
	Handle(ctx context.Context, input any, rc *RunContext) (EmitResult, error)
}

// StatefulExecutor is implemented by executors that keep internal state
// across invocations and want it captured in checkpoints.
type StatefulExecutor interface {
	Executor
	SaveState(ctx context.Context) ([]byte, error)
	RestoreState(ctx context.Context, state []byte) error
}

// TypedExecutor declares the payload types an executor accepts and emits.
// The builder uses them to reject incompatible edges, and resume uses them
// to decode persisted payloads.
type TypedExecutor interface {
	InputType() reflect.Type
	OutputType() reflect.Type
}

// EmitKind identifies the variant held by an EmitResult.
type EmitKind int

const (
	// EmitNoOp ends the branch without producing anything.
	EmitNoOp EmitKind = iota
	// EmitForward sends the payload along every outbound edge.
	EmitForward
	// EmitYield produces the run's final output.
	EmitYield
)

// String returns the kind name.
func (k EmitKind) String() string {
	switch k {
	case EmitNoOp:
		return "noop"
	case EmitForward:
		return "forward"
	case EmitYield:
		return "yield"
	default:
		return fmt.Sprintf("emit_kind(%d)", int(k))
	}
}

// EmitResult is the outcome of a single executor invocation.
type EmitResult struct {
	Kind    EmitKind
	Payload any
}

// Forward routes payload to all downstream executors.
func Forward(payload any) EmitResult {
	return EmitResult{Kind: EmitForward, Payload: payload}
}

// Yield completes the run with output.
func Yield(output any) EmitResult {
	return EmitResult{Kind: EmitYield, Payload: output}
}

// NoOp ends the current branch.
func NoOp() EmitResult {
	return EmitResult{Kind: EmitNoOp}
}

// HandlerFunc is the function signature wrapped by FuncExecutor.
type HandlerFunc[I any] func(ctx context.Context, input I, rc *RunContext) (EmitResult, error)

// FuncExecutor adapts a typed function into an Executor. I and O are
// reported as the declared input and output types.
type FuncExecutor[I, O any] struct {
	id string
	fn HandlerFunc[I]
}

// NewFuncExecutor creates an executor from fn.
func NewFuncExecutor[I, O any](id string, fn HandlerFunc[I]) *FuncExecutor[I, O] {
	return &FuncExecutor[I, O]{id: id, fn: fn}
}

// NewTransformExecutor creates an executor that forwards fn's result.
func NewTransformExecutor[I, O any](id string, fn func(ctx context.Context, input I) (O, error)) *FuncExecutor[I, O] {
	return NewFuncExecutor[I, O](id, func(ctx context.Context, input I, _ *RunContext) (EmitResult, error) {
		out, err := fn(ctx, input)
		if err != nil {
			return EmitResult{}, err
		}
		return Forward(out), nil
	})
}

// NewOutputExecutor creates an executor that yields fn's result as the
// run output.
func NewOutputExecutor[I, O any](id string, fn func(ctx context.Context, input I) (O, error)) *FuncExecutor[I, O] {
	return NewFuncExecutor[I, O](id, func(ctx context.Context, input I, _ *RunContext) (EmitResult, error) {
		out, err := fn(ctx, input)
		if err != nil {
			return EmitResult{}, err
		}
		return Yield(out), nil
	})
}

// ID returns the executor id.
func (e *FuncExecutor[I, O]) ID() string { return e.id }

// InputType returns I.
func (e *FuncExecutor[I, O]) InputType() reflect.Type { return reflect.TypeFor[I]() }

// OutputType returns O.
func (e *FuncExecutor[I, O]) OutputType() reflect.Type { return reflect.TypeFor[O]() }

// Handle casts input to I and calls the wrapped function.
func (e *FuncExecutor[I, O]) Handle(ctx context.Context, input any, rc *RunContext) (EmitResult, error) {
	var in I
	if input != nil {
		v, ok := input.(I)
		if !ok {
			return EmitResult{}, fmt.Errorf("executor %s: unexpected input type %T, want %s", e.id, input, reflect.TypeFor[I]())
		}
		in = v
	}

	res, err := e.fn(ctx, in, rc)
	if err != nil {
		return EmitResult{}, err
	}
	if res.Kind == EmitForward && res.Payload != nil {
		if _, ok := res.Payload.(O); !ok {
			return EmitResult{}, fmt.Errorf("executor %s: emitted %T, declared %s", e.id, res.Payload, reflect.TypeFor[O]())
		}
	}
	return res, nil
}

// declaredTypes returns the declared types of exec, if any.
func declaredTypes(exec Executor) (in, out reflect.Type, ok bool) {
	typed, ok := exec.(TypedExecutor)
	if !ok {
		return nil, nil, false
	}
	return typed.InputType(), typed.OutputType(), true
}

// assignable reports whether a value of type from can be delivered to an
// input of type to. A nil type means untyped and is always compatible.
func assignable(from, to reflect.Type) bool {
	if from == nil || to == nil {
		return true
	}
	if from.AssignableTo(to) {
		return true
	}
	// interface outputs are checked at runtime
	return from.Kind() == reflect.Interface
}
