package workflow

import (
	"fmt"
	"reflect"
	"sort"

	"go.uber.org/zap"
)

// WorkflowBuilder provides a fluent API for constructing workflows.
// Problems are collected as the builder is used and reported together by
// Build.
type WorkflowBuilder struct {
	name      string
	desc      string
	start     string
	executors map[string]Executor
	order     []string
	edges     []Edge
	reasons   []string
	opts      []RunOption
	logger    *zap.Logger
}

// NewWorkflowBuilder creates a builder for a workflow named name. The name
// is the workflow id recorded in checkpoints.
func NewWorkflowBuilder(name string) *WorkflowBuilder {
	return &WorkflowBuilder{
		name:      name,
		executors: make(map[string]Executor),
		logger:    zap.NewNop(),
	}
}

// WithDescription sets the workflow description.
func (b *WorkflowBuilder) WithDescription(desc string) *WorkflowBuilder {
	b.desc = desc
	return b
}

// WithLogger sets a custom logger.
func (b *WorkflowBuilder) WithLogger(logger *zap.Logger) *WorkflowBuilder {
	if logger == nil {
		logger = zap.NewNop()
	}
	b.logger = logger
	return b
}

// WithCheckpointStore sets the default checkpoint store of the workflow.
func (b *WorkflowBuilder) WithCheckpointStore(store CheckpointStore) *WorkflowBuilder {
	b.opts = append(b.opts, WithCheckpointStore(store))
	return b
}

// WithOptions sets default run options. Options passed to RunStream or
// Resume are applied after these.
func (b *WorkflowBuilder) WithOptions(opts ...RunOption) *WorkflowBuilder {
	b.opts = append(b.opts, opts...)
	return b
}

// AddExecutor registers an executor.
func (b *WorkflowBuilder) AddExecutor(exec Executor) *WorkflowBuilder {
	if exec == nil {
		b.reasons = append(b.reasons, "nil executor")
		return b
	}
	id := exec.ID()
	if id == "" {
		b.reasons = append(b.reasons, "executor with empty id")
		return b
	}
	if _, exists := b.executors[id]; exists {
		b.reasons = append(b.reasons, fmt.Sprintf("duplicate executor id: %s", id))
		return b
	}
	b.executors[id] = exec
	b.order = append(b.order, id)
	return b
}

// SetStartExecutor sets the executor that receives the run input.
func (b *WorkflowBuilder) SetStartExecutor(id string) *WorkflowBuilder {
	b.start = id
	return b
}

// AddEdge adds a Direct edge.
func (b *WorkflowBuilder) AddEdge(from, to string) *WorkflowBuilder {
	b.edges = append(b.edges, Edge{Kind: EdgeDirect, Sources: []string{from}, Targets: []string{to}})
	return b
}

// AddFanOutEdges broadcasts from's output to every target.
func (b *WorkflowBuilder) AddFanOutEdges(from string, targets ...string) *WorkflowBuilder {
	if len(targets) == 0 {
		b.reasons = append(b.reasons, fmt.Sprintf("fan-out from %s has no targets", from))
		return b
	}
	b.edges = append(b.edges, Edge{Kind: EdgeFanOut, Sources: []string{from}, Targets: append([]string(nil), targets...)})
	return b
}

// AddFanInEdges declares a barrier: target runs once with the ordered list
// of payloads, one from each source.
func (b *WorkflowBuilder) AddFanInEdges(sources []string, target string) *WorkflowBuilder {
	b.edges = append(b.edges, Edge{Kind: EdgeFanIn, Sources: append([]string(nil), sources...), Targets: []string{target}})
	return b
}

// Build validates the graph and creates a Workflow.
func (b *WorkflowBuilder) Build() (*Workflow, error) {
	if err := b.validate(); err != nil {
		b.logger.Warn("workflow validation failed",
			zap.String("workflow", b.name),
			zap.Error(err),
		)
		return nil, err
	}

	g := newGraph()
	g.start = b.start
	g.order = append(g.order, b.order...)
	g.edges = append(g.edges, b.edges...)
	for id, exec := range b.executors {
		g.executors[id] = exec
		if in, out, ok := declaredTypes(exec); ok {
			for _, t := range []reflect.Type{in, out} {
				if registerPayloadType(t) && lossyPayloadType(t) {
					b.logger.Warn("payload type has unexported fields that checkpoints do not capture",
						zap.String("executor_id", id),
						zap.String("payload_type", payloadTypeName(t)),
					)
				}
			}
		}
	}
	g.index()

	wf := newWorkflow(b.name, b.desc, g, b.logger, b.opts)

	b.logger.Info("workflow built successfully",
		zap.String("name", b.name),
		zap.Int("executors", len(g.executors)),
		zap.Int("edges", len(g.edges)),
		zap.String("start", g.start),
	)

	return wf, nil
}

// validate runs every graph check and returns all problems at once.
func (b *WorkflowBuilder) validate() error {
	reasons := append([]string(nil), b.reasons...)

	if len(b.executors) == 0 {
		reasons = append(reasons, "graph has no executors")
	}
	if b.start == "" {
		reasons = append(reasons, "start executor not set")
	} else if _, ok := b.executors[b.start]; !ok {
		reasons = append(reasons, fmt.Sprintf("start executor does not exist: %s", b.start))
	}

	reasons = append(reasons, b.validateEdges()...)

	// Topology checks assume every referenced id exists.
	if len(reasons) == 0 {
		reasons = append(reasons, b.detectUnreachable()...)
		reasons = append(reasons, b.detectFanInDeadlocks()...)
		reasons = append(reasons, b.validateTypes()...)
	}

	if len(reasons) > 0 {
		return &GraphValidationError{Reasons: reasons}
	}
	return nil
}

// validateEdges checks references, FanIn shape and duplicates.
func (b *WorkflowBuilder) validateEdges() []string {
	var reasons []string
	seen := make(map[string]bool)
	fanInTargets := make(map[string]int)
	routedTargets := make(map[string]bool)

	for _, e := range b.edges {
		for _, id := range e.Sources {
			if _, ok := b.executors[id]; !ok {
				reasons = append(reasons, fmt.Sprintf("edge %s references unknown source executor: %s", e, id))
			}
		}
		for _, id := range e.Targets {
			if _, ok := b.executors[id]; !ok {
				reasons = append(reasons, fmt.Sprintf("edge %s references unknown target executor: %s", e, id))
			}
		}

		if seen[e.key()] {
			reasons = append(reasons, fmt.Sprintf("duplicate edge: %s", e))
		}
		seen[e.key()] = true

		switch e.Kind {
		case EdgeDirect, EdgeFanOut:
			if len(e.Sources) != 1 {
				reasons = append(reasons, fmt.Sprintf("edge %s must have exactly one source", e))
			}
			targets := make(map[string]bool)
			for _, t := range e.Targets {
				if targets[t] {
					reasons = append(reasons, fmt.Sprintf("edge %s lists target %s twice", e, t))
				}
				targets[t] = true
				routedTargets[t] = true
			}
		case EdgeFanIn:
			sources := make(map[string]bool)
			for _, s := range e.Sources {
				if sources[s] {
					reasons = append(reasons, fmt.Sprintf("fan-in %s lists source %s twice", e, s))
				}
				sources[s] = true
			}
			if len(sources) < 2 {
				reasons = append(reasons, fmt.Sprintf("fan-in %s needs at least two distinct sources", e))
			}
			if len(e.Targets) != 1 {
				reasons = append(reasons, fmt.Sprintf("fan-in %s must have exactly one target", e))
				continue
			}
			fanInTargets[e.Targets[0]]++
		default:
			reasons = append(reasons, fmt.Sprintf("edge %s has unknown kind", e))
		}
	}

	targets := make([]string, 0, len(fanInTargets))
	for t := range fanInTargets {
		targets = append(targets, t)
	}
	sort.Strings(targets)
	for _, t := range targets {
		if fanInTargets[t] > 1 {
			reasons = append(reasons, fmt.Sprintf("executor %s is the target of %d fan-in edges", t, fanInTargets[t]))
		}
		if routedTargets[t] {
			reasons = append(reasons, fmt.Sprintf("fan-in target %s also receives direct or fan-out edges", t))
		}
		if t == b.start {
			reasons = append(reasons, fmt.Sprintf("start executor %s cannot be a fan-in target", t))
		}
	}

	return reasons
}

// successors returns the routing targets of id, skipping excluded.
func (b *WorkflowBuilder) successors(id, excluded string) []string {
	var out []string
	for _, e := range b.edges {
		if e.Kind == EdgeFanIn {
			for _, s := range e.Sources {
				if s == id && e.Targets[0] != excluded {
					out = append(out, e.Targets[0])
				}
			}
			continue
		}
		if e.Sources[0] != id {
			continue
		}
		for _, t := range e.Targets {
			if t != excluded {
				out = append(out, t)
			}
		}
	}
	return out
}

// markReachable marks every executor reachable from id without passing
// through excluded.
func (b *WorkflowBuilder) markReachable(id, excluded string, reachable map[string]bool) {
	if reachable[id] || id == excluded {
		return
	}
	reachable[id] = true
	for _, next := range b.successors(id, excluded) {
		b.markReachable(next, excluded, reachable)
	}
}

// detectUnreachable reports executors that can never receive a message.
func (b *WorkflowBuilder) detectUnreachable() []string {
	reachable := make(map[string]bool)
	b.markReachable(b.start, "", reachable)

	var orphaned []string
	for _, id := range b.order {
		if !reachable[id] {
			orphaned = append(orphaned, id)
		}
	}
	if len(orphaned) > 0 {
		return []string{fmt.Sprintf("executors not reachable from start: %v", orphaned)}
	}
	return nil
}

// detectFanInDeadlocks reports FanIn sources that can only be reached
// through their own FanIn target, so the barrier could never complete.
func (b *WorkflowBuilder) detectFanInDeadlocks() []string {
	var reasons []string
	for _, e := range b.edges {
		if e.Kind != EdgeFanIn {
			continue
		}
		target := e.Targets[0]
		reachable := make(map[string]bool)
		b.markReachable(b.start, target, reachable)
		for _, src := range e.Sources {
			if !reachable[src] {
				reasons = append(reasons, fmt.Sprintf("fan-in into %s can never complete: source %s is only reachable through %s", target, src, target))
			}
		}
	}
	return reasons
}

// validateTypes checks declared payload types along every edge.
func (b *WorkflowBuilder) validateTypes() []string {
	var reasons []string
	for _, e := range b.edges {
		switch e.Kind {
		case EdgeDirect, EdgeFanOut:
			_, out, ok := declaredTypes(b.executors[e.Sources[0]])
			if !ok {
				continue
			}
			for _, t := range e.Targets {
				in, _, ok := declaredTypes(b.executors[t])
				if ok && !assignable(out, in) {
					reasons = append(reasons, fmt.Sprintf("type mismatch on %s: %s emits %s, %s accepts %s", e, e.Sources[0], out, t, in))
				}
			}
		case EdgeFanIn:
			target := e.Targets[0]
			in, _, ok := declaredTypes(b.executors[target])
			if !ok {
				continue
			}
			if in.Kind() != reflect.Slice {
				if in.Kind() != reflect.Interface {
					reasons = append(reasons, fmt.Sprintf("fan-in target %s must accept a slice, accepts %s", target, in))
				}
				continue
			}
			for _, src := range e.Sources {
				_, out, ok := declaredTypes(b.executors[src])
				if ok && !assignable(out, in.Elem()) {
					reasons = append(reasons, fmt.Sprintf("type mismatch on %s: %s emits %s, %s collects %s", e, src, out, target, in.Elem()))
				}
			}
		}
	}
	return reasons
}
