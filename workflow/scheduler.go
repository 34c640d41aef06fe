package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// runner drives one run through its supersteps.
type runner struct {
	wf     *Workflow
	graph  *Graph
	opts   runOptions
	run    *Run
	logger *zap.Logger

	queue       []Message
	fanIn       *fanInState
	shared      *SharedState
	superstep   int
	resumedFrom string

	releaseOnce sync.Once
}

// terminalGrace bounds how long the terminal event of a cancelled run
// waits for a reader.
const terminalGrace = 2 * time.Second

// invocation is one executor call within a superstep.
type invocation struct {
	executorID string
	input      any
	rc         *RunContext
	result     EmitResult
	err        error
	ran        bool
}

// loop runs supersteps until the run reaches a terminal state.
func (r *runner) loop(ctx context.Context) {
	started := time.Now()
	ctx, span := r.wf.tracer.Start(ctx, "workflow.run", trace.WithAttributes(
		attribute.String("workflow.id", r.wf.name),
		attribute.String("workflow.run_id", r.run.ID()),
		attribute.Int("workflow.superstep", r.superstep),
	))

	defer func() {
		state := r.run.State()
		if err := r.run.Err(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		r.opts.metrics.RecordRun(r.wf.name, state, time.Since(started))
		r.logger.Info("workflow run finished",
			zap.String("state", string(state)),
			zap.Int("supersteps", r.superstep),
			zap.Duration("duration", time.Since(started)),
		)

		r.releaseWorkflow()
		close(r.run.events)
		close(r.run.done)
	}()

	r.run.setState(RunRunning)

	for {
		if len(r.queue) == 0 {
			r.complete(ctx, nil, false)
			return
		}
		if ctx.Err() != nil {
			r.fail(ctx, "", ErrRunCancelled)
			return
		}

		if done := r.step(ctx); done {
			return
		}
		r.superstep++

		// Superstep boundary.
		if len(r.queue) == 0 {
			r.complete(ctx, nil, false)
			return
		}
		if ctx.Err() != nil {
			r.fail(ctx, "", ErrRunCancelled)
			return
		}
		if r.run.suspendRequested() {
			if id, ok := r.saveCheckpoint(ctx, ReasonSuspend); ok {
				r.logger.Info("workflow run suspended",
					zap.Int("superstep", r.superstep),
					zap.String("checkpoint_id", id),
				)
				r.run.finish(RunSuspended, nil, false, nil)
				return
			}
			continue
		}
		if r.opts.store != nil && r.opts.policy.due(r.superstep) {
			r.saveCheckpoint(ctx, ReasonSuperstep)
		}
	}
}

// step processes one superstep and reports whether the run ended.
func (r *runner) step(ctx context.Context) bool {
	started := time.Now()
	msgs := r.queue
	r.queue = nil
	sortMessages(msgs)
	defer func() {
		r.opts.metrics.RecordSuperstep(r.wf.name, len(msgs), time.Since(started))
	}()

	ctx, span := r.wf.tracer.Start(ctx, "workflow.superstep", trace.WithAttributes(
		attribute.Int("workflow.superstep", r.superstep),
		attribute.Int("workflow.messages", len(msgs)),
	))
	defer span.End()

	r.logger.Debug("superstep started",
		zap.Int("superstep", r.superstep),
		zap.Int("messages", len(msgs)),
	)

	invocations := make([]*invocation, 0, len(msgs))
	for _, msg := range msgs {
		r.emit(ctx, Event{
			Type:       EventMessageDelivered,
			ExecutorID: msg.TargetID,
			SourceID:   msg.SourceID,
			Payload:    msg.Payload,
		})

		if r.graph.IsFanInTarget(msg.TargetID) {
			payloads, fired := r.fanIn.deliver(msg)
			if !fired {
				continue
			}
			invocations = append(invocations, &invocation{
				executorID: msg.TargetID,
				input:      r.fanInInput(msg.TargetID, payloads),
			})
			continue
		}
		invocations = append(invocations, &invocation{executorID: msg.TargetID, input: msg.Payload})
	}

	r.execute(ctx, invocations)

	for i, inv := range invocations {
		if !inv.ran {
			break
		}
		if inv.err != nil {
			span.SetStatus(codes.Error, inv.err.Error())
			r.fail(ctx, inv.executorID, inv.err)
			return true
		}

		r.emit(ctx, Event{
			Type:       EventExecutorEmitted,
			ExecutorID: inv.executorID,
			Kind:       inv.result.Kind,
			Payload:    inv.result.Payload,
		})

		switch inv.result.Kind {
		case EmitForward:
			for _, target := range r.graph.Targets(inv.executorID) {
				r.queue = append(r.queue, Message{
					TargetID:   target,
					SourceID:   inv.executorID,
					Payload:    inv.result.Payload,
					ProducedAt: r.superstep,
				})
			}
		case EmitYield:
			r.commitState(invocations[:i+1])
			r.complete(ctx, inv.result.Payload, true)
			return true
		}
	}

	r.commitState(invocations)
	return false
}

// execute runs the invocations of a superstep. In sequential mode it stops
// at the first failure or yield. In parallel mode invocations are grouped
// by executor: groups run concurrently, each group serially in delivery
// order, and the merge in step applies the sequential ordering.
func (r *runner) execute(ctx context.Context, invocations []*invocation) {
	if r.opts.maxConcurrency <= 1 || len(invocations) < 2 {
		r.invokeSerially(ctx, invocations)
		return
	}

	var g errgroup.Group
	g.SetLimit(r.opts.maxConcurrency)
	for _, group := range groupByExecutor(invocations) {
		g.Go(func() error {
			r.invokeSerially(ctx, group)
			return nil
		})
	}
	_ = g.Wait()
}

func (r *runner) invokeSerially(ctx context.Context, invocations []*invocation) {
	for _, inv := range invocations {
		r.invoke(ctx, inv)
		if inv.err != nil || inv.result.Kind == EmitYield {
			return
		}
	}
}

// groupByExecutor splits invocations per executor id, keeping first-seen
// group order and delivery order within a group.
func groupByExecutor(invocations []*invocation) [][]*invocation {
	index := make(map[string]int)
	var groups [][]*invocation
	for _, inv := range invocations {
		i, ok := index[inv.executorID]
		if !ok {
			i = len(groups)
			index[inv.executorID] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], inv)
	}
	return groups
}

// invoke calls a single executor, converting panics into failures.
func (r *runner) invoke(ctx context.Context, inv *invocation) {
	exec, _ := r.graph.Executor(inv.executorID)
	logger := r.logger.With(zap.String("executor_id", inv.executorID))
	inv.rc = newRunContext(r.wf.name, r.run.ID(), inv.executorID, r.superstep, r.shared, logger)

	ctx, span := r.wf.tracer.Start(ctx, "workflow.executor", trace.WithAttributes(
		attribute.String("workflow.executor_id", inv.executorID),
		attribute.Int("workflow.superstep", r.superstep),
	))
	started := time.Now()

	defer func() {
		if p := recover(); p != nil {
			inv.err = fmt.Errorf("panic: %v", p)
		}
		if inv.err != nil {
			inv.err = &ExecutorFailure{ExecutorID: inv.executorID, Superstep: r.superstep, Cause: inv.err}
			span.RecordError(inv.err)
			span.SetStatus(codes.Error, inv.err.Error())
		}
		span.End()
		inv.ran = true
		r.opts.metrics.RecordExecutor(r.wf.name, inv.executorID, time.Since(started), inv.err)
	}()

	inv.result, inv.err = exec.Handle(withRunContext(ctx, inv.rc), inv.input, inv.rc)
}

// fanInInput converts the ordered payload list into the slice type the
// target declares, when it declares one.
func (r *runner) fanInInput(target string, payloads []any) any {
	exec, _ := r.graph.Executor(target)
	in, _, ok := declaredTypes(exec)
	if !ok || in.Kind() != reflect.Slice || in == reflect.TypeOf(payloads) {
		return payloads
	}

	out := reflect.MakeSlice(in, len(payloads), len(payloads))
	for i, p := range payloads {
		if p == nil {
			continue
		}
		v := reflect.ValueOf(p)
		if !v.Type().AssignableTo(in.Elem()) {
			// leave the mismatch for the executor to report
			return payloads
		}
		out.Index(i).Set(v)
	}
	return out.Interface()
}

// commitState applies staged shared state writes. Executors are applied in
// descending id order so the lowest id wins a conflicting key; repeated
// invocations of one executor keep their delivery order.
func (r *runner) commitState(invocations []*invocation) {
	ran := make([]*invocation, 0, len(invocations))
	for _, inv := range invocations {
		if inv.ran && inv.rc != nil && len(inv.rc.writes) > 0 {
			ran = append(ran, inv)
		}
	}
	sort.SliceStable(ran, func(i, j int) bool {
		return ran[i].executorID > ran[j].executorID
	})
	for _, inv := range ran {
		r.shared.apply(inv.rc.writes)
	}
}

// saveCheckpoint persists the boundary state. Store failures are logged
// and the run continues.
func (r *runner) saveCheckpoint(ctx context.Context, reason string) (string, bool) {
	if r.opts.store == nil {
		return "", false
	}

	started := time.Now()
	cp, err := r.snapshot(ctx, reason)
	var id string
	if err == nil {
		id, err = r.opts.store.Save(ctx, cp)
	}
	r.opts.metrics.RecordCheckpoint(r.wf.name, time.Since(started), err)

	if err != nil {
		storeErr := &CheckpointStoreError{Op: "save", CheckpointID: cp.idOrEmpty(), Cause: err}
		r.logger.Warn("checkpoint save failed, continuing run",
			zap.Int("superstep", r.superstep),
			zap.String("reason", reason),
			zap.Error(storeErr),
		)
		return "", false
	}

	r.run.setCheckpoint(id)
	r.logger.Debug("checkpoint saved",
		zap.Int("superstep", r.superstep),
		zap.String("checkpoint_id", id),
		zap.String("reason", reason),
	)
	r.emit(ctx, Event{Type: EventCheckpointSaved, CheckpointID: id})
	return id, true
}

// snapshot captures the boundary state.
func (r *runner) snapshot(ctx context.Context, reason string) (*Checkpoint, error) {
	cp := &Checkpoint{
		ID:             uuid.NewString(),
		WorkflowID:     r.wf.name,
		CreatedAt:      time.Now().UTC(),
		SuperstepIndex: r.superstep,
		ExecutorStates: make(map[string][]byte),
		SharedState:    r.shared.snapshot(),
		Metadata: map[string]any{
			MetadataRunID:  r.run.ID(),
			MetadataReason: reason,
		},
		Version: CheckpointSchemaVersion,
	}
	if r.resumedFrom != "" {
		cp.Metadata[MetadataResumedFrom] = r.resumedFrom
	}

	for _, msg := range r.queue {
		raw, typeName, err := r.encodePayload(msg.Payload)
		if err != nil {
			return cp, fmt.Errorf("encode payload for %s: %w", msg.TargetID, err)
		}
		cp.PendingMessages = append(cp.PendingMessages, MessageRecord{
			TargetID:    msg.TargetID,
			SourceID:    msg.SourceID,
			Payload:     raw,
			PayloadType: typeName,
			ProducedAt:  msg.ProducedAt,
		})
	}

	for _, snap := range r.fanIn.records() {
		rec := FanInRecord{TargetID: snap.targetID, Generation: snap.generation}
		for i, src := range snap.sources {
			raw, typeName, err := r.encodePayload(snap.payloads[i])
			if err != nil {
				return cp, fmt.Errorf("encode fan-in payload for %s: %w", snap.targetID, err)
			}
			rec.Contributions = append(rec.Contributions, FanInContribution{SourceID: src, Payload: raw, PayloadType: typeName})
		}
		cp.FanInBuffers = append(cp.FanInBuffers, rec)
	}

	for _, id := range r.graph.order {
		stateful, ok := r.graph.executors[id].(StatefulExecutor)
		if !ok {
			continue
		}
		state, err := stateful.SaveState(ctx)
		if err != nil {
			return cp, fmt.Errorf("save state of %s: %w", id, err)
		}
		cp.ExecutorStates[id] = state
	}

	return cp, nil
}

// encodePayload serializes p and returns the name of its Go type.
func (r *runner) encodePayload(p any) (json.RawMessage, string, error) {
	raw, err := json.Marshal(p)
	if err != nil || p == nil {
		return raw, "", err
	}
	t := reflect.TypeOf(p)
	if registerPayloadType(t) && lossyPayloadType(t) {
		r.logger.Warn("payload type has unexported fields that checkpoints do not capture",
			zap.String("payload_type", payloadTypeName(t)),
		)
	}
	return raw, payloadTypeName(t), nil
}

func (c *Checkpoint) idOrEmpty() string {
	if c == nil {
		return ""
	}
	return c.ID
}

// complete and fail record the outcome and free the workflow before the
// terminal event is sent, so a consumer that stopped reading cannot keep
// the workflow busy.
func (r *runner) complete(ctx context.Context, output any, hasOutput bool) {
	r.run.finish(RunCompleted, output, hasOutput, nil)
	r.releaseWorkflow()
	if hasOutput {
		r.emitTerminal(ctx, Event{Type: EventOutputProduced, Payload: output})
	}
}

func (r *runner) fail(ctx context.Context, executorID string, err error) {
	r.logger.Error("workflow run failed",
		zap.String("executor_id", executorID),
		zap.Int("superstep", r.superstep),
		zap.Error(err),
	)
	r.run.finish(RunFailed, nil, false, err)
	r.releaseWorkflow()
	r.emitTerminal(ctx, Event{Type: EventRunFailed, ExecutorID: executorID, Err: err})
}

func (r *runner) releaseWorkflow() {
	r.releaseOnce.Do(r.wf.release)
}

func (r *runner) stamp(ev *Event) {
	ev.WorkflowID = r.wf.name
	ev.RunID = r.run.ID()
	ev.Superstep = r.superstep
	ev.Timestamp = time.Now()
}

// emitTerminal sends the last event of a run. While ctx is live it waits
// for the reader; once ctx is done the reader gets terminalGrace to take
// it, after which the event is dropped.
func (r *runner) emitTerminal(ctx context.Context, ev Event) {
	r.stamp(&ev)

	select {
	case r.run.events <- ev:
		return
	case <-ctx.Done():
	}

	timer := time.NewTimer(terminalGrace)
	defer timer.Stop()
	select {
	case r.run.events <- ev:
	case <-timer.C:
		r.logger.Warn("terminal event dropped, event stream not drained",
			zap.String("event", string(ev.Type)),
		)
	}
}

// emit sends an intermediate event. If the consumer stopped reading and
// ctx is done, the event is dropped.
func (r *runner) emit(ctx context.Context, ev Event) {
	r.stamp(&ev)

	select {
	case r.run.events <- ev:
		return
	default:
	}
	select {
	case r.run.events <- ev:
	case <-ctx.Done():
	}
}
