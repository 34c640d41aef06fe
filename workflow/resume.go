package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"sort"

	"go.uber.org/zap"
)

// Resume continues a run from a checkpoint held in store. The checkpoint
// is validated and every payload decoded before any executor state is
// restored, so a rejected resume leaves the workflow untouched. Further
// checkpoints of the resumed run are written to store.
func (w *Workflow) Resume(ctx context.Context, checkpointID string, store CheckpointStore, opts ...RunOption) (*Run, error) {
	if store == nil {
		return nil, &ResumeError{Kind: ResumeStoreFailed, CheckpointID: checkpointID, Cause: ErrCheckpointingDisabled}
	}
	if err := w.acquire(); err != nil {
		return nil, err
	}

	r, err := w.prepareResume(ctx, checkpointID, store, opts)
	if err != nil {
		w.release()
		w.logger.Warn("resume rejected",
			zap.String("checkpoint_id", checkpointID),
			zap.Error(err),
		)
		return nil, err
	}

	w.logger.Info("resuming workflow run",
		zap.String("run_id", r.run.ID()),
		zap.String("checkpoint_id", checkpointID),
		zap.Int("superstep", r.superstep),
		zap.Int("pending_messages", len(r.queue)),
		zap.Int("pending_fanin", r.fanIn.pending()),
	)

	go r.loop(ctx)
	return r.run, nil
}

func (w *Workflow) prepareResume(ctx context.Context, checkpointID string, store CheckpointStore, opts []RunOption) (*runner, error) {
	cp, err := store.Load(ctx, checkpointID)
	if err != nil {
		if errors.Is(err, ErrCheckpointNotFound) {
			return nil, &ResumeError{Kind: ResumeNotFound, CheckpointID: checkpointID, Cause: err}
		}
		return nil, &ResumeError{
			Kind:         ResumeStoreFailed,
			CheckpointID: checkpointID,
			Cause:        &CheckpointStoreError{Op: "load", CheckpointID: checkpointID, Cause: err},
		}
	}

	if cp.Version != CheckpointSchemaVersion {
		return nil, &ResumeError{
			Kind:         ResumeSchemaVersionMismatch,
			CheckpointID: checkpointID,
			Detail:       fmt.Sprintf("checkpoint version %q, engine version %q", cp.Version, CheckpointSchemaVersion),
		}
	}
	if cp.WorkflowID != w.name {
		return nil, &ResumeError{
			Kind:         ResumeWorkflowMismatch,
			CheckpointID: checkpointID,
			Detail:       fmt.Sprintf("checkpoint belongs to %q, workflow is %q", cp.WorkflowID, w.name),
		}
	}
	if err := w.checkExecutors(cp); err != nil {
		return nil, err
	}

	queue, err := w.decodeMessages(cp)
	if err != nil {
		return nil, err
	}
	buffers, err := w.decodeFanIn(cp)
	if err != nil {
		return nil, err
	}

	// Restoring mutates executors, so it runs last.
	if err := w.restoreStates(ctx, checkpointID, cp.ExecutorStates); err != nil {
		return nil, err
	}

	o := w.options(append([]RunOption{WithCheckpointStore(store)}, opts...))
	r := w.newRunner(o)
	r.queue = queue
	r.fanIn.restore(buffers)
	r.shared = sharedStateFrom(cp.SharedState)
	r.superstep = cp.SuperstepIndex
	r.resumedFrom = cp.ID
	return r, nil
}

// restoreStates applies saved executor states in id order. The current
// state of every affected executor is captured first; if any restore
// fails, the executors already restored are put back.
func (w *Workflow) restoreStates(ctx context.Context, checkpointID string, states map[string][]byte) error {
	ids := make([]string, 0, len(states))
	for id := range states {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	previous := make(map[string][]byte, len(ids))
	for _, id := range ids {
		prev, err := w.graph.executors[id].(StatefulExecutor).SaveState(ctx)
		if err != nil {
			return &ResumeError{
				Kind:         ResumeRestoreFailed,
				CheckpointID: checkpointID,
				Detail:       fmt.Sprintf("capture current state of %s", id),
				Cause:        err,
			}
		}
		previous[id] = prev
	}

	for i, id := range ids {
		stateful := w.graph.executors[id].(StatefulExecutor)
		if err := stateful.RestoreState(ctx, states[id]); err != nil {
			for _, done := range ids[:i] {
				if rbErr := w.graph.executors[done].(StatefulExecutor).RestoreState(ctx, previous[done]); rbErr != nil {
					w.logger.Error("failed to roll back executor state",
						zap.String("checkpoint_id", checkpointID),
						zap.String("executor_id", done),
						zap.Error(rbErr),
					)
				}
			}
			return &ResumeError{Kind: ResumeRestoreFailed, CheckpointID: checkpointID, Detail: id, Cause: err}
		}
	}
	return nil
}

// checkExecutors rejects checkpoints that mention executors this graph
// does not have.
func (w *Workflow) checkExecutors(cp *Checkpoint) error {
	unknown := func(detail string) error {
		return &ResumeError{Kind: ResumeUnknownExecutor, CheckpointID: cp.ID, Detail: detail}
	}

	for _, msg := range cp.PendingMessages {
		if _, ok := w.graph.executors[msg.TargetID]; !ok {
			return unknown(fmt.Sprintf("pending message targets %s", msg.TargetID))
		}
		if msg.SourceID != "" {
			if _, ok := w.graph.executors[msg.SourceID]; !ok {
				return unknown(fmt.Sprintf("pending message from %s", msg.SourceID))
			}
		}
	}

	for _, rec := range cp.FanInBuffers {
		edge, ok := w.graph.fanIn[rec.TargetID]
		if !ok {
			return unknown(fmt.Sprintf("fan-in buffer for %s", rec.TargetID))
		}
		for _, c := range rec.Contributions {
			if !slices.Contains(edge.Sources, c.SourceID) {
				return unknown(fmt.Sprintf("fan-in contribution from %s to %s", c.SourceID, rec.TargetID))
			}
		}
	}

	for id := range cp.ExecutorStates {
		exec, ok := w.graph.executors[id]
		if !ok {
			return unknown(fmt.Sprintf("state for %s", id))
		}
		if _, ok := exec.(StatefulExecutor); !ok {
			return unknown(fmt.Sprintf("state for %s, which keeps no state", id))
		}
	}
	return nil
}

func (w *Workflow) decodeMessages(cp *Checkpoint) ([]Message, error) {
	queue := make([]Message, 0, len(cp.PendingMessages))
	for _, rec := range cp.PendingMessages {
		var t reflect.Type
		if w.graph.IsFanInTarget(rec.TargetID) {
			t = w.contributionType(rec.TargetID, rec.SourceID)
		} else if in, _, ok := declaredTypes(w.graph.executors[rec.TargetID]); ok {
			t = in
		}

		t, err := resolvePayloadType(t, rec.PayloadType)
		var payload any
		if err == nil {
			payload, err = decodePayload(rec.Payload, t)
		}
		if err != nil {
			return nil, &ResumeError{
				Kind:         ResumeDecodeFailed,
				CheckpointID: cp.ID,
				Detail:       fmt.Sprintf("message %s -> %s", rec.SourceID, rec.TargetID),
				Cause:        err,
			}
		}
		queue = append(queue, Message{
			TargetID:   rec.TargetID,
			SourceID:   rec.SourceID,
			Payload:    payload,
			ProducedAt: rec.ProducedAt,
		})
	}
	return queue, nil
}

func (w *Workflow) decodeFanIn(cp *Checkpoint) ([]fanInSnapshot, error) {
	snaps := make([]fanInSnapshot, 0, len(cp.FanInBuffers))
	for _, rec := range cp.FanInBuffers {
		snap := fanInSnapshot{targetID: rec.TargetID, generation: rec.Generation}
		for _, c := range rec.Contributions {
			t, err := resolvePayloadType(w.contributionType(rec.TargetID, c.SourceID), c.PayloadType)
			var payload any
			if err == nil {
				payload, err = decodePayload(c.Payload, t)
			}
			if err != nil {
				return nil, &ResumeError{
					Kind:         ResumeDecodeFailed,
					CheckpointID: cp.ID,
					Detail:       fmt.Sprintf("fan-in contribution %s -> %s", c.SourceID, rec.TargetID),
					Cause:        err,
				}
			}
			snap.sources = append(snap.sources, c.SourceID)
			snap.payloads = append(snap.payloads, payload)
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

// contributionType is the type a FanIn contribution decodes into: the
// source's declared output, else the element type the target collects.
func (w *Workflow) contributionType(target, source string) reflect.Type {
	if _, out, ok := declaredTypes(w.graph.executors[source]); ok && out.Kind() != reflect.Interface {
		return out
	}
	if in, _, ok := declaredTypes(w.graph.executors[target]); ok && in.Kind() == reflect.Slice {
		return in.Elem()
	}
	return nil
}

// decodePayload decodes raw into t, or into generic JSON values when t is
// nil.
func decodePayload(raw json.RawMessage, t reflect.Type) (any, error) {
	if t == nil {
		var v any
		if len(raw) == 0 {
			return nil, nil
		}
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	}
	ptr := reflect.New(t)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, ptr.Interface()); err != nil {
			return nil, err
		}
	}
	return ptr.Elem().Interface(), nil
}
