package workflow

import (
	"fmt"
	"strings"
)

// CheckpointMode selects at which superstep boundaries checkpoints are
// written.
type CheckpointMode string

const (
	CheckpointModeEverySuperstep CheckpointMode = "every_superstep"
	CheckpointModeEveryN         CheckpointMode = "every_n"
	CheckpointModeOnSuspend      CheckpointMode = "on_suspend"
	CheckpointModeDisabled       CheckpointMode = "disabled"
)

// CheckpointPolicy decides when a checkpoint is written.
type CheckpointPolicy struct {
	Mode     CheckpointMode
	Interval int
}

// CheckpointEverySuperstep writes a checkpoint at every boundary.
func CheckpointEverySuperstep() CheckpointPolicy {
	return CheckpointPolicy{Mode: CheckpointModeEverySuperstep}
}

// CheckpointEveryN writes a checkpoint every n supersteps.
func CheckpointEveryN(n int) CheckpointPolicy {
	return CheckpointPolicy{Mode: CheckpointModeEveryN, Interval: n}
}

// CheckpointOnSuspend writes a checkpoint only when the run is suspended.
func CheckpointOnSuspend() CheckpointPolicy {
	return CheckpointPolicy{Mode: CheckpointModeOnSuspend}
}

// ParseCheckpointPolicy builds a policy from its configuration form.
func ParseCheckpointPolicy(mode string, interval int) (CheckpointPolicy, error) {
	switch CheckpointMode(strings.ToLower(strings.TrimSpace(mode))) {
	case "", CheckpointModeEverySuperstep:
		return CheckpointEverySuperstep(), nil
	case CheckpointModeEveryN:
		if interval <= 0 {
			return CheckpointPolicy{}, fmt.Errorf("checkpoint interval must be positive, got %d", interval)
		}
		return CheckpointEveryN(interval), nil
	case CheckpointModeOnSuspend:
		return CheckpointOnSuspend(), nil
	case CheckpointModeDisabled:
		return CheckpointPolicy{Mode: CheckpointModeDisabled}, nil
	default:
		return CheckpointPolicy{}, fmt.Errorf("unknown checkpoint policy: %s", mode)
	}
}

// due reports whether the boundary that just produced superstep should be
// checkpointed.
func (p CheckpointPolicy) due(superstep int) bool {
	switch p.Mode {
	case CheckpointModeEverySuperstep, "":
		return true
	case CheckpointModeEveryN:
		return p.Interval > 0 && superstep%p.Interval == 0
	default:
		return false
	}
}

const defaultEventBufferSize = 64

// RunOption configures a run.
type RunOption func(*runOptions)

type runOptions struct {
	store          CheckpointStore
	policy         CheckpointPolicy
	maxConcurrency int
	eventBuffer    int
	metrics        MetricsRecorder
	runID          string
}

func defaultRunOptions() runOptions {
	return runOptions{
		policy:         CheckpointEverySuperstep(),
		maxConcurrency: 1,
		eventBuffer:    defaultEventBufferSize,
		metrics:        nopMetrics{},
	}
}

// WithCheckpointStore sets the store checkpoints are written to. Without
// a store no checkpoints are written.
func WithCheckpointStore(store CheckpointStore) RunOption {
	return func(o *runOptions) { o.store = store }
}

// WithCheckpointPolicy sets the checkpoint cadence.
func WithCheckpointPolicy(p CheckpointPolicy) RunOption {
	return func(o *runOptions) { o.policy = p }
}

// WithMaxConcurrency runs the invocations of up to n executors of a
// superstep in parallel. An executor receiving several messages in one
// superstep handles them one at a time. Values below 1 mean sequential.
func WithMaxConcurrency(n int) RunOption {
	return func(o *runOptions) {
		if n < 1 {
			n = 1
		}
		o.maxConcurrency = n
	}
}

// WithEventBufferSize sets the capacity of the event channel.
func WithEventBufferSize(n int) RunOption {
	return func(o *runOptions) {
		if n >= 0 {
			o.eventBuffer = n
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m MetricsRecorder) RunOption {
	return func(o *runOptions) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithRunID overrides the generated run id.
func WithRunID(id string) RunOption {
	return func(o *runOptions) { o.runID = id }
}
