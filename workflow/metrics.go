package workflow

import "time"

// MetricsRecorder receives engine measurements. internal/metrics provides
// a Prometheus implementation.
type MetricsRecorder interface {
	RecordRun(workflowID string, state RunState, duration time.Duration)
	RecordSuperstep(workflowID string, messages int, duration time.Duration)
	RecordExecutor(workflowID, executorID string, duration time.Duration, err error)
	RecordCheckpoint(workflowID string, duration time.Duration, err error)
}

type nopMetrics struct{}

func (nopMetrics) RecordRun(string, RunState, time.Duration)           {}
func (nopMetrics) RecordSuperstep(string, int, time.Duration)          {}
func (nopMetrics) RecordExecutor(string, string, time.Duration, error) {}
func (nopMetrics) RecordCheckpoint(string, time.Duration, error)       {}
