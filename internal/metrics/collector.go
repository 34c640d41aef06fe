// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/BaSui01/dataflow/internal/database"
	"github.com/BaSui01/dataflow/workflow"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

var _ workflow.MetricsRecorder = (*Collector)(nil)

// Collector 指标收集器, 实现 workflow.MetricsRecorder
type Collector struct {
	// 运行指标
	runsTotal   *prometheus.CounterVec
	runDuration *prometheus.HistogramVec

	// 超步指标
	superstepsTotal   *prometheus.CounterVec
	superstepMessages *prometheus.HistogramVec
	superstepDuration *prometheus.HistogramVec

	// 执行器指标
	executorInvocations *prometheus.CounterVec
	executorDuration    *prometheus.HistogramVec

	// 检查点指标
	checkpointsTotal   *prometheus.CounterVec
	checkpointDuration *prometheus.HistogramVec

	// 数据库指标
	dbConnectionsOpen *prometheus.GaugeVec
	dbConnectionsIdle *prometheus.GaugeVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器. reg 为 nil 时注册到默认 Registry.
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// 运行指标
	c.runsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_runs_total",
			Help:      "Total number of finished workflow runs",
		},
		[]string{"workflow", "state"},
	)

	c.runDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_run_duration_seconds",
			Help:      "Workflow run duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
		[]string{"workflow"},
	)

	// 超步指标
	c.superstepsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_supersteps_total",
			Help:      "Total number of executed supersteps",
		},
		[]string{"workflow"},
	)

	c.superstepMessages = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_superstep_messages",
			Help:      "Messages delivered per superstep",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		},
		[]string{"workflow"},
	)

	c.superstepDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_superstep_duration_seconds",
			Help:      "Superstep duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"workflow"},
	)

	// 执行器指标
	c.executorInvocations = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_executor_invocations_total",
			Help:      "Total number of executor invocations",
		},
		[]string{"workflow", "executor", "status"},
	)

	c.executorDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_executor_duration_seconds",
			Help:      "Executor invocation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"workflow", "executor"},
	)

	// 检查点指标
	c.checkpointsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_checkpoints_total",
			Help:      "Total number of checkpoint writes",
		},
		[]string{"workflow", "status"},
	)

	c.checkpointDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_checkpoint_duration_seconds",
			Help:      "Checkpoint write duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"workflow"},
	)

	// 数据库指标
	c.dbConnectionsOpen = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_open",
			Help:      "Number of open database connections",
		},
		[]string{"database"},
	)

	c.dbConnectionsIdle = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_idle",
			Help:      "Number of idle database connections",
		},
		[]string{"database"},
	)

	return c
}

// =============================================================================
// 🎯 记录方法
// =============================================================================

// RecordRun 记录一次运行结束
func (c *Collector) RecordRun(workflowID string, state workflow.RunState, duration time.Duration) {
	c.runsTotal.WithLabelValues(workflowID, string(state)).Inc()
	c.runDuration.WithLabelValues(workflowID).Observe(duration.Seconds())
}

// RecordSuperstep 记录一个超步
func (c *Collector) RecordSuperstep(workflowID string, messages int, duration time.Duration) {
	c.superstepsTotal.WithLabelValues(workflowID).Inc()
	c.superstepMessages.WithLabelValues(workflowID).Observe(float64(messages))
	c.superstepDuration.WithLabelValues(workflowID).Observe(duration.Seconds())
}

// RecordExecutor 记录一次执行器调用
func (c *Collector) RecordExecutor(workflowID, executorID string, duration time.Duration, err error) {
	c.executorInvocations.WithLabelValues(workflowID, executorID, status(err)).Inc()
	c.executorDuration.WithLabelValues(workflowID, executorID).Observe(duration.Seconds())
}

// RecordCheckpoint 记录一次检查点写入
func (c *Collector) RecordCheckpoint(workflowID string, duration time.Duration, err error) {
	c.checkpointsTotal.WithLabelValues(workflowID, status(err)).Inc()
	c.checkpointDuration.WithLabelValues(workflowID).Observe(duration.Seconds())
	if err != nil {
		c.logger.Debug("checkpoint write failed",
			zap.String("workflow_id", workflowID),
			zap.Error(err),
		)
	}
}

// RecordDBConnections 记录数据库连接数
func (c *Collector) RecordDBConnections(database string, open, idle int) {
	c.dbConnectionsOpen.WithLabelValues(database).Set(float64(open))
	c.dbConnectionsIdle.WithLabelValues(database).Set(float64(idle))
}

// ObservePool reports pool statistics; it satisfies database.StatsObserver.
func (c *Collector) ObservePool(name string, stats database.PoolStats) {
	c.RecordDBConnections(name, stats.OpenConnections, stats.Idle)
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// =============================================================================
// 🔀 组合
// =============================================================================

// Tee fans every measurement out to all non-nil recorders.
func Tee(recorders ...workflow.MetricsRecorder) workflow.MetricsRecorder {
	out := make(tee, 0, len(recorders))
	for _, r := range recorders {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

type tee []workflow.MetricsRecorder

func (t tee) RecordRun(workflowID string, state workflow.RunState, d time.Duration) {
	for _, r := range t {
		r.RecordRun(workflowID, state, d)
	}
}

func (t tee) RecordSuperstep(workflowID string, messages int, d time.Duration) {
	for _, r := range t {
		r.RecordSuperstep(workflowID, messages, d)
	}
}

func (t tee) RecordExecutor(workflowID, executorID string, d time.Duration, err error) {
	for _, r := range t {
		r.RecordExecutor(workflowID, executorID, d, err)
	}
}

func (t tee) RecordCheckpoint(workflowID string, d time.Duration, err error) {
	for _, r := range t {
		r.RecordCheckpoint(workflowID, d, err)
	}
}
