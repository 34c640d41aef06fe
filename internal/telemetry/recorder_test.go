package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/BaSui01/dataflow/workflow"
)

func TestRecorder_ExportsInstruments(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	rec, err := NewRecorder(mp.Meter("test"))
	require.NoError(t, err)

	rec.RecordRun("stats", workflow.RunCompleted, time.Second)
	rec.RecordSuperstep("stats", 2, time.Millisecond)
	rec.RecordExecutor("stats", "sum", time.Millisecond, nil)
	rec.RecordExecutor("stats", "sum", time.Millisecond, errors.New("boom"))
	rec.RecordCheckpoint("stats", time.Millisecond, nil)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	byName := map[string]metricdata.Metrics{}
	for _, m := range rm.ScopeMetrics[0].Metrics {
		byName[m.Name] = m
	}
	for _, name := range []string{
		"dataflow.workflow.runs",
		"dataflow.workflow.run.duration",
		"dataflow.workflow.supersteps",
		"dataflow.workflow.superstep.messages",
		"dataflow.executor.invocations",
		"dataflow.executor.duration",
		"dataflow.checkpoint.writes",
	} {
		assert.Contains(t, byName, name)
	}

	invocations, ok := byName["dataflow.executor.invocations"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	assert.Len(t, invocations.DataPoints, 2, "success and error series")
}

func TestProviders_MetricsRecorder(t *testing.T) {
	var p *Providers
	assert.Nil(t, p.MetricsRecorder())
	assert.Nil(t, (&Providers{}).MetricsRecorder())
}
