// =============================================================================
// Dataflow OpenTelemetry 初始化
// =============================================================================
// Exports workflow spans (workflow.run / workflow.superstep / workflow.executor)
// and the Recorder instruments over OTLP gRPC. The resource describes the
// engine settings and the checkpoint backend so traces from different
// deployments can be told apart. Disabled telemetry leaves the global noop
// providers in place.
// =============================================================================

package telemetry

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/BaSui01/dataflow/config"
	"github.com/BaSui01/dataflow/workflow"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/zap"
)

// Resource attribute keys describing the engine.
const (
	AttrCheckpointStore  = attribute.Key("dataflow.checkpoint.store")
	AttrCheckpointPolicy = attribute.Key("dataflow.engine.checkpoint_policy")
	AttrMaxConcurrency   = attribute.Key("dataflow.engine.max_concurrency")
)

// durationBuckets (seconds) cover sub-millisecond executors up to
// long-running chat calls.
var durationBuckets = []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60}

// Option adds engine details to the telemetry resource.
type Option func(*[]attribute.KeyValue)

// WithEngine records the scheduler settings.
func WithEngine(engine config.EngineConfig) Option {
	return func(attrs *[]attribute.KeyValue) {
		*attrs = append(*attrs,
			AttrCheckpointPolicy.String(engine.CheckpointPolicy),
			AttrMaxConcurrency.Int(engine.MaxConcurrency),
		)
	}
}

// WithCheckpointStore records the checkpoint backend type.
func WithCheckpointStore(storeType string) Option {
	return func(attrs *[]attribute.KeyValue) {
		*attrs = append(*attrs, AttrCheckpointStore.String(storeType))
	}
}

// Providers holds the SDK providers installed by Init. Zero-value
// Providers (telemetry disabled) are valid and Shutdown is a no-op.
type Providers struct {
	tp       *sdktrace.TracerProvider
	mp       *sdkmetric.MeterProvider
	recorder *Recorder
}

// Init installs global trace and meter providers exporting to
// cfg.OTLPEndpoint and creates the workflow Recorder on them.
func Init(cfg config.TelemetryConfig, logger *zap.Logger, opts ...Option) (*Providers, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "telemetry"))

	if !cfg.Enabled {
		logger.Info("telemetry disabled, workflow spans are not exported")
		return &Providers{}, nil
	}

	ctx := context.Background()
	res, err := newResource(ctx, cfg, opts...)
	if err != nil {
		return nil, err
	}

	spanExporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create span exporter: %w", err)
	}
	metricExporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}

	// Child spans follow the run span's decision so a sampled run is
	// exported with all of its supersteps.
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(spanExporter),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))),
	)
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
		sdkmetric.WithView(durationView()),
	)

	recorder, err := NewRecorder(mp.Meter(instrumentationName))
	if err != nil {
		return nil, errors.Join(
			fmt.Errorf("failed to create workflow instruments: %w", err),
			tp.Shutdown(ctx),
			mp.Shutdown(ctx),
		)
	}

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("telemetry initialized",
		zap.String("endpoint", cfg.OTLPEndpoint),
		zap.String("service_name", cfg.ServiceName),
		zap.Float64("sample_rate", cfg.SampleRate),
		zap.String("attributes", describe(res)),
	)
	return &Providers{tp: tp, mp: mp, recorder: recorder}, nil
}

// newResource describes this process: service identity plus the engine
// details passed as options.
func newResource(ctx context.Context, cfg config.TelemetryConfig, opts ...Option) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceNameKey.String(cfg.ServiceName),
		semconv.ServiceVersionKey.String(buildVersion()),
		semconv.ServiceNamespaceKey.String("dataflow"),
	}
	for _, opt := range opts {
		opt(&attrs)
	}

	res, err := resource.New(ctx,
		resource.WithTelemetrySDK(),
		resource.WithHost(),
		resource.WithAttributes(attrs...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create otel resource: %w", err)
	}
	return res, nil
}

// durationView applies durationBuckets to every dataflow *.duration
// histogram.
func durationView() sdkmetric.View {
	return sdkmetric.NewView(
		sdkmetric.Instrument{Name: "dataflow.*.duration"},
		sdkmetric.Stream{Aggregation: sdkmetric.AggregationExplicitBucketHistogram{Boundaries: durationBuckets}},
	)
}

func describe(res *resource.Resource) string {
	var parts []string
	for _, kv := range res.Attributes() {
		if strings.HasPrefix(string(kv.Key), "dataflow.") {
			parts = append(parts, fmt.Sprintf("%s=%s", kv.Key, kv.Value.Emit()))
		}
	}
	return strings.Join(parts, ",")
}

// MetricsRecorder returns the OTel-backed workflow recorder, or nil when
// telemetry is disabled.
func (p *Providers) MetricsRecorder() workflow.MetricsRecorder {
	if p == nil || p.recorder == nil {
		return nil
	}
	return p.recorder
}

// Shutdown flushes buffered spans and metrics.
func (p *Providers) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var errs []error
	if p.tp != nil {
		if err := p.tp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shut down tracer provider: %w", err))
		}
	}
	if p.mp != nil {
		if err := p.mp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shut down meter provider: %w", err))
		}
	}
	return errors.Join(errs...)
}

// buildVersion is the main module version, or "dev" for local builds.
func buildVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev"
}
