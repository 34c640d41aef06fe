package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/BaSui01/dataflow/config"
	"github.com/BaSui01/dataflow/internal/database"
	"github.com/BaSui01/dataflow/internal/metrics"
	"github.com/BaSui01/dataflow/internal/server"
	"github.com/BaSui01/dataflow/internal/telemetry"
	"github.com/BaSui01/dataflow/persistence"
	"github.com/BaSui01/dataflow/workflow"
)

// =============================================================================
// 🧩 运行时装配
// =============================================================================

// app holds everything a command needs: config, logging, metrics and the
// checkpoint store.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	providers *telemetry.Providers
	registry  *prometheus.Registry
	collector *metrics.Collector
	store     persistence.Store
	ops       *server.Manager
}

// loadConfig loads and validates the configuration at path (may be empty).
func loadConfig(path string) (*config.Config, error) {
	loader := config.NewLoader()
	if path != "" {
		loader = loader.WithConfigPath(path)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// newApp wires the runtime. metricsAddr overrides cfg.Metrics when set.
func newApp(ctx context.Context, configPath, metricsAddr string) (*app, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if metricsAddr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Addr = metricsAddr
	}

	logger := initLogger(cfg.Log)
	a := &app{cfg: cfg, logger: logger}

	a.providers, err = telemetry.Init(cfg.Telemetry, logger,
		telemetry.WithEngine(cfg.Engine),
		telemetry.WithCheckpointStore(string(cfg.Checkpoint.Type)),
	)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.collector = metrics.NewCollector(cfg.Metrics.Namespace, a.registry, logger)

	a.store, err = persistence.NewCheckpointStore(ctx, cfg.Checkpoint, logger,
		database.WithStatsObserver(a.collector.ObservePool),
	)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to open checkpoint store: %w", err)
	}

	if cfg.Metrics.Enabled {
		if err := a.startOps(); err != nil {
			a.close()
			return nil, err
		}
	}

	logger.Debug("dataflow initialized",
		zap.String("version", Version),
		zap.String("checkpoint_store", string(cfg.Checkpoint.Type)),
		zap.Bool("metrics", cfg.Metrics.Enabled),
	)
	return a, nil
}

func (a *app) startOps() error {
	srvCfg := server.DefaultConfig()
	srvCfg.Addr = a.cfg.Metrics.Addr

	a.ops = server.NewManager(
		server.Chain(a.handler(), server.Recovery(a.logger), server.RequestLogger(a.logger)),
		srvCfg, a.logger,
	)
	if err := a.ops.Start(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}
	return nil
}

// runOptions builds run options from the engine config plus store and
// metrics.
func (a *app) runOptions() ([]workflow.RunOption, error) {
	opts, err := a.cfg.Engine.RunOptions()
	if err != nil {
		return nil, err
	}
	return append(opts,
		workflow.WithCheckpointStore(a.store),
		workflow.WithMetrics(metrics.Tee(a.collector, a.providers.MetricsRecorder())),
	), nil
}

// runContext applies the configured run timeout.
func (a *app) runContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.cfg.Engine.RunTimeout > 0 {
		return context.WithTimeout(ctx, a.cfg.Engine.RunTimeout)
	}
	return context.WithCancel(ctx)
}

// handler builds the /metrics and /healthz routes.
func (a *app) handler() http.Handler {
	return server.NewOpsHandler(a.registry, map[string]server.HealthFunc{
		"checkpoint_store": a.store.Ping,
	})
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if a.ops != nil {
		if err := a.ops.Shutdown(ctx); err != nil {
			a.logger.Warn("metrics server shutdown failed", zap.Error(err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("checkpoint store close failed", zap.Error(err))
		}
	}
	if a.providers != nil {
		if err := a.providers.Shutdown(ctx); err != nil {
			a.logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
