// =============================================================================
// Dataflow 命令行入口
// =============================================================================
// 运行内置工作流、从检查点恢复、管理检查点与数据库迁移
//
// 使用方法:
//
//	dataflow run --workflow stats --input 1,2,3        # 运行工作流
//	dataflow run --workflow text --input "hello" -v    # 打印事件流
//	dataflow resume <checkpoint-id>                    # 从检查点恢复
//	dataflow checkpoints list --workflow stats         # 列出检查点
//	dataflow migrate up --config dataflow.yaml         # 运行数据库迁移
//	dataflow version                                   # 显示版本信息
//
// =============================================================================
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/dataflow/config"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stdout)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	if err := dispatch(ctx, os.Args[1], os.Args[2:], os.Stdout); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func dispatch(ctx context.Context, command string, args []string, stdout io.Writer) error {
	switch command {
	case "run":
		return runWorkflow(ctx, args, stdout)
	case "resume":
		return runResume(ctx, args, stdout)
	case "checkpoints":
		return runCheckpoints(ctx, args, stdout)
	case "migrate":
		return runMigrate(ctx, args, stdout)
	case "version":
		printVersion(stdout)
		return nil
	case "help", "-h", "--help":
		printUsage(stdout)
		return nil
	default:
		printUsage(stdout)
		return fmt.Errorf("unknown command: %s", command)
	}
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "Dataflow %s\n", Version)
	fmt.Fprintf(w, "  Build Time: %s\n", BuildTime)
	fmt.Fprintf(w, "  Git Commit: %s\n", GitCommit)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `Dataflow - durable dataflow workflow engine

Usage:
  dataflow <command> [options]

Commands:
  run           Run a built-in workflow
  resume        Resume a run from a checkpoint
  checkpoints   List, show or delete checkpoints
  migrate       Database migration commands
  version       Show version information
  help          Show this help message

Options for 'run':
  --workflow <name>      stats or text
  --input <value>        stats: 1,2,3 or [1,2,3]; text: any string
  --config <path>        Path to configuration file (YAML)
  --metrics-addr <addr>  Serve /metrics and /healthz while running
  -v                     Print every run event

Options for 'resume':
  dataflow resume <checkpoint-id> [--config <path>] [-v]

Checkpoint subcommands:
  checkpoints list [--workflow <name>]
  checkpoints show <checkpoint-id>
  checkpoints delete <checkpoint-id>

Migration subcommands:
  migrate up | down | steps <n> | force <v> | version | status | info
  [--config <path>] [--db-type <type>] [--db-url <url>]

Interrupt a running workflow once (Ctrl-C) to suspend it at the next
superstep boundary; interrupt again to abort.

Examples:
  dataflow run --workflow stats --input 1,2,3,4,5,6
  dataflow checkpoints list --config dataflow.yaml
  dataflow resume 0193c2a4-... --config dataflow.yaml
  dataflow migrate up --db-type postgres --db-url postgres://localhost/dataflow`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stderr"}
	}

	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       encoding == "console",
		Encoding:          encoding,
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
	}

	logger, err := zapConfig.Build()
	if err != nil {
		// 回退到基本 logger
		logger, _ = zap.NewProduction()
	}
	return logger
}
