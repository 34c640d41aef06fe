// Package config 提供 Dataflow 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → DATAFLOW_* 环境变量 的顺序加载，
// 覆盖调度引擎、检查点存储、Prometheus 指标、日志与 OpenTelemetry。
package config
