// Package telemetry 封装 OpenTelemetry SDK 初始化逻辑，
// 为 Dataflow 提供集中式的 TracerProvider 和 MeterProvider 配置，
// 并通过 Recorder 将工作流运行、超步、执行器与检查点指标导出到 OTel。
// 当遥测功能禁用时，使用 noop 实现，不连接任何外部服务。
package telemetry
