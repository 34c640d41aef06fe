// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package main 提供 dataflow 命令行程序入口。

# 概述

cmd/dataflow 装配配置加载、zap 日志、OpenTelemetry、Prometheus 指标与
检查点存储，并以子命令形式暴露工作流引擎：

  - run          运行内置工作流（stats、text），可选打印事件流
  - resume       从任意检查点恢复，工作流由检查点的 workflow_id 决定
  - checkpoints  list / show / delete
  - migrate      基于 golang-migrate 的检查点表迁移
  - version      构建信息（Version、BuildTime、GitCommit 通过 ldflags 注入）

运行期间第一次 Ctrl-C 在下一个超步边界挂起并写入检查点，第二次取消运行。
指定 --metrics-addr 或开启 metrics.enabled 时，同时在该地址提供
/metrics 与 /healthz。
*/
package main
