// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的工作流引擎指标采集能力。

# 概述

Collector 实现 workflow.MetricsRecorder，通过 WithMetrics 运行选项
注入调度器。指标使用 promauto.With 注册到指定 Registry，按 namespace
隔离，并以 workflow/executor 等 label 分组。

# 主要能力

  - 运行指标：结束运行计数（按最终状态）与运行耗时。
  - 超步指标：超步计数、每超步投递消息数与超步耗时。
  - 执行器指标：调用计数（success/error）与调用耗时。
  - 检查点指标：写入计数（success/error）与写入耗时。
  - 数据库指标：SQL 检查点存储连接池的打开/空闲连接数。
  - Tee：将同一组测量同时发送给多个 MetricsRecorder。
*/
package metrics
