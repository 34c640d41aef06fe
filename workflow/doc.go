// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package workflow 提供可持久化的数据流工作流引擎。

# 概述

workflow 包把一组 Executor 通过 Direct / FanOut / FanIn 三种边连接成图，
以 BSP（Bulk Synchronous Parallel）超步方式执行：第 N 轮产生的消息在第
N+1 轮投递。每个超步边界都可以把运行状态写成 Checkpoint，之后可在新的
Workflow 实例（甚至另一个进程）中 Resume 继续执行。

# 核心接口与类型

  - Executor         ：处理单个输入并返回 EmitResult（Forward / Yield / NoOp）
  - StatefulExecutor ：可选，SaveState / RestoreState 参与 Checkpoint
  - TypedExecutor    ：可选，声明输入/输出类型，Build 时做类型兼容校验
  - FuncExecutor     ：泛型函数适配器
  - Edge / Graph     ：边与不可变路由图
  - WorkflowBuilder  ：Fluent API 构建并校验图（GraphValidationError）
  - Workflow / Run   ：RunStream / Resume 返回 Run 句柄与事件流
  - Checkpoint       ：超步边界快照（schema 版本 "1.0"）
  - CheckpointStore  ：追加写入的快照存储接口，内置 InMemoryCheckpointStore

# 主要能力

  - FanIn 屏障：按 (target, generation) 缓冲，集齐全部来源后按声明顺序投递
  - 确定性：每轮按 (target, source, 到达顺序) 排序，并行模式合并结果顺序一致
  - SharedState：每次调用的写入先暂存，轮末提交，同键冲突时 executor id 最小者胜出
  - Checkpoint 策略：每个超步 / 每 N 个超步 / 仅在 Suspend 时
  - 可观测性：zap 结构化日志、OpenTelemetry span、MetricsRecorder 指标钩子
*/
package workflow
