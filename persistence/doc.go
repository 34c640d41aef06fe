// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
包 persistence 提供工作流检查点的持久化存储后端。

# 概述

本包为 workflow.CheckpointStore 提供可插拔的后端实现，使工作流在
进程重启后能够从任意超步边界恢复。所有后端均为追加写入：同一
checkpoint_id 不会被覆盖，重复保存返回 workflow.ErrCheckpointExists。

# 核心接口

  - Store: 在 workflow.CheckpointStore 基础上增加 Close 和 Ping 健康检查。
  - StoreConfig: 统一配置，按 Type 选择后端，并包含 Redis、SQL、Mongo 子配置。
  - CheckpointRecord: 检查点在 SQL 表与 Mongo 文档中的行格式，
    嵌套字段以 JSON 文本存储，timestamp 为定宽 ISO-8601 UTC 字符串。

# 后端实现

  - Memory: 进程内实现，适合开发与测试。
  - File: 每个检查点一个 JSON 文件，临时文件 + 硬链接保证原子且不覆盖。
  - Redis: SETNX 写入检查点正文，Sorted Set 维护按工作流与全局的索引。
  - SQL: 基于 GORM，支持 postgres、mysql、sqlite（纯 Go）与 sqlite3（cgo），
    可选自动建表，连接池由 internal/database 管理。
  - Mongo: 以 checkpoint_id 作为 _id，唯一性由主键保证。

# 使用方式

	store, err := persistence.NewCheckpointStore(ctx, cfg.Checkpoint, logger)
	run, err := wf.RunStream(ctx, input, workflow.WithCheckpointStore(store))
*/
package persistence
