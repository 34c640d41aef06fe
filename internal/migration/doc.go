// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 migration 管理工作流检查点表 workflow_checkpoints 的 Schema，
支持 PostgreSQL、MySQL 与 SQLite，基于 golang-migrate 实现。

# 概述

各方言的 SQL 迁移文件通过 embed.FS 内嵌，表结构与
persistence.CheckpointRecord 保持一致。GORM 存储默认在首次使用时
AutoMigrate；生产环境可关闭 auto_migrate，改用本包显式迁移。

# 核心类型

  - Migrator / DefaultMigrator：Up/Down/Steps/Force/Version/Status/Info。
  - Config：方言、连接 URL、版本表名、锁超时与 zap 日志。
  - CLI：面向终端的格式化输出，Run 按子命令分发。

# 工厂函数

  - NewMigratorFromStoreConfig：直接复用 persistence.StoreConfig 的 DSN。
  - NewMigratorFromURL：从方言名与 URL 创建。
*/
package migration
