// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 提供基于 GORM 的数据库连接池管理，供 SQL 检查点存储使用。

# 概述

PoolManager 封装 GORM 与 database/sql 的连接池配置，统一管理连接
生命周期、空闲回收与最大连接数限制。后台健康检查定时探活，并通过
StatsObserver 上报连接池统计（CLI 将其接入 Prometheus 指标）。

# 核心类型

  - PoolManager：持有 GORM DB 与底层 sql.DB，提供 DB/Ping/Stats/Close。
  - PoolConfig：连接池配置，支持 yaml 与 DATAFLOW_CHECKPOINT_SQL_POOL_* 环境变量。
  - PoolOption：WithName 设置池名称，WithStatsObserver 注册统计回调。
  - TransactionFunc：事务回调函数类型。

# 事务

WithTransaction 执行单次事务；WithTransactionRetry 对死锁、序列化
失败、连接中断与 SQLite 忙等瞬时错误进行指数退避重试。检查点写入
经由该路径执行。
*/
package database
