// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 提供基于 GORM 的数据库连接与连接池管理，
用于持久化审计日志（audit.SQLBackend）。

# 核心类型

  - Open / Dialector：按驱动名（postgres、mysql、sqlite）打开连接，
    sqlite 使用纯 Go 的 glebarez/sqlite 驱动。
  - PoolManager：连接池管理器，提供 DB()、Ping()、GetStats()、Close()。
  - PoolConfig：最大空闲连接数、最大打开连接数、生命周期与健康检查间隔。
*/
package database
