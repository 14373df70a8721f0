// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 管理共享的 Redis 连接。

# 概述

Manager 封装 go-redis 客户端，负责连接生命周期管理：初始化时 Ping 验证、
后台健康检查与优雅关闭。分布式限流存储（ratelimit.RedisStore）通过
Client() 取得底层客户端。

# 核心类型

  - Manager：连接管理器，提供 Client / Ping / Close / GetStats。
  - Config：地址、密码、连接池大小、TLS 开关与健康检查间隔。
  - Stats：连接池统计。
*/
package cache
