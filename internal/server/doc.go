// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 提供 HTTP 服务器生命周期管理，支持非阻塞启动、
优雅关闭与系统信号监听。

# 核心类型

  - Manager：封装 net/http.Server，提供 Start/Shutdown/Errors/Addr。
  - Group：同时管理 API 与 Metrics 服务器。Wait 在 ctx 取消、
    收到 SIGINT/SIGTERM 或任一服务器异常退出时统一关闭。
  - Config：监听地址、读写超时、空闲超时、最大请求头大小与优雅关闭超时。
*/
package server
