// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 VisionMCP 服务端程序入口。

# 概述

cmd/visionmcp 基于 cobra 组织子命令，装配限流器、输入扫描、图像加载、
Gemini 分析、Supabase 上传与审计日志，并通过多种传输对外暴露 MCP 工具。

# 子命令

  - serve   — HTTP 服务：POST /mcp、GET /mcp/ws、/api/v1/tools/{name}、健康检查；
    Metrics 在独立端口暴露 /metrics（metrics_port 为 0 时与 API 共用端口）
  - stdio   — MCP over stdio，日志只写 stderr
  - proxy   — 本地 stdio 客户端桥接到远端 /mcp
  - status  — 调用远端 get_security_status 并以表格渲染
  - health  — 请求 /health
  - version — 构建信息

# 中间件链

Recovery → RequestID → OTelTracing → Metrics → SecurityHeaders → RequestLogger
→ CORS → FloodGuard（每 IP 令牌桶）→ JWTAuth（sub 作为限流标识）

# 构建注入

Version、BuildTime、GitCommit 通过 ldflags 设置。
*/
package main
