// Package api 汇集 visionmcp 的 HTTP 接口。
//
// 对外端点：
//
//	POST /mcp                     MCP JSON-RPC（tools/list、tools/call 等）
//	GET  /mcp/ws                  MCP over WebSocket
//	POST /api/v1/tools/{name}     REST 形式的工具调用，返回与 MCP 相同的响应信封
//	GET  /health /healthz /ready  健康检查
//	GET  /version                 版本信息
//
// 指标在独立端口的 /metrics 上暴露。
package api
