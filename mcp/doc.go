// Package mcp 实现 Model Context Protocol (MCP) 的工具服务端、客户端与传输层。
//
// 服务端只暴露工具能力（initialize、tools/list、tools/call、ping），
// 工具调用全部交给 dispatch 管线处理。传输层包括换行分隔的 stdio、
// HTTP JSON-RPC（POST /mcp）和 WebSocket（/mcp/ws）。
// Proxy 把本地 stdio 会话桥接到远端 HTTP 端点。
package mcp
