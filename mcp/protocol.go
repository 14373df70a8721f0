package mcp

import (
	"encoding/json"
)

// MCPVersion MCP 协议版本
const MCPVersion = "2024-11-05"

// JSONRPCVersion JSON-RPC 版本
const JSONRPCVersion = "2.0"

// 方法名
const (
	MethodInitialize  = "initialize"
	MethodInitialized = "notifications/initialized"
	MethodToolsList   = "tools/list"
	MethodToolsCall   = "tools/call"
	MethodPing        = "ping"
)

// 标准错误码
const (
	ErrorCodeParseError     = -32700
	ErrorCodeInvalidRequest = -32600
	ErrorCodeMethodNotFound = -32601
	ErrorCodeInvalidParams  = -32602
	ErrorCodeInternalError  = -32603
	// ErrorCodeRateLimited 服务端自定义错误码，data 中携带 retry_after
	ErrorCodeRateLimited = -32000
)

// nullID 无法解析请求 ID 时使用
var nullID = json.RawMessage("null")

// Message JSON-RPC 2.0 消息。ID 保留原始字节，原样回传给调用方。
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  map[string]any  `json:"params,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// IsNotification 没有 ID 的请求是通知，不需要响应
func (m *Message) IsNotification() bool {
	return len(m.ID) == 0
}

// Error JSON-RPC 错误
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Error 实现 error 接口
func (e *Error) Error() string {
	return e.Message
}

// ServerInfo 服务器信息
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Content 工具结果内容块
type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ToolResult tools/call 的结果
type ToolResult struct {
	Content           []Content `json:"content"`
	StructuredContent any       `json:"structuredContent,omitempty"`
	IsError           bool      `json:"isError"`
}

// NewRequest 创建请求
func NewRequest(id any, method string, params map[string]any) (*Message, error) {
	raw, err := json.Marshal(id)
	if err != nil {
		return nil, err
	}
	return &Message{JSONRPC: JSONRPCVersion, ID: raw, Method: method, Params: params}, nil
}

// NewNotification 创建通知
func NewNotification(method string, params map[string]any) *Message {
	return &Message{JSONRPC: JSONRPCVersion, Method: method, Params: params}
}

// NewResponse 创建成功响应
func NewResponse(id json.RawMessage, result any) *Message {
	return &Message{JSONRPC: JSONRPCVersion, ID: responseID(id), Result: result}
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(id json.RawMessage, code int, message string, data any) *Message {
	return &Message{
		JSONRPC: JSONRPCVersion,
		ID:      responseID(id),
		Error:   &Error{Code: code, Message: message, Data: data},
	}
}

func responseID(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return nullID
	}
	return id
}
