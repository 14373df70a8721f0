package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/BaSui01/visionmcp/internal/dispatch"
	"github.com/BaSui01/visionmcp/types"
)

// ToolDispatcher 工具调用管线
type ToolDispatcher interface {
	Call(ctx context.Context, req dispatch.CallRequest) *dispatch.Response
	Definitions() []dispatch.Definition
}

// Server MCP 工具服务端，本身无会话状态，可被多个传输并发使用
type Server struct {
	info       ServerInfo
	dispatcher ToolDispatcher
	logger     *zap.Logger
}

// NewServer 创建 MCP 服务端
func NewServer(name, version string, dispatcher ToolDispatcher, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		info:       ServerInfo{Name: name, Version: version},
		dispatcher: dispatcher,
		logger:     logger.With(zap.String("component", "mcp_server")),
	}
}

// Info 服务器信息
func (s *Server) Info() ServerInfo { return s.info }

// HandleMessage 处理一条 JSON-RPC 消息。通知返回 nil。
// identifier 是调用方标识，用于限流与审计。
func (s *Server) HandleMessage(ctx context.Context, identifier string, msg *Message) *Message {
	if msg == nil {
		return NewErrorResponse(nil, ErrorCodeInvalidRequest, "empty message", nil)
	}
	if msg.JSONRPC != "" && msg.JSONRPC != JSONRPCVersion {
		return NewErrorResponse(msg.ID, ErrorCodeInvalidRequest, "unsupported JSON-RPC version", nil)
	}
	if msg.Method == "" {
		if msg.IsNotification() {
			return nil
		}
		return NewErrorResponse(msg.ID, ErrorCodeInvalidRequest, "missing method", nil)
	}

	s.logger.Debug("handling message",
		zap.String("method", msg.Method),
		zap.ByteString("id", msg.ID),
	)

	if msg.IsNotification() {
		s.handleNotification(msg)
		return nil
	}

	result, rpcErr := s.dispatch(ctx, identifier, msg)
	if rpcErr != nil {
		return &Message{JSONRPC: JSONRPCVersion, ID: msg.ID, Error: rpcErr}
	}
	return NewResponse(msg.ID, result)
}

func (s *Server) handleNotification(msg *Message) {
	switch msg.Method {
	case MethodInitialized:
		s.logger.Info("client initialized notification received")
	default:
		s.logger.Debug("unhandled notification", zap.String("method", msg.Method))
	}
}

func (s *Server) dispatch(ctx context.Context, identifier string, msg *Message) (any, *Error) {
	switch msg.Method {
	case MethodInitialize:
		return s.handleInitialize(), nil
	case MethodPing:
		return map[string]any{}, nil
	case MethodToolsList:
		return map[string]any{"tools": s.dispatcher.Definitions()}, nil
	case MethodToolsCall:
		return s.handleToolsCall(ctx, identifier, msg)
	default:
		return nil, &Error{
			Code:    ErrorCodeMethodNotFound,
			Message: fmt.Sprintf("method not found: %s", msg.Method),
		}
	}
}

func (s *Server) handleInitialize() any {
	return map[string]any{
		"protocolVersion": MCPVersion,
		"capabilities": map[string]any{
			"tools": map[string]any{"listChanged": false},
		},
		"serverInfo": s.info,
	}
}

func (s *Server) handleToolsCall(ctx context.Context, identifier string, msg *Message) (any, *Error) {
	name, _ := msg.Params["name"].(string)
	if name == "" {
		return nil, &Error{Code: ErrorCodeInvalidParams, Message: "missing required parameter: name"}
	}
	var args map[string]any
	if raw, ok := msg.Params["arguments"]; ok && raw != nil {
		if args, ok = raw.(map[string]any); !ok {
			return nil, &Error{Code: ErrorCodeInvalidParams, Message: "arguments must be an object"}
		}
	}

	resp := s.dispatcher.Call(ctx, dispatch.CallRequest{
		Identifier: identifier,
		Tool:       name,
		Args:       args,
	})
	if resp.IsError() {
		// 未知工具属于协议层错误，其余失败作为工具结果返回
		if resp.Err.Code == types.ErrToolNotFound {
			return nil, ToRPCError(resp)
		}
		return toolErrorResult(resp), nil
	}

	body, err := json.Marshal(resp.Envelope())
	if err != nil {
		s.logger.Error("marshal tool result failed", zap.String("tool", name), zap.Error(err))
		return nil, &Error{Code: ErrorCodeInternalError, Message: "failed to encode tool result"}
	}
	return &ToolResult{
		Content:           []Content{{Type: "text", Text: string(body)}},
		StructuredContent: resp.Envelope(),
	}, nil
}

// toolErrorResult 工具级失败：文本块为错误消息，isError 置位
func toolErrorResult(resp *dispatch.Response) *ToolResult {
	return &ToolResult{
		Content:           []Content{{Type: "text", Text: resp.ErrorMessage()}},
		StructuredContent: resp.Envelope(),
		IsError:           true,
	}
}

// RetryAfter 从限流失败的响应中取出重试秒数，没有时返回 0
func RetryAfter(msg *Message) int {
	if msg == nil {
		return 0
	}
	if msg.Error != nil && msg.Error.Code == ErrorCodeRateLimited {
		if data, ok := msg.Error.Data.(map[string]any); ok {
			if ra, ok := data["retry_after"].(int); ok {
				return ra
			}
		}
		return 0
	}
	if res, ok := msg.Result.(*ToolResult); ok && res.IsError {
		if env, ok := res.StructuredContent.(map[string]any); ok {
			if ra, ok := env["retry_after"].(int); ok {
				return ra
			}
		}
	}
	return 0
}

// ToRPCError 将失败的管线响应映射为 JSON-RPC 错误，只携带错误消息与错误码
func ToRPCError(resp *dispatch.Response) *Error {
	data := map[string]any{"code": string(resp.Err.Code)}
	code := ErrorCodeInternalError
	switch resp.Err.Code {
	case types.ErrInvalidRequest, types.ErrGuardrailsViolated:
		code = ErrorCodeInvalidParams
	case types.ErrToolNotFound:
		code = ErrorCodeMethodNotFound
	case types.ErrRateLimited:
		code = ErrorCodeRateLimited
		data["retry_after"] = resp.RetryAfter()
	}
	if resp.Err.Stage != "" {
		data["stage"] = resp.Err.Stage
	}
	return &Error{Code: code, Message: resp.ErrorMessage(), Data: data}
}

// Serve 在传输上运行消息循环，直到 ctx 取消或对端关闭。
func (s *Server) Serve(ctx context.Context, transport Transport, identifier string) error {
	if transport == nil {
		return errors.New("transport cannot be nil")
	}

	s.logger.Info("MCP session started", zap.String("identifier", identifier))
	defer s.logger.Info("MCP session ended", zap.String("identifier", identifier))

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := transport.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) || errors.Is(err, ErrTransportClosed) {
				return nil
			}
			var perr *ParseError
			if errors.As(err, &perr) {
				s.logger.Warn("malformed message", zap.Error(err))
				if sendErr := transport.Send(ctx, NewErrorResponse(nil, ErrorCodeParseError, "parse error", nil)); sendErr != nil {
					return sendErr
				}
				continue
			}
			return err
		}

		resp := s.HandleMessage(ctx, identifier, msg)
		if resp == nil {
			continue
		}
		if err := transport.Send(ctx, resp); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("send response: %w", err)
		}
	}
}
