package handlers

import (
	"context"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/BaSui01/visionmcp/internal/dispatch"
	"github.com/BaSui01/visionmcp/mcp"
	"github.com/BaSui01/visionmcp/types"
)

// ToolCaller 工具调用入口，由 dispatch.Dispatcher 实现
type ToolCaller interface {
	Call(ctx context.Context, req dispatch.CallRequest) *dispatch.Response
	Definitions() []dispatch.Definition
}

// ToolsHandler 提供工具调用的 REST 入口
type ToolsHandler struct {
	caller   ToolCaller
	maxBytes int64
	logger   *zap.Logger
}

// NewToolsHandler 创建工具处理器
func NewToolsHandler(caller ToolCaller, maxBytes int64, logger *zap.Logger) *ToolsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodyBytes
	}
	return &ToolsHandler{
		caller:   caller,
		maxBytes: maxBytes,
		logger:   logger.With(zap.String("component", "tools_handler")),
	}
}

// HandleList 处理 GET /api/v1/tools
func (h *ToolsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, map[string]any{"tools": h.caller.Definitions()})
}

// HandleCall 处理 POST /api/v1/tools/{name}
//
// 请求体为工具参数对象，响应体与 MCP tools/call 的文本内容一致。
func (h *ToolsHandler) HandleCall(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	name := r.PathValue("name")
	if name == "" {
		WriteError(w, types.NewValidationError("tool name is required"), h.logger)
		return
	}

	args := map[string]any{}
	if err := DecodeJSONBody(w, r, &args, h.maxBytes, h.logger); err != nil {
		return
	}

	resp := h.caller.Call(r.Context(), dispatch.CallRequest{
		Identifier: mcp.ClientIdentifier(r),
		Tool:       name,
		Args:       args,
	})

	if !resp.IsError() {
		WriteJSON(w, http.StatusOK, resp.Envelope())
		return
	}

	status := resp.Err.HTTPStatus
	if status == 0 {
		status = mapErrorCodeToHTTPStatus(resp.Err.Code)
	}
	if retry := resp.RetryAfter(); retry > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(retry))
	}
	h.logger.Debug("tool call failed",
		zap.String("tool", name),
		zap.String("code", string(resp.Err.Code)),
		zap.Int("status", status),
	)
	WriteJSON(w, status, resp.Envelope())
}
