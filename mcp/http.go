package mcp

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/visionmcp/types"
)

// SessionHeader MCP 会话头
const SessionHeader = "Mcp-Session-Id"

// ClientIdentifier 解析调用方标识：认证主体 > Mcp-Session-Id > 远端 IP
func ClientIdentifier(r *http.Request) string {
	if id, ok := types.Identifier(r.Context()); ok && id != "" {
		return id
	}
	if sid := strings.TrimSpace(r.Header.Get(SessionHeader)); sid != "" {
		return "session:" + sid
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

// HTTPHandler POST /mcp 的 JSON-RPC 端点，每个请求一条消息
type HTTPHandler struct {
	server   *Server
	maxBytes int64
	logger   *zap.Logger
}

// NewHTTPHandler 创建 HTTP 处理器，maxBytes <= 0 时使用 DefaultMaxMessageBytes
func NewHTTPHandler(server *Server, maxBytes int64, logger *zap.Logger) *HTTPHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxMessageBytes
	}
	return &HTTPHandler{
		server:   server,
		maxBytes: maxBytes,
		logger:   logger.With(zap.String("component", "mcp_http")),
	}
}

// ServeHTTP 实现 http.Handler
func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.write(w, http.StatusRequestEntityTooLarge,
				NewErrorResponse(nil, ErrorCodeInvalidRequest, "request body too large", nil))
			return
		}
		h.write(w, http.StatusBadRequest, NewErrorResponse(nil, ErrorCodeParseError, "failed to read body", nil))
		return
	}

	msg, err := decodeMessage(body)
	if err != nil {
		h.write(w, http.StatusOK, NewErrorResponse(nil, ErrorCodeParseError, "parse error", nil))
		return
	}

	resp := h.server.HandleMessage(r.Context(), ClientIdentifier(r), msg)
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	if ra := RetryAfter(resp); ra > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(ra))
	}
	h.write(w, http.StatusOK, resp)
}

func (h *HTTPHandler) write(w http.ResponseWriter, status int, msg *Message) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(msg); err != nil {
		h.logger.Warn("write response failed", zap.Error(err))
	}
}
