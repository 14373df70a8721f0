package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// Subprotocol WebSocket 子协议
const Subprotocol = "mcp"

// WSTransport 基于单个 WebSocket 连接的传输，一条文本帧一条消息
type WSTransport struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	once    sync.Once
}

// NewWSTransport 包装已建立的连接
func NewWSTransport(conn *websocket.Conn, maxBytes int64) *WSTransport {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxMessageBytes
	}
	conn.SetReadLimit(maxBytes)
	return &WSTransport{conn: conn}
}

// Send 写出一帧 JSON
func (t *WSTransport) Send(ctx context.Context, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.conn.Write(ctx, websocket.MessageText, body)
}

// Receive 读取一帧。对端正常关闭时返回 ErrTransportClosed。
func (t *WSTransport) Receive(ctx context.Context) (*Message, error) {
	typ, data, err := t.conn.Read(ctx)
	if err != nil {
		switch websocket.CloseStatus(err) {
		case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			return nil, ErrTransportClosed
		}
		return nil, err
	}
	if typ != websocket.MessageText {
		return nil, &ParseError{Err: errors.New("binary frames are not supported")}
	}
	return decodeMessage(data)
}

// Close 正常关闭连接
func (t *WSTransport) Close() error {
	var err error
	t.once.Do(func() {
		err = t.conn.Close(websocket.StatusNormalClosure, "")
	})
	return err
}

// WSHandler /mcp/ws 端点，每个连接一个会话
type WSHandler struct {
	server         *Server
	maxBytes       int64
	originPatterns []string
	logger         *zap.Logger
}

// NewWSHandler 创建 WebSocket 处理器。originPatterns 为空时只接受同源请求。
func NewWSHandler(server *Server, maxBytes int64, originPatterns []string, logger *zap.Logger) *WSHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSHandler{
		server:         server,
		maxBytes:       maxBytes,
		originPatterns: originPatterns,
		logger:         logger.With(zap.String("component", "mcp_ws")),
	}
}

// ServeHTTP 升级连接并运行会话
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{Subprotocol},
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	identifier := ClientIdentifier(r)
	transport := NewWSTransport(conn, h.maxBytes)
	defer transport.Close()

	if err := h.server.Serve(r.Context(), transport, identifier); err != nil && !errors.Is(err, context.Canceled) {
		h.logger.Info("websocket session closed with error",
			zap.String("identifier", identifier),
			zap.Error(err),
		)
	}
}
