package mcp

import (
	"context"
	"errors"
	"io"

	"go.uber.org/zap"
)

// Forwarder 把消息转发到远端
type Forwarder interface {
	Forward(ctx context.Context, msg *Message) (*Message, error)
}

// Proxy 将本地传输（通常是 stdio）上的消息逐条转发给远端 HTTP 端点。
// 远端不可用时向本地返回 JSON-RPC 错误，会话不中断。
type Proxy struct {
	local  Transport
	remote Forwarder
	logger *zap.Logger
}

// NewProxy 创建代理
func NewProxy(local Transport, remote Forwarder, logger *zap.Logger) *Proxy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Proxy{
		local:  local,
		remote: remote,
		logger: logger.With(zap.String("component", "mcp_proxy")),
	}
}

// Run 运行转发循环，直到本地输入结束或 ctx 取消
func (p *Proxy) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := p.local.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) || errors.Is(err, ErrTransportClosed) {
				return nil
			}
			var perr *ParseError
			if errors.As(err, &perr) {
				if sendErr := p.local.Send(ctx, NewErrorResponse(nil, ErrorCodeParseError, "parse error", nil)); sendErr != nil {
					return sendErr
				}
				continue
			}
			return err
		}

		resp, err := p.remote.Forward(ctx, msg)
		if err != nil {
			p.logger.Warn("forward failed",
				zap.String("method", msg.Method),
				zap.Error(err),
			)
			if msg.IsNotification() {
				continue
			}
			resp = NewErrorResponse(msg.ID, ErrorCodeInternalError, "upstream unavailable: "+err.Error(), nil)
		}
		if resp == nil || msg.IsNotification() {
			continue
		}
		if err := p.local.Send(ctx, resp); err != nil {
			return err
		}
	}
}
