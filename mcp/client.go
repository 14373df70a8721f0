package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/visionmcp/internal/tlsutil"
)

// DefaultClientTimeout 远端调用超时，需覆盖一次完整的图像分析
const DefaultClientTimeout = 90 * time.Second

// ClientConfig HTTP 客户端配置
type ClientConfig struct {
	// URL 远端 /mcp 端点
	URL string
	// AuthToken 非空时作为 Bearer 令牌发送
	AuthToken  string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client 远端 HTTP JSON-RPC 客户端
type Client struct {
	cfg       ClientConfig
	client    *http.Client
	nextID    atomic.Int64
	sessionID atomic.Value
	logger    *zap.Logger
}

// NewClient 创建客户端
func NewClient(cfg ClientConfig, logger *zap.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("mcp client: remote URL is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultClientTimeout
	}
	client := cfg.HTTPClient
	if client == nil {
		client = tlsutil.SecureHTTPClient(cfg.Timeout)
	}
	return &Client{
		cfg:    cfg,
		client: client,
		logger: logger.With(zap.String("component", "mcp_client")),
	}, nil
}

// Forward 发送一条消息并返回响应，通知返回 nil
func (c *Client) Forward(ctx context.Context, msg *Message) (*Message, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.cfg.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.AuthToken)
	}
	if sid, ok := c.sessionID.Load().(string); ok && sid != "" {
		req.Header.Set(SessionHeader, sid)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", c.cfg.URL, err)
	}
	defer resp.Body.Close()

	if sid := resp.Header.Get(SessionHeader); sid != "" {
		c.sessionID.Store(sid)
	}
	if resp.StatusCode == http.StatusAccepted || resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, DefaultMaxMessageBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		if resp.StatusCode >= http.StatusBadRequest {
			return nil, fmt.Errorf("remote returned status %d", resp.StatusCode)
		}
		return nil, nil
	}

	out, err := decodeMessage(data)
	if err != nil {
		return nil, fmt.Errorf("remote returned status %d with invalid body: %w", resp.StatusCode, err)
	}
	return out, nil
}

// Call 发送请求并返回 result，JSON-RPC 错误以 *Error 返回
func (c *Client) Call(ctx context.Context, method string, params map[string]any) (any, error) {
	req, err := NewRequest(c.nextID.Add(1), method, params)
	if err != nil {
		return nil, err
	}
	resp, err := c.Forward(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, errors.New("mcp client: empty response")
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	return resp.Result, nil
}

// Initialize 执行握手并发送 initialized 通知
func (c *Client) Initialize(ctx context.Context, clientName, clientVersion string) (map[string]any, error) {
	res, err := c.Call(ctx, MethodInitialize, map[string]any{
		"protocolVersion": MCPVersion,
		"capabilities":    map[string]any{},
		"clientInfo":      map[string]any{"name": clientName, "version": clientVersion},
	})
	if err != nil {
		return nil, err
	}
	if _, err := c.Forward(ctx, NewNotification(MethodInitialized, nil)); err != nil {
		c.logger.Debug("initialized notification failed", zap.Error(err))
	}
	info, _ := res.(map[string]any)
	return info, nil
}

// ListTools 列出远端工具
func (c *Client) ListTools(ctx context.Context) ([]map[string]any, error) {
	res, err := c.Call(ctx, MethodToolsList, nil)
	if err != nil {
		return nil, err
	}
	m, _ := res.(map[string]any)
	raw, _ := m["tools"].([]any)
	tools := make([]map[string]any, 0, len(raw))
	for _, t := range raw {
		if tm, ok := t.(map[string]any); ok {
			tools = append(tools, tm)
		}
	}
	return tools, nil
}

// CallTool 调用远端工具，返回结构化的响应信封。
// 工具级失败（isError）同样以 success=false 的信封返回，err 只表示协议或传输错误。
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	if args == nil {
		args = map[string]any{}
	}
	res, err := c.Call(ctx, MethodToolsCall, map[string]any{"name": name, "arguments": args})
	if err != nil {
		return nil, err
	}
	m, ok := res.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("unexpected tools/call result %T", res)
	}
	if sc, ok := m["structuredContent"].(map[string]any); ok {
		return sc, nil
	}
	// 没有结构化内容时解析第一个文本块
	text := firstText(m)
	if isErr, _ := m["isError"].(bool); isErr {
		return map[string]any{"success": false, "error": text}, nil
	}
	var env map[string]any
	if err := json.Unmarshal([]byte(text), &env); err == nil {
		return env, nil
	}
	return m, nil
}

func firstText(result map[string]any) string {
	content, _ := result["content"].([]any)
	if len(content) == 0 {
		return ""
	}
	block, _ := content[0].(map[string]any)
	text, _ := block["text"].(string)
	return text
}

// Ping 检查远端是否可用
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Call(ctx, MethodPing, nil)
	return err
}
