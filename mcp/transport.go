package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"
)

// ErrTransportClosed 传输已关闭
var ErrTransportClosed = errors.New("mcp: transport closed")

// ParseError 收到的消息不是合法 JSON-RPC，会话可以继续
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return "parse error: " + e.Err.Error() }

func (e *ParseError) Unwrap() error { return e.Err }

// Transport MCP 传输层接口
type Transport interface {
	// Send 发送消息
	Send(ctx context.Context, msg *Message) error
	// Receive 接收消息（阻塞）
	Receive(ctx context.Context) (*Message, error)
	// Close 关闭传输
	Close() error
}

// DefaultMaxMessageBytes 单条消息上限，需容纳 base64 编码后的最大图像
const DefaultMaxMessageBytes = 32 << 20

// StdioTransport 换行分隔 JSON 的 stdio 传输。消息内不得包含换行。
type StdioTransport struct {
	reader   *bufio.Reader
	writer   io.Writer
	writeMu  sync.Mutex
	maxBytes int
	logger   *zap.Logger
}

// NewStdioTransport 创建 stdio 传输
func NewStdioTransport(reader io.Reader, writer io.Writer, logger *zap.Logger) *StdioTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StdioTransport{
		reader:   bufio.NewReaderSize(reader, 64<<10),
		writer:   writer,
		maxBytes: DefaultMaxMessageBytes,
		logger:   logger.With(zap.String("component", "mcp_stdio")),
	}
}

// Send 写出一行 JSON
func (t *StdioTransport) Send(_ context.Context, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	body = append(body, '\n')

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := t.writer.Write(body); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// Receive 读取下一行非空 JSON。读取本身不可取消，ctx 只在读取前检查。
func (t *StdioTransport) Receive(ctx context.Context) (*Message, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line, err := t.readLine()
		if err != nil {
			return nil, err
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		return decodeMessage(line)
	}
}

func (t *StdioTransport) readLine() ([]byte, error) {
	var buf []byte
	for {
		chunk, err := t.reader.ReadSlice('\n')
		buf = append(buf, chunk...)
		if len(buf) > t.maxBytes {
			// 丢弃本行剩余部分
			for errors.Is(err, bufio.ErrBufferFull) {
				_, err = t.reader.ReadSlice('\n')
			}
			if err != nil && !errors.Is(err, io.EOF) {
				return nil, err
			}
			return nil, &ParseError{Err: fmt.Errorf("message exceeds %d bytes", t.maxBytes)}
		}
		switch {
		case err == nil:
			return buf, nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF) && len(bytes.TrimSpace(buf)) > 0:
			return buf, nil
		default:
			return nil, err
		}
	}
}

// Close 无操作
func (t *StdioTransport) Close() error {
	return nil
}

func decodeMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, &ParseError{Err: err}
	}
	return &msg, nil
}
