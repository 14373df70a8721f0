package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRemote(t *testing.T) (*httptest.Server, *fakeDispatcher, *string) {
	t.Helper()
	s, fd := newTestServer()
	handler := NewHTTPHandler(s, 0, nil)
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, fd, &auth
}

func TestNewClient_RequiresURL(t *testing.T) {
	_, err := NewClient(ClientConfig{}, nil)
	assert.Error(t, err)
}

func TestClient_Flow(t *testing.T) {
	srv, fd, auth := newRemote(t)
	c, err := NewClient(ClientConfig{URL: srv.URL, AuthToken: "secret", Timeout: 5 * time.Second}, nil)
	require.NoError(t, err)
	ctx := context.Background()

	info, err := c.Initialize(ctx, "visionmcp-cli", "test")
	require.NoError(t, err)
	assert.Equal(t, MCPVersion, info["protocolVersion"])
	assert.Equal(t, "Bearer secret", *auth)

	require.NoError(t, c.Ping(ctx))

	tools, err := c.ListTools(ctx)
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "get_security_status", tools[0]["name"])

	env, err := c.CallTool(ctx, "get_security_status", nil)
	require.NoError(t, err)
	assert.Equal(t, true, env["success"])
	assert.Equal(t, "get_security_status", fd.lastCall().Tool)

	env, err = c.CallTool(ctx, "limited", nil)
	require.NoError(t, err)
	assert.Equal(t, false, env["success"])
	assert.Equal(t, "rate limit exceeded, retry after 42 seconds", env["error"])
	assert.Equal(t, float64(42), env["retry_after"])

	_, err = c.CallTool(ctx, "missing", nil)
	var rpcErr *Error
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, ErrorCodeMethodNotFound, rpcErr.Code)
}

func TestClient_RemoteDown(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := NewClient(ClientConfig{URL: url, Timeout: time.Second}, nil)
	require.NoError(t, err)
	assert.Error(t, c.Ping(context.Background()))
}

func TestProxy_ForwardsStdioToRemote(t *testing.T) {
	srv, fd, _ := newRemote(t)
	c, err := NewClient(ClientConfig{URL: srv.URL}, nil)
	require.NoError(t, err)

	input := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"analyze_image","arguments":{"image_url":"https://example.com/x.png"}}}`,
		`garbage`,
	}, "\n") + "\n"

	var out bytes.Buffer
	p := NewProxy(NewStdioTransport(strings.NewReader(input), &out, nil), c, nil)
	require.NoError(t, p.Run(context.Background()))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)

	var second Message
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.JSONEq(t, "2", string(second.ID))
	assert.Nil(t, second.Error)
	assert.Equal(t, "https://example.com/x.png", fd.lastCall().Args["image_url"])

	var third Message
	require.NoError(t, json.Unmarshal([]byte(lines[2]), &third))
	assert.Equal(t, ErrorCodeParseError, third.Error.Code)
}

type failingForwarder struct{}

func (failingForwarder) Forward(context.Context, *Message) (*Message, error) {
	return nil, errors.New("connection refused")
}

func TestProxy_RemoteFailureBecomesRPCError(t *testing.T) {
	input := `{"jsonrpc":"2.0","id":9,"method":"ping"}` + "\n" + `{"jsonrpc":"2.0","method":"notifications/initialized"}` + "\n"
	var out bytes.Buffer
	p := NewProxy(NewStdioTransport(strings.NewReader(input), &out, nil), failingForwarder{}, nil)
	require.NoError(t, p.Run(context.Background()))

	var msg Message
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(out.Bytes()), &msg))
	assert.JSONEq(t, "9", string(msg.ID))
	require.NotNil(t, msg.Error)
	assert.Equal(t, ErrorCodeInternalError, msg.Error.Code)
	assert.Contains(t, msg.Error.Message, "connection refused")
}
