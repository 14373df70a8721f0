package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/visionmcp/config"
	"github.com/BaSui01/visionmcp/internal/audit"
	"github.com/BaSui01/visionmcp/mcp"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Security.MaxRequestsPerWindow = 5
	cfg.Server.FloodGuardRPS = 0
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config) (*app, *httptest.Server, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	a, err := newApp(cfg, reg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	srv := httptest.NewServer(newRouter(ctx, a))
	t.Cleanup(srv.Close)
	return a, srv, reg
}

func TestServe_MCPOverHTTP(t *testing.T) {
	a, srv, reg := newTestApp(t, testConfig())
	ctx := context.Background()

	client, err := mcp.NewClient(mcp.ClientConfig{URL: srv.URL + "/mcp", Timeout: 5 * time.Second}, nil)
	require.NoError(t, err)

	info, err := client.Initialize(ctx, "test", "1")
	require.NoError(t, err)
	assert.Equal(t, mcp.MCPVersion, info["protocolVersion"])

	tools, err := client.ListTools(ctx)
	require.NoError(t, err)
	names := make([]string, 0, len(tools))
	for _, tool := range tools {
		names = append(names, tool["name"].(string))
	}
	assert.Equal(t, []string{"analyze_image", "upload_to_supabase", "get_security_status"}, names)

	env, err := client.CallTool(ctx, "get_security_status", nil)
	require.NoError(t, err)
	assert.Equal(t, true, env["success"])
	result := env["result"].(map[string]any)
	assert.Equal(t, "memory", result["rate_limiter"].(map[string]any)["store"])

	// URL 命中私有地址段，在抓取前被拦截
	env, err = client.CallTool(ctx, "analyze_image", map[string]any{"image_url": "http://127.0.0.1/x.png"})
	require.NoError(t, err)
	assert.Equal(t, false, env["success"])
	assert.NotEmpty(t, env["error"])

	entries := a.audit.Entries()
	require.Len(t, entries, 2)
	assert.True(t, entries[0].Success)
	assert.False(t, entries[1].Success)
	assert.True(t, strings.HasPrefix(entries[0].Identifier, "ip:"))

	n, err := testutil.GatherAndCount(reg, "visionmcp_tool_calls_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestServe_RateLimitAcrossTransports(t *testing.T) {
	cfg := testConfig()
	cfg.Security.MaxRequestsPerWindow = 2
	cfg.Server.JWTSecret = testSecret
	_, srv, _ := newTestApp(t, cfg)

	token := signToken(t, testSecret, validClaims("carol"))
	call := func(path, body string) *http.Response {
		req, err := http.NewRequest(http.MethodPost, srv.URL+path, strings.NewReader(body))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	// 同一 JWT 主体在 REST 与 JSON-RPC 上共享同一个窗口
	assert.Equal(t, http.StatusOK, call("/api/v1/tools/get_security_status", `{}`).StatusCode)
	assert.Equal(t, http.StatusOK, call("/mcp", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"get_security_status"}}`).StatusCode)

	resp := call("/api/v1/tools/get_security_status", `{}`)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))

	var env map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	assert.Equal(t, false, env["success"])
	assert.Contains(t, env["error"], "rate limit exceeded")
}

func TestServe_HealthAndReady(t *testing.T) {
	cfg := testConfig()
	cfg.Database.Enabled = true
	cfg.Database.Driver = "sqlite"
	cfg.Database.Name = filepath.Join(t.TempDir(), "audit.db")
	cfg.Database.AutoMigrate = true
	cfg.Audit.FileDir = t.TempDir()

	a, srv, _ := newTestApp(t, cfg)
	require.NotNil(t, a.db)

	for _, path := range []string{"/health", "/healthz", "/ready", "/version"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}

	resp, err := http.Post(srv.URL+"/api/v1/tools/get_security_status", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// SQL 后端异步写入
	assert.Eventually(t, func() bool {
		var count int64
		a.db.DB().Model(&audit.Record{}).Count(&count)
		return count == 1
	}, 5*time.Second, 20*time.Millisecond)

	env := callStatusDirect(t, a)
	backends := env["audit"].(audit.Summary).Backends
	assert.ElementsMatch(t, []string{"file", "sql"}, backends)
}

func callStatusDirect(t *testing.T, a *app) map[string]any {
	t.Helper()
	msg, err := mcp.NewRequest(1, mcp.MethodToolsCall, map[string]any{"name": "get_security_status"})
	require.NoError(t, err)
	resp := a.mcp.HandleMessage(context.Background(), "test", msg)
	require.Nil(t, resp.Error)
	res := resp.Result.(*mcp.ToolResult)
	return res.StructuredContent.(map[string]any)["result"].(map[string]any)
}

func TestServe_RedisRateLimitStore(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.Security.RateLimitStore = "redis"
	cfg.Redis.Addr = mr.Addr()

	a, srv, _ := newTestApp(t, cfg)
	require.NotNil(t, a.cache)

	resp, err := http.Get(srv.URL + "/ready")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	env := callStatusDirect(t, a)
	assert.Equal(t, "redis", env["rate_limiter"].(map[string]any)["store"])
	assert.NotEmpty(t, mr.Keys())

	mr.Close()
	resp, err = http.Get(srv.URL + "/ready")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestNewApp_RedisUnavailable(t *testing.T) {
	cfg := testConfig()
	cfg.Security.RateLimitStore = "redis"
	cfg.Redis.Addr = "127.0.0.1:1"

	_, err := newApp(cfg, nil, nil)
	assert.Error(t, err)
}

func TestStdioCommand(t *testing.T) {
	input := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"get_security_status"}}`,
	}, "\n") + "\n"

	var out bytes.Buffer
	root := newRootCmd()
	root.SetIn(strings.NewReader(input))
	root.SetOut(&out)
	root.SetArgs([]string{"stdio"})
	require.NoError(t, root.Execute())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	var msg mcp.Message
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &msg))
	assert.Nil(t, msg.Error)
}

func TestStatusCommand(t *testing.T) {
	_, srv, _ := newTestApp(t, testConfig())

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"status", "--addr", srv.URL})
	require.NoError(t, root.Execute())

	text := out.String()
	assert.Contains(t, text, "security status")
	assert.Contains(t, text, "Rate limiter")
	assert.Contains(t, text, "max_file_size")
	assert.Contains(t, text, "Collaborators")

	out.Reset()
	root = newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"status", "--addr", srv.URL + "/mcp", "--json"})
	require.NoError(t, root.Execute())

	var env map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &env))
	assert.Equal(t, true, env["success"])
}

func TestHealthAndVersionCommands(t *testing.T) {
	_, srv, _ := newTestApp(t, testConfig())

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"health", "--addr", srv.URL})
	require.NoError(t, root.Execute())
	assert.Equal(t, "OK\n", out.String())

	out.Reset()
	root = newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "VisionMCP "+Version)
}

func TestMCPEndpoint(t *testing.T) {
	assert.Equal(t, "http://h:8080/mcp", mcpEndpoint("http://h:8080"))
	assert.Equal(t, "http://h:8080/mcp", mcpEndpoint("http://h:8080/"))
	assert.Equal(t, "http://h:8080/mcp", mcpEndpoint("http://h:8080/mcp"))
}
