package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/BaSui01/visionmcp/internal/dispatch"
	"github.com/BaSui01/visionmcp/internal/telemetry"
	"github.com/BaSui01/visionmcp/mcp"
)

// stdio 模式下同一进程只服务一个客户端
const stdioIdentifier = "stdio"

// =============================================================================
// 🔌 stdio 命令
// =============================================================================

func newStdioCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stdio",
		Short: "Serve MCP over stdin/stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := initLogger(cfg.Log, true)
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			providers, err := telemetry.Init(cfg.Telemetry, logger)
			if err != nil {
				logger.Warn("failed to initialize telemetry", zap.Error(err))
			}
			defer func() { _ = providers.Shutdown(context.Background()) }()

			// stdio 模式没有 /metrics 端点，不注册 Prometheus 指标
			a, err := newApp(cfg, nil, logger)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			logger.Info("serving MCP over stdio", zap.String("version", Version))
			transport := mcp.NewStdioTransport(cmd.InOrStdin(), cmd.OutOrStdout(), logger)
			return ignoreCanceled(a.mcp.Serve(ctx, transport, stdioIdentifier))
		},
	}
}

// =============================================================================
// 🔁 proxy 命令
// =============================================================================

func newProxyCmd() *cobra.Command {
	var (
		remote  string
		token   string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "proxy",
		Short: "Bridge a local stdio MCP client to a remote VisionMCP HTTP endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := initLogger(cfg.Log, true)
			defer func() { _ = logger.Sync() }()

			if remote == "" {
				remote = cfg.Proxy.RemoteURL
			}
			if token == "" {
				token = cfg.Proxy.AuthToken
			}
			if timeout <= 0 {
				timeout = cfg.Proxy.Timeout
			}

			client, err := mcp.NewClient(mcp.ClientConfig{URL: remote, AuthToken: token, Timeout: timeout}, logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger.Info("proxying stdio to remote", zap.String("remote", remote))
			proxy := mcp.NewProxy(mcp.NewStdioTransport(cmd.InOrStdin(), cmd.OutOrStdout(), logger), client, logger)
			return ignoreCanceled(proxy.Run(ctx))
		},
	}
	cmd.Flags().StringVar(&remote, "remote", "", "Remote MCP endpoint, e.g. https://host:8080/mcp")
	cmd.Flags().StringVar(&token, "token", "", "Bearer token sent to the remote endpoint")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Per-request timeout")
	return cmd
}

// =============================================================================
// 📊 status 命令
// =============================================================================

func newStatusCmd() *cobra.Command {
	var (
		addr    string
		token   string
		asJSON  bool
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the security status of a running server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := mcp.NewClient(mcp.ClientConfig{URL: mcpEndpoint(addr), AuthToken: token, Timeout: timeout}, nil)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if _, err := client.Initialize(ctx, "visionmcp-cli", Version); err != nil {
				return fmt.Errorf("initialize: %w", err)
			}
			env, err := client.CallTool(ctx, dispatch.ToolGetSecurityStatus, nil)
			if err != nil {
				return fmt.Errorf("get_security_status: %w", err)
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), env)
			}
			return renderStatus(cmd.OutOrStdout(), env)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "http://localhost:8080", "Server address or MCP endpoint")
	cmd.Flags().StringVar(&token, "token", "", "Bearer token")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw JSON envelope")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Request timeout")
	return cmd
}

// mcpEndpoint 接受服务地址或完整的 /mcp 地址
func mcpEndpoint(addr string) string {
	addr = strings.TrimRight(addr, "/")
	if strings.HasSuffix(addr, "/mcp") {
		return addr
	}
	return addr + "/mcp"
}

// =============================================================================
// 🏥 health 命令
// =============================================================================

func newHealthCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(addr, "/")+"/health", nil)
			if err != nil {
				return err
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("health check failed: status %d", resp.StatusCode)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "OK")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "http://localhost:8080", "Server address")
	return cmd
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
