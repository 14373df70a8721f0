package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/BaSui01/visionmcp/api/handlers"
	"github.com/BaSui01/visionmcp/config"
	"github.com/BaSui01/visionmcp/internal/server"
	"github.com/BaSui01/visionmcp/internal/telemetry"
	"github.com/BaSui01/visionmcp/mcp"
)

// 无需认证的探针路径
var skipAuthPaths = []string{"/health", "/healthz", "/ready", "/version", "/metrics"}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server (JSON-RPC, WebSocket, REST and metrics)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := initLogger(cfg.Log, false)
			defer func() { _ = logger.Sync() }()

			return runServe(cmd.Context(), cfg, logger)
		},
	}
}

// runServe 启动 API 与 Metrics 服务器，阻塞到收到信号或服务器异常退出
func runServe(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger.Info("Starting VisionMCP",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	providers, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		if err := providers.Shutdown(context.Background()); err != nil {
			logger.Warn("telemetry shutdown error", zap.Error(err))
		}
	}()

	a, err := newApp(cfg, prometheus.DefaultRegisterer, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("shutdown error", zap.Error(err))
		}
	}()

	guardCtx, cancelGuard := context.WithCancel(ctx)
	defer cancelGuard()

	srvCfg := server.DefaultConfig()
	srvCfg.Addr = fmt.Sprintf(":%d", cfg.Server.HTTPPort)
	srvCfg.ReadTimeout = cfg.Server.ReadTimeout
	srvCfg.WriteTimeout = cfg.Server.WriteTimeout
	srvCfg.ShutdownTimeout = cfg.Server.ShutdownTimeout

	managers := []*server.Manager{
		server.NewManager("api", newRouter(guardCtx, a), srvCfg, logger),
	}
	if cfg.Server.MetricsPort > 0 {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		metricsCfg := srvCfg
		metricsCfg.Addr = fmt.Sprintf(":%d", cfg.Server.MetricsPort)
		managers = append(managers, server.NewManager("metrics", metricsMux, metricsCfg, logger))
	}

	group := server.NewGroup(logger, managers...)
	if err := group.Start(); err != nil {
		return err
	}
	logger.Info("All servers started",
		zap.Int("http_port", cfg.Server.HTTPPort),
		zap.Int("metrics_port", cfg.Server.MetricsPort),
	)

	err = group.Wait(ctx)
	logger.Info("VisionMCP stopped")
	return err
}

// newRouter 注册路由并构建中间件链
func newRouter(ctx context.Context, a *app) http.Handler {
	cfg := a.cfg
	logger := a.logger

	health := handlers.NewHealthHandler(handlers.VersionInfo{
		Version:   Version,
		BuildTime: BuildTime,
		GitCommit: GitCommit,
	}, logger)
	for _, c := range a.checks {
		health.RegisterCheck(c)
	}
	tools := handlers.NewToolsHandler(a.dispatcher, handlers.DefaultMaxBodyBytes, logger)

	mux := http.NewServeMux()

	// 健康检查
	mux.HandleFunc("GET /health", health.HandleHealth)
	mux.HandleFunc("GET /healthz", health.HandleHealthz)
	mux.HandleFunc("GET /ready", health.HandleReady)
	mux.HandleFunc("GET /version", health.HandleVersion)

	// MCP 传输
	mux.Handle("/mcp", mcp.NewHTTPHandler(a.mcp, mcp.DefaultMaxMessageBytes, logger))
	mux.Handle("GET /mcp/ws", mcp.NewWSHandler(a.mcp, mcp.DefaultMaxMessageBytes, cfg.Server.CORSAllowedOrigins, logger))

	// REST
	mux.HandleFunc("GET /api/v1/tools", tools.HandleList)
	mux.HandleFunc("/api/v1/tools/{name}", tools.HandleCall)

	if cfg.Server.MetricsPort == 0 {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	return Chain(mux,
		Recovery(logger),
		RequestID(),
		OTelTracing(),
		MetricsMiddleware(a.metrics),
		SecurityHeaders(),
		RequestLogger(logger),
		CORS(cfg.Server.CORSAllowedOrigins),
		FloodGuard(ctx, cfg.Server.FloodGuardRPS, cfg.Server.FloodGuardBurst, logger),
		JWTAuth(cfg.Server.JWTSecret, cfg.Server.RequireAuth, skipAuthPaths, logger),
	)
}
