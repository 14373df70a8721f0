// =============================================================================
// VisionMCP 主入口
// =============================================================================
// 图像分析 MCP 工具服务器，提供 stdio、HTTP JSON-RPC、WebSocket 与代理模式
//
// 使用方法:
//
//	visionmcp serve                              # 启动 HTTP 服务（JSON-RPC + WS + REST）
//	visionmcp serve --config config.yaml         # 指定配置文件
//	visionmcp stdio                              # MCP over stdio
//	visionmcp proxy --remote https://host/mcp    # stdio → 远端 HTTP 代理
//	visionmcp status --addr http://localhost:8080/mcp
//	visionmcp health                             # 健康检查
//	visionmcp version                            # 显示版本信息
// =============================================================================

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/visionmcp/config"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var flagConfig string

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "visionmcp",
		Short:         "Image analysis MCP tool server",
		Long:          `VisionMCP exposes analyze_image, upload_to_supabase and get_security_status as MCP tools behind a rate limiter, input scanners and an audit log.`,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to config file (YAML)")

	root.AddCommand(
		newServeCmd(),
		newStdioCmd(),
		newProxyCmd(),
		newStatusCmd(),
		newHealthCmd(),
		newVersionCmd(),
	)
	return root
}

// loadConfig 加载并校验配置
func loadConfig() (*config.Config, error) {
	loader := config.NewLoader()
	if flagConfig != "" {
		loader = loader.WithConfigPath(flagConfig)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// =============================================================================
// 📋 版本
// =============================================================================

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "VisionMCP %s\n", Version)
			fmt.Fprintf(out, "  Build Time: %s\n", BuildTime)
			fmt.Fprintf(out, "  Git Commit: %s\n", GitCommit)
		},
	}
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

// initLogger 构建根 logger。stdio 模式下 stdout 承载协议帧，日志强制写 stderr。
func initLogger(cfg config.LogConfig, stdio bool) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		if !stdio {
			encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if stdio || len(outputs) == 0 {
		outputs = []string{"stderr"}
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Format == "console",
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      outputs,
		ErrorOutputPaths: []string{"stderr"},
	}

	var opts []zap.Option
	if cfg.EnableCaller {
		opts = append(opts, zap.AddCaller())
	}
	if cfg.EnableStacktrace {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	logger, err := zapConfig.Build(opts...)
	if err != nil {
		// 回退到基本 logger
		logger, _ = zap.NewProduction()
	}
	return logger
}
