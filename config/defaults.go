// =============================================================================
// 📦 VisionMCP 默认配置
// =============================================================================
package config

import (
	"time"

	"github.com/BaSui01/visionmcp/guardrails"
)

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Security:  DefaultSecuritySection(),
		Gemini:    DefaultGeminiConfig(),
		Storage:   DefaultStorageConfig(),
		Redis:     DefaultRedisConfig(),
		Database:  DefaultDatabaseConfig(),
		Mongo:     DefaultMongoConfig(),
		Audit:     DefaultAuditConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
		Proxy:     DefaultProxyConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    90 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		ToolTimeout:     60 * time.Second,
		FloodGuardRPS:   50,
		FloodGuardBurst: 100,
	}
}

// DefaultSecuritySection 返回默认安全配置
func DefaultSecuritySection() SecuritySection {
	d := guardrails.DefaultSecuritySettings()
	return SecuritySection{
		MaxFileSize:           d.MaxFileSize,
		AllowedMimeTypes:      d.AllowedMimeTypes,
		MaxPromptLength:       d.MaxPromptLength,
		RateLimitWindow:       d.RateLimitWindow,
		MaxRequestsPerWindow:  d.MaxRequestsPerWindow,
		RateLimitStore:        "memory",
		EnablePIIDetection:    d.EnablePIIDetection,
		PIIAction:             string(guardrails.PIIActionWarn),
		EnablePatternBlocking: d.EnablePatternBlocking,
		InjectionThreshold:    d.InjectionThreshold,
		MaxBase64DecodeDepth:  d.MaxBase64DecodeDepth,
		BlockedHosts:          d.BlockedHosts,
		BlockedPorts:          d.BlockedPorts,
		AllowedURLSchemes:     d.AllowedURLSchemes,
		FetchTimeout:          10 * time.Second,
	}
}

// DefaultGeminiConfig 返回默认 Gemini 配置
func DefaultGeminiConfig() GeminiConfig {
	return GeminiConfig{
		BaseURL: "https://generativelanguage.googleapis.com",
		Model:   "gemini-2.0-flash",
		Timeout: 30 * time.Second,
	}
}

// DefaultStorageConfig 返回默认存储配置
func DefaultStorageConfig() StorageConfig {
	return StorageConfig{
		DefaultBucket: "images",
		Timeout:       30 * time.Second,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Enabled:         false,
		Driver:          "sqlite",
		Host:            "localhost",
		Port:            5432,
		User:            "visionmcp",
		Name:            "visionmcp_audit.db",
		SSLMode:         "disable",
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
		AutoMigrate:     true,
	}
}

// DefaultMongoConfig 返回默认 MongoDB 配置
func DefaultMongoConfig() MongoConfig {
	return MongoConfig{
		URI:        "mongodb://localhost:27017",
		Database:   "visionmcp",
		Collection: "audit_logs",
		Timeout:    5 * time.Second,
	}
}

// DefaultAuditConfig 返回默认审计配置
func DefaultAuditConfig() AuditConfig {
	return AuditConfig{
		Capacity:       1000,
		AsyncQueueSize: 1024,
		AsyncWorkers:   1,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "visionmcp",
		SampleRate:   0.1,
	}
}

// DefaultProxyConfig 返回默认代理配置
func DefaultProxyConfig() ProxyConfig {
	return ProxyConfig{
		RemoteURL: "http://localhost:8080/mcp",
		Timeout:   90 * time.Second,
	}
}
