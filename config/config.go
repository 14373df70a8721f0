package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BaSui01/visionmcp/guardrails"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 VisionMCP 的完整配置结构
type Config struct {
	Server    ServerConfig    `yaml:"server" env:"SERVER"`
	Security  SecuritySection `yaml:"security" env:"SECURITY"`
	Gemini    GeminiConfig    `yaml:"gemini" env:"GEMINI"`
	Storage   StorageConfig   `yaml:"storage" env:"STORAGE"`
	Redis     RedisConfig     `yaml:"redis" env:"REDIS"`
	Database  DatabaseConfig  `yaml:"database" env:"DATABASE"`
	Mongo     MongoConfig     `yaml:"mongo" env:"MONGO"`
	Audit     AuditConfig     `yaml:"audit" env:"AUDIT"`
	Log       LogConfig       `yaml:"log" env:"LOG"`
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
	Proxy     ProxyConfig     `yaml:"proxy" env:"PROXY"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// HTTP 端口（JSON-RPC、WebSocket、REST）
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// Metrics 端口，0 表示与 HTTP 共用
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// 单次工具调用超时
	ToolTimeout time.Duration `yaml:"tool_timeout" env:"TOOL_TIMEOUT"`
	// 每 IP 洪泛保护（令牌桶）
	FloodGuardRPS   float64 `yaml:"flood_guard_rps" env:"FLOOD_GUARD_RPS"`
	FloodGuardBurst int     `yaml:"flood_guard_burst" env:"FLOOD_GUARD_BURST"`
	// JWT 密钥，非空时校验 Bearer Token，sub 作为限流标识
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET"`
	// 是否要求必须携带有效 Token
	RequireAuth bool `yaml:"require_auth" env:"REQUIRE_AUTH"`
	// 允许的跨域来源
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
}

// SecuritySection 安全配置，加载后通过 Config.SecurityConfig 冻结
type SecuritySection struct {
	MaxFileSize            int64         `yaml:"max_file_size" env:"MAX_FILE_SIZE"`
	AllowedMimeTypes       []string      `yaml:"allowed_mime_types" env:"ALLOWED_MIME_TYPES"`
	MaxPromptLength        int           `yaml:"max_prompt_length" env:"MAX_PROMPT_LENGTH"`
	RateLimitWindow        time.Duration `yaml:"rate_limit_window" env:"RATE_LIMIT_WINDOW"`
	MaxRequestsPerWindow   int           `yaml:"max_requests_per_window" env:"MAX_REQUESTS_PER_WINDOW"`
	RateLimitStore         string        `yaml:"rate_limit_store" env:"RATE_LIMIT_STORE"`
	RateLimitSweepInterval time.Duration `yaml:"rate_limit_sweep_interval" env:"RATE_LIMIT_SWEEP_INTERVAL"`
	EnablePIIDetection     bool          `yaml:"enable_pii_detection" env:"ENABLE_PII_DETECTION"`
	PIIAction              string        `yaml:"pii_action" env:"PII_ACTION"`
	EnablePatternBlocking  bool          `yaml:"enable_pattern_blocking" env:"ENABLE_PATTERN_BLOCKING"`
	InjectionThreshold     float64       `yaml:"injection_threshold" env:"INJECTION_THRESHOLD"`
	MaxBase64DecodeDepth   int           `yaml:"max_base64_decode_depth" env:"MAX_BASE64_DECODE_DEPTH"`
	ExtraInjectionPatterns []string      `yaml:"extra_injection_patterns" env:"EXTRA_INJECTION_PATTERNS"`
	BlockedHosts           []string      `yaml:"blocked_hosts" env:"BLOCKED_HOSTS"`
	BlockedPorts           []int         `yaml:"blocked_ports" env:"BLOCKED_PORTS"`
	AllowedBaseDirs        []string      `yaml:"allowed_base_dirs" env:"ALLOWED_BASE_DIRS"`
	AllowedURLSchemes      []string      `yaml:"allowed_url_schemes" env:"ALLOWED_URL_SCHEMES"`
	FetchTimeout           time.Duration `yaml:"fetch_timeout" env:"FETCH_TIMEOUT"`
}

// GeminiConfig Gemini 配置
type GeminiConfig struct {
	APIKey  string        `yaml:"api_key" env:"API_KEY"`
	BaseURL string        `yaml:"base_url" env:"BASE_URL"`
	Model   string        `yaml:"model" env:"MODEL"`
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 为 true 时缺少 API Key 启动即失败
	Required bool `yaml:"required" env:"REQUIRED"`
}

// StorageConfig Supabase Storage 配置
type StorageConfig struct {
	SupabaseURL    string        `yaml:"supabase_url" env:"SUPABASE_URL"`
	ServiceRoleKey string        `yaml:"service_role_key" env:"SERVICE_ROLE_KEY"`
	DefaultBucket  string        `yaml:"default_bucket" env:"DEFAULT_BUCKET"`
	Timeout        time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// 最小空闲连接
	MinIdleConns int `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
}

// DatabaseConfig 审计数据库配置
type DatabaseConfig struct {
	// 是否启用 SQL 审计后端
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 驱动类型: postgres, mysql, sqlite
	Driver string `yaml:"driver" env:"DRIVER"`
	// 主机
	Host string `yaml:"host" env:"HOST"`
	// 端口
	Port int `yaml:"port" env:"PORT"`
	// 用户名
	User string `yaml:"user" env:"USER"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库名，sqlite 时为文件路径
	Name string `yaml:"name" env:"NAME"`
	// SSL 模式
	SSLMode string `yaml:"ssl_mode" env:"SSL_MODE"`
	// 最大连接数
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// 最大空闲连接
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
	// 启动时建表
	AutoMigrate bool `yaml:"auto_migrate" env:"AUTO_MIGRATE"`
}

// MongoConfig MongoDB 审计后端配置
type MongoConfig struct {
	Enabled    bool          `yaml:"enabled" env:"ENABLED"`
	URI        string        `yaml:"uri" env:"URI"`
	Database   string        `yaml:"database" env:"DATABASE"`
	Collection string        `yaml:"collection" env:"COLLECTION"`
	Timeout    time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// AuditConfig 审计日志配置
type AuditConfig struct {
	Capacity       int    `yaml:"capacity" env:"CAPACITY"`
	FileDir        string `yaml:"file_dir" env:"FILE_DIR"`
	AsyncQueueSize int    `yaml:"async_queue_size" env:"ASYNC_QUEUE_SIZE"`
	AsyncWorkers   int    `yaml:"async_workers" env:"ASYNC_WORKERS"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// ProxyConfig stdio → HTTP 代理配置
type ProxyConfig struct {
	RemoteURL string        `yaml:"remote_url" env:"REMOTE_URL"`
	AuthToken string        `yaml:"auth_token" env:"AUTH_TOKEN"`
	Timeout   time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// =============================================================================
// ✅ 校验与转换
// =============================================================================

var (
	validLogLevels  = []string{"debug", "info", "warn", "error"}
	validLogFormats = []string{"json", "console"}
	validDrivers    = []string{"postgres", "mysql", "sqlite"}
	validStores     = []string{"memory", "redis"}
	validPIIActions = []string{string(guardrails.PIIActionWarn), string(guardrails.PIIActionReject)}
)

// Validate 验证配置，收集所有问题后一次返回
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Server.MetricsPort < 0 || c.Server.MetricsPort > 65535 {
		errs = append(errs, "invalid metrics port")
	}
	if c.Server.RequireAuth && c.Server.JWTSecret == "" {
		errs = append(errs, "require_auth needs jwt_secret")
	}

	s := c.Security
	if s.MaxFileSize <= 0 {
		errs = append(errs, "security.max_file_size must be positive")
	}
	if s.MaxPromptLength <= 0 {
		errs = append(errs, "security.max_prompt_length must be positive")
	}
	if s.RateLimitWindow <= 0 {
		errs = append(errs, "security.rate_limit_window must be positive")
	}
	if s.MaxRequestsPerWindow <= 0 {
		errs = append(errs, "security.max_requests_per_window must be positive")
	}
	if s.InjectionThreshold <= 0 || s.InjectionThreshold >= 1 {
		errs = append(errs, "security.injection_threshold must be between 0 and 1")
	}
	if !contains(validStores, s.RateLimitStore) {
		errs = append(errs, fmt.Sprintf("security.rate_limit_store must be one of %v", validStores))
	}
	if !contains(validPIIActions, s.PIIAction) {
		errs = append(errs, fmt.Sprintf("security.pii_action must be one of %v", validPIIActions))
	}
	for _, p := range s.BlockedPorts {
		if p <= 0 || p > 65535 {
			errs = append(errs, fmt.Sprintf("security.blocked_ports contains invalid port %d", p))
		}
	}

	if c.Gemini.Required && c.Gemini.APIKey == "" {
		errs = append(errs, "gemini.api_key is required (set GEMINI_API_KEY)")
	}
	if c.Database.Enabled && !contains(validDrivers, c.Database.Driver) {
		errs = append(errs, fmt.Sprintf("database.driver must be one of %v", validDrivers))
	}
	if c.Mongo.Enabled && c.Mongo.URI == "" {
		errs = append(errs, "mongo.uri is required when mongo is enabled")
	}
	if c.Audit.Capacity <= 0 {
		errs = append(errs, "audit.capacity must be positive")
	}
	if !contains(validLogLevels, c.Log.Level) {
		errs = append(errs, fmt.Sprintf("log.level must be one of %v", validLogLevels))
	}
	if !contains(validLogFormats, c.Log.Format) {
		errs = append(errs, fmt.Sprintf("log.format must be one of %v", validLogFormats))
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, "telemetry.sample_rate must be between 0 and 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// SecurityConfig 冻结安全配置
func (c *Config) SecurityConfig() guardrails.SecurityConfig {
	s := c.Security
	return guardrails.NewSecurityConfig(guardrails.SecuritySettings{
		MaxFileSize:            s.MaxFileSize,
		AllowedMimeTypes:       s.AllowedMimeTypes,
		MaxPromptLength:        s.MaxPromptLength,
		RateLimitWindow:        s.RateLimitWindow,
		MaxRequestsPerWindow:   s.MaxRequestsPerWindow,
		EnablePIIDetection:     s.EnablePIIDetection,
		EnablePatternBlocking:  s.EnablePatternBlocking,
		BlockedHosts:           s.BlockedHosts,
		BlockedPorts:           s.BlockedPorts,
		AllowedBaseDirs:        s.AllowedBaseDirs,
		InjectionThreshold:     s.InjectionThreshold,
		MaxBase64DecodeDepth:   s.MaxBase64DecodeDepth,
		AllowedURLSchemes:      s.AllowedURLSchemes,
		ExtraInjectionPatterns: s.ExtraInjectionPatterns,
	})
}

// DSN 返回数据库连接字符串
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
