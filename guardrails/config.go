package guardrails

import (
	"slices"
	"strings"
	"time"
)

// SecuritySettings 构造 SecurityConfig 的原始参数，通常来自配置文件
type SecuritySettings struct {
	MaxFileSize            int64
	AllowedMimeTypes       []string
	MaxPromptLength        int
	RateLimitWindow        time.Duration
	MaxRequestsPerWindow   int
	EnablePIIDetection     bool
	EnablePatternBlocking  bool
	BlockedHosts           []string
	BlockedPorts           []int
	AllowedBaseDirs        []string
	InjectionThreshold     float64
	MaxBase64DecodeDepth   int
	AllowedURLSchemes      []string
	ExtraInjectionPatterns []string
}

// DefaultSecuritySettings 返回默认安全参数
func DefaultSecuritySettings() SecuritySettings {
	return SecuritySettings{
		MaxFileSize:           10 << 20,
		AllowedMimeTypes:      []string{"image/jpeg", "image/png", "image/webp", "image/gif"},
		MaxPromptLength:       10000,
		RateLimitWindow:       time.Minute,
		MaxRequestsPerWindow:  100,
		EnablePIIDetection:    true,
		EnablePatternBlocking: true,
		BlockedHosts:          DefaultBlockedHosts(),
		BlockedPorts:          DefaultBlockedPorts(),
		InjectionThreshold:    0.3,
		MaxBase64DecodeDepth:  1,
		AllowedURLSchemes:     []string{"http", "https"},
	}
}

// DefaultBlockedHosts 回环名称与云元数据地址
func DefaultBlockedHosts() []string {
	return []string{
		"localhost",
		"127.0.0.1",
		"0.0.0.0",
		"::1",
		"169.254.169.254",
		"169.254.170.2",
		"metadata.google.internal",
		"metadata.goog",
		"100.100.100.200",
	}
}

// DefaultBlockedPorts 常见内部服务端口
func DefaultBlockedPorts() []int {
	return []int{22, 23, 25, 2375, 3306, 5432, 6379, 9200, 11211, 27017}
}

// SecurityConfig 进程级安全配置，启动时加载一次，之后只读。
// 所有切片访问器都返回副本。
type SecurityConfig struct {
	s SecuritySettings
}

// NewSecurityConfig 基于参数创建只读配置，零值字段使用默认值
func NewSecurityConfig(s SecuritySettings) SecurityConfig {
	def := DefaultSecuritySettings()
	if s.MaxFileSize <= 0 {
		s.MaxFileSize = def.MaxFileSize
	}
	if len(s.AllowedMimeTypes) == 0 {
		s.AllowedMimeTypes = def.AllowedMimeTypes
	}
	if s.MaxPromptLength <= 0 {
		s.MaxPromptLength = def.MaxPromptLength
	}
	if s.RateLimitWindow <= 0 {
		s.RateLimitWindow = def.RateLimitWindow
	}
	if s.MaxRequestsPerWindow <= 0 {
		s.MaxRequestsPerWindow = def.MaxRequestsPerWindow
	}
	if s.InjectionThreshold <= 0 {
		s.InjectionThreshold = def.InjectionThreshold
	}
	if s.MaxBase64DecodeDepth < 0 {
		s.MaxBase64DecodeDepth = 0
	}
	if len(s.AllowedURLSchemes) == 0 {
		s.AllowedURLSchemes = def.AllowedURLSchemes
	}

	normalized := make([]string, 0, len(s.AllowedMimeTypes))
	for _, m := range s.AllowedMimeTypes {
		normalized = append(normalized, strings.ToLower(strings.TrimSpace(m)))
	}

	return SecurityConfig{s: SecuritySettings{
		MaxFileSize:            s.MaxFileSize,
		AllowedMimeTypes:       normalized,
		MaxPromptLength:        s.MaxPromptLength,
		RateLimitWindow:        s.RateLimitWindow,
		MaxRequestsPerWindow:   s.MaxRequestsPerWindow,
		EnablePIIDetection:     s.EnablePIIDetection,
		EnablePatternBlocking:  s.EnablePatternBlocking,
		BlockedHosts:           slices.Clone(s.BlockedHosts),
		BlockedPorts:           slices.Clone(s.BlockedPorts),
		AllowedBaseDirs:        slices.Clone(s.AllowedBaseDirs),
		InjectionThreshold:     s.InjectionThreshold,
		MaxBase64DecodeDepth:   s.MaxBase64DecodeDepth,
		AllowedURLSchemes:      slices.Clone(s.AllowedURLSchemes),
		ExtraInjectionPatterns: slices.Clone(s.ExtraInjectionPatterns),
	}}
}

func (c SecurityConfig) MaxFileSize() int64             { return c.s.MaxFileSize }
func (c SecurityConfig) MaxPromptLength() int           { return c.s.MaxPromptLength }
func (c SecurityConfig) RateLimitWindow() time.Duration { return c.s.RateLimitWindow }
func (c SecurityConfig) MaxRequestsPerWindow() int      { return c.s.MaxRequestsPerWindow }
func (c SecurityConfig) PIIDetectionEnabled() bool      { return c.s.EnablePIIDetection }
func (c SecurityConfig) PatternBlockingEnabled() bool   { return c.s.EnablePatternBlocking }
func (c SecurityConfig) InjectionThreshold() float64    { return c.s.InjectionThreshold }
func (c SecurityConfig) MaxBase64DecodeDepth() int      { return c.s.MaxBase64DecodeDepth }
func (c SecurityConfig) AllowedMimeTypes() []string     { return slices.Clone(c.s.AllowedMimeTypes) }
func (c SecurityConfig) BlockedHosts() []string         { return slices.Clone(c.s.BlockedHosts) }
func (c SecurityConfig) BlockedPorts() []int            { return slices.Clone(c.s.BlockedPorts) }
func (c SecurityConfig) AllowedBaseDirs() []string      { return slices.Clone(c.s.AllowedBaseDirs) }
func (c SecurityConfig) AllowedURLSchemes() []string    { return slices.Clone(c.s.AllowedURLSchemes) }
func (c SecurityConfig) ExtraInjectionPatterns() []string {
	return slices.Clone(c.s.ExtraInjectionPatterns)
}

// IsMimeAllowed MIME 类型是否在白名单中
func (c SecurityConfig) IsMimeAllowed(mime string) bool {
	return slices.Contains(c.s.AllowedMimeTypes, strings.ToLower(mime))
}

// Snapshot 返回可序列化的配置视图，用于状态查询
func (c SecurityConfig) Snapshot() map[string]any {
	return map[string]any{
		"max_file_size":           c.s.MaxFileSize,
		"allowed_mime_types":      c.AllowedMimeTypes(),
		"max_prompt_length":       c.s.MaxPromptLength,
		"rate_limit_window_ms":    c.s.RateLimitWindow.Milliseconds(),
		"max_requests_per_window": c.s.MaxRequestsPerWindow,
		"pii_detection_enabled":   c.s.EnablePIIDetection,
		"pattern_blocking":        c.s.EnablePatternBlocking,
		"injection_threshold":     c.s.InjectionThreshold,
		"blocked_hosts":           len(c.s.BlockedHosts),
		"blocked_ports":           c.BlockedPorts(),
		"path_sandbox_enabled":    len(c.s.AllowedBaseDirs) > 0,
	}
}
