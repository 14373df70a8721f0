// 配置加载器测试。
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envLookup(env map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
}

// --- Loader 测试 ---

func TestLoader_LoadDefaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, 100, cfg.Security.MaxRequestsPerWindow)
	assert.NoError(t, cfg.Validate())
}

func TestLoader_LoadFromYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	yamlContent := `
server:
  http_port: 8888
  read_timeout: 60s
security:
  max_file_size: 2097152
  rate_limit_window: 30s
  max_requests_per_window: 5
  enable_pii_detection: false
  blocked_ports: [22, 6379]
  allowed_base_dirs: ["/srv/images"]
gemini:
  model: gemini-1.5-pro
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0o644))

	cfg, err := NewLoader().WithConfigPath(configPath).Load()
	require.NoError(t, err)

	assert.Equal(t, 8888, cfg.Server.HTTPPort)
	assert.Equal(t, 60*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, int64(2<<20), cfg.Security.MaxFileSize)
	assert.Equal(t, 30*time.Second, cfg.Security.RateLimitWindow)
	assert.Equal(t, 5, cfg.Security.MaxRequestsPerWindow)
	assert.False(t, cfg.Security.EnablePIIDetection)
	assert.True(t, cfg.Security.EnablePatternBlocking)
	assert.Equal(t, []int{22, 6379}, cfg.Security.BlockedPorts)
	assert.Equal(t, []string{"/srv/images"}, cfg.Security.AllowedBaseDirs)
	assert.Equal(t, "gemini-1.5-pro", cfg.Gemini.Model)
	assert.Equal(t, "debug", cfg.Log.Level)
	// 未出现在 YAML 中的字段保留默认值
	assert.Equal(t, 9091, cfg.Server.MetricsPort)
}

func TestLoader_LoadFromEnv(t *testing.T) {
	l := NewLoader()
	l.lookupEnv = envLookup(map[string]string{
		"VISIONMCP_SERVER_HTTP_PORT":                 "7777",
		"VISIONMCP_SECURITY_MAX_REQUESTS_PER_WINDOW": "10",
		"VISIONMCP_SECURITY_RATE_LIMIT_WINDOW":       "2m",
		"VISIONMCP_SECURITY_BLOCKED_PORTS":           "22, 25",
		"VISIONMCP_SECURITY_ALLOWED_MIME_TYPES":      "image/png,image/jpeg",
		"VISIONMCP_SECURITY_ENABLE_PATTERN_BLOCKING": "false",
		"VISIONMCP_SECURITY_INJECTION_THRESHOLD":     "0.5",
		"VISIONMCP_REDIS_ADDR":                       "env-redis:6379",
		"VISIONMCP_LOG_LEVEL":                        "warn",
	})

	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, 7777, cfg.Server.HTTPPort)
	assert.Equal(t, 10, cfg.Security.MaxRequestsPerWindow)
	assert.Equal(t, 2*time.Minute, cfg.Security.RateLimitWindow)
	assert.Equal(t, []int{22, 25}, cfg.Security.BlockedPorts)
	assert.Equal(t, []string{"image/png", "image/jpeg"}, cfg.Security.AllowedMimeTypes)
	assert.False(t, cfg.Security.EnablePatternBlocking)
	assert.Equal(t, 0.5, cfg.Security.InjectionThreshold)
	assert.Equal(t, "env-redis:6379", cfg.Redis.Addr)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoader_EnvOverridesYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("server:\n  http_port: 8888\ngemini:\n  model: yaml-model\n"), 0o644))

	t.Setenv("VISIONMCP_SERVER_HTTP_PORT", "9999")

	cfg, err := NewLoader().WithConfigPath(configPath).Load()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.HTTPPort)
	assert.Equal(t, "yaml-model", cfg.Gemini.Model)
}

func TestLoader_SecretFallbacks(t *testing.T) {
	t.Run("well-known names fill empty fields", func(t *testing.T) {
		l := NewLoader()
		l.lookupEnv = envLookup(map[string]string{
			"GEMINI_API_KEY":            "g-key",
			"SUPABASE_URL":              "https://proj.supabase.co",
			"SUPABASE_SERVICE_ROLE_KEY": "s-key",
		})
		cfg, err := l.Load()
		require.NoError(t, err)
		assert.Equal(t, "g-key", cfg.Gemini.APIKey)
		assert.Equal(t, "https://proj.supabase.co", cfg.Storage.SupabaseURL)
		assert.Equal(t, "s-key", cfg.Storage.ServiceRoleKey)
	})

	t.Run("prefixed names win", func(t *testing.T) {
		l := NewLoader()
		l.lookupEnv = envLookup(map[string]string{
			"GEMINI_API_KEY":           "generic",
			"VISIONMCP_GEMINI_API_KEY": "prefixed",
		})
		cfg, err := l.Load()
		require.NoError(t, err)
		assert.Equal(t, "prefixed", cfg.Gemini.APIKey)
	})
}

func TestLoader_CustomEnvPrefix(t *testing.T) {
	t.Setenv("MYAPP_SERVER_HTTP_PORT", "6666")

	cfg, err := NewLoader().WithEnvPrefix("MYAPP").Load()
	require.NoError(t, err)
	assert.Equal(t, 6666, cfg.Server.HTTPPort)
}

func TestLoader_WithValidator(t *testing.T) {
	t.Setenv("VISIONMCP_SERVER_HTTP_PORT", "80")

	_, err := NewLoader().
		WithValidator(func(cfg *Config) error {
			if cfg.Server.HTTPPort < 1024 {
				return assert.AnError
			}
			return nil
		}).
		Load()
	assert.Error(t, err)
}

func TestLoader_NonExistentFile(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/non/existent/path/config.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
}

func TestLoader_InvalidInput(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "invalid.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("server:\n  http_port: [invalid\n"), 0o644))

	_, err := NewLoader().WithConfigPath(configPath).Load()
	assert.Error(t, err)

	l := NewLoader()
	l.lookupEnv = envLookup(map[string]string{"VISIONMCP_SECURITY_BLOCKED_PORTS": "22,ssh"})
	_, err = l.Load()
	assert.Error(t, err)
}

// --- Validate 测试 ---

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid defaults", func(*Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.HTTPPort = 70000 }, "invalid HTTP port"},
		{"auth without secret", func(c *Config) { c.Server.RequireAuth = true }, "jwt_secret"},
		{"zero window", func(c *Config) { c.Security.RateLimitWindow = 0 }, "rate_limit_window"},
		{"threshold out of range", func(c *Config) { c.Security.InjectionThreshold = 1.5 }, "injection_threshold"},
		{"unknown store", func(c *Config) { c.Security.RateLimitStore = "etcd" }, "rate_limit_store"},
		{"unknown pii action", func(c *Config) { c.Security.PIIAction = "redact" }, "pii_action"},
		{"bad blocked port", func(c *Config) { c.Security.BlockedPorts = []int{0} }, "blocked_ports"},
		{"gemini required", func(c *Config) { c.Gemini.Required = true }, "GEMINI_API_KEY"},
		{"bad driver", func(c *Config) { c.Database.Enabled = true; c.Database.Driver = "oracle" }, "database.driver"},
		{"mongo without uri", func(c *Config) { c.Mongo.Enabled = true; c.Mongo.URI = "" }, "mongo.uri"},
		{"bad log level", func(c *Config) { c.Log.Level = "trace" }, "log.level"},
		{"bad sample rate", func(c *Config) { c.Telemetry.SampleRate = 2 }, "sample_rate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_ValidateCollectsAllProblems(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.HTTPPort = 0
	cfg.Log.Format = "xml"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid HTTP port")
	assert.Contains(t, err.Error(), "log.format")
}

func TestConfig_SecurityConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Security.MaxRequestsPerWindow = 3
	cfg.Security.AllowedBaseDirs = []string{"/data"}

	sc := cfg.SecurityConfig()
	assert.Equal(t, 3, sc.MaxRequestsPerWindow())
	assert.Equal(t, int64(10<<20), sc.MaxFileSize())
	assert.Equal(t, []string{"/data"}, sc.AllowedBaseDirs())

	// 冻结后修改原配置不影响已生成的值
	cfg.Security.AllowedBaseDirs[0] = "/etc"
	cfg.Security.MaxRequestsPerWindow = 99
	assert.Equal(t, []string{"/data"}, sc.AllowedBaseDirs())
	assert.Equal(t, 3, sc.MaxRequestsPerWindow())
}

func TestDatabaseConfig_DSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  DatabaseConfig
		want string
	}{
		{
			name: "postgres",
			cfg:  DatabaseConfig{Driver: "postgres", Host: "db", Port: 5432, User: "u", Password: "p", Name: "audit", SSLMode: "disable"},
			want: "host=db port=5432 user=u password=p dbname=audit sslmode=disable",
		},
		{
			name: "mysql",
			cfg:  DatabaseConfig{Driver: "mysql", Host: "db", Port: 3306, User: "u", Password: "p", Name: "audit"},
			want: "u:p@tcp(db:3306)/audit?parseTime=true",
		},
		{
			name: "sqlite",
			cfg:  DatabaseConfig{Driver: "sqlite", Name: "/tmp/audit.db"},
			want: "/tmp/audit.db",
		},
		{
			name: "unknown",
			cfg:  DatabaseConfig{Driver: "oracle"},
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.DSN())
		})
	}
}

func TestMustLoad(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("server:\n  http_port: 8181\n"), 0o644))
	assert.Equal(t, 8181, MustLoad(configPath).Server.HTTPPort)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("server: [\n"), 0o644))
	assert.Panics(t, func() { MustLoad(bad) })
}
