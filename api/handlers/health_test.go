package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// =============================================================================
// 🧪 测试辅助类型
// =============================================================================

// mockHealthCheck 模拟健康检查
type mockHealthCheck struct {
	name string
	err  error
}

func (m *mockHealthCheck) Name() string {
	return m.name
}

func (m *mockHealthCheck) Check(ctx context.Context) error {
	return m.err
}

var testVersion = VersionInfo{Version: "1.2.3", BuildTime: "2024-01-01", GitCommit: "abc123"}

// =============================================================================
// 🧪 HealthHandler 测试
// =============================================================================

func TestHealthHandler_HandleHealth(t *testing.T) {
	handler := NewHealthHandler(testVersion, zap.NewNop())

	w := httptest.NewRecorder()
	handler.HandleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)

	var status HealthStatus
	require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, "1.2.3", status.Version)
	assert.False(t, status.Timestamp.IsZero())
}

func TestHealthHandler_HandleHealthz(t *testing.T) {
	handler := NewHealthHandler(testVersion, nil)
	handler.RegisterCheck(&mockHealthCheck{name: "database", err: errors.New("down")})

	w := httptest.NewRecorder()
	handler.HandleHealthz(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	// 活跃度探针不执行依赖检查
	assert.Equal(t, http.StatusOK, w.Code)

	var status HealthStatus
	require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
	assert.Equal(t, "healthy", status.Status)
	assert.Empty(t, status.Checks)
}

func TestHealthHandler_HandleReady(t *testing.T) {
	tests := []struct {
		name           string
		checks         []HealthCheck
		expectedStatus int
		expectedHealth string
	}{
		{
			name:           "no checks",
			expectedStatus: http.StatusOK,
			expectedHealth: "healthy",
		},
		{
			name: "all checks pass",
			checks: []HealthCheck{
				&mockHealthCheck{name: "database"},
				&mockHealthCheck{name: "redis"},
			},
			expectedStatus: http.StatusOK,
			expectedHealth: "healthy",
		},
		{
			name: "one check fails",
			checks: []HealthCheck{
				&mockHealthCheck{name: "database"},
				&mockHealthCheck{name: "redis", err: errors.New("connection refused")},
			},
			expectedStatus: http.StatusServiceUnavailable,
			expectedHealth: "unhealthy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHealthHandler(testVersion, zap.NewNop())
			for _, c := range tt.checks {
				handler.RegisterCheck(c)
			}
			handler.RegisterCheck(nil)

			w := httptest.NewRecorder()
			handler.HandleReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

			assert.Equal(t, tt.expectedStatus, w.Code)

			var status HealthStatus
			require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
			assert.Equal(t, tt.expectedHealth, status.Status)
			assert.Len(t, status.Checks, len(tt.checks))
			for _, c := range tt.checks {
				res := status.Checks[c.Name()]
				if c.(*mockHealthCheck).err != nil {
					assert.Equal(t, "fail", res.Status)
					assert.Equal(t, "connection refused", res.Message)
				} else {
					assert.Equal(t, "pass", res.Status)
				}
				assert.NotEmpty(t, res.Latency)
			}
		})
	}
}

func TestHealthHandler_HandleVersion(t *testing.T) {
	handler := NewHealthHandler(testVersion, nil)

	w := httptest.NewRecorder()
	handler.HandleVersion(w, httptest.NewRequest(http.MethodGet, "/version", nil))

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool        `json:"success"`
		Data    VersionInfo `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Success)
	assert.Equal(t, testVersion, resp.Data)
}

// =============================================================================
// 🧪 内置检查测试
// =============================================================================

func TestRedisHealthCheck(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	check := NewRedisHealthCheck("redis", func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
	assert.Equal(t, "redis", check.Name())
	assert.NoError(t, check.Check(context.Background()))

	mr.Close()
	assert.Error(t, check.Check(context.Background()))
}

func TestDatabaseHealthCheck(t *testing.T) {
	want := errors.New("db closed")
	check := NewDatabaseHealthCheck("database", func(context.Context) error { return want })

	assert.Equal(t, "database", check.Name())
	assert.ErrorIs(t, check.Check(context.Background()), want)
}
