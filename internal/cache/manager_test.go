package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// =============================================================================
// 🧪 Manager 测试
// =============================================================================

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *Manager) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	config := DefaultConfig()
	config.Addr = mr.Addr()
	config.HealthCheckInterval = 10 * time.Millisecond

	manager, err := NewManager(config, zap.NewNop())
	require.NoError(t, err)
	return mr, manager
}

func TestNewManager(t *testing.T) {
	mr, manager := setupTestRedis(t)
	defer mr.Close()
	defer manager.Close()

	assert.NotNil(t, manager.Client())
	assert.NoError(t, manager.Ping(context.Background()))
}

func TestNewManager_Unreachable(t *testing.T) {
	config := DefaultConfig()
	config.Addr = "127.0.0.1:1"
	config.HealthCheckInterval = 0

	_, err := NewManager(config, nil)
	assert.Error(t, err)
}

func TestManager_Close(t *testing.T) {
	mr, manager := setupTestRedis(t)
	defer mr.Close()

	require.NoError(t, manager.Close())
	assert.NoError(t, manager.Close(), "close is idempotent")
	assert.Error(t, manager.Ping(context.Background()))
}

func TestManager_Stats(t *testing.T) {
	mr, manager := setupTestRedis(t)
	defer mr.Close()
	defer manager.Close()

	require.NoError(t, manager.Client().Set(context.Background(), "k", "v", 0).Err())
	stats := manager.GetStats()
	assert.GreaterOrEqual(t, stats.TotalConns, uint32(1))
}
