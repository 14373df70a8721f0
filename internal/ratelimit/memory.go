package ratelimit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Window 单个标识的计数窗口
type Window struct {
	Count     int
	ResetTime time.Time
}

// MemoryStore 进程内窗口存储。单个互斥锁同时保护读取与计数，避免 count 丢失更新。
// 过期窗口默认不清理，可通过 StartSweeper 开启周期清理。
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*Window
}

// NewMemoryStore 创建进程内存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{windows: make(map[string]*Window)}
}

// Name 存储名称
func (s *MemoryStore) Name() string { return "memory" }

// Hit 实现 Store
func (s *MemoryStore) Hit(_ context.Context, key string, now time.Time, window time.Duration, max int) (Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok || now.After(w.ResetTime) {
		w = &Window{Count: 1, ResetTime: now.Add(window)}
		s.windows[key] = w
		return Decision{Allowed: true, Remaining: max - 1, ResetAt: w.ResetTime}, nil
	}

	if w.Count >= max {
		return Decision{
			Allowed:    false,
			RetryAfter: retryAfterSeconds(w.ResetTime.Sub(now)),
			Remaining:  0,
			ResetAt:    w.ResetTime,
		}, nil
	}

	w.Count++
	return Decision{Allowed: true, Remaining: max - w.Count, ResetAt: w.ResetTime}, nil
}

// Get 返回窗口快照
func (s *MemoryStore) Get(key string) (Window, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows[key]
	if !ok {
		return Window{}, false
	}
	return *w, true
}

// Len 跟踪的标识数
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

// Sweep 删除 now 时已过期的窗口，返回删除数量
func (s *MemoryStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for k, w := range s.windows {
		if now.After(w.ResetTime) {
			delete(s.windows, k)
			removed++
		}
	}
	return removed
}

// StartSweeper 周期性清理过期窗口，ctx 取消后退出
func (s *MemoryStore) StartSweeper(ctx context.Context, interval time.Duration, logger *zap.Logger) {
	if interval <= 0 {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if n := s.Sweep(now); n > 0 {
					logger.Debug("expired rate limit windows removed", zap.Int("count", n))
				}
			}
		}
	}()
}
