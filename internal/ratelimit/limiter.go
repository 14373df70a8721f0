// Package ratelimit implements fixed-window admission control keyed by client identifier.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
)

// Decision 限流判定结果
type Decision struct {
	Allowed bool `json:"allowed"`
	// RetryAfter 被拒绝时距窗口重置的秒数（向上取整，至少为 1）
	RetryAfter int       `json:"retry_after,omitempty"`
	Remaining  int       `json:"remaining"`
	ResetAt    time.Time `json:"reset_at"`
}

// Store 窗口存储。Hit 必须原子地完成"读取-判定-计数"。
type Store interface {
	Hit(ctx context.Context, key string, now time.Time, window time.Duration, max int) (Decision, error)
	Name() string
}

// Config 限流配置
type Config struct {
	Window      time.Duration
	MaxRequests int
	// KeyPrefix 存储键前缀
	KeyPrefix string
	// FailOpen 存储故障时放行（默认拒绝）
	FailOpen bool
}

// Limiter 固定窗口限流器
type Limiter struct {
	store    Store
	window   time.Duration
	max      int
	prefix   string
	failOpen bool
	now      func() time.Time
	logger   *zap.Logger
}

// NewLimiter 创建限流器，store 为空时使用进程内存储
func NewLimiter(cfg Config, store Store, logger *zap.Logger) (*Limiter, error) {
	if cfg.Window <= 0 {
		return nil, errors.New("rate limit window must be positive")
	}
	if cfg.MaxRequests <= 0 {
		return nil, errors.New("max requests per window must be positive")
	}
	if store == nil {
		store = NewMemoryStore()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Limiter{
		store:    store,
		window:   cfg.Window,
		max:      cfg.MaxRequests,
		prefix:   cfg.KeyPrefix,
		failOpen: cfg.FailOpen,
		now:      time.Now,
		logger:   logger.With(zap.String("component", "rate_limiter"), zap.String("store", store.Name())),
	}, nil
}

// WithClock 替换时钟，用于测试
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// CheckRateLimit 判定 identifier 的本次请求是否放行
func (l *Limiter) CheckRateLimit(ctx context.Context, identifier string) (Decision, error) {
	if identifier == "" {
		identifier = "anonymous"
	}
	d, err := l.store.Hit(ctx, l.prefix+identifier, l.now(), l.window, l.max)
	if err != nil {
		if l.failOpen {
			l.logger.Warn("rate limit store unavailable, allowing request", zap.Error(err))
			return Decision{Allowed: true, Remaining: l.max}, nil
		}
		return Decision{}, fmt.Errorf("rate limit store: %w", err)
	}
	if !d.Allowed {
		l.logger.Debug("request rate limited",
			zap.String("identifier", identifier),
			zap.Int("retry_after", d.RetryAfter),
		)
	}
	return d, nil
}

// Window 窗口长度
func (l *Limiter) Window() time.Duration { return l.window }

// MaxRequests 窗口内最大请求数
func (l *Limiter) MaxRequests() int { return l.max }

// StoreName 存储名称
func (l *Limiter) StoreName() string { return l.store.Name() }

// TrackedIdentifiers 进程内存储跟踪的标识数，其他存储返回 -1
func (l *Limiter) TrackedIdentifiers() int {
	if s, ok := l.store.(interface{ Len() int }); ok {
		return s.Len()
	}
	return -1
}

// retryAfterSeconds = ceil((resetTime-now)/1s)，至少为 1
func retryAfterSeconds(remaining time.Duration) int {
	secs := int(math.Ceil(remaining.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}
