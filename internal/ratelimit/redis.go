package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// fixedWindowScript 先检查再计数，拒绝的请求不增加计数。
// 返回 {count, pttl}；count 为 0 表示拒绝。
var fixedWindowScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if current and tonumber(current) >= tonumber(ARGV[2]) then
  return {0, redis.call('PTTL', KEYS[1])}
end
local count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return {count, redis.call('PTTL', KEYS[1])}
`)

// RedisStore 基于 Redis 的共享窗口存储，用于多实例部署。窗口时间以 Redis 键的 TTL 为准。
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore 创建 Redis 存储
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// Name 存储名称
func (s *RedisStore) Name() string { return "redis" }

// Hit 实现 Store
func (s *RedisStore) Hit(ctx context.Context, key string, now time.Time, window time.Duration, max int) (Decision, error) {
	res, err := fixedWindowScript.Run(ctx, s.client, []string{key}, window.Milliseconds(), max).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("redis fixed window: %w", err)
	}
	if len(res) != 2 {
		return Decision{}, fmt.Errorf("redis fixed window: unexpected reply %v", res)
	}
	count, pttl := res[0], res[1]
	if pttl < 0 {
		pttl = window.Milliseconds()
	}
	remaining := time.Duration(pttl) * time.Millisecond
	resetAt := now.Add(remaining)

	if count == 0 {
		return Decision{
			Allowed:    false,
			RetryAfter: retryAfterSeconds(remaining),
			ResetAt:    resetAt,
		}, nil
	}
	return Decision{Allowed: true, Remaining: max - int(count), ResetAt: resetAt}, nil
}
