package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"ilce-api/internal/logger"
)

// DefaultPrefix：Redis 键前缀，与其他业务共享实例时隔离
const DefaultPrefix = "district:"

// 文档注释：Redis 缓存后端
// 背景：多实例部署时共享解析结果，避免各实例重复调用限流的地理编码服务；过期交由 Redis TTL 处理。
// 约束：Redis 不可用时读视为未命中、写静默失败（仅记录日志），不影响解析主流程。
type Redis struct {
	rc     *redis.Client
	prefix string
}

func NewRedis(rc *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Redis{rc: rc, prefix: prefix}
}

func (c *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	b, err := c.rc.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.L().Warn("cache_redis_get_error", "err", err)
		}
		return nil, false
	}
	return b, true
}

func (c *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if ttl < 0 {
		ttl = NoExpiry
	}
	if err := c.rc.Set(ctx, c.prefix+key, value, ttl).Err(); err != nil {
		logger.L().Warn("cache_redis_set_error", "err", err)
	}
}

// Size：按前缀 SCAN 计数（已过期键由 Redis 自行淘汰）
func (c *Redis) Size(ctx context.Context) int {
	var cursor uint64
	n := 0
	for {
		keys, next, err := c.rc.Scan(ctx, cursor, c.prefix+"*", 500).Result()
		if err != nil {
			logger.L().Warn("cache_redis_scan_error", "err", err)
			return n
		}
		n += len(keys)
		cursor = next
		if cursor == 0 {
			return n
		}
	}
}
