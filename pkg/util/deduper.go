package util

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Deduper struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewDeduper(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *Deduper {
	return &Deduper{
		rdb:    rdb,
		ttl:    ttl,
		logger: logger,
	}
}

// AcquireOnce tries to acquire a dedup lock for a given handler + key.
// Returns true if this is the first time the key is seen.
func (d *Deduper) AcquireOnce(ctx context.Context, handler string, key string) bool {
	redisKey := fmt.Sprintf("dedup:%s:%s", handler, key)

	ok, err := d.rdb.SetNX(ctx, redisKey, 1, d.ttl).Result()
	if err != nil {
		// Redis 不可用时不阻止处理，下游的幂等检查兜底
		d.logger.Warn("Redis dedup check failed, allowing processing",
			zap.String("handler", handler),
			zap.String("key", key),
			zap.Error(err),
		)
		return true
	}

	if !ok {
		d.logger.Info("Skipped duplicated event",
			zap.String("handler", handler),
			zap.String("dedup_key", redisKey),
		)
	}

	return ok
}

// Release 处理失败时释放去重锁，让重投的消息可以再次处理
func (d *Deduper) Release(ctx context.Context, handler string, key string) {
	redisKey := fmt.Sprintf("dedup:%s:%s", handler, key)
	if err := d.rdb.Del(ctx, redisKey).Err(); err != nil {
		d.logger.Warn("Failed to release dedup key",
			zap.String("dedup_key", redisKey),
			zap.Error(err),
		)
	}
}
