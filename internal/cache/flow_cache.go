package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"orderflow/internal/orderflow"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultFlowTTL 流程状态缓存时间
const DefaultFlowTTL = 30 * time.Second

// FlowCache 基于 Redis 的 orderflow.FlowCache。
// Redis 出错时只记日志，调用方回源到数据库。
type FlowCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

var _ orderflow.FlowCache = (*FlowCache)(nil)

func NewFlowCache(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *FlowCache {
	if ttl <= 0 {
		ttl = DefaultFlowTTL
	}
	return &FlowCache{rdb: rdb, ttl: ttl, logger: logger}
}

func flowKey(orderID int) string {
	return fmt.Sprintf("orderflow:flow:%d", orderID)
}

func (c *FlowCache) Get(ctx context.Context, orderID int) (*orderflow.FlowStatus, bool) {
	raw, err := c.rdb.Get(ctx, flowKey(orderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		c.logger.Warn("Flow cache get failed", zap.Int("order_id", orderID), zap.Error(err))
		return nil, false
	}

	var status orderflow.FlowStatus
	if err := json.Unmarshal(raw, &status); err != nil {
		c.logger.Warn("Dropping undecodable flow cache entry", zap.Int("order_id", orderID), zap.Error(err))
		c.Invalidate(ctx, orderID)
		return nil, false
	}
	return &status, true
}

func (c *FlowCache) Set(ctx context.Context, orderID int, status *orderflow.FlowStatus) {
	raw, err := json.Marshal(status)
	if err != nil {
		c.logger.Warn("Failed to encode flow status", zap.Int("order_id", orderID), zap.Error(err))
		return
	}
	if err := c.rdb.Set(ctx, flowKey(orderID), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("Flow cache set failed", zap.Int("order_id", orderID), zap.Error(err))
	}
}

func (c *FlowCache) Invalidate(ctx context.Context, orderID int) {
	if err := c.rdb.Del(ctx, flowKey(orderID)).Err(); err != nil {
		c.logger.Warn("Flow cache invalidate failed", zap.Int("order_id", orderID), zap.Error(err))
	}
}
