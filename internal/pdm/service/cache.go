package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bitfantasy/pdm/internal/metrics"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// StructureCache 未解析的 get_structure 结果缓存，rdb 为空时不缓存
type StructureCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStructureCache(rdb *redis.Client, ttl time.Duration) *StructureCache {
	return &StructureCache{rdb: rdb, ttl: ttl}
}

func structureKey(treeID string) string {
	return "pdm:structure:" + treeID
}

// Get 命中时解码到 dest
func (c *StructureCache) Get(ctx context.Context, treeID string, dest interface{}) bool {
	if c == nil || c.rdb == nil || c.ttl <= 0 {
		return false
	}
	data, err := c.rdb.Get(ctx, structureKey(treeID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			zap.L().Warn("structure cache get failed", zap.String("tree_id", treeID), zap.Error(err))
		}
		metrics.StructureCache.WithLabelValues("miss").Inc()
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		metrics.StructureCache.WithLabelValues("miss").Inc()
		return false
	}
	metrics.StructureCache.WithLabelValues("hit").Inc()
	return true
}

// Set 写入缓存
func (c *StructureCache) Set(ctx context.Context, treeID string, v interface{}) {
	if c == nil || c.rdb == nil || c.ttl <= 0 {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, structureKey(treeID), data, c.ttl).Err(); err != nil {
		zap.L().Warn("structure cache set failed", zap.String("tree_id", treeID), zap.Error(err))
	}
}

// Invalidate 删除若干棵树的缓存
func (c *StructureCache) Invalidate(ctx context.Context, treeIDs ...string) {
	if c == nil || c.rdb == nil || len(treeIDs) == 0 {
		return
	}
	keys := make([]string, 0, len(treeIDs))
	for _, id := range treeIDs {
		keys = append(keys, structureKey(id))
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		zap.L().Warn("structure cache invalidate failed", zap.Strings("tree_ids", treeIDs), zap.Error(err))
	}
}
