// internal/service/inventory/infrastructure/redis_warehouse_cache.go
package infrastructure

import (
	"context"
	"encoding/json"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"qcom/internal/pkg/redis"
	"qcom/internal/service/inventory/domain"
)

const warehouseCacheKey = "inventory:warehouses:active"

// CachedWarehouseRepository 给仓库目录套一层 Redis 读穿缓存。
// 仓库是低频变更的参考数据，缓存失误只是多一次 DB 查询；
// Redis 故障时直接回源，绝不让缓存问题阻断选仓。
type CachedWarehouseRepository struct {
	inner  domain.WarehouseRepository
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

func NewCachedWarehouseRepository(inner domain.WarehouseRepository, client *redis.Client, ttl time.Duration, logger zerolog.Logger) *CachedWarehouseRepository {
	return &CachedWarehouseRepository{
		inner:  inner,
		client: client,
		ttl:    ttl,
		logger: logger.With().Str("component", "warehouse-cache").Logger(),
	}
}

func (r *CachedWarehouseRepository) ListActive(ctx context.Context) ([]domain.Warehouse, error) {
	cached, err := r.client.GetClient().Get(ctx, warehouseCacheKey).Bytes()
	if err == nil {
		var warehouses []domain.Warehouse
		if jsonErr := json.Unmarshal(cached, &warehouses); jsonErr == nil {
			return warehouses, nil
		}
		// 缓存内容损坏，当作未命中处理
		r.logger.Warn().Msg("corrupt warehouse cache entry, falling through")
	} else if err != goredis.Nil {
		r.logger.Warn().Err(err).Msg("warehouse cache read failed, falling through")
	}

	warehouses, err := r.inner.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	if data, jsonErr := json.Marshal(warehouses); jsonErr == nil {
		if setErr := r.client.GetClient().Set(ctx, warehouseCacheKey, data, r.ttl).Err(); setErr != nil {
			r.logger.Warn().Err(setErr).Msg("warehouse cache write failed")
		}
	}
	return warehouses, nil
}
