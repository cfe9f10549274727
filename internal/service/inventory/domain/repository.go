// internal/service/inventory/domain/repository.go
package domain

import (
	"context"
	"time"
)

// StockRepository 是库存台账的持久化端口。
// 三个变更原语都必须是针对单行 (warehouseId, skuId) 的原子条件更新：
// 守卫条件和增减在同一个存储操作里完成，绝不允许读-改-写两步实现，
// 否则跨进程并发会超卖。守卫失败时不产生任何部分变更。
type StockRepository interface {
	// Get 读取一行台账；行不存在时返回 ErrNotFound
	Get(ctx context.Context, warehouseID, skuID string) (*StockRecord, error)

	// Reserve 在 onHand - reserved >= quantity 的守卫下将 reserved 加上 quantity。
	// 库存不足返回 ErrInsufficientStock，行不存在返回 ErrNotFound。
	Reserve(ctx context.Context, warehouseID, skuID string, quantity int) error

	// ConfirmReserved 在 reserved >= quantity 的守卫下同时扣减 reserved 和 onHand。
	// 守卫失败返回 ErrConflict。
	ConfirmReserved(ctx context.Context, warehouseID, skuID string, quantity int) error

	// ReleaseReserved 在 reserved >= quantity 的守卫下只扣减 reserved。
	// 守卫失败返回 ErrConflict，绝不把 reserved 减成负数。
	ReleaseReserved(ctx context.Context, warehouseID, skuID string, quantity int) error

	// SetOnHand 运营铺货入口：直接设置某行的实际库存（不触碰 reserved），
	// 行不存在时创建。
	SetOnHand(ctx context.Context, warehouseID, skuID string, onHand int) error
}

// ReservationRepository 是预占单的持久化端口
type ReservationRepository interface {
	Save(ctx context.Context, r *Reservation) error
	FindByID(ctx context.Context, id string) (*Reservation, error)
	FindByOrderID(ctx context.Context, orderID string) (*Reservation, error)

	// TransitionStatus 条件状态更新：仅当当前状态为 from 时置为 to，
	// 返回是否真的发生了流转。confirm 与过期清理的竞争靠它裁决。
	TransitionStatus(ctx context.Context, id string, from, to ReservationStatus) (bool, error)

	// BindOrder 回填订单号
	BindOrder(ctx context.Context, id, orderID string) error

	// FindExpired 返回 expiresAt <= now 的 PENDING 预占单，最多 limit 条
	FindExpired(ctx context.Context, now time.Time, limit int) ([]*Reservation, error)
}

// WarehouseRepository 提供选仓候选集，已经是只读参考数据
type WarehouseRepository interface {
	ListActive(ctx context.Context) ([]Warehouse, error)
}
