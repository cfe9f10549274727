// internal/service/inventory/infrastructure/memory_repository.go
package infrastructure

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"qcom/internal/service/inventory/domain"
)

// MemoryStockRepository 是 StockRepository 的进程内实现，供测试和本地
// 开发替换 MySQL。守卫语义与 SQL 条件更新完全一致：检查和变更在同一把
// 锁内完成，守卫失败不产生任何变更。
type MemoryStockRepository struct {
	mu      sync.Mutex
	records map[string]*domain.StockRecord
}

func NewMemoryStockRepository() *MemoryStockRepository {
	return &MemoryStockRepository{records: make(map[string]*domain.StockRecord)}
}

func stockKey(warehouseID, skuID string) string { return warehouseID + "/" + skuID }

func (r *MemoryStockRepository) Get(_ context.Context, warehouseID, skuID string) (*domain.StockRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[stockKey(warehouseID, skuID)]
	if !ok {
		return nil, errors.Wrapf(domain.ErrNotFound, "stock %s/%s", warehouseID, skuID)
	}
	copied := *record
	return &copied, nil
}

func (r *MemoryStockRepository) Reserve(_ context.Context, warehouseID, skuID string, quantity int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[stockKey(warehouseID, skuID)]
	if !ok {
		return errors.Wrapf(domain.ErrNotFound, "stock %s/%s", warehouseID, skuID)
	}
	if record.OnHand-record.Reserved < quantity {
		return errors.Wrapf(domain.ErrInsufficientStock,
			"warehouse %s sku %s: available %d, requested %d", warehouseID, skuID, record.OnHand-record.Reserved, quantity)
	}
	record.Reserved += quantity
	record.UpdatedAt = time.Now()
	return nil
}

func (r *MemoryStockRepository) ConfirmReserved(_ context.Context, warehouseID, skuID string, quantity int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[stockKey(warehouseID, skuID)]
	if !ok {
		return errors.Wrapf(domain.ErrNotFound, "stock %s/%s", warehouseID, skuID)
	}
	if record.Reserved < quantity {
		return errors.Wrapf(domain.ErrConflict,
			"warehouse %s sku %s: reserved %d below confirm quantity %d", warehouseID, skuID, record.Reserved, quantity)
	}
	record.Reserved -= quantity
	record.OnHand -= quantity
	record.UpdatedAt = time.Now()
	return nil
}

func (r *MemoryStockRepository) ReleaseReserved(_ context.Context, warehouseID, skuID string, quantity int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[stockKey(warehouseID, skuID)]
	if !ok {
		return errors.Wrapf(domain.ErrNotFound, "stock %s/%s", warehouseID, skuID)
	}
	if record.Reserved < quantity {
		return errors.Wrapf(domain.ErrConflict,
			"warehouse %s sku %s: reserved %d below release quantity %d", warehouseID, skuID, record.Reserved, quantity)
	}
	record.Reserved -= quantity
	record.UpdatedAt = time.Now()
	return nil
}

func (r *MemoryStockRepository) SetOnHand(_ context.Context, warehouseID, skuID string, onHand int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := stockKey(warehouseID, skuID)
	record, ok := r.records[key]
	if !ok {
		r.records[key] = &domain.StockRecord{
			WarehouseID: warehouseID,
			SKUID:       skuID,
			OnHand:      onHand,
			UpdatedAt:   time.Now(),
		}
		return nil
	}
	record.OnHand = onHand
	record.UpdatedAt = time.Now()
	return nil
}

// MemoryReservationRepository 是 ReservationRepository 的进程内实现
type MemoryReservationRepository struct {
	mu           sync.Mutex
	reservations map[string]*domain.Reservation
}

func NewMemoryReservationRepository() *MemoryReservationRepository {
	return &MemoryReservationRepository{reservations: make(map[string]*domain.Reservation)}
}

func (r *MemoryReservationRepository) Save(_ context.Context, reservation *domain.Reservation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := cloneReservation(reservation)
	r.reservations[reservation.ID] = copied
	return nil
}

func (r *MemoryReservationRepository) FindByID(_ context.Context, id string) (*domain.Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reservation, ok := r.reservations[id]
	if !ok {
		return nil, errors.Wrapf(domain.ErrNotFound, "reservation %s", id)
	}
	return cloneReservation(reservation), nil
}

func (r *MemoryReservationRepository) FindByOrderID(_ context.Context, orderID string) (*domain.Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, reservation := range r.reservations {
		if reservation.OrderID == orderID {
			return cloneReservation(reservation), nil
		}
	}
	return nil, errors.Wrapf(domain.ErrNotFound, "reservation for order %s", orderID)
}

func (r *MemoryReservationRepository) TransitionStatus(_ context.Context, id string, from, to domain.ReservationStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reservation, ok := r.reservations[id]
	if !ok {
		return false, errors.Wrapf(domain.ErrNotFound, "reservation %s", id)
	}
	if reservation.Status != from {
		return false, nil
	}
	reservation.Status = to
	reservation.UpdatedAt = time.Now()
	return true, nil
}

func (r *MemoryReservationRepository) BindOrder(_ context.Context, id, orderID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	reservation, ok := r.reservations[id]
	if !ok {
		return errors.Wrapf(domain.ErrNotFound, "reservation %s", id)
	}
	reservation.OrderID = orderID
	reservation.UpdatedAt = time.Now()
	return nil
}

func (r *MemoryReservationRepository) FindExpired(_ context.Context, now time.Time, limit int) ([]*domain.Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var expired []*domain.Reservation
	for _, reservation := range r.reservations {
		if reservation.Status == domain.StatusPending && !reservation.ExpiresAt.After(now) {
			expired = append(expired, cloneReservation(reservation))
			if len(expired) >= limit {
				break
			}
		}
	}
	return expired, nil
}

func cloneReservation(r *domain.Reservation) *domain.Reservation {
	copied := *r
	copied.Items = append([]domain.Item(nil), r.Items...)
	return &copied
}

// MemoryWarehouseRepository 固定仓库集合，测试与本地开发用
type MemoryWarehouseRepository struct {
	warehouses []domain.Warehouse
}

func NewMemoryWarehouseRepository(warehouses []domain.Warehouse) *MemoryWarehouseRepository {
	return &MemoryWarehouseRepository{warehouses: warehouses}
}

func (r *MemoryWarehouseRepository) ListActive(_ context.Context) ([]domain.Warehouse, error) {
	active := make([]domain.Warehouse, 0, len(r.warehouses))
	for _, w := range r.warehouses {
		if w.Active {
			active = append(active, w)
		}
	}
	return active, nil
}
