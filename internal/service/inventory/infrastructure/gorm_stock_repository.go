// internal/service/inventory/infrastructure/gorm_stock_repository.go
package infrastructure

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"qcom/internal/service/inventory/domain"
)

// GormStockRepository 是 StockRepository 的 GORM/MySQL 实现。
//
// 三个变更原语都编译成单条带守卫的 UPDATE：守卫条件写在 WHERE 里，
// 由 MySQL 的行级原子性裁决并发——永远不是读-改-写两步。
// RowsAffected == 0 表示守卫失败或行不存在，再补一次读区分两种情况。
type GormStockRepository struct {
	db *gorm.DB
}

func NewGormStockRepository(db *gorm.DB) *GormStockRepository {
	return &GormStockRepository{db: db}
}

func (r *GormStockRepository) Get(ctx context.Context, warehouseID, skuID string) (*domain.StockRecord, error) {
	var model StockModel
	err := r.db.WithContext(ctx).
		Where("warehouse_id = ? AND sku_id = ?", warehouseID, skuID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrapf(domain.ErrNotFound, "stock %s/%s", warehouseID, skuID)
		}
		return nil, errors.Wrap(err, "query stock")
	}
	return toStockRecord(&model), nil
}

func (r *GormStockRepository) Reserve(ctx context.Context, warehouseID, skuID string, quantity int) error {
	res := r.db.WithContext(ctx).Model(&StockModel{}).
		Where("warehouse_id = ? AND sku_id = ? AND on_hand - reserved >= ?", warehouseID, skuID, quantity).
		Updates(map[string]interface{}{
			"reserved":   gorm.Expr("reserved + ?", quantity),
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return errors.Wrap(res.Error, "reserve stock")
	}
	if res.RowsAffected == 0 {
		return r.classifyGuardFailure(ctx, warehouseID, skuID, domain.ErrInsufficientStock)
	}
	return nil
}

func (r *GormStockRepository) ConfirmReserved(ctx context.Context, warehouseID, skuID string, quantity int) error {
	res := r.db.WithContext(ctx).Model(&StockModel{}).
		Where("warehouse_id = ? AND sku_id = ? AND reserved >= ?", warehouseID, skuID, quantity).
		Updates(map[string]interface{}{
			"reserved":   gorm.Expr("reserved - ?", quantity),
			"on_hand":    gorm.Expr("on_hand - ?", quantity),
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return errors.Wrap(res.Error, "confirm reserved stock")
	}
	if res.RowsAffected == 0 {
		return r.classifyGuardFailure(ctx, warehouseID, skuID, domain.ErrConflict)
	}
	return nil
}

func (r *GormStockRepository) ReleaseReserved(ctx context.Context, warehouseID, skuID string, quantity int) error {
	res := r.db.WithContext(ctx).Model(&StockModel{}).
		Where("warehouse_id = ? AND sku_id = ? AND reserved >= ?", warehouseID, skuID, quantity).
		Updates(map[string]interface{}{
			"reserved":   gorm.Expr("reserved - ?", quantity),
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return errors.Wrap(res.Error, "release reserved stock")
	}
	if res.RowsAffected == 0 {
		return r.classifyGuardFailure(ctx, warehouseID, skuID, domain.ErrConflict)
	}
	return nil
}

func (r *GormStockRepository) SetOnHand(ctx context.Context, warehouseID, skuID string, onHand int) error {
	model := StockModel{
		WarehouseID: warehouseID,
		SKUID:       skuID,
		OnHand:      onHand,
		UpdatedAt:   time.Now(),
	}
	// 已存在则只更新 on_hand，reserved 不受铺货影响
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "warehouse_id"}, {Name: "sku_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"on_hand", "updated_at"}),
	}).Create(&model).Error
	return errors.Wrap(err, "set on-hand stock")
}

// classifyGuardFailure 区分"行不存在"和"守卫条件不满足"
func (r *GormStockRepository) classifyGuardFailure(ctx context.Context, warehouseID, skuID string, guardErr error) error {
	var model StockModel
	err := r.db.WithContext(ctx).
		Where("warehouse_id = ? AND sku_id = ?", warehouseID, skuID).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errors.Wrapf(domain.ErrNotFound, "stock %s/%s", warehouseID, skuID)
	}
	if err != nil {
		return errors.Wrap(err, "classify stock update failure")
	}
	return errors.Wrapf(guardErr,
		"warehouse %s sku %s: on_hand %d reserved %d", warehouseID, skuID, model.OnHand, model.Reserved)
}
