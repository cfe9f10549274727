// internal/service/inventory/infrastructure/gorm_reservation_repository.go
package infrastructure

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"qcom/internal/service/inventory/domain"
)

// MySQL 重复键错误码，预占单 ID 冲突时转译为领域层的 ErrConflict
const mysqlErrDuplicateEntry = 1062

// GormReservationRepository 是 ReservationRepository 的 GORM/MySQL 实现
type GormReservationRepository struct {
	db *gorm.DB
}

func NewGormReservationRepository(db *gorm.DB) *GormReservationRepository {
	return &GormReservationRepository{db: db}
}

func (r *GormReservationRepository) Save(ctx context.Context, reservation *domain.Reservation) error {
	model, err := toReservationModel(reservation)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlErrDuplicateEntry {
			return errors.Wrapf(domain.ErrConflict, "reservation %s already exists", reservation.ID)
		}
		return errors.Wrap(err, "insert reservation")
	}
	return nil
}

func (r *GormReservationRepository) FindByID(ctx context.Context, id string) (*domain.Reservation, error) {
	var model ReservationModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrapf(domain.ErrNotFound, "reservation %s", id)
		}
		return nil, errors.Wrap(err, "query reservation")
	}
	return toReservation(&model)
}

func (r *GormReservationRepository) FindByOrderID(ctx context.Context, orderID string) (*domain.Reservation, error) {
	var model ReservationModel
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrapf(domain.ErrNotFound, "reservation for order %s", orderID)
		}
		return nil, errors.Wrap(err, "query reservation by order")
	}
	return toReservation(&model)
}

// TransitionStatus 条件状态更新：WHERE 里带上期望的当前状态，
// 行级原子性保证 confirm 和过期清理最多只有一方赢
func (r *GormReservationRepository) TransitionStatus(ctx context.Context, id string, from, to domain.ReservationStatus) (bool, error) {
	res := r.db.WithContext(ctx).Model(&ReservationModel{}).
		Where("id = ? AND status = ?", id, string(from)).
		Updates(map[string]interface{}{
			"status":     string(to),
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return false, errors.Wrap(res.Error, "transition reservation status")
	}
	return res.RowsAffected > 0, nil
}

func (r *GormReservationRepository) BindOrder(ctx context.Context, id, orderID string) error {
	res := r.db.WithContext(ctx).Model(&ReservationModel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"order_id":   sql.NullString{String: orderID, Valid: true},
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return errors.Wrap(res.Error, "bind order to reservation")
	}
	if res.RowsAffected == 0 {
		return errors.Wrapf(domain.ErrNotFound, "reservation %s", id)
	}
	return nil
}

func (r *GormReservationRepository) FindExpired(ctx context.Context, now time.Time, limit int) ([]*domain.Reservation, error) {
	var models []ReservationModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at <= ?", string(domain.StatusPending), now).
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, errors.Wrap(err, "query expired reservations")
	}

	reservations := make([]*domain.Reservation, 0, len(models))
	for i := range models {
		reservation, err := toReservation(&models[i])
		if err != nil {
			return nil, err
		}
		reservations = append(reservations, reservation)
	}
	return reservations, nil
}

// GormWarehouseRepository 是 WarehouseRepository 的 GORM/MySQL 实现
type GormWarehouseRepository struct {
	db *gorm.DB
}

func NewGormWarehouseRepository(db *gorm.DB) *GormWarehouseRepository {
	return &GormWarehouseRepository{db: db}
}

func (r *GormWarehouseRepository) ListActive(ctx context.Context) ([]domain.Warehouse, error) {
	var models []WarehouseModel
	if err := r.db.WithContext(ctx).Where("active = ?", true).Find(&models).Error; err != nil {
		return nil, errors.Wrap(err, "query active warehouses")
	}
	warehouses := make([]domain.Warehouse, 0, len(models))
	for i := range models {
		warehouses = append(warehouses, toWarehouse(&models[i]))
	}
	return warehouses, nil
}
