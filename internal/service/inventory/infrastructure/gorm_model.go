// internal/service/inventory/infrastructure/gorm_model.go
package infrastructure

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"qcom/internal/pkg/geo"
	"qcom/internal/service/inventory/domain"
)

// StockModel 对应数据库中的 stock 表
type StockModel struct {
	WarehouseID string `gorm:"primaryKey;size:64;column:warehouse_id"`
	SKUID       string `gorm:"primaryKey;size:64;column:sku_id"`
	OnHand      int    `gorm:"column:on_hand;not null;default:0"`
	Reserved    int    `gorm:"column:reserved;not null;default:0"`
	UpdatedAt   time.Time
}

// TableName 指定 GORM 应该使用的表名
func (StockModel) TableName() string {
	return "stock"
}

// ReservationModel 对应数据库中的 reservations 表。
// Items 以 JSON 存储，审计需要完整保留每个品项和数量。
type ReservationModel struct {
	ID          string `gorm:"primaryKey;size:36"`
	WarehouseID string `gorm:"size:64;index"`
	Items       string `gorm:"type:json"`
	OrderID     sql.NullString `gorm:"size:36;index"`
	Status      string `gorm:"size:16;index:idx_status_expires"`
	ExpiresAt   time.Time `gorm:"index:idx_status_expires"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TableName 指定 GORM 应该使用的表名
func (ReservationModel) TableName() string {
	return "reservations"
}

// WarehouseModel 对应数据库中的 warehouses 表，只读参考数据
type WarehouseModel struct {
	ID       string  `gorm:"primaryKey;size:64"`
	Name     string  `gorm:"size:128"`
	Lat      float64 `gorm:"column:lat"`
	Lng      float64 `gorm:"column:lng"`
	RadiusKm float64 `gorm:"column:radius_km"`
	Active   bool    `gorm:"index"`
}

// TableName 指定 GORM 应该使用的表名
func (WarehouseModel) TableName() string {
	return "warehouses"
}

func toStockRecord(m *StockModel) *domain.StockRecord {
	return &domain.StockRecord{
		WarehouseID: m.WarehouseID,
		SKUID:       m.SKUID,
		OnHand:      m.OnHand,
		Reserved:    m.Reserved,
		UpdatedAt:   m.UpdatedAt,
	}
}

func toReservationModel(r *domain.Reservation) (*ReservationModel, error) {
	itemsJSON, err := json.Marshal(r.Items)
	if err != nil {
		return nil, errors.Wrap(err, "marshal reservation items")
	}
	m := &ReservationModel{
		ID:          r.ID,
		WarehouseID: r.WarehouseID,
		Items:       string(itemsJSON),
		Status:      string(r.Status),
		ExpiresAt:   r.ExpiresAt,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if r.OrderID != "" {
		m.OrderID = sql.NullString{String: r.OrderID, Valid: true}
	}
	return m, nil
}

func toReservation(m *ReservationModel) (*domain.Reservation, error) {
	var items []domain.Item
	if err := json.Unmarshal([]byte(m.Items), &items); err != nil {
		return nil, errors.Wrapf(err, "unmarshal items of reservation %s", m.ID)
	}
	r := &domain.Reservation{
		ID:          m.ID,
		WarehouseID: m.WarehouseID,
		Items:       items,
		Status:      domain.ReservationStatus(m.Status),
		ExpiresAt:   m.ExpiresAt,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
	if m.OrderID.Valid {
		r.OrderID = m.OrderID.String
	}
	return r, nil
}

func toWarehouse(m *WarehouseModel) domain.Warehouse {
	return domain.Warehouse{
		ID:       m.ID,
		Name:     m.Name,
		Location: geo.Point{Lat: m.Lat, Lng: m.Lng},
		RadiusKm: m.RadiusKm,
		Active:   m.Active,
	}
}
