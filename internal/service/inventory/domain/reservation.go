// internal/service/inventory/domain/reservation.go
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ReservationStatus 定义了预占单的生命周期状态
type ReservationStatus string

const (
	StatusPending   ReservationStatus = "PENDING"   // 库存已占用，等待支付结果
	StatusConfirmed ReservationStatus = "CONFIRMED" // 已确认，预占转为实际扣减（终态）
	StatusReleased  ReservationStatus = "RELEASED"  // 已释放，库存回到可用池（终态）
	StatusExpired   ReservationStatus = "EXPIRED"   // TTL 到期由清理任务释放（终态）
)

// Reservation 是预占聚合的根实体。
// 状态流转只允许：PENDING -> CONFIRMED | RELEASED | EXPIRED，终态不再流转。
// 流转由 ReservationLifecycle 独占驱动。
type Reservation struct {
	ID          string
	WarehouseID string
	Items       []Item
	OrderID     string // 订单创建后才回填，可为空
	Status      ReservationStatus
	ExpiresAt   time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewReservation 是预占单的工厂函数
func NewReservation(warehouseID string, items []Item, ttl time.Duration) (*Reservation, error) {
	if warehouseID == "" {
		return nil, errors.New("cannot create reservation without a warehouse")
	}
	if len(items) == 0 {
		return nil, errors.New("cannot create reservation with no items")
	}
	for _, it := range items {
		if it.SKUID == "" || it.Quantity <= 0 {
			return nil, errors.Errorf("invalid reservation item: sku=%q quantity=%d", it.SKUID, it.Quantity)
		}
	}
	if ttl <= 0 {
		return nil, errors.New("reservation ttl must be positive")
	}

	now := time.Now()
	return &Reservation{
		ID:          uuid.New().String(),
		WarehouseID: warehouseID,
		Items:       items,
		Status:      StatusPending,
		ExpiresAt:   now.Add(ttl),
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// IsTerminal 判断预占单是否已进入终态
func (r *Reservation) IsTerminal() bool {
	return r.Status == StatusConfirmed || r.Status == StatusReleased || r.Status == StatusExpired
}

// Confirm 将预占单标记为已确认，只允许从 PENDING 流转
func (r *Reservation) Confirm() error {
	if r.Status != StatusPending {
		return errors.Wrapf(ErrConflict, "cannot confirm reservation %s in status %s", r.ID, r.Status)
	}
	r.Status = StatusConfirmed
	r.UpdatedAt = time.Now()
	return nil
}

// Release 将预占单标记为已释放，只允许从 PENDING 流转
func (r *Reservation) Release() error {
	if r.Status != StatusPending {
		return errors.Wrapf(ErrConflict, "cannot release reservation %s in status %s", r.ID, r.Status)
	}
	r.Status = StatusReleased
	r.UpdatedAt = time.Now()
	return nil
}

// Expire 将预占单标记为已过期，只允许从 PENDING 流转
func (r *Reservation) Expire() error {
	if r.Status != StatusPending {
		return errors.Wrapf(ErrConflict, "cannot expire reservation %s in status %s", r.ID, r.Status)
	}
	r.Status = StatusExpired
	r.UpdatedAt = time.Now()
	return nil
}

// BindOrder 回填订单号。订单只在预占成功后创建，因此允许在 PENDING 期绑定一次。
func (r *Reservation) BindOrder(orderID string) error {
	if orderID == "" {
		return errors.New("order id must not be empty")
	}
	if r.OrderID != "" && r.OrderID != orderID {
		return errors.Wrapf(ErrConflict, "reservation %s already bound to order %s", r.ID, r.OrderID)
	}
	r.OrderID = orderID
	r.UpdatedAt = time.Now()
	return nil
}
