// internal/service/inventory/domain/event.go
package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// 库存域对外发布的事件主题
const (
	TopicInventoryReserved  = "inventory.reserved"
	TopicInventoryConfirmed = "inventory.confirmed"
	TopicInventoryReleased  = "inventory.released"
	TopicStockUpdated       = "stock.updated"
)

// Event 是库存域事件的封闭集合。每种事件都有独立的强类型载荷，
// 必填字段在构造时校验，而不是推迟到序列化边界。
type Event interface {
	Topic() string
	EventType() string
	AggregateID() string
	Meta() EventMeta
}

// EventMeta 是所有事件共有的元信息
type EventMeta struct {
	EventID    string    `json:"eventId"`
	OccurredAt time.Time `json:"occurredAt"`
}

func newEventMeta() EventMeta {
	return EventMeta{EventID: uuid.New().String(), OccurredAt: time.Now()}
}

// EventPublisher 是出站事件端口。发布对核心流程是 fire-and-forget：
// 投递失败由实现方记录，不阻塞业务流转。
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// ReservationCreated 在预占成功持久化后发布
type ReservationCreated struct {
	EventMeta
	ReservationID string    `json:"reservationId"`
	WarehouseID   string    `json:"warehouseId"`
	Items         []Item    `json:"items"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

func NewReservationCreated(r *Reservation) (*ReservationCreated, error) {
	if r == nil || r.ID == "" || r.WarehouseID == "" || len(r.Items) == 0 {
		return nil, errors.New("reservation-created event requires id, warehouse and items")
	}
	return &ReservationCreated{
		EventMeta:     newEventMeta(),
		ReservationID: r.ID,
		WarehouseID:   r.WarehouseID,
		Items:         r.Items,
		ExpiresAt:     r.ExpiresAt,
	}, nil
}

func (e *ReservationCreated) Topic() string       { return TopicInventoryReserved }
func (e *ReservationCreated) EventType() string   { return TopicInventoryReserved }
func (e *ReservationCreated) AggregateID() string { return e.ReservationID }
func (e *ReservationCreated) Meta() EventMeta     { return e.EventMeta }

// ReservationConfirmed 在预占转为实际扣减后发布
type ReservationConfirmed struct {
	EventMeta
	ReservationID string `json:"reservationId"`
	WarehouseID   string `json:"warehouseId"`
	Items         []Item `json:"items"`
	OrderID       string `json:"orderId,omitempty"`
}

func NewReservationConfirmed(r *Reservation) (*ReservationConfirmed, error) {
	if r == nil || r.ID == "" || r.WarehouseID == "" || len(r.Items) == 0 {
		return nil, errors.New("reservation-confirmed event requires id, warehouse and items")
	}
	return &ReservationConfirmed{
		EventMeta:     newEventMeta(),
		ReservationID: r.ID,
		WarehouseID:   r.WarehouseID,
		Items:         r.Items,
		OrderID:       r.OrderID,
	}, nil
}

func (e *ReservationConfirmed) Topic() string       { return TopicInventoryConfirmed }
func (e *ReservationConfirmed) EventType() string   { return TopicInventoryConfirmed }
func (e *ReservationConfirmed) AggregateID() string { return e.ReservationID }
func (e *ReservationConfirmed) Meta() EventMeta     { return e.EventMeta }

// ReservationReleased 在库存回到可用池后发布，reason 标识释放来源
// （"cancelled" / "payment_failed" / "expired"）
type ReservationReleased struct {
	EventMeta
	ReservationID string `json:"reservationId"`
	WarehouseID   string `json:"warehouseId"`
	Items         []Item `json:"items"`
	Reason        string `json:"reason"`
}

func NewReservationReleased(r *Reservation, reason string) (*ReservationReleased, error) {
	if r == nil || r.ID == "" || r.WarehouseID == "" || len(r.Items) == 0 {
		return nil, errors.New("reservation-released event requires id, warehouse and items")
	}
	if reason == "" {
		return nil, errors.New("reservation-released event requires a reason")
	}
	return &ReservationReleased{
		EventMeta:     newEventMeta(),
		ReservationID: r.ID,
		WarehouseID:   r.WarehouseID,
		Items:         r.Items,
		Reason:        reason,
	}, nil
}

func (e *ReservationReleased) Topic() string       { return TopicInventoryReleased }
func (e *ReservationReleased) EventType() string   { return TopicInventoryReleased }
func (e *ReservationReleased) AggregateID() string { return e.ReservationID }
func (e *ReservationReleased) Meta() EventMeta     { return e.EventMeta }

// StockUpdated 在台账某行发生变更后发布，供运营侧实时看板消费
type StockUpdated struct {
	EventMeta
	WarehouseID string `json:"warehouseId"`
	SKUID       string `json:"skuId"`
	OnHand      int    `json:"onHand"`
	Reserved    int    `json:"reserved"`
	Available   int    `json:"available"`
}

func NewStockUpdated(record *StockRecord) (*StockUpdated, error) {
	if record == nil || record.WarehouseID == "" || record.SKUID == "" {
		return nil, errors.New("stock-updated event requires warehouse and sku")
	}
	return &StockUpdated{
		EventMeta:   newEventMeta(),
		WarehouseID: record.WarehouseID,
		SKUID:       record.SKUID,
		OnHand:      record.OnHand,
		Reserved:    record.Reserved,
		Available:   record.Available(),
	}, nil
}

func (e *StockUpdated) Topic() string       { return TopicStockUpdated }
func (e *StockUpdated) EventType() string   { return TopicStockUpdated }
func (e *StockUpdated) AggregateID() string { return e.WarehouseID + ":" + e.SKUID }
func (e *StockUpdated) Meta() EventMeta     { return e.EventMeta }
