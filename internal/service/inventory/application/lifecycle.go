// internal/service/inventory/application/lifecycle.go
package application

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"qcom/internal/service/inventory/domain"
)

// 释放原因，随 inventory.released 事件对外发布
const (
	ReleaseReasonCancelled     = "cancelled"
	ReleaseReasonPaymentFailed = "payment_failed"
	ReleaseReasonExpired       = "expired"
)

// ReservationLifecycle 独占预占单的状态机：
// (none) -> PENDING -> CONFIRMED | RELEASED | EXPIRED（终态）。
// confirm 与过期清理的竞争由仓储层的条件状态更新裁决，谁先落地谁赢，
// 输的一方收到 ErrConflict。
type ReservationLifecycle struct {
	ledger       *StockLedger
	reservations domain.ReservationRepository
	events       domain.EventPublisher
	tracer       trace.Tracer
	logger       zerolog.Logger
}

func NewReservationLifecycle(
	ledger *StockLedger,
	reservations domain.ReservationRepository,
	events domain.EventPublisher,
	tracer trace.Tracer,
	logger zerolog.Logger,
) *ReservationLifecycle {
	return &ReservationLifecycle{
		ledger:       ledger,
		reservations: reservations,
		events:       events,
		tracer:       tracer,
		logger:       logger.With().Str("component", "reservation-lifecycle").Logger(),
	}
}

// Create 为一批请求项创建预占单。
//
// 逐项调用台账的原子 Reserve，并为每个成功项登记补偿；任何一项失败，
// 先触发全部补偿（释放已占用项）再上抛，不持久化任何记录——调用方
// 看到的是 all-or-nothing。全部成功后才落 PENDING 行并发布事件。
func (m *ReservationLifecycle) Create(ctx context.Context, warehouseID string, items []domain.Item, ttl time.Duration) (*domain.Reservation, error) {
	ctx, span := m.tracer.Start(ctx, "lifecycle.Create")
	defer span.End()
	span.SetAttributes(
		attribute.String("warehouse.id", warehouseID),
		attribute.Int("items.count", len(items)),
	)

	reservation, err := domain.NewReservation(warehouseID, items, ttl)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	comps := &compensationList{}
	for _, item := range items {
		if err := m.ledger.Reserve(ctx, warehouseID, item.SKUID, item.Quantity); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "batch reserve failed, compensating")
			comps.Trigger(ctx, m.logger)
			return nil, err
		}

		reservedItem := item
		comps.Add(func(compCtx context.Context) {
			if relErr := m.ledger.Release(compCtx, warehouseID, reservedItem.SKUID, reservedItem.Quantity); relErr != nil {
				// 补偿失败会留下悬挂的占用量，必须醒目记录，等待人工或对账介入
				m.logger.Error().Err(relErr).
					Str("warehouse", warehouseID).Str("sku", reservedItem.SKUID).
					Int("quantity", reservedItem.Quantity).
					Msg("CRITICAL: compensating release failed, reserved stock may dangle")
			}
		})
	}

	if err := m.reservations.Save(ctx, reservation); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to persist reservation, compensating")
		comps.Trigger(ctx, m.logger)
		return nil, errors.Wrap(err, "persist reservation")
	}

	reservationsTotal.WithLabelValues("created").Inc()
	m.publish(ctx, func() (domain.Event, error) { return domain.NewReservationCreated(reservation) })
	m.logger.Info().Str("reservation", reservation.ID).Str("warehouse", warehouseID).
		Time("expires_at", reservation.ExpiresAt).Msg("reservation created")
	span.AddEvent("all items reserved")

	return reservation, nil
}

// Confirm 将 PENDING 预占转为永久扣减。
// 预占不存在返回 ErrNotFound；已处于终态（包括刚被清理任务抢先过期）
// 返回 ErrConflict。
func (m *ReservationLifecycle) Confirm(ctx context.Context, reservationID string) error {
	ctx, span := m.tracer.Start(ctx, "lifecycle.Confirm")
	defer span.End()
	span.SetAttributes(attribute.String("reservation.id", reservationID))

	reservation, err := m.reservations.FindByID(ctx, reservationID)
	if err != nil {
		span.RecordError(err)
		return err
	}

	// 先抢状态：条件更新赢了才允许动台账，输给过期清理则以 Conflict 上抛
	ok, err := m.reservations.TransitionStatus(ctx, reservationID, domain.StatusPending, domain.StatusConfirmed)
	if err != nil {
		span.RecordError(err)
		return errors.Wrap(err, "transition to CONFIRMED")
	}
	if !ok {
		err := errors.Wrapf(domain.ErrConflict, "reservation %s is not PENDING", reservationID)
		span.RecordError(err)
		span.SetStatus(codes.Error, "confirm lost the transition race")
		return err
	}

	for _, item := range reservation.Items {
		if err := m.ledger.Confirm(ctx, reservation.WarehouseID, item.SKUID, item.Quantity); err != nil {
			// 状态已流转但台账不一致，属于不变量破坏：上抛并留下完整上下文
			span.RecordError(err)
			span.SetStatus(codes.Error, "ledger confirm failed after status transition")
			m.logger.Error().Err(err).Str("reservation", reservationID).
				Str("sku", item.SKUID).Msg("CRITICAL: ledger confirm failed for confirmed reservation")
			return err
		}
	}

	reservation.Status = domain.StatusConfirmed
	reservationsTotal.WithLabelValues("confirmed").Inc()
	m.publish(ctx, func() (domain.Event, error) { return domain.NewReservationConfirmed(reservation) })
	m.logger.Info().Str("reservation", reservationID).Msg("reservation confirmed")
	return nil
}

// Release 取消一个 PENDING 预占并把占用量退回可用池。
// 幂等：预占已是 RELEASED/EXPIRED 时直接返回 nil，支持过期清理与
// 取消路径互相重试；已 CONFIRMED 则返回 ErrConflict。
func (m *ReservationLifecycle) Release(ctx context.Context, reservationID, reason string) error {
	return m.releaseTo(ctx, reservationID, domain.StatusReleased, reason)
}

// Expire 是过期清理专用的释放路径，终态记为 EXPIRED
func (m *ReservationLifecycle) Expire(ctx context.Context, reservationID string) error {
	return m.releaseTo(ctx, reservationID, domain.StatusExpired, ReleaseReasonExpired)
}

func (m *ReservationLifecycle) releaseTo(ctx context.Context, reservationID string, target domain.ReservationStatus, reason string) error {
	ctx, span := m.tracer.Start(ctx, "lifecycle.Release")
	defer span.End()
	span.SetAttributes(
		attribute.String("reservation.id", reservationID),
		attribute.String("release.reason", reason),
	)

	reservation, err := m.reservations.FindByID(ctx, reservationID)
	if err != nil {
		span.RecordError(err)
		return err
	}

	switch reservation.Status {
	case domain.StatusReleased, domain.StatusExpired:
		// 已经释放过，重复调用是无害的
		span.AddEvent("already released, no-op")
		return nil
	case domain.StatusConfirmed:
		err := errors.Wrapf(domain.ErrConflict, "reservation %s already confirmed", reservationID)
		span.RecordError(err)
		return err
	}

	ok, err := m.reservations.TransitionStatus(ctx, reservationID, domain.StatusPending, target)
	if err != nil {
		span.RecordError(err)
		return errors.Wrapf(err, "transition to %s", target)
	}
	if !ok {
		// 输给了并发的 confirm 或另一次释放；重新读一次区分两种结局
		current, ferr := m.reservations.FindByID(ctx, reservationID)
		if ferr != nil {
			span.RecordError(ferr)
			return ferr
		}
		if current.Status == domain.StatusReleased || current.Status == domain.StatusExpired {
			span.AddEvent("concurrent release won, no-op")
			return nil
		}
		err := errors.Wrapf(domain.ErrConflict, "reservation %s is not PENDING", reservationID)
		span.RecordError(err)
		return err
	}

	for _, item := range reservation.Items {
		if err := m.ledger.Release(ctx, reservation.WarehouseID, item.SKUID, item.Quantity); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "ledger release failed")
			m.logger.Error().Err(err).Str("reservation", reservationID).
				Str("sku", item.SKUID).Msg("ledger release failed for released reservation")
			return err
		}
	}

	reservation.Status = target
	// outcome 标签统一用小写（created/confirmed/released/expired）
	reservationsTotal.WithLabelValues(strings.ToLower(string(target))).Inc()
	m.publish(ctx, func() (domain.Event, error) { return domain.NewReservationReleased(reservation, reason) })
	m.logger.Info().Str("reservation", reservationID).Str("reason", reason).Msg("reservation released")
	return nil
}

// BindOrder 在订单创建后把订单号回填到预占单
func (m *ReservationLifecycle) BindOrder(ctx context.Context, reservationID, orderID string) error {
	reservation, err := m.reservations.FindByID(ctx, reservationID)
	if err != nil {
		return err
	}
	if err := reservation.BindOrder(orderID); err != nil {
		return err
	}
	return m.reservations.BindOrder(ctx, reservationID, orderID)
}

// FindByID 只读查询
func (m *ReservationLifecycle) FindByID(ctx context.Context, reservationID string) (*domain.Reservation, error) {
	return m.reservations.FindByID(ctx, reservationID)
}

// FindByOrderID 只读查询，支付事件只携带订单号时使用
func (m *ReservationLifecycle) FindByOrderID(ctx context.Context, orderID string) (*domain.Reservation, error) {
	return m.reservations.FindByOrderID(ctx, orderID)
}

func (m *ReservationLifecycle) publish(ctx context.Context, build func() (domain.Event, error)) {
	if m.events == nil {
		return
	}
	ev, err := build()
	if err != nil {
		m.logger.Warn().Err(err).Msg("invalid lifecycle event, not published")
		return
	}
	if err := m.events.Publish(ctx, ev); err != nil {
		m.logger.Warn().Err(err).Str("topic", ev.Topic()).Msg("failed to publish lifecycle event")
	}
}
