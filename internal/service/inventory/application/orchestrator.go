// internal/service/inventory/application/orchestrator.go
package application

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"qcom/internal/pkg/geo"
	"qcom/internal/service/inventory/domain"
)

// ReservationManager 是编排器对生命周期管理器的依赖面
type ReservationManager interface {
	Create(ctx context.Context, warehouseID string, items []domain.Item, ttl time.Duration) (*domain.Reservation, error)
	Confirm(ctx context.Context, reservationID string) error
	Release(ctx context.Context, reservationID, reason string) error
	BindOrder(ctx context.Context, reservationID, orderID string) error
	FindByOrderID(ctx context.Context, orderID string) (*domain.Reservation, error)
}

// AllocationResult 是一次结账分配的产出：预占单加运费报价
type AllocationResult struct {
	Reservation *domain.Reservation
	Quote       domain.DeliveryQuote
}

// OrchestratorConfig 汇集编排器的可调参数
type OrchestratorConfig struct {
	ReservationTTL time.Duration
	MaxAttempts    int
	RetryBackoff   time.Duration
	Pricing        domain.PricingConfig
}

// AllocationOrchestrator 把选仓和预占组合成一次结账操作，并保证调用方
// 视角下的 all-or-nothing：选仓后预占失败（并发请求抢走了库存）时，
// 剔除该仓库重新选仓，最多重试 MaxAttempts 次。
// 它是唯一同时调用 Selector 和 Lifecycle 的组件。
type AllocationOrchestrator struct {
	warehouses   domain.WarehouseRepository
	availability domain.AvailabilityFunc
	reservations ReservationManager
	rule         domain.EligibilityPolicy
	cfg          OrchestratorConfig
	tracer       trace.Tracer
	logger       zerolog.Logger
}

func NewAllocationOrchestrator(
	warehouses domain.WarehouseRepository,
	availability domain.AvailabilityFunc,
	reservations ReservationManager,
	rule domain.EligibilityPolicy,
	cfg OrchestratorConfig,
	tracer trace.Tracer,
	logger zerolog.Logger,
) *AllocationOrchestrator {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.ReservationTTL <= 0 {
		cfg.ReservationTTL = 15 * time.Minute
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 50 * time.Millisecond
	}
	return &AllocationOrchestrator{
		warehouses:   warehouses,
		availability: availability,
		reservations: reservations,
		rule:         rule,
		cfg:          cfg,
		tracer:       tracer,
		logger:       logger.With().Str("component", "allocation-orchestrator").Logger(),
	}
}

// Allocate 执行结账时的库存分配：选仓 -> 预占。
//
// 预占返回 ErrInsufficientStock 说明选仓快照和原子预占之间输掉了竞争，
// 剔除该仓库后对剩余候选重跑选仓；ErrConflict 原仓重试；其余错误按
// 瞬时故障退避重试。所有候选都试过仍无法履约时，以 ErrInsufficientStock
// 原样上抛（"no fulfillable warehouse" 对调用方是干净失败，不会留下
// 半预占的订单）。
func (o *AllocationOrchestrator) Allocate(ctx context.Context, items []domain.Item, customer geo.Point, policy domain.DeliveryPolicy) (*AllocationResult, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.Allocate")
	defer span.End()
	span.SetAttributes(attribute.Int("items.count", len(items)))

	if len(items) == 0 {
		return nil, errors.New("allocation requires at least one item")
	}

	warehouses, err := o.warehouses.ListActive(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "list warehouses")
	}

	excluded := make(map[string]bool)

	for attempt := 1; attempt <= o.cfg.MaxAttempts; attempt++ {
		candidates := make([]domain.Warehouse, 0, len(warehouses))
		for _, w := range warehouses {
			if !excluded[w.ID] {
				candidates = append(candidates, w)
			}
		}

		selection, err := domain.SelectWarehouse(ctx, items, customer, policy, o.cfg.Pricing, candidates, o.availability, o.rule)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		if selection == nil {
			err := errors.Wrap(domain.ErrInsufficientStock, "no warehouse has all items in stock")
			span.SetStatus(codes.Error, "no fulfillable warehouse")
			return nil, err
		}

		span.AddEvent("warehouse selected", trace.WithAttributes(
			attribute.String("warehouse.id", selection.WarehouseID),
			attribute.Int("attempt", attempt),
		))

		reservation, err := o.reservations.Create(ctx, selection.WarehouseID, items, o.cfg.ReservationTTL)
		if err == nil {
			allocationAttempts.Observe(float64(attempt))
			o.logger.Info().Str("reservation", reservation.ID).
				Str("warehouse", selection.WarehouseID).Int("attempt", attempt).
				Msg("allocation succeeded")
			return &AllocationResult{Reservation: reservation, Quote: selection.Quote}, nil
		}

		switch {
		case errors.Is(err, domain.ErrInsufficientStock):
			// 时点快照和原子预占之间被并发请求抢走了库存，换仓重选
			o.logger.Info().Str("warehouse", selection.WarehouseID).Int("attempt", attempt).
				Msg("lost reserve race, excluding warehouse and reselecting")
			excluded[selection.WarehouseID] = true
		case errors.Is(err, domain.ErrConflict):
			o.logger.Warn().Err(err).Int("attempt", attempt).Msg("conflict during reserve, retrying")
		case errors.Is(err, domain.ErrNotFound):
			span.RecordError(err)
			return nil, err
		default:
			// 瞬时存储故障：退避后重试
			o.logger.Warn().Err(err).Int("attempt", attempt).Msg("transient error during reserve, backing off")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(o.cfg.RetryBackoff * time.Duration(attempt)):
			}
		}
	}

	err = errors.Wrapf(domain.ErrInsufficientStock, "allocation failed after %d attempts", o.cfg.MaxAttempts)
	span.RecordError(err)
	span.SetStatus(codes.Error, "allocation attempts exhausted")
	return nil, err
}

// ConfirmAllocation 在支付成功事件到达时确认预占
func (o *AllocationOrchestrator) ConfirmAllocation(ctx context.Context, reservationID string) error {
	ctx, span := o.tracer.Start(ctx, "orchestrator.ConfirmAllocation")
	defer span.End()
	return o.reservations.Confirm(ctx, reservationID)
}

// ReleaseAllocation 在支付失败或订单取消时释放预占
func (o *AllocationOrchestrator) ReleaseAllocation(ctx context.Context, reservationID, reason string) error {
	ctx, span := o.tracer.Start(ctx, "orchestrator.ReleaseAllocation")
	defer span.End()
	return o.reservations.Release(ctx, reservationID, reason)
}

// ConfirmByOrder 支付事件通常只携带订单号，这里按订单号定位预占单后确认
func (o *AllocationOrchestrator) ConfirmByOrder(ctx context.Context, orderID string) error {
	reservation, err := o.reservations.FindByOrderID(ctx, orderID)
	if err != nil {
		return err
	}
	return o.ConfirmAllocation(ctx, reservation.ID)
}

// ReleaseByOrder 按订单号释放预占
func (o *AllocationOrchestrator) ReleaseByOrder(ctx context.Context, orderID, reason string) error {
	reservation, err := o.reservations.FindByOrderID(ctx, orderID)
	if err != nil {
		return err
	}
	return o.ReleaseAllocation(ctx, reservation.ID, reason)
}

// BindOrder 将创建好的订单号回填到预占单
func (o *AllocationOrchestrator) BindOrder(ctx context.Context, reservationID, orderID string) error {
	return o.reservations.BindOrder(ctx, reservationID, orderID)
}
