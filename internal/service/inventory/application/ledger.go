// internal/service/inventory/application/ledger.go
package application

import (
	"context"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"qcom/internal/service/inventory/domain"
)

// StockLedger 是库存台账的应用服务。它独占 StockRecord 的全部变更入口，
// 原子性由注入的 StockRepository 提供（生产环境为单条条件 UPDATE），
// 本层负责追踪、日志、指标和 stock.updated 事件。
type StockLedger struct {
	stocks domain.StockRepository
	events domain.EventPublisher
	tracer trace.Tracer
	logger zerolog.Logger
}

func NewStockLedger(stocks domain.StockRepository, events domain.EventPublisher, tracer trace.Tracer, logger zerolog.Logger) *StockLedger {
	return &StockLedger{
		stocks: stocks,
		events: events,
		tracer: tracer,
		logger: logger.With().Str("component", "stock-ledger").Logger(),
	}
}

// GetAvailability 返回某 (仓库, SKU) 的台账视图，行不存在时返回 ErrNotFound
func (l *StockLedger) GetAvailability(ctx context.Context, warehouseID, skuID string) (*domain.StockRecord, error) {
	return l.stocks.Get(ctx, warehouseID, skuID)
}

// Reserve 原子地占用 quantity 个可用库存。
// 可用量不足返回 ErrInsufficientStock，且不产生任何部分变更。
func (l *StockLedger) Reserve(ctx context.Context, warehouseID, skuID string, quantity int) error {
	ctx, span := l.startOp(ctx, "ledger.Reserve", warehouseID, skuID, quantity)
	defer span.End()

	if err := l.stocks.Reserve(ctx, warehouseID, skuID, quantity); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reserve failed")
		return err
	}
	l.publishStockUpdated(ctx, warehouseID, skuID)
	return nil
}

// Confirm 将已占用的 quantity 转为实际扣减（reserved 和 onHand 同时减少）。
// reserved < quantity 属于不变量被破坏：记录并原样上抛，绝不静默截断。
func (l *StockLedger) Confirm(ctx context.Context, warehouseID, skuID string, quantity int) error {
	ctx, span := l.startOp(ctx, "ledger.Confirm", warehouseID, skuID, quantity)
	defer span.End()

	if err := l.stocks.ConfirmReserved(ctx, warehouseID, skuID, quantity); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "confirm failed")
		l.logger.Error().Err(err).
			Str("warehouse", warehouseID).Str("sku", skuID).Int("quantity", quantity).
			Msg("confirm hit an invariant violation: reserved below requested quantity")
		return err
	}
	l.publishStockUpdated(ctx, warehouseID, skuID)
	return nil
}

// Release 把 quantity 个占用量退回可用池，onHand 不变。
// 超额释放返回 ErrConflict，reserved 永远不会被减成负数。
func (l *StockLedger) Release(ctx context.Context, warehouseID, skuID string, quantity int) error {
	ctx, span := l.startOp(ctx, "ledger.Release", warehouseID, skuID, quantity)
	defer span.End()

	if err := l.stocks.ReleaseReserved(ctx, warehouseID, skuID, quantity); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "release failed")
		return err
	}
	l.publishStockUpdated(ctx, warehouseID, skuID)
	return nil
}

// SetOnHand 运营铺货：直接设置实际库存水位
func (l *StockLedger) SetOnHand(ctx context.Context, warehouseID, skuID string, onHand int) error {
	ctx, span := l.startOp(ctx, "ledger.SetOnHand", warehouseID, skuID, onHand)
	defer span.End()

	if err := l.stocks.SetOnHand(ctx, warehouseID, skuID, onHand); err != nil {
		span.RecordError(err)
		return err
	}
	l.publishStockUpdated(ctx, warehouseID, skuID)
	return nil
}

func (l *StockLedger) startOp(ctx context.Context, name, warehouseID, skuID string, quantity int) (context.Context, trace.Span) {
	ctx, span := l.tracer.Start(ctx, name)
	span.SetAttributes(
		attribute.String("warehouse.id", warehouseID),
		attribute.String("sku.id", skuID),
		attribute.Int("quantity", quantity),
	)
	return ctx, span
}

// publishStockUpdated 重新读取该行并发布 stock.updated。
// 事件是 fire-and-forget：读不到或发不出只记日志，不影响主流程。
func (l *StockLedger) publishStockUpdated(ctx context.Context, warehouseID, skuID string) {
	record, err := l.stocks.Get(ctx, warehouseID, skuID)
	if err != nil {
		l.logger.Warn().Err(err).Str("warehouse", warehouseID).Str("sku", skuID).
			Msg("could not read stock back for event publication")
		return
	}

	stockLevel.WithLabelValues(warehouseID, skuID).Set(float64(record.OnHand))

	if l.events == nil {
		return
	}
	ev, err := domain.NewStockUpdated(record)
	if err != nil {
		l.logger.Warn().Err(err).Msg("invalid stock-updated event")
		return
	}
	if err := l.events.Publish(ctx, ev); err != nil {
		l.logger.Warn().Err(err).Str("warehouse", warehouseID).Str("sku", skuID).
			Msg("failed to publish stock-updated event")
	}
}
