// internal/service/inventory/application/lifecycle_test.go
package application_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace/noop"

	"qcom/internal/service/inventory/application"
	"qcom/internal/service/inventory/domain"
	"qcom/internal/service/inventory/infrastructure"
)

type lifecycleFixture struct {
	lifecycle    *application.ReservationLifecycle
	ledger       *application.StockLedger
	stocks       *infrastructure.MemoryStockRepository
	reservations *infrastructure.MemoryReservationRepository
}

func newLifecycleFixture() *lifecycleFixture {
	stocks := infrastructure.NewMemoryStockRepository()
	reservations := infrastructure.NewMemoryReservationRepository()
	tracer := noop.NewTracerProvider().Tracer("test")
	ledger := application.NewStockLedger(stocks, nil, tracer, zerolog.Nop())
	lifecycle := application.NewReservationLifecycle(ledger, reservations, nil, tracer, zerolog.Nop())
	return &lifecycleFixture{lifecycle: lifecycle, ledger: ledger, stocks: stocks, reservations: reservations}
}

func (f *lifecycleFixture) seed(t *testing.T, warehouseID, skuID string, onHand int) {
	t.Helper()
	if err := f.ledger.SetOnHand(context.Background(), warehouseID, skuID, onHand); err != nil {
		t.Fatalf("seed stock: %v", err)
	}
}

func (f *lifecycleFixture) available(t *testing.T, warehouseID, skuID string) int {
	t.Helper()
	record, err := f.ledger.GetAvailability(context.Background(), warehouseID, skuID)
	if err != nil {
		t.Fatalf("read stock: %v", err)
	}
	return record.Available()
}

func TestLifecycleCreateReservesAllItems(t *testing.T) {
	ctx := context.Background()
	f := newLifecycleFixture()
	f.seed(t, "wh-1", "sku-a", 10)
	f.seed(t, "wh-1", "sku-b", 5)

	items := []domain.Item{{SKUID: "sku-a", Quantity: 2}, {SKUID: "sku-b", Quantity: 1}}
	reservation, err := f.lifecycle.Create(ctx, "wh-1", items, 15*time.Minute)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if reservation.Status != domain.StatusPending {
		t.Fatalf("status = %s, want PENDING", reservation.Status)
	}
	if got := f.available(t, "wh-1", "sku-a"); got != 8 {
		t.Fatalf("sku-a available = %d, want 8", got)
	}
	if got := f.available(t, "wh-1", "sku-b"); got != 4 {
		t.Fatalf("sku-b available = %d, want 4", got)
	}

	persisted, err := f.lifecycle.FindByID(ctx, reservation.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if persisted.WarehouseID != "wh-1" || len(persisted.Items) != 2 {
		t.Fatalf("persisted reservation mismatch: %+v", persisted)
	}
}

// 第二个条目库存不足时，第一个条目已占用的量必须被补偿回去，
// 且不落任何预占记录。
func TestLifecycleCreatePartialFailureCompensates(t *testing.T) {
	ctx := context.Background()
	f := newLifecycleFixture()
	f.seed(t, "wh-1", "sku-a", 10)
	f.seed(t, "wh-1", "sku-b", 1)

	items := []domain.Item{{SKUID: "sku-a", Quantity: 2}, {SKUID: "sku-b", Quantity: 3}}
	_, err := f.lifecycle.Create(ctx, "wh-1", items, 15*time.Minute)
	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("want ErrInsufficientStock, got %v", err)
	}

	if got := f.available(t, "wh-1", "sku-a"); got != 10 {
		t.Fatalf("sku-a available = %d after compensation, want 10", got)
	}
	if got := f.available(t, "wh-1", "sku-b"); got != 1 {
		t.Fatalf("sku-b available = %d, want 1", got)
	}
}

func TestLifecycleConfirm(t *testing.T) {
	ctx := context.Background()
	f := newLifecycleFixture()
	f.seed(t, "wh-1", "sku-a", 10)

	reservation, err := f.lifecycle.Create(ctx, "wh-1", []domain.Item{{SKUID: "sku-a", Quantity: 4}}, 15*time.Minute)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := f.lifecycle.Confirm(ctx, reservation.ID); err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	record, _ := f.ledger.GetAvailability(ctx, "wh-1", "sku-a")
	if record.OnHand != 6 || record.Reserved != 0 {
		t.Fatalf("after confirm: onHand=%d reserved=%d", record.OnHand, record.Reserved)
	}

	// 已确认的预占不能再释放
	if err := f.lifecycle.Release(ctx, reservation.ID, application.ReleaseReasonCancelled); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("release after confirm: want ErrConflict, got %v", err)
	}
	// 重复确认同样是冲突
	if err := f.lifecycle.Confirm(ctx, reservation.ID); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("double confirm: want ErrConflict, got %v", err)
	}
}

func TestLifecycleConfirmUnknownReservation(t *testing.T) {
	f := newLifecycleFixture()
	if err := f.lifecycle.Confirm(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestLifecycleReleaseIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newLifecycleFixture()
	f.seed(t, "wh-1", "sku-a", 10)

	reservation, err := f.lifecycle.Create(ctx, "wh-1", []domain.Item{{SKUID: "sku-a", Quantity: 4}}, 15*time.Minute)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := f.lifecycle.Release(ctx, reservation.ID, application.ReleaseReasonCancelled); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if got := f.available(t, "wh-1", "sku-a"); got != 10 {
		t.Fatalf("available = %d after release, want 10", got)
	}

	// 第二次释放是无害的 no-op，不会把库存放两遍
	if err := f.lifecycle.Release(ctx, reservation.ID, application.ReleaseReasonCancelled); err != nil {
		t.Fatalf("repeat release: %v", err)
	}
	if got := f.available(t, "wh-1", "sku-a"); got != 10 {
		t.Fatalf("available = %d after repeat release, want 10", got)
	}

	// 释放后确认输给了已完成的释放
	if err := f.lifecycle.Confirm(ctx, reservation.ID); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("confirm after release: want ErrConflict, got %v", err)
	}
}

func TestLifecycleExpireMarksTerminalState(t *testing.T) {
	ctx := context.Background()
	f := newLifecycleFixture()
	f.seed(t, "wh-1", "sku-a", 5)

	reservation, err := f.lifecycle.Create(ctx, "wh-1", []domain.Item{{SKUID: "sku-a", Quantity: 5}}, time.Millisecond)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := f.lifecycle.Expire(ctx, reservation.ID); err != nil {
		t.Fatalf("Expire: %v", err)
	}
	expired, _ := f.lifecycle.FindByID(ctx, reservation.ID)
	if expired.Status != domain.StatusExpired {
		t.Fatalf("status = %s, want EXPIRED", expired.Status)
	}
	if got := f.available(t, "wh-1", "sku-a"); got != 5 {
		t.Fatalf("available = %d after expire, want 5", got)
	}
}

func TestLifecycleBindOrder(t *testing.T) {
	ctx := context.Background()
	f := newLifecycleFixture()
	f.seed(t, "wh-1", "sku-a", 5)

	reservation, err := f.lifecycle.Create(ctx, "wh-1", []domain.Item{{SKUID: "sku-a", Quantity: 1}}, 15*time.Minute)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := f.lifecycle.BindOrder(ctx, reservation.ID, "order-77"); err != nil {
		t.Fatalf("BindOrder: %v", err)
	}
	found, err := f.lifecycle.FindByOrderID(ctx, "order-77")
	if err != nil {
		t.Fatalf("FindByOrderID: %v", err)
	}
	if found.ID != reservation.ID {
		t.Fatalf("found reservation %s, want %s", found.ID, reservation.ID)
	}

	// 同一订单重复回填是幂等的
	if err := f.lifecycle.BindOrder(ctx, reservation.ID, "order-77"); err != nil {
		t.Fatalf("repeat BindOrder: %v", err)
	}
	// 换订单回填是冲突
	if err := f.lifecycle.BindOrder(ctx, reservation.ID, "order-88"); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("rebind to other order: want ErrConflict, got %v", err)
	}
}
