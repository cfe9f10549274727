// internal/service/inventory/application/orchestrator_test.go
package application_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace/noop"

	"qcom/internal/pkg/geo"
	"qcom/internal/service/inventory/application"
	"qcom/internal/service/inventory/domain"
	"qcom/internal/service/inventory/infrastructure"
)

// radiusPolicy 是测试用的资格规则：启用且在服务半径内
type radiusPolicy struct{}

func (radiusPolicy) Eligible(w domain.Warehouse, distanceKm float64) (bool, error) {
	return w.Active && distanceKm <= w.RadiusKm, nil
}

type orchestratorFixture struct {
	orchestrator *application.AllocationOrchestrator
	lifecycle    *application.ReservationLifecycle
	ledger       *application.StockLedger
}

// 客户在原点附近；wh-near 约 11 公里，wh-far 约 22 公里
var (
	testCustomer = geo.Point{Lat: 0, Lng: 0}
	nearHouse    = domain.Warehouse{ID: "wh-near", Name: "near", Location: geo.Point{Lat: 0.1, Lng: 0}, RadiusKm: 100, Active: true}
	farHouse     = domain.Warehouse{ID: "wh-far", Name: "far", Location: geo.Point{Lat: 0.2, Lng: 0}, RadiusKm: 100, Active: true}
)

func newOrchestratorFixture(t *testing.T, stock map[string]map[string]int) *orchestratorFixture {
	t.Helper()
	ctx := context.Background()
	tracer := noop.NewTracerProvider().Tracer("test")

	stocks := infrastructure.NewMemoryStockRepository()
	reservations := infrastructure.NewMemoryReservationRepository()
	warehouses := infrastructure.NewMemoryWarehouseRepository([]domain.Warehouse{nearHouse, farHouse})

	ledger := application.NewStockLedger(stocks, nil, tracer, zerolog.Nop())
	lifecycle := application.NewReservationLifecycle(ledger, reservations, nil, tracer, zerolog.Nop())

	for warehouseID, skus := range stock {
		for skuID, onHand := range skus {
			if err := ledger.SetOnHand(ctx, warehouseID, skuID, onHand); err != nil {
				t.Fatalf("seed stock: %v", err)
			}
		}
	}

	availability := func(ctx context.Context, warehouseID, skuID string) (int, error) {
		record, err := ledger.GetAvailability(ctx, warehouseID, skuID)
		if err != nil {
			return 0, err
		}
		return record.Available(), nil
	}

	orchestrator := application.NewAllocationOrchestrator(
		warehouses, availability, lifecycle, radiusPolicy{},
		application.OrchestratorConfig{
			ReservationTTL: 15 * time.Minute,
			MaxAttempts:    3,
			RetryBackoff:   time.Millisecond,
			Pricing:        domain.DefaultPricingConfig(),
		},
		tracer, zerolog.Nop(),
	)
	return &orchestratorFixture{orchestrator: orchestrator, lifecycle: lifecycle, ledger: ledger}
}

func TestAllocatePicksClosestFulfillable(t *testing.T) {
	ctx := context.Background()
	f := newOrchestratorFixture(t, map[string]map[string]int{
		"wh-near": {"sku-a": 10},
		"wh-far":  {"sku-a": 10},
	})

	policy := domain.DeliveryPolicy{FreeRadiusKm: 5, PayMode: domain.PayModeUser}
	result, err := f.orchestrator.Allocate(ctx, []domain.Item{{SKUID: "sku-a", Quantity: 2}}, testCustomer, policy)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if result.Reservation.WarehouseID != "wh-near" {
		t.Fatalf("allocated from %s, want wh-near", result.Reservation.WarehouseID)
	}
	if result.Quote.DeliveryFee <= 0 {
		t.Fatalf("11km with 5km free radius must carry a fee, got %d", result.Quote.DeliveryFee)
	}

	record, _ := f.ledger.GetAvailability(ctx, "wh-near", "sku-a")
	if record.Reserved != 2 {
		t.Fatalf("wh-near reserved = %d, want 2", record.Reserved)
	}
}

// 最近的仓库缺一个 SKU 时，整单落到次近的仓库，绝不拆单。
func TestAllocateSkipsPartiallyStockedWarehouse(t *testing.T) {
	ctx := context.Background()
	f := newOrchestratorFixture(t, map[string]map[string]int{
		"wh-near": {"sku-a": 10},
		"wh-far":  {"sku-a": 10, "sku-b": 10},
	})

	items := []domain.Item{{SKUID: "sku-a", Quantity: 1}, {SKUID: "sku-b", Quantity: 1}}
	policy := domain.DeliveryPolicy{FreeRadiusKm: 100, PayMode: domain.PayModeUser}
	result, err := f.orchestrator.Allocate(ctx, items, testCustomer, policy)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if result.Reservation.WarehouseID != "wh-far" {
		t.Fatalf("allocated from %s, want wh-far", result.Reservation.WarehouseID)
	}

	// 落选仓库不能有任何占用
	record, _ := f.ledger.GetAvailability(ctx, "wh-near", "sku-a")
	if record.Reserved != 0 {
		t.Fatalf("wh-near reserved = %d, want 0", record.Reserved)
	}
}

func TestAllocateNoFulfillableWarehouse(t *testing.T) {
	ctx := context.Background()
	f := newOrchestratorFixture(t, map[string]map[string]int{
		"wh-near": {"sku-a": 1},
		"wh-far":  {"sku-a": 1},
	})

	policy := domain.DeliveryPolicy{FreeRadiusKm: 5, PayMode: domain.PayModeUser}
	_, err := f.orchestrator.Allocate(ctx, []domain.Item{{SKUID: "sku-a", Quantity: 5}}, testCustomer, policy)
	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("want ErrInsufficientStock, got %v", err)
	}
}

// 选仓快照和预占之间被并发请求抢走库存时，编排器剔除输掉的仓库重选。
// 用一个在首个仓库上永远失败的 ReservationManager 模拟竞争。
type racingManager struct {
	inner        application.ReservationManager
	loseAt       string
	failuresSeen int
}

func (m *racingManager) Create(ctx context.Context, warehouseID string, items []domain.Item, ttl time.Duration) (*domain.Reservation, error) {
	if warehouseID == m.loseAt {
		m.failuresSeen++
		return nil, errors.Wrap(domain.ErrInsufficientStock, "lost the reserve race")
	}
	return m.inner.Create(ctx, warehouseID, items, ttl)
}

func (m *racingManager) Confirm(ctx context.Context, reservationID string) error {
	return m.inner.Confirm(ctx, reservationID)
}

func (m *racingManager) Release(ctx context.Context, reservationID, reason string) error {
	return m.inner.Release(ctx, reservationID, reason)
}

func (m *racingManager) BindOrder(ctx context.Context, reservationID, orderID string) error {
	return m.inner.BindOrder(ctx, reservationID, orderID)
}

func (m *racingManager) FindByOrderID(ctx context.Context, orderID string) (*domain.Reservation, error) {
	return m.inner.FindByOrderID(ctx, orderID)
}

func TestAllocateReselectsAfterLostRace(t *testing.T) {
	ctx := context.Background()
	tracer := noop.NewTracerProvider().Tracer("test")

	stocks := infrastructure.NewMemoryStockRepository()
	reservations := infrastructure.NewMemoryReservationRepository()
	warehouses := infrastructure.NewMemoryWarehouseRepository([]domain.Warehouse{nearHouse, farHouse})
	ledger := application.NewStockLedger(stocks, nil, tracer, zerolog.Nop())
	lifecycle := application.NewReservationLifecycle(ledger, reservations, nil, tracer, zerolog.Nop())

	ledger.SetOnHand(ctx, "wh-near", "sku-a", 10)
	ledger.SetOnHand(ctx, "wh-far", "sku-a", 10)

	availability := func(ctx context.Context, warehouseID, skuID string) (int, error) {
		record, err := ledger.GetAvailability(ctx, warehouseID, skuID)
		if err != nil {
			return 0, err
		}
		return record.Available(), nil
	}

	manager := &racingManager{inner: lifecycle, loseAt: "wh-near"}
	orchestrator := application.NewAllocationOrchestrator(
		warehouses, availability, manager, radiusPolicy{},
		application.OrchestratorConfig{MaxAttempts: 3, RetryBackoff: time.Millisecond, Pricing: domain.DefaultPricingConfig()},
		tracer, zerolog.Nop(),
	)

	policy := domain.DeliveryPolicy{FreeRadiusKm: 100, PayMode: domain.PayModeUser}
	result, err := orchestrator.Allocate(ctx, []domain.Item{{SKUID: "sku-a", Quantity: 1}}, testCustomer, policy)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if result.Reservation.WarehouseID != "wh-far" {
		t.Fatalf("allocated from %s after lost race, want wh-far", result.Reservation.WarehouseID)
	}
	if manager.failuresSeen != 1 {
		t.Fatalf("near warehouse tried %d times, want 1", manager.failuresSeen)
	}
}

func TestAllocateConfirmAndReleaseByOrder(t *testing.T) {
	ctx := context.Background()
	f := newOrchestratorFixture(t, map[string]map[string]int{
		"wh-near": {"sku-a": 10},
	})

	policy := domain.DeliveryPolicy{FreeRadiusKm: 100, PayMode: domain.PayModeUser}
	result, err := f.orchestrator.Allocate(ctx, []domain.Item{{SKUID: "sku-a", Quantity: 2}}, testCustomer, policy)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	if err := f.orchestrator.BindOrder(ctx, result.Reservation.ID, "order-1"); err != nil {
		t.Fatalf("BindOrder: %v", err)
	}
	if err := f.orchestrator.ConfirmByOrder(ctx, "order-1"); err != nil {
		t.Fatalf("ConfirmByOrder: %v", err)
	}
	record, _ := f.ledger.GetAvailability(ctx, "wh-near", "sku-a")
	if record.OnHand != 8 || record.Reserved != 0 {
		t.Fatalf("after confirm: onHand=%d reserved=%d", record.OnHand, record.Reserved)
	}

	if err := f.orchestrator.ReleaseByOrder(ctx, "order-unknown", application.ReleaseReasonCancelled); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("release unknown order: want ErrNotFound, got %v", err)
	}
}
