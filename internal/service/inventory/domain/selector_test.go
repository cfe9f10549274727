package domain

import (
	"context"
	"testing"

	"qcom/internal/pkg/geo"
)

// stubAvailability 基于固定表提供可用量；缺失键视为无台账行
func stubAvailability(table map[string]int) AvailabilityFunc {
	return func(_ context.Context, warehouseID, skuID string) (int, error) {
		v, ok := table[warehouseID+"/"+skuID]
		if !ok {
			return 0, ErrNotFound
		}
		return v, nil
	}
}

var testPolicy = DeliveryPolicy{FreeRadiusKm: 5, PayMode: PayModeUser}

// 客户在原点附近；w1 约 3km，w2 约 1km
var (
	customer = geo.Point{Lat: 12.9716, Lng: 77.5946}
	w1       = Warehouse{ID: "w1", Location: geo.Point{Lat: 12.9986, Lng: 77.5946}, Active: true, RadiusKm: 50}
	w2       = Warehouse{ID: "w2", Location: geo.Point{Lat: 12.9806, Lng: 77.5946}, Active: true, RadiusKm: 50}
)

func TestSelectWarehouse_PrefersFullAvailabilityOverDistance(t *testing.T) {
	// w2 更近但缺一个 SKU，必须选 w1
	items := []Item{{SKUID: "A", Quantity: 1}, {SKUID: "B", Quantity: 2}}
	avail := stubAvailability(map[string]int{
		"w1/A": 5, "w1/B": 5,
		"w2/A": 5, "w2/B": 1,
	})

	res, err := SelectWarehouse(context.Background(), items, customer, testPolicy, DefaultPricingConfig(), []Warehouse{w1, w2}, avail, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res == nil || res.WarehouseID != "w1" {
		t.Fatalf("expected w1, got %+v", res)
	}
}

func TestSelectWarehouse_ClosestWins(t *testing.T) {
	items := []Item{{SKUID: "A", Quantity: 1}}
	avail := stubAvailability(map[string]int{"w1/A": 5, "w2/A": 5})

	res, err := SelectWarehouse(context.Background(), items, customer, testPolicy, DefaultPricingConfig(), []Warehouse{w1, w2}, avail, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res == nil || res.WarehouseID != "w2" {
		t.Fatalf("expected closest warehouse w2, got %+v", res)
	}
}

func TestSelectWarehouse_StableTieBreak(t *testing.T) {
	// 距离完全相同时保持入参顺序
	twin := w1
	twin.ID = "w1-twin"
	items := []Item{{SKUID: "A", Quantity: 1}}
	avail := stubAvailability(map[string]int{"w1/A": 5, "w1-twin/A": 5})

	res, err := SelectWarehouse(context.Background(), items, customer, testPolicy, DefaultPricingConfig(), []Warehouse{w1, twin}, avail, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res == nil || res.WarehouseID != "w1" {
		t.Fatalf("expected stable tie-break to keep w1 first, got %+v", res)
	}
}

func TestSelectWarehouse_SkipsInactive(t *testing.T) {
	inactive := w2
	inactive.Active = false
	items := []Item{{SKUID: "A", Quantity: 1}}
	avail := stubAvailability(map[string]int{"w1/A": 5, "w2/A": 5})

	res, err := SelectWarehouse(context.Background(), items, customer, testPolicy, DefaultPricingConfig(), []Warehouse{w1, inactive}, avail, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res == nil || res.WarehouseID != "w1" {
		t.Fatalf("expected inactive w2 to be skipped, got %+v", res)
	}
}

func TestSelectWarehouse_NoneFulfillable(t *testing.T) {
	items := []Item{{SKUID: "A", Quantity: 10}}
	avail := stubAvailability(map[string]int{"w1/A": 5, "w2/A": 3})

	res, err := SelectWarehouse(context.Background(), items, customer, testPolicy, DefaultPricingConfig(), []Warehouse{w1, w2}, avail, nil)
	if err != nil {
		t.Fatalf("no fulfillable warehouse is a valid outcome, got error: %v", err)
	}
	if res != nil {
		t.Fatalf("expected nil result, got %+v", res)
	}
}

func TestSelectWarehouse_MissingStockRowMeansUnavailable(t *testing.T) {
	items := []Item{{SKUID: "A", Quantity: 1}, {SKUID: "B", Quantity: 1}}
	avail := stubAvailability(map[string]int{"w1/A": 5}) // w1 没有 B 的台账行

	res, err := SelectWarehouse(context.Background(), items, customer, testPolicy, DefaultPricingConfig(), []Warehouse{w1}, avail, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res != nil {
		t.Fatalf("expected nil result when a stock row is missing, got %+v", res)
	}
}

type radiusRule struct{}

func (radiusRule) Eligible(w Warehouse, distanceKm float64) (bool, error) {
	return distanceKm <= w.RadiusKm, nil
}

func TestSelectWarehouse_EligibilityRuleFiltersCandidates(t *testing.T) {
	near := w2
	near.RadiusKm = 0.1 // 服务半径覆盖不到客户
	items := []Item{{SKUID: "A", Quantity: 1}}
	avail := stubAvailability(map[string]int{"w1/A": 5, "w2/A": 5})

	res, err := SelectWarehouse(context.Background(), items, customer, testPolicy, DefaultPricingConfig(), []Warehouse{w1, near}, avail, radiusRule{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res == nil || res.WarehouseID != "w1" {
		t.Fatalf("expected out-of-radius w2 to be filtered, got %+v", res)
	}
}
