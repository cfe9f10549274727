// internal/service/inventory/infrastructure/rule/cel_eligibility_test.go
package rule

import (
	"testing"

	"qcom/internal/pkg/geo"
	"qcom/internal/service/inventory/domain"
)

func TestDefaultRule(t *testing.T) {
	adapter, err := NewCELEligibilityAdapter("")
	if err != nil {
		t.Fatalf("NewCELEligibilityAdapter: %v", err)
	}

	warehouse := domain.Warehouse{ID: "wh-1", Location: geo.Point{Lat: 31.23, Lng: 121.47}, RadiusKm: 10, Active: true}

	cases := []struct {
		name     string
		active   bool
		distance float64
		want     bool
	}{
		{"inside radius", true, 5, true},
		{"on the boundary", true, 10, true},
		{"outside radius", true, 10.5, false},
		{"inactive warehouse", false, 5, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := warehouse
			w.Active = tc.active
			got, err := adapter.Eligible(w, tc.distance)
			if err != nil {
				t.Fatalf("Eligible: %v", err)
			}
			if got != tc.want {
				t.Fatalf("Eligible = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestCustomRule(t *testing.T) {
	// 运营临时屏蔽某个仓库
	adapter, err := NewCELEligibilityAdapter(`active && warehouse_id != "wh-blocked"`)
	if err != nil {
		t.Fatalf("NewCELEligibilityAdapter: %v", err)
	}

	ok, err := adapter.Eligible(domain.Warehouse{ID: "wh-1", Active: true}, 3)
	if err != nil || !ok {
		t.Fatalf("wh-1 should be eligible: ok=%v err=%v", ok, err)
	}
	ok, err = adapter.Eligible(domain.Warehouse{ID: "wh-blocked", Active: true}, 3)
	if err != nil || ok {
		t.Fatalf("wh-blocked should be filtered out: ok=%v err=%v", ok, err)
	}
}

func TestInvalidRuleRejected(t *testing.T) {
	if _, err := NewCELEligibilityAdapter("distance_km +"); err == nil {
		t.Fatal("syntactically broken rule must be rejected at construction")
	}
	if _, err := NewCELEligibilityAdapter("distance_km + radius_km"); err == nil {
		t.Fatal("non-boolean rule must be rejected at construction")
	}
}
