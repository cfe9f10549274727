package domain

import "testing"

func TestQuoteDelivery_WithinFreeRadius(t *testing.T) {
	policy := DeliveryPolicy{FreeRadiusKm: 5, PayMode: PayModeUser}
	cfg := DefaultPricingConfig()

	q := QuoteDelivery(5, policy, cfg) // 边界本身免运费
	if q.DeliveryFee != 0 || q.SellerDeliveryCost != 0 {
		t.Errorf("expected free delivery at boundary, got fee=%d sellerCost=%d", q.DeliveryFee, q.SellerDeliveryCost)
	}
}

func TestQuoteDelivery_JustOutsideFreeRadius(t *testing.T) {
	policy := DeliveryPolicy{FreeRadiusKm: 5, PayMode: PayModeUser}
	cfg := DefaultPricingConfig()

	q := QuoteDelivery(5.01, policy, cfg)
	if q.DeliveryFee == 0 {
		t.Error("expected nonzero fee just outside free radius")
	}
}

func TestQuoteDelivery_UserPays(t *testing.T) {
	// freeRadius=5, d=8, baseKm=3, baseFee=20, perKm=6 -> round(20 + 5*6) = 50
	policy := DeliveryPolicy{FreeRadiusKm: 5, PayMode: PayModeUser}
	cfg := PricingConfig{BaseFee: 20, PerKmFee: 6, BaseKm: 3}

	q := QuoteDelivery(8, policy, cfg)
	if q.DeliveryFee != 50 {
		t.Errorf("expected fee 50, got %d", q.DeliveryFee)
	}
	if q.SellerDeliveryCost != 0 {
		t.Errorf("expected seller cost 0, got %d", q.SellerDeliveryCost)
	}
}

func TestQuoteDelivery_SellerPays(t *testing.T) {
	policy := DeliveryPolicy{FreeRadiusKm: 5, PayMode: PayModeSeller}
	cfg := PricingConfig{BaseFee: 20, PerKmFee: 6, BaseKm: 3}

	q := QuoteDelivery(8, policy, cfg)
	if q.DeliveryFee != 0 {
		t.Errorf("buyer fee must be 0 under seller pay mode, got %d", q.DeliveryFee)
	}
	if q.SellerDeliveryCost != 50 {
		t.Errorf("expected seller cost 50, got %d", q.SellerDeliveryCost)
	}
}

func TestQuoteDelivery_RoundHalfUp(t *testing.T) {
	policy := DeliveryPolicy{FreeRadiusKm: 1, PayMode: PayModeUser}
	cfg := PricingConfig{BaseFee: 20, PerKmFee: 6, BaseKm: 3}

	// 20 + (3.75-3)*6 = 24.5 -> 25，只对最终金额取整
	q := QuoteDelivery(3.75, policy, cfg)
	if q.DeliveryFee != 25 {
		t.Errorf("expected 24.5 to round up to 25, got %d", q.DeliveryFee)
	}
}
