package domain

import (
	"testing"
	"time"
)

func TestEventConstructors_ValidateRequiredFields(t *testing.T) {
	if _, err := NewReservationCreated(nil); err == nil {
		t.Error("nil reservation must be rejected")
	}
	if _, err := NewReservationCreated(&Reservation{ID: "r1"}); err == nil {
		t.Error("reservation without warehouse/items must be rejected")
	}

	r, _ := NewReservation("w1", []Item{{SKUID: "A", Quantity: 1}}, time.Minute)
	if _, err := NewReservationReleased(r, ""); err == nil {
		t.Error("released event without reason must be rejected")
	}
	if _, err := NewStockUpdated(&StockRecord{WarehouseID: "w1"}); err == nil {
		t.Error("stock event without sku must be rejected")
	}
}

func TestEventConstructors_PopulateMetaAndTopic(t *testing.T) {
	r, _ := NewReservation("w1", []Item{{SKUID: "A", Quantity: 2}}, time.Minute)

	created, err := NewReservationCreated(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created.Topic() != TopicInventoryReserved || created.AggregateID() != r.ID {
		t.Errorf("unexpected topic/aggregate: %s / %s", created.Topic(), created.AggregateID())
	}
	if created.Meta().EventID == "" || created.Meta().OccurredAt.IsZero() {
		t.Error("event meta must carry id and timestamp")
	}

	released, err := NewReservationReleased(r, "expired")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if released.Topic() != TopicInventoryReleased || released.Reason != "expired" {
		t.Errorf("unexpected released event: %+v", released)
	}

	updated, err := NewStockUpdated(&StockRecord{WarehouseID: "w1", SKUID: "A", OnHand: 10, Reserved: 4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Available != 6 {
		t.Errorf("expected derived available 6, got %d", updated.Available)
	}
}
