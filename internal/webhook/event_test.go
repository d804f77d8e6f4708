package webhook

import (
	"testing"
)

func TestEventTypeValid(t *testing.T) {
	tests := []struct {
		name string
		t    EventType
		want bool
	}{
		{"order created", EventOrderCreated, true},
		{"order completed", EventOrderCompleted, true},
		{"payment completed", EventPaymentCompleted, true},
		{"payment failed", EventPaymentFailed, true},
		{"stock adjusted", EventStockAdjusted, true},
		{"stock low", EventStockLow, true},
		{"unknown", EventType("order.shipped"), false},
		{"empty", EventType(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.t.Valid(); got != tt.want {
				t.Errorf("Valid(%q) = %t, want %t", tt.t, got, tt.want)
			}
		})
	}
}

func TestNewEvent(t *testing.T) {
	ev := NewEvent("store-1", EventOrderCompleted, map[string]any{"order_id": "ord-1"})

	if ev.ID == "" {
		t.Error("NewEvent() did not assign an ID")
	}
	if ev.OccurredAt == "" {
		t.Error("NewEvent() did not set occurred_at")
	}
	if err := ev.Validate(); err != nil {
		t.Errorf("Validate() on fresh event: %v", err)
	}
}

func TestEventValidate(t *testing.T) {
	tests := []struct {
		name    string
		event   Event
		wantErr bool
	}{
		{
			name:  "valid",
			event: Event{StoreID: "store-1", Type: EventOrderCompleted, Data: map[string]any{}},
		},
		{
			name:    "missing store",
			event:   Event{Type: EventOrderCompleted, Data: map[string]any{}},
			wantErr: true,
		},
		{
			name:    "unknown type",
			event:   Event{StoreID: "store-1", Type: "nope", Data: map[string]any{}},
			wantErr: true,
		},
		{
			name:    "nil data",
			event:   Event{StoreID: "store-1", Type: EventOrderCompleted},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %t", err, tt.wantErr)
			}
		})
	}
}

func TestNewTypedEvent(t *testing.T) {
	ev, err := NewTypedEvent("store-1", OrderCompletedData{
		OrderID:  "ord-1",
		Total:    49.90,
		Currency: "EUR",
	})
	if err != nil {
		t.Fatalf("NewTypedEvent() error: %v", err)
	}
	if ev.Type != EventOrderCompleted {
		t.Errorf("Type = %s, want %s", ev.Type, EventOrderCompleted)
	}
	if ev.Data["order_id"] != "ord-1" {
		t.Errorf("data.order_id = %v, want ord-1", ev.Data["order_id"])
	}
	if ev.Data["currency"] != "EUR" {
		t.Errorf("data.currency = %v, want EUR", ev.Data["currency"])
	}
	if err := ev.Validate(); err != nil {
		t.Errorf("Validate() on typed event: %v", err)
	}
}

func TestNewTypedEventVariants(t *testing.T) {
	tests := []struct {
		name string
		data EventData
		want EventType
	}{
		{"payment", PaymentCompletedData{PaymentID: "pay-1", OrderID: "ord-1", Amount: 10, Currency: "USD", Provider: "stripe"}, EventPaymentCompleted},
		{"stock", StockAdjustedData{ProductID: "sku-1", Delta: -2, NewLevel: 7}, EventStockAdjusted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := NewTypedEvent("store-1", tt.data)
			if err != nil {
				t.Fatalf("NewTypedEvent() error: %v", err)
			}
			if ev.Type != tt.want {
				t.Errorf("Type = %s, want %s", ev.Type, tt.want)
			}
		})
	}
}
