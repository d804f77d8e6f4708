package webhook

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates the business events the engine fans out. Consumers
// switching on an EventType get a closed set instead of free-form strings.
type EventType string

const (
	EventOrderCreated     EventType = "order.created"
	EventOrderCompleted   EventType = "order.completed"
	EventPaymentCompleted EventType = "payment.completed"
	EventPaymentFailed    EventType = "payment.failed"
	EventStockAdjusted    EventType = "stock.adjusted"
	EventStockLow         EventType = "stock.low"
)

// knownEventTypes is the closed set of dispatchable event variants
var knownEventTypes = map[EventType]struct{}{
	EventOrderCreated:     {},
	EventOrderCompleted:   {},
	EventPaymentCompleted: {},
	EventPaymentFailed:    {},
	EventStockAdjusted:    {},
	EventStockLow:         {},
}

// Valid reports whether t names a known event variant
func (t EventType) Valid() bool {
	_, ok := knownEventTypes[t]
	return ok
}

func (t EventType) String() string { return string(t) }

// Event is one business event instance awaiting fan-out. It is the unit
// carried on the NSQ events topic and accepted by the trigger API.
type Event struct {
	ID           string            `json:"event_id"`
	StoreID      string            `json:"store_id"`
	Type         EventType         `json:"event_type"`
	Data         map[string]any    `json:"data"`
	OccurredAt   string            `json:"occurred_at"` // RFC3339
	TraceHeaders map[string]string `json:"trace_headers,omitempty"`
}

// NewEvent builds an event with a fresh ID and the current timestamp
func NewEvent(storeID string, t EventType, data map[string]any) Event {
	return Event{
		ID:         uuid.NewString(),
		StoreID:    storeID,
		Type:       t,
		Data:       data,
		OccurredAt: time.Now().UTC().Format(time.RFC3339),
	}
}

// Validate checks the event is dispatchable
func (e Event) Validate() error {
	if e.StoreID == "" {
		return fmt.Errorf("event: store_id is required")
	}
	if !e.Type.Valid() {
		return fmt.Errorf("event: unknown event type %q", e.Type)
	}
	if e.Data == nil {
		return fmt.Errorf("event: data is required")
	}
	return nil
}

// EventData is implemented by the typed payloads of known event variants.
// NewTypedEvent turns one into a dispatchable Event, so producers work with
// concrete structs rather than hand-assembled maps.
type EventData interface {
	EventType() EventType
}

// OrderCompletedData is the payload for order.completed
type OrderCompletedData struct {
	OrderID  string  `json:"order_id"`
	Total    float64 `json:"total"`
	Currency string  `json:"currency"`
	Customer string  `json:"customer,omitempty"`
}

func (OrderCompletedData) EventType() EventType { return EventOrderCompleted }

// PaymentCompletedData is the payload for payment.completed
type PaymentCompletedData struct {
	PaymentID string  `json:"payment_id"`
	OrderID   string  `json:"order_id"`
	Amount    float64 `json:"amount"`
	Currency  string  `json:"currency"`
	Provider  string  `json:"provider"`
}

func (PaymentCompletedData) EventType() EventType { return EventPaymentCompleted }

// StockAdjustedData is the payload for stock.adjusted
type StockAdjustedData struct {
	ProductID string `json:"product_id"`
	Delta     int    `json:"delta"`
	NewLevel  int    `json:"new_level"`
}

func (StockAdjustedData) EventType() EventType { return EventStockAdjusted }

// NewTypedEvent builds an Event from a typed payload variant
func NewTypedEvent(storeID string, data EventData) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, fmt.Errorf("event: marshal payload: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return Event{}, fmt.Errorf("event: payload must be an object: %w", err)
	}
	return NewEvent(storeID, data.EventType(), m), nil
}
