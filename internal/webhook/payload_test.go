package webhook

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestNewEnvelopeFreezesBytes(t *testing.T) {
	env, err := NewEnvelope(EventOrderCompleted, "evt-1", map[string]any{"order_id": "ord-1"})
	if err != nil {
		t.Fatalf("NewEnvelope() error: %v", err)
	}

	raw := env.Bytes()
	if len(raw) == 0 {
		t.Fatal("Bytes() is empty")
	}

	// The frozen body must parse back to the same fields
	var decoded Envelope
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("frozen body is not valid JSON: %v", err)
	}
	if decoded.Event != string(EventOrderCompleted) {
		t.Errorf("event = %s, want %s", decoded.Event, EventOrderCompleted)
	}
	if decoded.EventID != "evt-1" {
		t.Errorf("event_id = %s, want evt-1", decoded.EventID)
	}
	if decoded.Timestamp == "" {
		t.Error("timestamp is empty")
	}
	if decoded.Data["order_id"] != "ord-1" {
		t.Errorf("data.order_id = %v, want ord-1", decoded.Data["order_id"])
	}

	// Mutating the struct after construction must not change the body
	env.EventID = "tampered"
	if !bytes.Equal(env.Bytes(), raw) {
		t.Error("Bytes() changed after struct mutation")
	}
}

func TestNewEnvelopeNilData(t *testing.T) {
	env, err := NewEnvelope(EventStockLow, "evt-2", nil)
	if err != nil {
		t.Fatalf("NewEnvelope() error: %v", err)
	}
	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(env.Bytes(), &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if string(decoded["data"]) != "{}" {
		t.Errorf("data = %s, want {}", decoded["data"])
	}
}

func TestEnvelopeFromBytes(t *testing.T) {
	// Deliberately odd whitespace and key order; the stored bytes must be
	// resent verbatim, not re-serialized.
	stored := []byte(`{ "data": {"a": 1},  "event": "order.completed", "timestamp": "2026-08-30T12:00:00Z", "event_id": "evt-3" }`)

	env, err := EnvelopeFromBytes(stored)
	if err != nil {
		t.Fatalf("EnvelopeFromBytes() error: %v", err)
	}
	if !bytes.Equal(env.Bytes(), stored) {
		t.Errorf("Bytes() = %s, want stored bytes verbatim", env.Bytes())
	}
	if env.Event != "order.completed" || env.EventID != "evt-3" {
		t.Errorf("parsed fields = (%s, %s)", env.Event, env.EventID)
	}

	// Same bytes, same signature: the retry path cannot drift
	sig1, err := Sign(stored, []byte("s"))
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	sig2, err := Sign(env.Bytes(), []byte("s"))
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	if sig1 != sig2 {
		t.Error("signature over reconstructed envelope differs from stored bytes")
	}
}

func TestEnvelopeFromBytesRejectsGarbage(t *testing.T) {
	if _, err := EnvelopeFromBytes([]byte("not json")); err == nil {
		t.Error("EnvelopeFromBytes() accepted malformed payload")
	}
}
