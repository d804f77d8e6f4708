package webhook

import (
	"encoding/json"
	"fmt"
	"time"
)

// Envelope is the wire format delivered to receivers. It is serialized
// exactly once at construction; the frozen bytes are what gets signed and
// sent, so the signature can never drift from the transmitted body.
type Envelope struct {
	Event     string         `json:"event"`
	EventID   string         `json:"event_id,omitempty"`
	Timestamp string         `json:"timestamp"`
	Data      map[string]any `json:"data"`

	raw []byte
}

// NewEnvelope builds and freezes a payload envelope
func NewEnvelope(eventType EventType, eventID string, data map[string]any) (*Envelope, error) {
	if data == nil {
		data = map[string]any{}
	}
	env := &Envelope{
		Event:     string(eventType),
		EventID:   eventID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data:      data,
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("envelope: marshal: %w", err)
	}
	env.raw = raw
	return env, nil
}

// EnvelopeFromBytes reconstructs an envelope from a stored payload. The
// input bytes become the frozen body verbatim, so retry attempts resend
// exactly what the first attempt sent.
func EnvelopeFromBytes(b []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("envelope: unmarshal: %w", err)
	}
	env.raw = b
	return &env, nil
}

// Bytes returns the frozen serialized body
func (e *Envelope) Bytes() []byte {
	return e.raw
}
