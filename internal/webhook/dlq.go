package webhook

import (
	"encoding/json"
	"time"

	"github.com/nsqio/go-nsq"
)

const DLQType = "webhook.delivery.dlq"

// DeadLetter is the envelope published when a delivery episode reaches
// terminal failure, for downstream alerting and inspection.
type DeadLetter struct {
	Type       string `json:"type"`    // "webhook.delivery.dlq"
	Version    string `json:"version"` // schema version
	At         string `json:"at"`      // RFC3339 time the DLQ was emitted
	Reason     string `json:"reason"`  // human/debug text
	Attempt    int    `json:"attempt"` // attempt count when DLQ'd
	HTTPStatus int    `json:"http_status,omitempty"`
	LastError  string `json:"last_error,omitempty"`
	StoreID    string `json:"store_id"`
	WebhookID  string `json:"webhook_id"`
	DeliveryID string `json:"delivery_id"`
	EventID    string `json:"event_id"`
	EventType  string `json:"event_type"`
	TargetURL  string `json:"target_url"`

	// TraceHeaders carries the publisher's trace context so DLQ consumers
	// join the delivery trace, same as the events topic.
	TraceHeaders map[string]string `json:"trace_headers,omitempty"`
}

// NewDeadLetter snapshots a terminally failed episode
func NewDeadLetter(sub Subscription, deliveryID, eventID string, attempt, httpStatus int, lastErr, reason string) DeadLetter {
	return DeadLetter{
		Type:       DLQType,
		Version:    "v1",
		At:         time.Now().UTC().Format(time.RFC3339Nano),
		Reason:     reason,
		Attempt:    attempt,
		HTTPStatus: httpStatus,
		LastError:  lastErr,
		StoreID:    sub.StoreID,
		WebhookID:  sub.ID,
		DeliveryID: deliveryID,
		EventID:    eventID,
		EventType:  string(sub.EventType),
		TargetURL:  sub.TargetURL,
	}
}

// DeadLetterPublisher publishes dead letters somewhere durable
type DeadLetterPublisher interface {
	PublishDeadLetter(dl DeadLetter) error
}

// NSQDeadLetters publishes dead letters to an NSQ topic
type NSQDeadLetters struct {
	producer *nsq.Producer
	topic    string
}

// NewNSQDeadLetters wraps an NSQ producer as a dead letter publisher
func NewNSQDeadLetters(producer *nsq.Producer, topic string) *NSQDeadLetters {
	return &NSQDeadLetters{producer: producer, topic: topic}
}

func (p *NSQDeadLetters) PublishDeadLetter(dl DeadLetter) error {
	b, err := json.Marshal(dl)
	if err != nil {
		return err
	}
	return p.producer.Publish(p.topic, b)
}
