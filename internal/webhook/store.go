package webhook

import (
	"context"
	"encoding/json"
	"time"
)

// Status is the delivery log state machine. The four values are part of the
// persisted contract read by dashboards and the retry sweep; they must not
// be renamed.
type Status string

const (
	StatusPending  Status = "pending"
	StatusSuccess  Status = "success"
	StatusFailed   Status = "failed"
	StatusRetrying Status = "retrying"
)

// Terminal reports whether no further attempts follow this status
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// Subscription is a store's registration to receive one event type. The
// engine reads these rows and updates their counters; it never creates,
// edits, or deletes them.
type Subscription struct {
	ID              string
	StoreID         string
	EventType       EventType
	TargetURL       string
	SecretKey       []byte // used only for signing, never logged
	IsActive        bool
	MaxAttempts     int
	TriggerCount    int64
	SuccessCount    int64
	FailureCount    int64
	LastTriggeredAt *time.Time
	CreatedAt       time.Time
}

// DeliveryLog is one logical delivery episode: a single row created per
// (event, subscriber) pair and mutated in place across retries.
type DeliveryLog struct {
	ID                 string          `json:"id"`
	WebhookID          string          `json:"webhook_id"`
	EventType          string          `json:"event_type"`
	EventID            string          `json:"event_id"`
	Payload            json.RawMessage `json:"payload"`
	ResponseStatusCode *int            `json:"response_status_code"`
	ResponseBody       *string         `json:"response_body"`
	ErrorMessage       *string         `json:"error_message"`
	DurationMs         int64           `json:"duration_ms"`
	AttemptCount       int             `json:"attempt_count"`
	MaxAttempts        int             `json:"max_attempts"`
	NextAttemptAt      *time.Time      `json:"next_attempt_at"`
	Status             Status          `json:"status"`
	CreatedAt          time.Time       `json:"created_at"`
}

// AttemptOutcome is the write applied to a delivery log row after one
// dispatch attempt.
type AttemptOutcome struct {
	AttemptCount       int
	Status             Status
	ResponseStatusCode *int
	ResponseBody       *string
	ErrorMessage       *string
	DurationMs         int64
	NextAttemptAt      *time.Time
}

// RetryJob pairs a due retrying log row with its (still active) subscription
type RetryJob struct {
	Log          DeliveryLog
	Subscription Subscription
}

// SubscriptionStore resolves subscription rows. Reads only.
type SubscriptionStore interface {
	// ActiveSubscriptions returns the active subscriptions for a store and
	// event type. An empty result is not an error.
	ActiveSubscriptions(ctx context.Context, storeID string, eventType EventType) ([]Subscription, error)
}

// DeliveryLogStore is the durable, append-mostly audit trail. There is no
// deletion API.
type DeliveryLogStore interface {
	// CreatePending inserts one pending row for a (event, subscriber) pair
	// and returns its id.
	CreatePending(ctx context.Context, webhookID string, eventType EventType, eventID string, payload []byte, maxAttempts int) (string, error)

	// UpdateAttempt mutates the row in place with the outcome of one attempt
	UpdateAttempt(ctx context.Context, logID string, outcome AttemptOutcome) error

	// DueRetries claims and returns up to limit retrying rows with
	// next_attempt_at <= now whose subscription is still active. Claiming
	// advances next_attempt_at by lease so a concurrent call cannot return
	// the same row; a claim left by a crashed pass expires with the lease.
	// Rows of deactivated subscriptions are skipped, not returned.
	DueRetries(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]RetryJob, error)

	// DeliveriesByEvent returns the log rows recorded for one event instance
	DeliveriesByEvent(ctx context.Context, eventID string) ([]DeliveryLog, error)
}

// CounterStore applies per-subscription aggregate counter updates. The
// implementation must use a single atomic storage-level increment; fan-out
// updates counters concurrently and read-modify-write would lose updates.
type CounterStore interface {
	// RecordOutcome increments trigger_count, one of success_count or
	// failure_count, and sets last_triggered_at on success. Called once per
	// delivery episode when it reaches a terminal state.
	RecordOutcome(ctx context.Context, webhookID string, succeeded bool) error
}

// Store is the full persistence surface the engine depends on
type Store interface {
	SubscriptionStore
	DeliveryLogStore
	CounterStore
}
