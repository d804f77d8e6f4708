package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/payhuk02/payhula-sub024/internal/webhook"
)

// Store is the pgx-backed implementation of the engine's persistence
// contracts: subscription lookup, the delivery audit log, and the atomic
// per-subscription counters.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps a connection pool as a webhook.Store
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const subscriptionColumns = `
	id, store_id, event_type, target_url, secret_key, is_active, max_attempts,
	trigger_count, success_count, failure_count, last_triggered_at, created_at`

// ActiveSubscriptions returns the active subscriptions for a store and event type
func (s *Store) ActiveSubscriptions(ctx context.Context, storeID string, eventType webhook.EventType) ([]webhook.Subscription, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT`+subscriptionColumns+`
		FROM webhook_subscriptions
		WHERE store_id = $1 AND event_type = $2 AND is_active = true`,
		storeID, string(eventType),
	)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []webhook.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// CreatePending inserts the single log row for one (event, subscriber) pair
func (s *Store) CreatePending(ctx context.Context, webhookID string, eventType webhook.EventType, eventID string, payload []byte, maxAttempts int) (string, error) {
	var id string
	err := s.pool.QueryRow(ctx, `
		INSERT INTO webhook_delivery_logs(webhook_id, event_type, event_id, payload, status, attempt_count, max_attempts)
		VALUES ($1, $2, $3, $4, 'pending', 1, $5)
		RETURNING id`,
		webhookID, string(eventType), eventID, string(payload), maxAttempts,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("insert delivery log: %w", err)
	}
	return id, nil
}

// UpdateAttempt mutates the log row in place with one attempt's outcome.
// A row that reached success is terminal and is never written again; the
// attempt count never moves backwards.
func (s *Store) UpdateAttempt(ctx context.Context, logID string, outcome webhook.AttemptOutcome) error {
	ct, err := s.pool.Exec(ctx, `
		UPDATE webhook_delivery_logs
		SET status = $2,
		    attempt_count = GREATEST(attempt_count, $3),
		    response_status_code = $4,
		    response_body = $5,
		    error_message = $6,
		    duration_ms = $7,
		    next_attempt_at = $8
		WHERE id = $1 AND status <> 'success'`,
		logID,
		string(outcome.Status),
		outcome.AttemptCount,
		outcome.ResponseStatusCode,
		outcome.ResponseBody,
		outcome.ErrorMessage,
		outcome.DurationMs,
		outcome.NextAttemptAt,
	)
	if err != nil {
		return fmt.Errorf("update delivery log: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("delivery log %s not found or already terminal", logID)
	}
	return nil
}

// DueRetries claims due retrying rows and returns them joined with their
// subscriptions. The claim pushes next_attempt_at past the lease, so two
// concurrent sweeps (or two engine replicas) never dispatch the same row;
// SKIP LOCKED keeps racing claimers from blocking on each other. The
// attempt's own outcome write replaces the lease time, and a lease left by
// a crashed process simply comes due again. Deactivated subscriptions are
// excluded here, which is what makes the sweeper skip them without any
// trigger-time caching.
func (s *Store) DueRetries(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]webhook.RetryJob, error) {
	rows, err := s.pool.Query(ctx, `
		WITH due AS (
			SELECT d.id
			FROM webhook_delivery_logs d
			JOIN webhook_subscriptions s ON s.id = d.webhook_id
			WHERE d.status = 'retrying' AND d.next_attempt_at <= $1 AND s.is_active = true
			ORDER BY d.next_attempt_at ASC
			LIMIT $3
			FOR UPDATE OF d SKIP LOCKED
		)
		UPDATE webhook_delivery_logs d
		SET next_attempt_at = $2
		FROM due, webhook_subscriptions s
		WHERE d.id = due.id AND s.id = d.webhook_id
		RETURNING d.id, d.webhook_id, d.event_type, d.event_id, d.payload,
		          d.response_status_code, d.response_body, d.error_message,
		          d.duration_ms, d.attempt_count, d.max_attempts, d.next_attempt_at,
		          d.status, d.created_at,
		          s.id, s.store_id, s.event_type, s.target_url, s.secret_key,
		          s.is_active, s.max_attempts, s.trigger_count, s.success_count,
		          s.failure_count, s.last_triggered_at, s.created_at`,
		now, now.Add(lease), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query due retries: %w", err)
	}
	defer rows.Close()

	var jobs []webhook.RetryJob
	for rows.Next() {
		var (
			log       webhook.DeliveryLog
			sub       webhook.Subscription
			logType   string
			subType   string
			payload   string
			secretKey string
			logStatus string
		)
		if err := rows.Scan(
			&log.ID, &log.WebhookID, &logType, &log.EventID, &payload,
			&log.ResponseStatusCode, &log.ResponseBody, &log.ErrorMessage,
			&log.DurationMs, &log.AttemptCount, &log.MaxAttempts, &log.NextAttemptAt,
			&logStatus, &log.CreatedAt,
			&sub.ID, &sub.StoreID, &subType, &sub.TargetURL, &secretKey,
			&sub.IsActive, &sub.MaxAttempts, &sub.TriggerCount, &sub.SuccessCount,
			&sub.FailureCount, &sub.LastTriggeredAt, &sub.CreatedAt,
		); err != nil {
			return nil, err
		}
		log.EventType = logType
		log.Payload = []byte(payload)
		log.Status = webhook.Status(logStatus)
		sub.EventType = webhook.EventType(subType)
		sub.SecretKey = []byte(secretKey)
		jobs = append(jobs, webhook.RetryJob{Log: log, Subscription: sub})
	}
	return jobs, rows.Err()
}

// DeliveriesByEvent returns the audit trail rows for one event instance
func (s *Store) DeliveriesByEvent(ctx context.Context, eventID string) ([]webhook.DeliveryLog, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, webhook_id, event_type, event_id, payload,
		       response_status_code, response_body, error_message,
		       duration_ms, attempt_count, max_attempts, next_attempt_at,
		       status, created_at
		FROM webhook_delivery_logs
		WHERE event_id = $1
		ORDER BY created_at ASC`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("query deliveries: %w", err)
	}
	defer rows.Close()

	var logs []webhook.DeliveryLog
	for rows.Next() {
		var (
			log       webhook.DeliveryLog
			logType   string
			payload   string
			logStatus string
		)
		if err := rows.Scan(
			&log.ID, &log.WebhookID, &logType, &log.EventID, &payload,
			&log.ResponseStatusCode, &log.ResponseBody, &log.ErrorMessage,
			&log.DurationMs, &log.AttemptCount, &log.MaxAttempts, &log.NextAttemptAt,
			&logStatus, &log.CreatedAt,
		); err != nil {
			return nil, err
		}
		log.EventType = logType
		log.Payload = []byte(payload)
		log.Status = webhook.Status(logStatus)
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

// RecordOutcome applies the episode's terminal outcome to the subscription
// counters in a single arithmetic UPDATE. Fan-out updates these rows
// concurrently; read-then-write here would lose increments.
func (s *Store) RecordOutcome(ctx context.Context, webhookID string, succeeded bool) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE webhook_subscriptions
		SET trigger_count = trigger_count + 1,
		    success_count = success_count + CASE WHEN $2 THEN 1 ELSE 0 END,
		    failure_count = failure_count + CASE WHEN $2 THEN 0 ELSE 1 END,
		    last_triggered_at = CASE WHEN $2 THEN now() ELSE last_triggered_at END
		WHERE id = $1`,
		webhookID, succeeded,
	)
	if err != nil {
		return fmt.Errorf("update counters: %w", err)
	}
	return nil
}

// rowScanner captures the Scan method shared by pgx.Row and pgx.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row rowScanner) (webhook.Subscription, error) {
	var (
		sub       webhook.Subscription
		eventType string
		secretKey string
	)
	if err := row.Scan(
		&sub.ID, &sub.StoreID, &eventType, &sub.TargetURL, &secretKey,
		&sub.IsActive, &sub.MaxAttempts, &sub.TriggerCount, &sub.SuccessCount,
		&sub.FailureCount, &sub.LastTriggeredAt, &sub.CreatedAt,
	); err != nil {
		return webhook.Subscription{}, err
	}
	sub.EventType = webhook.EventType(eventType)
	sub.SecretKey = []byte(secretKey)
	return sub, nil
}

// SubscriptionsByStore lists every subscription a store owns, active or not
func (s *Store) SubscriptionsByStore(ctx context.Context, storeID string) ([]webhook.Subscription, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT`+subscriptionColumns+`
		FROM webhook_subscriptions
		WHERE store_id = $1
		ORDER BY created_at ASC`,
		storeID,
	)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []webhook.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}
