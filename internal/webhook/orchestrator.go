package webhook

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/payhuk02/payhula-sub024/internal/logging"
	"github.com/payhuk02/payhula-sub024/internal/metrics"
	"github.com/payhuk02/payhula-sub024/internal/tracing"
)

// SubscriberResult reports one subscriber's outcome at trigger time
type SubscriberResult struct {
	WebhookID     string     `json:"webhook_id"`
	DeliveryID    string     `json:"delivery_id,omitempty"`
	Status        Status     `json:"status"`
	StatusCode    int        `json:"status_code,omitempty"`
	Error         string     `json:"error,omitempty"`
	DurationMs    int64      `json:"duration_ms"`
	NextAttemptAt *time.Time `json:"next_attempt_at,omitempty"`
}

// TriggerResult aggregates a fan-out. Success means every subscriber's first
// attempt succeeded; a retrying subscriber is not terminal but still counts
// against overall success.
type TriggerResult struct {
	Success bool               `json:"success"`
	Results []SubscriberResult `json:"results"`
}

// Orchestrator drives the fan-out of one event to all matching active
// subscriptions, one concurrent dispatch per subscriber.
type Orchestrator struct {
	store       Store
	dispatcher  *Dispatcher
	policy      Policy
	logger      *logging.Logger
	deadLetters DeadLetterPublisher // optional
}

// NewOrchestrator wires the fan-out over its collaborators. deadLetters may
// be nil when DLQ publication is disabled.
func NewOrchestrator(store Store, dispatcher *Dispatcher, policy Policy, logger *logging.Logger, deadLetters DeadLetterPublisher) *Orchestrator {
	if logger == nil {
		logger = logging.New("webhook-orchestrator")
	}
	return &Orchestrator{
		store:       store,
		dispatcher:  dispatcher,
		policy:      policy,
		logger:      logger,
		deadLetters: deadLetters,
	}
}

// Trigger resolves the active subscriptions for (storeID, eventType) and
// delivers to each concurrently. No matching subscriptions is a no-op, not
// an error. One subscriber's failure never aborts the others.
func (o *Orchestrator) Trigger(ctx context.Context, storeID string, eventType EventType, data map[string]any, eventID string) (TriggerResult, error) {
	ctx, span := tracing.StartSpan(ctx, "webhook.trigger",
		attribute.String("store_id", storeID),
		attribute.String("event_type", string(eventType)),
		attribute.String("event_id", eventID),
	)
	defer span.End()

	subs, err := o.store.ActiveSubscriptions(ctx, storeID, eventType)
	if err != nil {
		tracing.SetSpanError(ctx, err)
		return TriggerResult{}, fmt.Errorf("resolve subscriptions: %w", err)
	}
	span.SetAttributes(attribute.Int("subscribers_count", len(subs)))
	metrics.RecordEventTriggered(string(eventType))

	if len(subs) == 0 {
		return TriggerResult{Success: true, Results: []SubscriberResult{}}, nil
	}

	// The envelope is identical for every subscriber; serialize it once so
	// all of them sign and send the same bytes.
	env, err := NewEnvelope(eventType, eventID, data)
	if err != nil {
		tracing.SetSpanError(ctx, err)
		return TriggerResult{}, err
	}

	results := make([]SubscriberResult, len(subs))
	var wg sync.WaitGroup
	for i, sub := range subs {
		wg.Add(1)
		go func(i int, sub Subscription) {
			defer wg.Done()
			results[i] = o.deliverFirst(ctx, sub, env)
		}(i, sub)
	}
	wg.Wait()

	overall := true
	for _, r := range results {
		if r.Status != StatusSuccess {
			overall = false
			break
		}
	}
	span.SetAttributes(attribute.Bool("overall_success", overall))
	return TriggerResult{Success: overall, Results: results}, nil
}

// deliverFirst runs attempt 1 of one subscriber's delivery episode
func (o *Orchestrator) deliverFirst(ctx context.Context, sub Subscription, env *Envelope) SubscriberResult {
	log := o.logger.WithContext(ctx).WithStore(sub.StoreID).WithWebhook(sub.ID).WithEvent(env.EventID)

	tracing.AddSpanEvent(ctx, "db.create_pending_delivery", attribute.String("webhook_id", sub.ID))
	deliveryID, err := o.store.CreatePending(ctx, sub.ID, EventType(env.Event), env.EventID, env.Bytes(), o.policy.EffectiveMaxAttempts(sub.MaxAttempts))
	if err != nil {
		log.WithError(err).Error("create pending delivery failed")
		tracing.SetSpanError(ctx, err)
		return SubscriberResult{WebhookID: sub.ID, Status: StatusPending, Error: err.Error()}
	}

	res := o.dispatcher.Send(ctx, sub, env, 1)
	dec, err := applyAttempt(ctx, o.store, o.policy, o.deadLetters, o.logger, sub, deliveryID, env.EventID, 1, res)
	if err != nil {
		log.WithDelivery(deliveryID).WithError(err).Error("record attempt outcome failed")
	}

	sr := SubscriberResult{
		WebhookID:     sub.ID,
		DeliveryID:    deliveryID,
		Status:        dec.Status,
		StatusCode:    res.StatusCode,
		DurationMs:    res.DurationMs(),
		NextAttemptAt: dec.NextAttemptAt,
	}
	if res.Err != nil {
		sr.Error = res.Err.Error()
	}
	return sr
}

// applyAttempt translates one dispatch result into the delivery log write,
// the retry decision, counters, metrics, and DLQ publication. Shared by the
// trigger path (attempt 1) and the sweeper (attempts 2..n).
func applyAttempt(ctx context.Context, store Store, policy Policy, deadLetters DeadLetterPublisher, logger *logging.Logger, sub Subscription, deliveryID, eventID string, attempt int, res DeliveryResult) (Decision, error) {
	maxAttempts := policy.EffectiveMaxAttempts(sub.MaxAttempts)

	var dec Decision
	var cfgErr *ConfigError
	if errors.As(res.Err, &cfgErr) {
		// Retrying cannot fix a configuration problem: terminal failure with
		// the attempt count left where it is.
		dec = Decision{Status: StatusFailed}
	} else {
		dec = policy.Decide(attempt, maxAttempts, res.Success)
	}

	outcome := AttemptOutcome{
		AttemptCount:  attempt,
		Status:        dec.Status,
		DurationMs:    res.DurationMs(),
		NextAttemptAt: dec.NextAttemptAt,
	}
	if res.StatusCode != 0 {
		code := res.StatusCode
		outcome.ResponseStatusCode = &code
		body := res.ResponseBody
		outcome.ResponseBody = &body
	}
	if res.Err != nil {
		msg := res.Err.Error()
		outcome.ErrorMessage = &msg
	}

	updateErr := store.UpdateAttempt(ctx, deliveryID, outcome)
	if updateErr != nil {
		tracing.SetSpanError(ctx, updateErr)
	}

	metrics.RecordDelivery(string(dec.Status), res.Duration)
	if dec.Status == StatusRetrying {
		metrics.RecordRetry(FailureReason(res.Err))
	}

	if dec.Status.Terminal() {
		if err := store.RecordOutcome(ctx, sub.ID, dec.Status == StatusSuccess); err != nil {
			logger.WithContext(ctx).WithWebhook(sub.ID).WithDelivery(deliveryID).WithError(err).Error("counter update failed")
			tracing.SetSpanError(ctx, err)
		}
	}

	if dec.Status == StatusFailed && deadLetters != nil {
		reason := fmt.Sprintf("delivery failed terminally at attempt %d/%d", attempt, maxAttempts)
		dl := NewDeadLetter(sub, deliveryID, eventID, attempt, res.StatusCode, errString(res.Err), reason)
		dl.TraceHeaders = tracing.PropagateTraceToNSQ(ctx)
		if err := deadLetters.PublishDeadLetter(dl); err != nil {
			logger.WithContext(ctx).WithWebhook(sub.ID).WithDelivery(deliveryID).WithError(err).Error("dlq publish failed")
			tracing.SetSpanError(ctx, err)
		} else {
			metrics.RecordDLQ()
		}
	}

	return dec, updateErr
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
