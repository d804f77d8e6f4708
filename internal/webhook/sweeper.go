package webhook

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/payhuk02/payhula-sub024/internal/logging"
	"github.com/payhuk02/payhula-sub024/internal/metrics"
	"github.com/payhuk02/payhula-sub024/internal/tracing"
)

// retryClaimLease is how long a claimed due row stays invisible to other
// sweep passes. It must exceed the per-attempt HTTP timeout; the attempt's
// outcome write replaces it, and a claim left by a crashed pass comes due
// again once the lease runs out.
const retryClaimLease = time.Minute

// Sweeper is the recurring collaborator that re-invokes the dispatcher for
// retrying delivery rows whose due time has passed. Deactivated
// subscriptions are filtered out at sweep time by the store query.
type Sweeper struct {
	store       Store
	dispatcher  *Dispatcher
	policy      Policy
	logger      *logging.Logger
	deadLetters DeadLetterPublisher // optional
	interval    time.Duration
	batchSize   int
}

// NewSweeper builds a sweeper polling every interval for up to batchSize
// due rows per pass.
func NewSweeper(store Store, dispatcher *Dispatcher, policy Policy, logger *logging.Logger, deadLetters DeadLetterPublisher, interval time.Duration, batchSize int) *Sweeper {
	if logger == nil {
		logger = logging.New("webhook-sweeper")
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Sweeper{
		store:       store,
		dispatcher:  dispatcher,
		policy:      policy,
		logger:      logger,
		deadLetters: deadLetters,
		interval:    interval,
		batchSize:   batchSize,
	}
}

// Run polls until the context is cancelled. Passes execute sequentially, so
// a delivery row is never redispatched while its previous attempt is still
// being recorded.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Plain().WithField("interval", s.interval.String()).Info("retry sweeper started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Plain().Info("retry sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.logger.WithContext(ctx).WithError(err).Error("sweep pass failed")
			}
		}
	}
}

// SweepOnce claims the currently due retries and redispatches each with an
// incremented attempt count. The claim inside DueRetries is what keeps a
// second pass, in this process or another replica, from dispatching the
// same row. Returns the number of rows processed.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "webhook.sweep")
	defer span.End()

	jobs, err := s.store.DueRetries(ctx, time.Now(), retryClaimLease, s.batchSize)
	if err != nil {
		tracing.SetSpanError(ctx, err)
		return 0, err
	}
	span.SetAttributes(attribute.Int("due_rows", len(jobs)))
	metrics.RecordSweep(len(jobs))

	if len(jobs) == 0 {
		return 0, nil
	}

	var wg sync.WaitGroup
	for _, job := range jobs {
		wg.Add(1)
		go func(job RetryJob) {
			defer wg.Done()
			s.redeliver(ctx, job)
		}(job)
	}
	wg.Wait()
	return len(jobs), nil
}

// redeliver runs the next attempt of one due delivery episode
func (s *Sweeper) redeliver(ctx context.Context, job RetryJob) {
	attempt := job.Log.AttemptCount + 1
	log := s.logger.WithContext(ctx).
		WithWebhook(job.Subscription.ID).
		WithDelivery(job.Log.ID).
		WithEvent(job.Log.EventID).
		WithField("attempt", attempt)

	// Resend the stored bytes verbatim so the signature matches what the
	// first attempt transmitted.
	env, err := EnvelopeFromBytes(job.Log.Payload)
	if err != nil {
		log.WithError(err).Error("stored payload is unreadable")
		msg := err.Error()
		_ = s.store.UpdateAttempt(ctx, job.Log.ID, AttemptOutcome{
			AttemptCount: job.Log.AttemptCount,
			Status:       StatusFailed,
			ErrorMessage: &msg,
		})
		return
	}

	res := s.dispatcher.Send(ctx, job.Subscription, env, attempt)
	dec, err := applyAttempt(ctx, s.store, s.policy, s.deadLetters, s.logger, job.Subscription, job.Log.ID, job.Log.EventID, attempt, res)
	if err != nil {
		log.WithError(err).Error("record retry outcome failed")
		return
	}
	log.WithField("status", string(dec.Status)).Info("retry attempt recorded")
}
