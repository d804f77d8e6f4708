package webhook

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// fakeStore is an in-memory Store for engine tests. Operations take the lock
// because the fan-out writes rows and counters concurrently.
type fakeStore struct {
	mu       sync.Mutex
	subs     []Subscription
	logs     map[string]*DeliveryLog
	counters map[string]*fakeCounters
	nextID   int

	createErr  error
	updateErr  error
	resolveErr error
}

type fakeCounters struct {
	triggers        int64
	successes       int64
	failures        int64
	lastTriggeredAt *time.Time
}

func newFakeStore(subs ...Subscription) *fakeStore {
	return &fakeStore{
		subs:     subs,
		logs:     map[string]*DeliveryLog{},
		counters: map[string]*fakeCounters{},
	}
}

func (s *fakeStore) ActiveSubscriptions(ctx context.Context, storeID string, eventType EventType) ([]Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resolveErr != nil {
		return nil, s.resolveErr
	}
	var out []Subscription
	for _, sub := range s.subs {
		if sub.StoreID == storeID && sub.EventType == eventType && sub.IsActive {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (s *fakeStore) CreatePending(ctx context.Context, webhookID string, eventType EventType, eventID string, payload []byte, maxAttempts int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return "", s.createErr
	}
	s.nextID++
	id := fmt.Sprintf("dl-%d", s.nextID)
	s.logs[id] = &DeliveryLog{
		ID:           id,
		WebhookID:    webhookID,
		EventType:    string(eventType),
		EventID:      eventID,
		Payload:      append([]byte(nil), payload...),
		AttemptCount: 1,
		MaxAttempts:  maxAttempts,
		Status:       StatusPending,
		CreatedAt:    time.Now(),
	}
	return id, nil
}

func (s *fakeStore) UpdateAttempt(ctx context.Context, logID string, outcome AttemptOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	row, ok := s.logs[logID]
	if !ok {
		return fmt.Errorf("no delivery log %s", logID)
	}
	if row.Status == StatusSuccess {
		return fmt.Errorf("delivery log %s already terminal", logID)
	}
	if outcome.AttemptCount > row.AttemptCount {
		row.AttemptCount = outcome.AttemptCount
	}
	row.Status = outcome.Status
	row.ResponseStatusCode = outcome.ResponseStatusCode
	row.ResponseBody = outcome.ResponseBody
	row.ErrorMessage = outcome.ErrorMessage
	row.DurationMs = outcome.DurationMs
	row.NextAttemptAt = outcome.NextAttemptAt
	return nil
}

func (s *fakeStore) DueRetries(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]RetryJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var jobs []RetryJob
	for _, row := range s.logs {
		if row.Status != StatusRetrying || row.NextAttemptAt == nil || row.NextAttemptAt.After(now) {
			continue
		}
		sub, ok := s.subscriptionByID(row.WebhookID)
		if !ok || !sub.IsActive {
			continue
		}
		// Claim under the same lock that found the row, so a racing call
		// sees the advanced due time and skips it.
		claimed := now.Add(lease)
		row.NextAttemptAt = &claimed
		jobs = append(jobs, RetryJob{Log: *row, Subscription: sub})
		if len(jobs) >= limit {
			break
		}
	}
	return jobs, nil
}

func (s *fakeStore) DeliveriesByEvent(ctx context.Context, eventID string) ([]DeliveryLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []DeliveryLog
	for _, row := range s.logs {
		if row.EventID == eventID {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (s *fakeStore) RecordOutcome(ctx context.Context, webhookID string, succeeded bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.counters[webhookID]
	if !ok {
		c = &fakeCounters{}
		s.counters[webhookID] = c
	}
	c.triggers++
	if succeeded {
		c.successes++
		now := time.Now()
		c.lastTriggeredAt = &now
	} else {
		c.failures++
	}
	return nil
}

func (s *fakeStore) subscriptionByID(id string) (Subscription, bool) {
	for _, sub := range s.subs {
		if sub.ID == id {
			return sub, true
		}
	}
	return Subscription{}, false
}

func (s *fakeStore) log(t interface{ Fatalf(string, ...any) }, id string) DeliveryLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.logs[id]
	if !ok {
		t.Fatalf("no delivery log %s", id)
	}
	return *row
}

func (s *fakeStore) countersFor(id string) fakeCounters {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.counters[id]
	if !ok {
		return fakeCounters{}
	}
	return *c
}

// fakeDeadLetters records published dead letters in memory
type fakeDeadLetters struct {
	mu      sync.Mutex
	letters []DeadLetter
}

func (p *fakeDeadLetters) PublishDeadLetter(dl DeadLetter) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.letters = append(p.letters, dl)
	return nil
}

func (p *fakeDeadLetters) published() []DeadLetter {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]DeadLetter(nil), p.letters...)
}
