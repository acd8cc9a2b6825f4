package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/salesdesk/backend/internal/domain/events"
	"github.com/salesdesk/backend/internal/infrastructure/persistence"
)

// MaxRetryAttempts bounds redelivery of a failing outbox event before it
// is parked as failed.
const MaxRetryAttempts = 5

// dispatchBatchSize is how many pending events one relay tick drains.
const dispatchBatchSize = 100

// OutboxService implements the transactional outbox: mutations enqueue
// their event inside the business transaction, and the relay publishes
// only rows that are already committed. That is what guarantees no
// subscriber ever observes a broadcast ahead of its persistence commit.
type OutboxService struct {
	repo     *persistence.OutboxRepository
	eventBus *EventBus

	cron    *cron.Cron
	stopped sync.Once
}

// NewOutboxService creates a new OutboxService
func NewOutboxService(repo *persistence.OutboxRepository, eventBus *EventBus) *OutboxService {
	return &OutboxService{
		repo:     repo,
		eventBus: eventBus,
	}
}

// Enqueue stores an event in the outbox. With a transaction the event
// commits or rolls back together with the business mutation; with nil it
// is written immediately, which is only correct for mutations that are
// already committed (single-statement updates such as lock writes).
func (s *OutboxService) Enqueue(ctx context.Context, tx *sql.Tx, eventType events.EventType, payload interface{}) error {
	_, err := s.repo.Enqueue(ctx, tx, string(eventType), payload)
	return err
}

// Start launches the relay on a fixed schedule. The interval comes from
// OUTBOX_DISPATCH_EVERY (cron @every syntax), defaulting to one second.
func (s *OutboxService) Start() error {
	every := os.Getenv("OUTBOX_DISPATCH_EVERY")
	if every == "" {
		every = "1s"
	}

	s.cron = cron.New(cron.WithSeconds())
	if _, err := s.cron.AddFunc("@every "+every, func() {
		if err := s.DispatchPending(context.Background()); err != nil {
			log.Printf("⚠️ Outbox dispatch error: %v", err)
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule outbox relay: %w", err)
	}

	s.cron.Start()
	log.Printf("📣 Outbox relay started (every %s)", every)
	return nil
}

// Stop halts the relay and waits for an in-flight tick to finish.
func (s *OutboxService) Stop() {
	s.stopped.Do(func() {
		if s.cron != nil {
			<-s.cron.Stop().Done()
		}
	})
}

// DispatchPending publishes pending outbox events in commit order. Events
// that keep failing are retried up to MaxRetryAttempts and then parked.
func (s *OutboxService) DispatchPending(ctx context.Context) error {
	pending, err := s.repo.GetPendingEvents(ctx, dispatchBatchSize)
	if err != nil {
		return err
	}

	for _, event := range pending {
		var payload interface{}
		if err := json.Unmarshal([]byte(event.Payload), &payload); err != nil {
			if markErr := s.repo.MarkFailed(ctx, event.ID, "unmarshal: "+err.Error()); markErr != nil {
				log.Printf("⚠️ Failed to park outbox event %s: %v", event.ID, markErr)
			}
			continue
		}

		if err := s.eventBus.Publish(ctx, events.EventType(event.EventType), payload); err != nil {
			if event.RetryCount+1 >= MaxRetryAttempts {
				if markErr := s.repo.MarkFailed(ctx, event.ID, err.Error()); markErr != nil {
					log.Printf("⚠️ Failed to park outbox event %s: %v", event.ID, markErr)
				}
			} else if retryErr := s.repo.IncrementRetry(ctx, event.ID, event.RetryCount+1, err.Error()); retryErr != nil {
				log.Printf("⚠️ Failed to bump retry for outbox event %s: %v", event.ID, retryErr)
			}
			continue
		}

		if err := s.repo.MarkProcessed(ctx, event.ID); err != nil {
			log.Printf("⚠️ Failed to mark outbox event %s processed: %v", event.ID, err)
		}
	}

	return nil
}
