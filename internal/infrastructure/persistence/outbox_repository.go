package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/salesdesk/backend/pkg/constants"
	"github.com/salesdesk/backend/pkg/utils"
)

// Outbox status values
const (
	OutboxStatusPending   = "pending"
	OutboxStatusProcessed = "processed"
	OutboxStatusFailed    = "failed"
)

// OutboxEvent represents a persisted event record
type OutboxEvent struct {
	ID            string
	EventType     string
	Payload       string
	Status        string
	RetryCount    int
	ErrorMessage  string
	CreatedDate   time.Time
	ProcessedDate sql.NullTime
}

// OutboxRepository handles database operations for the outbox pattern.
// Events are enqueued inside the business transaction and relayed only
// after that transaction commits, which is what keeps fan-out strictly
// behind persistence.
type OutboxRepository struct {
	db *sql.DB
}

// NewOutboxRepository creates a new OutboxRepository
func NewOutboxRepository(db *sql.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

func (r *OutboxRepository) exec(tx *sql.Tx) executor {
	if tx != nil {
		return tx
	}
	return r.db
}

// Enqueue inserts a new event into the outbox
func (r *OutboxRepository) Enqueue(ctx context.Context, tx *sql.Tx, eventType string, payload interface{}) (string, error) {
	id := utils.GenerateID()

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal event payload: %w", err)
	}

	// NOW(6) keeps the full DATETIME(6) precision so the relay's
	// created_date ordering matches commit order within the same second.
	sqlStr := fmt.Sprintf(
		"INSERT INTO `%s` (`id`, `event_type`, `payload`, `status`, `retry_count`, `created_date`) VALUES (?, ?, ?, ?, 0, NOW(6))",
		constants.TableOutbox)

	if _, err := r.exec(tx).ExecContext(ctx, sqlStr, id, eventType, payloadJSON, OutboxStatusPending); err != nil {
		return "", fmt.Errorf("failed to enqueue event: %w", err)
	}

	return id, nil
}

// GetPendingEvents retrieves pending events ordered by creation time
func (r *OutboxRepository) GetPendingEvents(ctx context.Context, limit int) ([]OutboxEvent, error) {
	sqlStr := fmt.Sprintf(
		"SELECT `id`, `event_type`, `payload`, `retry_count` FROM `%s` WHERE `status` = ? ORDER BY `created_date` ASC LIMIT ?",
		constants.TableOutbox)

	rows, err := r.db.QueryContext(ctx, sqlStr, OutboxStatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending events: %w", err)
	}
	defer rows.Close()

	var events []OutboxEvent
	for rows.Next() {
		var e OutboxEvent
		if err := rows.Scan(&e.ID, &e.EventType, &e.Payload, &e.RetryCount); err != nil {
			// A malformed row stays pending and is retried next tick.
			log.Printf("⚠️ Failed to scan outbox event: %v", err)
			continue
		}
		events = append(events, e)
	}

	return events, rows.Err()
}

// MarkProcessed marks an event as successfully published
func (r *OutboxRepository) MarkProcessed(ctx context.Context, id string) error {
	sqlStr := fmt.Sprintf(
		"UPDATE `%s` SET `status` = ?, `processed_date` = NOW() WHERE `id` = ?",
		constants.TableOutbox)
	_, err := r.db.ExecContext(ctx, sqlStr, OutboxStatusProcessed, id)
	return err
}

// MarkFailed marks an event as permanently failed
func (r *OutboxRepository) MarkFailed(ctx context.Context, id string, errMessage string) error {
	sqlStr := fmt.Sprintf(
		"UPDATE `%s` SET `status` = ?, `error_message` = ? WHERE `id` = ?",
		constants.TableOutbox)
	_, err := r.db.ExecContext(ctx, sqlStr, OutboxStatusFailed, errMessage, id)
	return err
}

// IncrementRetry bumps the retry count after a transient publish failure
func (r *OutboxRepository) IncrementRetry(ctx context.Context, id string, newCount int, errMessage string) error {
	sqlStr := fmt.Sprintf(
		"UPDATE `%s` SET `retry_count` = ?, `error_message` = ? WHERE `id` = ?",
		constants.TableOutbox)
	_, err := r.db.ExecContext(ctx, sqlStr, newCount, errMessage, id)
	return err
}
