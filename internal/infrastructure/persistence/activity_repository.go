package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/salesdesk/backend/pkg/constants"
	"github.com/salesdesk/backend/pkg/models"
	"github.com/salesdesk/backend/pkg/query"
)

// ActivityRepository is the append-only audit log store. Entries are never
// updated or deleted through this repository.
type ActivityRepository struct {
	db *sql.DB
}

// NewActivityRepository creates a new ActivityRepository
func NewActivityRepository(db *sql.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

func (r *ActivityRepository) exec(tx *sql.Tx) executor {
	if tx != nil {
		return tx
	}
	return r.db
}

// Append writes one audit entry. Appending inside the mutation's
// transaction keeps per-row audit order identical to commit order.
func (r *ActivityRepository) Append(ctx context.Context, tx *sql.Tx, entry models.ActivityEntry) error {
	changesJSON, err := json.Marshal(entry.Changes)
	if err != nil {
		return fmt.Errorf("failed to marshal changes: %w", err)
	}

	q := query.Insert(constants.TableActivity, map[string]interface{}{
		"id":           entry.ID,
		"row_id":       entry.RowID,
		"actor_id":     entry.ActorID,
		"actor_name":   entry.ActorName,
		"action":       entry.Action,
		"changes":      string(changesJSON),
		"description":  entry.Description,
		"ip_address":   entry.IPAddress,
		"user_agent":   entry.UserAgent,
		"created_date": entry.CreatedDate,
	}).Build()

	if _, err := r.exec(tx).ExecContext(ctx, q.SQL, q.Params...); err != nil {
		return fmt.Errorf("append activity failed: %w", err)
	}
	return nil
}

// ListByRow returns the audit history of one row, newest first.
func (r *ActivityRepository) ListByRow(ctx context.Context, rowID string, limit int) ([]models.ActivityEntry, error) {
	sqlStr := fmt.Sprintf("SELECT `id`, `row_id`, `actor_id`, `actor_name`, `action`, `changes`, `description`, `ip_address`, `user_agent`, `created_date` FROM `%s` WHERE `row_id` = ? ORDER BY `created_date` DESC",
		constants.TableActivity)
	if limit > 0 {
		sqlStr += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := r.db.QueryContext(ctx, sqlStr, rowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ActivityEntry
	for rows.Next() {
		var entry models.ActivityEntry
		var changes string
		if err := rows.Scan(&entry.ID, &entry.RowID, &entry.ActorID, &entry.ActorName, &entry.Action, &changes, &entry.Description, &entry.IPAddress, &entry.UserAgent, &entry.CreatedDate); err != nil {
			return nil, err
		}
		if changes != "" {
			_ = json.Unmarshal([]byte(changes), &entry.Changes)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}
