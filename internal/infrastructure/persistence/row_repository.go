package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/salesdesk/backend/pkg/constants"
	"github.com/salesdesk/backend/pkg/models"
	"github.com/salesdesk/backend/pkg/query"
)

// RowRepository handles sales_rows persistence, including the atomic
// conditional updates the lock protocol depends on.
type RowRepository struct {
	db *sql.DB
}

// NewRowRepository creates a new RowRepository
func NewRowRepository(db *sql.DB) *RowRepository {
	return &RowRepository{db: db}
}

// executor abstracts *sql.DB and *sql.Tx
type executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func (r *RowRepository) exec(tx *sql.Tx) executor {
	if tx != nil {
		return tx
	}
	return r.db
}

// Insert persists a new row. The custom-field map is stored as a JSON
// document so the whole row writes atomically.
func (r *RowRepository) Insert(ctx context.Context, tx *sql.Tx, row models.Row) error {
	data := make(map[string]interface{}, len(row))
	for k, v := range row {
		data[k] = v
	}

	customJSON, err := json.Marshal(row.CustomFields())
	if err != nil {
		return fmt.Errorf("failed to marshal custom fields: %w", err)
	}
	data[constants.FieldCustomFields] = string(customJSON)

	q := query.Insert(constants.TableRows, data).Build()
	if _, err := r.exec(tx).ExecContext(ctx, q.SQL, q.Params...); err != nil {
		return fmt.Errorf("insert row failed: %w", err)
	}
	return nil
}

// FindByID loads one row. Soft-deleted rows are returned too; callers that
// only want active rows filter on is_deleted.
func (r *RowRepository) FindByID(ctx context.Context, tx *sql.Tx, id string) (models.Row, error) {
	q := query.From(constants.TableRows).
		Where(fmt.Sprintf("`%s` = ?", constants.FieldID), id).
		Build()

	rows, err := r.exec(tx).QueryContext(ctx, q.SQL, q.Params...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result, err := scanRows(rows)
	if err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, nil
	}
	return result[0], nil
}

// List returns active rows, newest first.
func (r *RowRepository) List(ctx context.Context, limit int) ([]models.Row, error) {
	b := query.From(constants.TableRows).
		ExcludeDeleted().
		OrderBy(constants.FieldCreatedDate, "DESC")
	if limit > 0 {
		b = b.Limit(limit)
	}
	q := b.Build()

	rows, err := r.db.QueryContext(ctx, q.SQL, q.Params...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRows(rows)
}

// UpdateFields applies a partial update to one row. Custom-field maps in
// updates are marshalled to JSON; everything else is written as-is.
func (r *RowRepository) UpdateFields(ctx context.Context, tx *sql.Tx, id string, updates map[string]interface{}) error {
	data := make(map[string]interface{}, len(updates))
	for k, v := range updates {
		if k == constants.FieldCustomFields {
			b, err := json.Marshal(v)
			if err != nil {
				return fmt.Errorf("failed to marshal custom fields: %w", err)
			}
			data[k] = string(b)
			continue
		}
		data[k] = v
	}

	q := query.Update(constants.TableRows).
		Set(data).
		Where(fmt.Sprintf("`%s` = ?", constants.FieldID), id).
		Build()

	if _, err := r.exec(tx).ExecContext(ctx, q.SQL, q.Params...); err != nil {
		return fmt.Errorf("update row failed: %w", err)
	}
	return nil
}

// SetDeleted flips the soft-delete flag.
func (r *RowRepository) SetDeleted(ctx context.Context, tx *sql.Tx, id string, deleted bool, actorID string, now time.Time) error {
	flag := 0
	if deleted {
		flag = 1
	}
	return r.UpdateFields(ctx, tx, id, map[string]interface{}{
		constants.FieldIsDeleted:      flag,
		constants.FieldLastModifiedBy: actorID,
		constants.FieldModifiedDate:   now,
	})
}

// HardDelete removes a row permanently.
func (r *RowRepository) HardDelete(ctx context.Context, tx *sql.Tx, id string) error {
	q := query.Delete(constants.TableRows).
		Where(fmt.Sprintf("`%s` = ?", constants.FieldID), id).
		Build()
	if _, err := r.exec(tx).ExecContext(ctx, q.SQL, q.Params...); err != nil {
		return fmt.Errorf("delete row failed: %w", err)
	}
	return nil
}

// Exists reports whether an active row with the given id exists.
func (r *RowRepository) Exists(ctx context.Context, tx *sql.Tx, id string) (bool, error) {
	sqlStr := fmt.Sprintf("SELECT EXISTS(SELECT 1 FROM `%s` WHERE `%s` = ? AND `%s` = 0)",
		constants.TableRows, constants.FieldID, constants.FieldIsDeleted)
	var exists bool
	err := r.exec(tx).QueryRowContext(ctx, sqlStr, id).Scan(&exists)
	return exists, err
}

// TryAcquireLock performs the single-statement compare-and-set the lock
// protocol requires: the lock fields are written only when the row is
// currently unlocked, holds an expired lock, or is already held by the
// requester. Returns true when the caller now holds the lock.
func (r *RowRepository) TryAcquireLock(ctx context.Context, id, holderID string, now time.Time, ttl time.Duration) (bool, error) {
	expiredBefore := now.Add(-ttl)

	sqlStr := fmt.Sprintf(
		"UPDATE `%s` SET `%s` = ?, `%s` = ? WHERE `%s` = ? AND `%s` = 0 AND (`%s` IS NULL OR `%s` = ? OR `%s` IS NULL OR `%s` < ?)",
		constants.TableRows,
		constants.FieldLockHolder, constants.FieldLockAcquiredAt,
		constants.FieldID, constants.FieldIsDeleted,
		constants.FieldLockHolder, constants.FieldLockHolder,
		constants.FieldLockAcquiredAt, constants.FieldLockAcquiredAt,
	)

	res, err := r.db.ExecContext(ctx, sqlStr, holderID, now, id, holderID, expiredBefore)
	if err != nil {
		return false, fmt.Errorf("lock acquire failed: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// ReleaseLock clears the lock fields only when holderID still holds the
// lock. Returns true when a lock was cleared.
func (r *RowRepository) ReleaseLock(ctx context.Context, id, holderID string) (bool, error) {
	sqlStr := fmt.Sprintf(
		"UPDATE `%s` SET `%s` = NULL, `%s` = NULL WHERE `%s` = ? AND `%s` = ?",
		constants.TableRows,
		constants.FieldLockHolder, constants.FieldLockAcquiredAt,
		constants.FieldID, constants.FieldLockHolder,
	)

	res, err := r.db.ExecContext(ctx, sqlStr, id, holderID)
	if err != nil {
		return false, fmt.Errorf("lock release failed: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// ClearExpiredLock clears the lock fields only while the observed expired
// holder is still recorded with a stamp older than the cutoff. A fresh lock
// acquired after the caller's state read no longer matches the condition
// and survives. Returns true when a lock was cleared.
func (r *RowRepository) ClearExpiredLock(ctx context.Context, id, holderID string, expiredBefore time.Time) (bool, error) {
	sqlStr := fmt.Sprintf(
		"UPDATE `%s` SET `%s` = NULL, `%s` = NULL WHERE `%s` = ? AND `%s` = ? AND `%s` < ?",
		constants.TableRows,
		constants.FieldLockHolder, constants.FieldLockAcquiredAt,
		constants.FieldID, constants.FieldLockHolder, constants.FieldLockAcquiredAt,
	)

	res, err := r.db.ExecContext(ctx, sqlStr, id, holderID, expiredBefore)
	if err != nil {
		return false, fmt.Errorf("lock clear failed: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// GetLockState reads the current lock fields of a row. The second return
// value reports whether the row exists at all.
func (r *RowRepository) GetLockState(ctx context.Context, id string) (models.LockState, bool, error) {
	sqlStr := fmt.Sprintf("SELECT `%s`, `%s` FROM `%s` WHERE `%s` = ?",
		constants.FieldLockHolder, constants.FieldLockAcquiredAt,
		constants.TableRows, constants.FieldID)

	var holder sql.NullString
	var acquiredAt sql.NullTime
	err := r.db.QueryRowContext(ctx, sqlStr, id).Scan(&holder, &acquiredAt)
	if err == sql.ErrNoRows {
		return models.LockState{}, false, nil
	}
	if err != nil {
		return models.LockState{}, false, err
	}

	state := models.LockState{}
	if holder.Valid {
		state.Holder = holder.String
	}
	if acquiredAt.Valid {
		state.AcquiredAt = acquiredAt.Time
	}
	return state, true, nil
}

// CountFieldValueUse counts active rows whose value for the given scope
// field matches any of the candidate strings. Fixed fields are physical
// columns; custom columns live inside the JSON document.
func (r *RowRepository) CountFieldValueUse(ctx context.Context, scope string, candidates []string) (int, error) {
	if len(candidates) == 0 {
		return 0, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(candidates)), ", ")
	params := make([]interface{}, 0, len(candidates))
	for _, c := range candidates {
		params = append(params, c)
	}

	var sqlStr string
	if constants.IsFixedField(scope) {
		sqlStr = fmt.Sprintf("SELECT COUNT(*) FROM `%s` WHERE `%s` = 0 AND `%s` IN (%s)",
			constants.TableRows, constants.FieldIsDeleted, scope, placeholders)
	} else {
		sqlStr = fmt.Sprintf("SELECT COUNT(*) FROM `%s` WHERE `%s` = 0 AND JSON_UNQUOTE(JSON_EXTRACT(`%s`, '$.\"%s\"')) IN (%s)",
			constants.TableRows, constants.FieldIsDeleted, constants.FieldCustomFields, scope, placeholders)
	}

	var count int
	err := r.db.QueryRowContext(ctx, sqlStr, params...).Scan(&count)
	return count, err
}

// scanRows converts a generic result set into Row maps. []byte values come
// back as strings; the custom_fields JSON document is unmarshalled into its
// map form.
func scanRows(rows *sql.Rows) ([]models.Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []models.Row
	for rows.Next() {
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		row := make(models.Row, len(cols))
		for i, col := range cols {
			val := values[i]
			if b, ok := val.([]byte); ok {
				val = string(b)
			}
			if col == constants.FieldCustomFields {
				custom := map[string]interface{}{}
				if s, ok := val.(string); ok && s != "" {
					_ = json.Unmarshal([]byte(s), &custom)
				}
				row[col] = custom
				continue
			}
			if col == constants.FieldIsDeleted {
				switch v := val.(type) {
				case int64:
					row[col] = v != 0
				case string:
					row[col] = v == "1"
				case bool:
					row[col] = v
				default:
					row[col] = false
				}
				continue
			}
			row[col] = val
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
