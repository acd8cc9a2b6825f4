package services

import (
	"context"
	"database/sql"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/salesdesk/backend/internal/domain/events"
	"github.com/salesdesk/backend/pkg/constants"
	apperrors "github.com/salesdesk/backend/pkg/errors"
	"github.com/salesdesk/backend/pkg/models"
	"github.com/salesdesk/backend/pkg/utils"
)

// rowStore is the row persistence contract.
type rowStore interface {
	Insert(ctx context.Context, tx *sql.Tx, row models.Row) error
	FindByID(ctx context.Context, tx *sql.Tx, id string) (models.Row, error)
	List(ctx context.Context, limit int) ([]models.Row, error)
	UpdateFields(ctx context.Context, tx *sql.Tx, id string, updates map[string]interface{}) error
	SetDeleted(ctx context.Context, tx *sql.Tx, id string, deleted bool, actorID string, now time.Time) error
	HardDelete(ctx context.Context, tx *sql.Tx, id string) error
}

// RowEventPayload is the fan-out payload for row create/update events.
type RowEventPayload struct {
	Row     models.Row           `json:"row"`
	Changes []models.FieldChange `json:"changes,omitempty"`
}

// RowDeletedPayload is the fan-out payload for row delete/restore events.
type RowDeletedPayload struct {
	RowID string `json:"row_id"`
}

// BulkRowsPayload is the fan-out payload for bulk update/delete events.
type BulkRowsPayload struct {
	RowIDs        []string               `json:"row_ids"`
	AppliedFields map[string]interface{} `json:"applied_fields,omitempty"`
}

// RowService owns row mutations: every write goes through one transaction
// that persists the change, appends the audit entry and enqueues the
// fan-out event, so subscribers never observe uncommitted state.
type RowService struct {
	rows     rowStore
	columns  columnStore
	activity activityAppender
	locks    *LockService
	tx       txRunner
	sink     eventSink
	now      func() time.Time
}

// NewRowService creates a new RowService
func NewRowService(rows rowStore, columns columnStore, activity activityAppender, locks *LockService, tx txRunner, sink eventSink) *RowService {
	return &RowService{
		rows:     rows,
		columns:  columns,
		activity: activity,
		locks:    locks,
		tx:       tx,
		sink:     sink,
		now:      time.Now,
	}
}

// GetRow loads one active row.
func (rs *RowService) GetRow(ctx context.Context, id string) (models.Row, error) {
	row, err := rs.rows.FindByID(ctx, nil, id)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to load row", err)
	}
	if row == nil || row.GetBool(constants.FieldIsDeleted) {
		return nil, apperrors.NewNotFoundError("row", id)
	}
	return row, nil
}

// ListRows returns active rows, newest first.
func (rs *RowService) ListRows(ctx context.Context, limit int) ([]models.Row, error) {
	rows, err := rs.rows.List(ctx, limit)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list rows", err)
	}
	return rows, nil
}

// CreateRow inserts a new row with the supplied fixed and custom fields
// and appends its "created" audit entry.
func (rs *RowService) CreateRow(ctx context.Context, data map[string]interface{}, actor *models.UserSession, meta models.RequestMeta) (models.Row, error) {
	return rs.createRow(ctx, data, actor, meta, true)
}

// IngestImportedRow inserts a row on behalf of the import pipeline. The
// row gets its "created" audit entry but no individual broadcast; the
// pipeline emits one rows-imported event for the whole batch.
func (rs *RowService) IngestImportedRow(ctx context.Context, data map[string]interface{}, actor *models.UserSession, meta models.RequestMeta) (models.Row, error) {
	return rs.createRow(ctx, data, actor, meta, false)
}

func (rs *RowService) createRow(ctx context.Context, data map[string]interface{}, actor *models.UserSession, meta models.RequestMeta, broadcast bool) (models.Row, error) {
	fixed, custom := rs.partitionFields(data)

	if name, _ := fixed[constants.FieldCompanyName].(string); strings.TrimSpace(name) == "" {
		return nil, apperrors.NewValidationError(constants.FieldCompanyName, "company name is required")
	}

	if err := rs.validateFixedFields(ctx, fixed); err != nil {
		return nil, err
	}
	if err := rs.validateCustomFields(ctx, custom); err != nil {
		return nil, err
	}

	now := rs.now()
	row := models.Row{
		constants.FieldID:             utils.GenerateID(),
		constants.FieldIsDeleted:      0,
		constants.FieldCreatedBy:      actor.ID,
		constants.FieldLastModifiedBy: actor.ID,
		constants.FieldCreatedDate:    now,
		constants.FieldModifiedDate:   now,
		constants.FieldCustomFields:   custom,
	}
	for k, v := range fixed {
		row[k] = v
	}

	err := rs.tx.WithTransaction(func(tx *sql.Tx) error {
		if err := rs.rows.Insert(ctx, tx, row); err != nil {
			return err
		}
		if err := rs.activity.Append(ctx, tx, models.ActivityEntry{
			ID:          utils.GenerateID(),
			RowID:       row.GetString(constants.FieldID),
			ActorID:     actor.ID,
			ActorName:   actor.Name,
			Action:      constants.ActionCreated,
			Description: "Row created",
			IPAddress:   meta.IPAddress,
			UserAgent:   meta.UserAgent,
			CreatedDate: now,
		}); err != nil {
			return err
		}
		if !broadcast {
			return nil
		}
		return rs.sink.Enqueue(ctx, tx, events.RowCreated, RowEventPayload{Row: row})
	})
	if err != nil {
		return nil, apperrors.NewInternalError("failed to create row", err)
	}

	log.Printf("✨ Created row %s (User: %s)", row.GetString(constants.FieldID), actor.ID)
	return row, nil
}

// UpdateRow applies a partial update to one row. Fields absent from data
// are left untouched. The computed change list drives both the audit entry
// and the fan-out payload.
func (rs *RowService) UpdateRow(ctx context.Context, id string, data map[string]interface{}, actor *models.UserSession, meta models.RequestMeta) (models.Row, []models.FieldChange, error) {
	old, err := rs.GetRow(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	if err := rs.checkEditLock(ctx, id, actor); err != nil {
		return nil, nil, err
	}

	fixed, custom := rs.partitionFields(data)

	if err := rs.validateFixedFields(ctx, fixed); err != nil {
		return nil, nil, err
	}
	if err := rs.validateCustomFields(ctx, custom); err != nil {
		return nil, nil, err
	}

	changes := TrackChanges(old, fixed)

	now := rs.now()
	updates := make(map[string]interface{}, len(fixed)+4)
	for k, v := range fixed {
		updates[k] = v
	}
	updates[constants.FieldLastModifiedBy] = actor.ID
	updates[constants.FieldModifiedDate] = now

	if len(custom) > 0 {
		merged := old.CustomFields()
		for k, v := range custom {
			if v == nil {
				delete(merged, k)
				continue
			}
			merged[k] = v
		}
		updates[constants.FieldCustomFields] = merged
	}

	updated := old.Clone()
	for k, v := range updates {
		updated[k] = v
	}

	err = rs.tx.WithTransaction(func(tx *sql.Tx) error {
		if err := rs.rows.UpdateFields(ctx, tx, id, updates); err != nil {
			return err
		}
		if err := rs.activity.Append(ctx, tx, models.ActivityEntry{
			ID:          utils.GenerateID(),
			RowID:       id,
			ActorID:     actor.ID,
			ActorName:   actor.Name,
			Action:      constants.ActionUpdated,
			Changes:     changes,
			Description: FormatChangeDescription(changes),
			IPAddress:   meta.IPAddress,
			UserAgent:   meta.UserAgent,
			CreatedDate: now,
		}); err != nil {
			return err
		}
		return rs.sink.Enqueue(ctx, tx, events.RowUpdated, RowEventPayload{Row: updated, Changes: changes})
	})
	if err != nil {
		return nil, nil, apperrors.NewInternalError("failed to update row", err)
	}

	return updated, changes, nil
}

// DeleteRow soft-deletes a row. The flag keeps the row out of reads until
// PurgeRow finalizes removal.
func (rs *RowService) DeleteRow(ctx context.Context, id string, actor *models.UserSession, meta models.RequestMeta) error {
	if _, err := rs.GetRow(ctx, id); err != nil {
		return err
	}

	if err := rs.checkEditLock(ctx, id, actor); err != nil {
		return err
	}

	now := rs.now()
	err := rs.tx.WithTransaction(func(tx *sql.Tx) error {
		if err := rs.rows.SetDeleted(ctx, tx, id, true, actor.ID, now); err != nil {
			return err
		}
		if err := rs.activity.Append(ctx, tx, models.ActivityEntry{
			ID:          utils.GenerateID(),
			RowID:       id,
			ActorID:     actor.ID,
			ActorName:   actor.Name,
			Action:      constants.ActionDeleted,
			Description: "Row deleted",
			IPAddress:   meta.IPAddress,
			UserAgent:   meta.UserAgent,
			CreatedDate: now,
		}); err != nil {
			return err
		}
		return rs.sink.Enqueue(ctx, tx, events.RowDeleted, RowDeletedPayload{RowID: id})
	})
	if err != nil {
		return apperrors.NewInternalError("failed to delete row", err)
	}
	return nil
}

// RestoreRow clears the soft-delete flag.
func (rs *RowService) RestoreRow(ctx context.Context, id string, actor *models.UserSession, meta models.RequestMeta) (models.Row, error) {
	row, err := rs.rows.FindByID(ctx, nil, id)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to load row", err)
	}
	if row == nil {
		return nil, apperrors.NewNotFoundError("row", id)
	}
	if !row.GetBool(constants.FieldIsDeleted) {
		return row, nil
	}

	now := rs.now()
	err = rs.tx.WithTransaction(func(tx *sql.Tx) error {
		if err := rs.rows.SetDeleted(ctx, tx, id, false, actor.ID, now); err != nil {
			return err
		}
		if err := rs.activity.Append(ctx, tx, models.ActivityEntry{
			ID:          utils.GenerateID(),
			RowID:       id,
			ActorID:     actor.ID,
			ActorName:   actor.Name,
			Action:      constants.ActionRestored,
			Description: "Row restored",
			IPAddress:   meta.IPAddress,
			UserAgent:   meta.UserAgent,
			CreatedDate: now,
		}); err != nil {
			return err
		}
		return rs.sink.Enqueue(ctx, tx, events.RowRestored, RowEventPayload{Row: row})
	})
	if err != nil {
		return nil, apperrors.NewInternalError("failed to restore row", err)
	}

	row[constants.FieldIsDeleted] = false
	return row, nil
}

// PurgeRow finalizes deletion: the row is removed permanently. Audit
// entries for the row remain; the log is append-only.
func (rs *RowService) PurgeRow(ctx context.Context, id string, actor *models.UserSession) error {
	if !actor.IsAdmin {
		return apperrors.NewAuthorizationError("purge", "row "+id)
	}

	row, err := rs.rows.FindByID(ctx, nil, id)
	if err != nil {
		return apperrors.NewInternalError("failed to load row", err)
	}
	if row == nil {
		return apperrors.NewNotFoundError("row", id)
	}

	if err := rs.rows.HardDelete(ctx, nil, id); err != nil {
		return apperrors.NewInternalError("failed to purge row", err)
	}

	return rs.sink.Enqueue(ctx, nil, events.RowDeleted, RowDeletedPayload{RowID: id})
}

// BulkUpdate applies the same field values to many rows. Each row is
// updated and audited independently (per-entity atomicity); one bulk event
// is broadcast at the end with the ids that were actually updated.
func (rs *RowService) BulkUpdate(ctx context.Context, ids []string, data map[string]interface{}, actor *models.UserSession, meta models.RequestMeta) ([]string, error) {
	applied := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, _, err := rs.UpdateRow(ctx, id, data, actor, meta); err != nil {
			log.Printf("⚠️ Bulk update skipped row %s: %v", id, err)
			continue
		}
		applied = append(applied, id)
	}

	if len(applied) > 0 {
		if err := rs.sink.Enqueue(ctx, nil, events.RowsBulkUpdated, BulkRowsPayload{RowIDs: applied, AppliedFields: data}); err != nil {
			log.Printf("⚠️ Failed to enqueue bulk update event: %v", err)
		}
	}
	return applied, nil
}

// BulkDelete soft-deletes many rows and broadcasts one bulk event.
func (rs *RowService) BulkDelete(ctx context.Context, ids []string, actor *models.UserSession, meta models.RequestMeta) ([]string, error) {
	deleted := make([]string, 0, len(ids))
	for _, id := range ids {
		if err := rs.DeleteRow(ctx, id, actor, meta); err != nil {
			log.Printf("⚠️ Bulk delete skipped row %s: %v", id, err)
			continue
		}
		deleted = append(deleted, id)
	}

	if len(deleted) > 0 {
		if err := rs.sink.Enqueue(ctx, nil, events.RowsBulkDeleted, BulkRowsPayload{RowIDs: deleted}); err != nil {
			log.Printf("⚠️ Failed to enqueue bulk delete event: %v", err)
		}
	}
	return deleted, nil
}

// checkEditLock rejects a mutation when another user holds a live lock on
// the row. Expired locks do not block.
func (rs *RowService) checkEditLock(ctx context.Context, id string, actor *models.UserSession) error {
	if rs.locks == nil {
		return nil
	}
	state, err := rs.locks.GetLockState(ctx, id)
	if err != nil {
		return err
	}
	if rs.locks.IsLocked(state) && state.Holder != actor.ID {
		return apperrors.NewLockConflictError(id, state.Holder, state.HolderName)
	}
	return nil
}

// partitionFields splits an inbound payload into fixed-field updates and
// custom-field updates. System fields are never writable through payloads.
func (rs *RowService) partitionFields(data map[string]interface{}) (map[string]interface{}, map[string]interface{}) {
	fixed := map[string]interface{}{}
	custom := map[string]interface{}{}

	trackable := map[string]bool{}
	for _, f := range constants.TrackableFields {
		trackable[f.Key] = true
	}

	for k, v := range data {
		if trackable[k] {
			fixed[k] = v
			continue
		}
		if constants.IsFixedField(k) {
			// System field, not writable via payload
			continue
		}
		custom[k] = v
	}
	return fixed, custom
}

// validateFixedFields checks date fields parse and numeric fields are
// numbers. Enumerated fixed fields tolerate unregistered values; the
// dropdown registry governs what pickers offer, not what history holds.
func (rs *RowService) validateFixedFields(ctx context.Context, fixed map[string]interface{}) error {
	for key, val := range fixed {
		if val == nil {
			continue
		}
		if constants.DateFields[key] {
			if s, ok := val.(string); ok && s != "" {
				if _, parsed := parseDateValue(s); !parsed {
					return apperrors.NewValidationError(key, "unparseable date value '"+s+"'")
				}
			}
		}
	}
	return nil
}

// validateCustomFields validates writes against the column registry where
// a kind is declared, and tolerates unknown keys for backward
// compatibility during schema evolution.
func (rs *RowService) validateCustomFields(ctx context.Context, custom map[string]interface{}) error {
	if len(custom) == 0 {
		return nil
	}

	cols, err := rs.columns.List(ctx)
	if err != nil {
		return apperrors.NewInternalError("failed to load column registry", err)
	}
	kinds := make(map[string]string, len(cols))
	for _, col := range cols {
		kinds[col.Key] = col.Kind
	}

	for key, val := range custom {
		kind, known := kinds[key]
		if !known || val == nil {
			continue
		}
		switch kind {
		case constants.ColumnKindNumber:
			switch v := val.(type) {
			case float64, int, int64:
				// ok
			case string:
				if _, err := strconv.ParseFloat(v, 64); err != nil {
					return apperrors.NewValidationError(key, "value must be numeric")
				}
			default:
				return apperrors.NewValidationError(key, "value must be numeric")
			}
		case constants.ColumnKindDate:
			if s, ok := val.(string); ok && s != "" {
				if _, parsed := parseDateValue(s); !parsed {
					return apperrors.NewValidationError(key, "unparseable date value '"+s+"'")
				}
			}
		}
	}
	return nil
}
