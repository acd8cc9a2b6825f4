package services

import (
	"context"
	"database/sql"
	"log"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/salesdesk/backend/internal/domain/events"
	"github.com/salesdesk/backend/pkg/constants"
	apperrors "github.com/salesdesk/backend/pkg/errors"
	"github.com/salesdesk/backend/pkg/models"
	"github.com/salesdesk/backend/pkg/utils"
)

// columnStore is the column definition storage contract.
type columnStore interface {
	Insert(ctx context.Context, tx *sql.Tx, col models.ColumnDefinition) error
	Update(ctx context.Context, tx *sql.Tx, col models.ColumnDefinition) error
	Delete(ctx context.Context, tx *sql.Tx, id string) error
	List(ctx context.Context) ([]models.ColumnDefinition, error)
	FindByID(ctx context.Context, id string) (*models.ColumnDefinition, error)
	MaxDisplayOrder(ctx context.Context) (int, error)
}

// optionStore is the dropdown option storage contract.
type optionStore interface {
	Insert(ctx context.Context, tx *sql.Tx, opt models.DropdownOption) error
	Update(ctx context.Context, tx *sql.Tx, opt models.DropdownOption) error
	Delete(ctx context.Context, tx *sql.Tx, id string) error
	DeleteByScope(ctx context.Context, tx *sql.Tx, scope string) error
	ListByScope(ctx context.Context, scope string) ([]models.DropdownOption, error)
	FindByID(ctx context.Context, id string) (*models.DropdownOption, error)
	MaxDisplayOrder(ctx context.Context, scope string) (int, error)
}

// usageScanner reports how many active rows reference any of the candidate
// values in a scope's field. Backs the option deletion guard.
type usageScanner interface {
	CountFieldValueUse(ctx context.Context, scope string, candidates []string) (int, error)
}

// txRunner runs a function inside one database transaction.
type txRunner interface {
	WithTransaction(fn func(tx *sql.Tx) error) error
}

// ColumnEventPayload is the fan-out payload for column events.
type ColumnEventPayload struct {
	Column *models.ColumnDefinition `json:"column,omitempty"`
	ID     string                   `json:"id,omitempty"`
	Key    string                   `json:"key,omitempty"`
}

// DropdownEventPayload is the fan-out payload for dropdown option events.
type DropdownEventPayload struct {
	Scope     string                 `json:"scope"`
	Option    *models.DropdownOption `json:"option,omitempty"`
	DeletedID string                 `json:"deleted_id,omitempty"`
}

// SchemaService evolves and protects the dynamic parts of the schema:
// custom column definitions and per-scope dropdown option sets.
type SchemaService struct {
	columns columnStore
	options optionStore
	rows    usageScanner
	tx      txRunner
	sink    eventSink
	nowFn   func() time.Time
}

// NewSchemaService creates a new SchemaService
func NewSchemaService(columns columnStore, options optionStore, rows usageScanner, tx txRunner, sink eventSink) *SchemaService {
	return &SchemaService{
		columns: columns,
		options: options,
		rows:    rows,
		tx:      tx,
		sink:    sink,
		nowFn:   time.Now,
	}
}

var keyStripPattern = regexp.MustCompile(`[^a-z0-9_]`)
var whitespacePattern = regexp.MustCompile(`\s+`)

// DeriveKey turns a human column name into a machine key: lowercase,
// whitespace runs collapse to a single underscore, everything outside
// [a-z0-9_] is stripped. The result may be empty; callers decide whether
// an empty or colliding key is an error or a silent skip.
func DeriveKey(humanName string) string {
	key := strings.ToLower(strings.TrimSpace(humanName))
	key = whitespacePattern.ReplaceAllString(key, "_")
	return keyStripPattern.ReplaceAllString(key, "")
}

// CreateColumn registers a new custom column. In bulk context an empty or
// colliding key skips the request silently (nil, nil); in manual context
// it is a validation or conflict error.
func (ss *SchemaService) CreateColumn(ctx context.Context, name, kind string, actor *models.UserSession, bulk bool) (*models.ColumnDefinition, error) {
	key := DeriveKey(name)

	if key == "" {
		if bulk {
			return nil, nil
		}
		return nil, apperrors.NewValidationError("name", "column name produces an empty key")
	}

	if !constants.IsValidColumnKind(kind) {
		if bulk {
			return nil, nil
		}
		return nil, apperrors.NewValidationError("kind", "unknown column kind '"+kind+"'")
	}

	if constants.IsFixedField(key) {
		if bulk {
			return nil, nil
		}
		return nil, apperrors.NewConflictMessage("column", "key '"+key+"' collides with a fixed field")
	}

	existing, err := ss.columns.List(ctx)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list columns", err)
	}
	for _, col := range existing {
		if col.Key == key {
			if bulk {
				return nil, nil
			}
			return nil, apperrors.NewConflictError("column", "key", key)
		}
	}

	maxOrder, err := ss.columns.MaxDisplayOrder(ctx)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to compute display order", err)
	}

	col := models.ColumnDefinition{
		ID:           utils.GenerateID(),
		Key:          key,
		Name:         strings.TrimSpace(name),
		Kind:         kind,
		DisplayOrder: maxOrder + 1,
		Visible:      true,
		CreatedBy:    actor.ID,
		CreatedDate:  ss.nowFn(),
	}

	if err := ss.columns.Insert(ctx, nil, col); err != nil {
		return nil, apperrors.NewInternalError("failed to create column", err)
	}

	ss.emit(ctx, events.ColumnCreated, ColumnEventPayload{Column: &col})
	return &col, nil
}

// UpdateColumn changes a column's display name, kind or visibility in place.
func (ss *SchemaService) UpdateColumn(ctx context.Context, id, name, kind string, visible bool) (*models.ColumnDefinition, error) {
	col, err := ss.columns.FindByID(ctx, id)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to load column", err)
	}
	if col == nil {
		return nil, apperrors.NewNotFoundError("column", id)
	}

	if name != "" {
		col.Name = strings.TrimSpace(name)
	}
	if kind != "" {
		if !constants.IsValidColumnKind(kind) {
			return nil, apperrors.NewValidationError("kind", "unknown column kind '"+kind+"'")
		}
		col.Kind = kind
	}
	col.Visible = visible

	if err := ss.columns.Update(ctx, nil, *col); err != nil {
		return nil, apperrors.NewInternalError("failed to update column", err)
	}

	ss.emit(ctx, events.ColumnUpdated, ColumnEventPayload{Column: col})
	return col, nil
}

// DeleteColumn removes a column definition together with its dropdown
// options. Row documents keep any values stored under the key; unknown
// keys are tolerated for backward compatibility.
func (ss *SchemaService) DeleteColumn(ctx context.Context, id string) error {
	col, err := ss.columns.FindByID(ctx, id)
	if err != nil {
		return apperrors.NewInternalError("failed to load column", err)
	}
	if col == nil {
		return apperrors.NewNotFoundError("column", id)
	}

	err = ss.tx.WithTransaction(func(tx *sql.Tx) error {
		if err := ss.options.DeleteByScope(ctx, tx, col.Key); err != nil {
			return err
		}
		if err := ss.columns.Delete(ctx, tx, id); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return apperrors.NewInternalError("failed to delete column", err)
	}

	ss.emit(ctx, events.ColumnDeleted, ColumnEventPayload{ID: col.ID, Key: col.Key})
	return nil
}

// ListColumns returns all column definitions in display order.
func (ss *SchemaService) ListColumns(ctx context.Context) ([]models.ColumnDefinition, error) {
	cols, err := ss.columns.List(ctx)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list columns", err)
	}
	return cols, nil
}

// IsNewDropdownValue reports whether candidate collides with neither the
// raw value nor the label of any active option in scope. Comparison is
// exact and case-sensitive.
func (ss *SchemaService) IsNewDropdownValue(ctx context.Context, scope, candidate string) (bool, error) {
	existing, err := ss.options.ListByScope(ctx, scope)
	if err != nil {
		return false, apperrors.NewInternalError("failed to list options", err)
	}

	for _, opt := range existing {
		if opt.Value == candidate || opt.Label == candidate {
			return false, nil
		}
	}
	return true, nil
}

// NextOptionDisplayOrder returns one more than the current maximum display
// order in scope, or 0 when the scope has no options.
func (ss *SchemaService) NextOptionDisplayOrder(ctx context.Context, scope string) (int, error) {
	max, err := ss.options.MaxDisplayOrder(ctx, scope)
	if err != nil {
		return 0, apperrors.NewInternalError("failed to compute display order", err)
	}
	return max + 1, nil
}

// CreateOption adds a new dropdown option to a scope. In bulk context a
// colliding value skips silently; in manual context it is a conflict.
func (ss *SchemaService) CreateOption(ctx context.Context, scope, value, label string, actor *models.UserSession, bulk bool) (*models.DropdownOption, error) {
	value = strings.TrimSpace(value)
	if label == "" {
		label = value
	}

	if value == "" {
		if bulk {
			return nil, nil
		}
		return nil, apperrors.NewValidationError("value", "option value must not be empty")
	}

	if !ss.scopeExists(ctx, scope) {
		return nil, apperrors.NewNotFoundError("dropdown scope", scope)
	}

	isNew, err := ss.IsNewDropdownValue(ctx, scope, value)
	if err != nil {
		return nil, err
	}
	if isNew && label != value {
		isNew, err = ss.IsNewDropdownValue(ctx, scope, label)
		if err != nil {
			return nil, err
		}
	}
	if !isNew {
		if bulk {
			return nil, nil
		}
		return nil, apperrors.NewConflictError("dropdown option", "value", value)
	}

	order, err := ss.NextOptionDisplayOrder(ctx, scope)
	if err != nil {
		return nil, err
	}

	opt := models.DropdownOption{
		ID:           utils.GenerateID(),
		Scope:        scope,
		Value:        value,
		Label:        label,
		DisplayOrder: order,
		Active:       true,
		CreatedBy:    actor.ID,
		CreatedDate:  ss.nowFn(),
	}

	if err := ss.options.Insert(ctx, nil, opt); err != nil {
		return nil, apperrors.NewInternalError("failed to create option", err)
	}

	ss.emit(ctx, events.DropdownUpdated, DropdownEventPayload{Scope: scope, Option: &opt})
	return &opt, nil
}

// UpdateOption changes an option's value, label or order in place.
func (ss *SchemaService) UpdateOption(ctx context.Context, id, value, label string, displayOrder *int) (*models.DropdownOption, error) {
	opt, err := ss.options.FindByID(ctx, id)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to load option", err)
	}
	if opt == nil {
		return nil, apperrors.NewNotFoundError("dropdown option", id)
	}

	if value != "" {
		opt.Value = strings.TrimSpace(value)
	}
	if label != "" {
		opt.Label = label
	}
	if displayOrder != nil {
		opt.DisplayOrder = *displayOrder
	}

	if err := ss.options.Update(ctx, nil, *opt); err != nil {
		return nil, apperrors.NewInternalError("failed to update option", err)
	}

	ss.emit(ctx, events.DropdownUpdated, DropdownEventPayload{Scope: opt.Scope, Option: opt})
	return opt, nil
}

// DeleteOption removes a dropdown option. Only an administrator or the
// option's creator may delete it, and only when no active row still stores
// the option's value or label in that scope's field.
func (ss *SchemaService) DeleteOption(ctx context.Context, id string, actor *models.UserSession) error {
	opt, err := ss.options.FindByID(ctx, id)
	if err != nil {
		return apperrors.NewInternalError("failed to load option", err)
	}
	if opt == nil {
		return apperrors.NewNotFoundError("dropdown option", id)
	}

	if !actor.IsAdmin && actor.ID != opt.CreatedBy {
		return apperrors.NewAuthorizationError("delete", "dropdown option '"+opt.Label+"'")
	}

	candidates := []string{opt.Value}
	if opt.Label != opt.Value {
		candidates = append(candidates, opt.Label)
	}
	inUse, err := ss.rows.CountFieldValueUse(ctx, opt.Scope, candidates)
	if err != nil {
		return apperrors.NewInternalError("failed to scan option usage", err)
	}
	if inUse > 0 {
		return apperrors.NewConflictMessage("dropdown option",
			"option '"+opt.Label+"' is still used by "+strconv.Itoa(inUse)+" row(s)")
	}

	if err := ss.options.Delete(ctx, nil, id); err != nil {
		return apperrors.NewInternalError("failed to delete option", err)
	}

	ss.emit(ctx, events.DropdownUpdated, DropdownEventPayload{Scope: opt.Scope, DeletedID: id})
	return nil
}

// ListOptions returns the active options of one scope in display order.
func (ss *SchemaService) ListOptions(ctx context.Context, scope string) ([]models.DropdownOption, error) {
	opts, err := ss.options.ListByScope(ctx, scope)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list options", err)
	}
	return opts, nil
}

// DropdownScopes returns every dropdown-capable field: the fixed
// enumerated fields plus all custom columns currently typed dropdown.
func (ss *SchemaService) DropdownScopes(ctx context.Context) ([]string, error) {
	scopes := make([]string, 0, len(constants.EnumeratedFields))
	scopes = append(scopes, constants.EnumeratedFields...)

	cols, err := ss.columns.List(ctx)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list columns", err)
	}
	for _, col := range cols {
		if col.Kind == constants.ColumnKindDropdown {
			scopes = append(scopes, col.Key)
		}
	}
	return scopes, nil
}

// scopeExists reports whether scope is a fixed enumerated field or a
// known dropdown column key.
func (ss *SchemaService) scopeExists(ctx context.Context, scope string) bool {
	if constants.IsEnumeratedField(scope) {
		return true
	}
	cols, err := ss.columns.List(ctx)
	if err != nil {
		return false
	}
	for _, col := range cols {
		if col.Key == scope && col.Kind == constants.ColumnKindDropdown {
			return true
		}
	}
	return false
}

func (ss *SchemaService) emit(ctx context.Context, eventType events.EventType, payload interface{}) {
	if ss.sink == nil {
		return
	}
	if err := ss.sink.Enqueue(ctx, nil, eventType, payload); err != nil {
		log.Printf("⚠️ Failed to enqueue %s event: %v", eventType, err)
	}
}
