package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/salesdesk/backend/pkg/constants"
	"github.com/salesdesk/backend/pkg/models"
	"github.com/salesdesk/backend/pkg/query"
)

// OptionRepository handles dropdown option persistence.
type OptionRepository struct {
	db *sql.DB
}

// NewOptionRepository creates a new OptionRepository
func NewOptionRepository(db *sql.DB) *OptionRepository {
	return &OptionRepository{db: db}
}

func (r *OptionRepository) exec(tx *sql.Tx) executor {
	if tx != nil {
		return tx
	}
	return r.db
}

// Insert persists a new dropdown option
func (r *OptionRepository) Insert(ctx context.Context, tx *sql.Tx, opt models.DropdownOption) error {
	active := 0
	if opt.Active {
		active = 1
	}
	q := query.Insert(constants.TableOptions, map[string]interface{}{
		"id":            opt.ID,
		"scope":         opt.Scope,
		"value":         opt.Value,
		"label":         opt.Label,
		"display_order": opt.DisplayOrder,
		"active":        active,
		"created_by":    opt.CreatedBy,
		"created_date":  opt.CreatedDate,
	}).Build()

	if _, err := r.exec(tx).ExecContext(ctx, q.SQL, q.Params...); err != nil {
		return fmt.Errorf("insert option failed: %w", err)
	}
	return nil
}

// Update rewrites the mutable attributes of an option
func (r *OptionRepository) Update(ctx context.Context, tx *sql.Tx, opt models.DropdownOption) error {
	active := 0
	if opt.Active {
		active = 1
	}
	q := query.Update(constants.TableOptions).
		Set(map[string]interface{}{
			"value":         opt.Value,
			"label":         opt.Label,
			"display_order": opt.DisplayOrder,
			"active":        active,
		}).
		Where("`id` = ?", opt.ID).
		Build()

	if _, err := r.exec(tx).ExecContext(ctx, q.SQL, q.Params...); err != nil {
		return fmt.Errorf("update option failed: %w", err)
	}
	return nil
}

// Delete removes an option
func (r *OptionRepository) Delete(ctx context.Context, tx *sql.Tx, id string) error {
	q := query.Delete(constants.TableOptions).Where("`id` = ?", id).Build()
	if _, err := r.exec(tx).ExecContext(ctx, q.SQL, q.Params...); err != nil {
		return fmt.Errorf("delete option failed: %w", err)
	}
	return nil
}

// DeleteByScope removes every option in a scope. Used when a dropdown
// column is deleted together with its options.
func (r *OptionRepository) DeleteByScope(ctx context.Context, tx *sql.Tx, scope string) error {
	q := query.Delete(constants.TableOptions).Where("`scope` = ?", scope).Build()
	if _, err := r.exec(tx).ExecContext(ctx, q.SQL, q.Params...); err != nil {
		return fmt.Errorf("delete options by scope failed: %w", err)
	}
	return nil
}

// ListByScope returns the active options of one scope in display order
func (r *OptionRepository) ListByScope(ctx context.Context, scope string) ([]models.DropdownOption, error) {
	sqlStr := fmt.Sprintf("SELECT `id`, `scope`, `value`, `label`, `display_order`, `active`, `created_by`, `created_date` FROM `%s` WHERE `scope` = ? AND `active` = 1 ORDER BY `display_order` ASC",
		constants.TableOptions)

	rows, err := r.db.QueryContext(ctx, sqlStr, scope)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanOptions(rows)
}

// FindByID loads one option, nil when absent
func (r *OptionRepository) FindByID(ctx context.Context, id string) (*models.DropdownOption, error) {
	sqlStr := fmt.Sprintf("SELECT `id`, `scope`, `value`, `label`, `display_order`, `active`, `created_by`, `created_date` FROM `%s` WHERE `id` = ?",
		constants.TableOptions)

	rows, err := r.db.QueryContext(ctx, sqlStr, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	opts, err := scanOptions(rows)
	if err != nil {
		return nil, err
	}
	if len(opts) == 0 {
		return nil, nil
	}
	return &opts[0], nil
}

// MaxDisplayOrder returns the highest display order within a scope,
// -1 when the scope has no options
func (r *OptionRepository) MaxDisplayOrder(ctx context.Context, scope string) (int, error) {
	sqlStr := fmt.Sprintf("SELECT COALESCE(MAX(`display_order`), -1) FROM `%s` WHERE `scope` = ?", constants.TableOptions)
	var max int
	err := r.db.QueryRowContext(ctx, sqlStr, scope).Scan(&max)
	return max, err
}

func scanOptions(rows *sql.Rows) ([]models.DropdownOption, error) {
	var out []models.DropdownOption
	for rows.Next() {
		var opt models.DropdownOption
		var active int
		if err := rows.Scan(&opt.ID, &opt.Scope, &opt.Value, &opt.Label, &opt.DisplayOrder, &active, &opt.CreatedBy, &opt.CreatedDate); err != nil {
			return nil, err
		}
		opt.Active = active != 0
		out = append(out, opt)
	}
	return out, rows.Err()
}
