package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/salesdesk/backend/pkg/constants"
	"github.com/salesdesk/backend/pkg/models"
	"github.com/salesdesk/backend/pkg/query"
)

// ColumnRepository handles custom column definition persistence.
type ColumnRepository struct {
	db *sql.DB
}

// NewColumnRepository creates a new ColumnRepository
func NewColumnRepository(db *sql.DB) *ColumnRepository {
	return &ColumnRepository{db: db}
}

func (r *ColumnRepository) exec(tx *sql.Tx) executor {
	if tx != nil {
		return tx
	}
	return r.db
}

// Insert persists a new column definition
func (r *ColumnRepository) Insert(ctx context.Context, tx *sql.Tx, col models.ColumnDefinition) error {
	visible := 0
	if col.Visible {
		visible = 1
	}
	q := query.Insert(constants.TableColumns, map[string]interface{}{
		"id":            col.ID,
		"col_key":       col.Key,
		"name":          col.Name,
		"kind":          col.Kind,
		"display_order": col.DisplayOrder,
		"visible":       visible,
		"created_by":    col.CreatedBy,
		"created_date":  col.CreatedDate,
	}).Build()

	if _, err := r.exec(tx).ExecContext(ctx, q.SQL, q.Params...); err != nil {
		return fmt.Errorf("insert column failed: %w", err)
	}
	return nil
}

// Update rewrites the mutable attributes of a column definition
func (r *ColumnRepository) Update(ctx context.Context, tx *sql.Tx, col models.ColumnDefinition) error {
	visible := 0
	if col.Visible {
		visible = 1
	}
	q := query.Update(constants.TableColumns).
		Set(map[string]interface{}{
			"name":          col.Name,
			"kind":          col.Kind,
			"display_order": col.DisplayOrder,
			"visible":       visible,
		}).
		Where("`id` = ?", col.ID).
		Build()

	if _, err := r.exec(tx).ExecContext(ctx, q.SQL, q.Params...); err != nil {
		return fmt.Errorf("update column failed: %w", err)
	}
	return nil
}

// Delete removes a column definition
func (r *ColumnRepository) Delete(ctx context.Context, tx *sql.Tx, id string) error {
	q := query.Delete(constants.TableColumns).Where("`id` = ?", id).Build()
	if _, err := r.exec(tx).ExecContext(ctx, q.SQL, q.Params...); err != nil {
		return fmt.Errorf("delete column failed: %w", err)
	}
	return nil
}

// List returns all column definitions in display order
func (r *ColumnRepository) List(ctx context.Context) ([]models.ColumnDefinition, error) {
	sqlStr := fmt.Sprintf("SELECT `id`, `col_key`, `name`, `kind`, `display_order`, `visible`, `created_by`, `created_date` FROM `%s` ORDER BY `display_order` ASC",
		constants.TableColumns)

	rows, err := r.db.QueryContext(ctx, sqlStr)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ColumnDefinition
	for rows.Next() {
		var col models.ColumnDefinition
		var visible int
		if err := rows.Scan(&col.ID, &col.Key, &col.Name, &col.Kind, &col.DisplayOrder, &visible, &col.CreatedBy, &col.CreatedDate); err != nil {
			return nil, err
		}
		col.Visible = visible != 0
		out = append(out, col)
	}
	return out, rows.Err()
}

// FindByID loads one column definition, nil when absent
func (r *ColumnRepository) FindByID(ctx context.Context, id string) (*models.ColumnDefinition, error) {
	sqlStr := fmt.Sprintf("SELECT `id`, `col_key`, `name`, `kind`, `display_order`, `visible`, `created_by`, `created_date` FROM `%s` WHERE `id` = ?",
		constants.TableColumns)

	var col models.ColumnDefinition
	var visible int
	err := r.db.QueryRowContext(ctx, sqlStr, id).Scan(&col.ID, &col.Key, &col.Name, &col.Kind, &col.DisplayOrder, &visible, &col.CreatedBy, &col.CreatedDate)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	col.Visible = visible != 0
	return &col, nil
}

// MaxDisplayOrder returns the highest display order, -1 when no columns exist
func (r *ColumnRepository) MaxDisplayOrder(ctx context.Context) (int, error) {
	sqlStr := fmt.Sprintf("SELECT COALESCE(MAX(`display_order`), -1) FROM `%s`", constants.TableColumns)
	var max int
	err := r.db.QueryRowContext(ctx, sqlStr).Scan(&max)
	return max, err
}
