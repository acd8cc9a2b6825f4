package services

import (
	"context"

	"github.com/expr-lang/expr"

	"github.com/salesdesk/backend/pkg/constants"
	apperrors "github.com/salesdesk/backend/pkg/errors"
	"github.com/salesdesk/backend/pkg/models"
)

// QueryService answers row list queries, optionally filtered by a boolean
// expression evaluated against each row's fields (fixed fields plus the
// custom-field map, the latter exposed under "custom").
type QueryService struct {
	rows rowStore
}

// NewQueryService creates a new QueryService
func NewQueryService(rows rowStore) *QueryService {
	return &QueryService{rows: rows}
}

// ListRows returns active rows, newest first, filtered by filterExpr when
// one is supplied. Example: `status == "Active" && amount > 10000`.
func (qs *QueryService) ListRows(ctx context.Context, filterExpr string, limit int) ([]models.Row, error) {
	rows, err := qs.rows.List(ctx, 0)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list rows", err)
	}

	if filterExpr == "" {
		if limit > 0 && len(rows) > limit {
			rows = rows[:limit]
		}
		return rows, nil
	}

	program, err := expr.Compile(filterExpr, expr.AsBool(), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, apperrors.NewValidationError("filter_expr", "invalid filter expression: "+err.Error())
	}

	var out []models.Row
	for _, row := range rows {
		env := buildFilterEnv(row)
		result, err := expr.Run(program, env)
		if err != nil {
			return nil, apperrors.NewValidationError("filter_expr", "filter evaluation failed: "+err.Error())
		}
		if match, ok := result.(bool); ok && match {
			out = append(out, row)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func buildFilterEnv(row models.Row) map[string]interface{} {
	env := make(map[string]interface{}, len(row)+1)
	for k, v := range row {
		if k == constants.FieldCustomFields {
			continue
		}
		env[k] = v
	}
	env["custom"] = row.CustomFields()
	return env
}
