package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salesdesk/backend/pkg/constants"
	apperrors "github.com/salesdesk/backend/pkg/errors"
	"github.com/salesdesk/backend/pkg/models"
)

func newQueryServiceForTest(rows ...models.Row) *QueryService {
	store := newFakeRowStore()
	for _, row := range rows {
		store.rows[row.GetString(constants.FieldID)] = row
	}
	return NewQueryService(store)
}

func TestQueryServiceFilterExpr(t *testing.T) {
	svc := newQueryServiceForTest(
		models.Row{
			constants.FieldID:          "row-1",
			constants.FieldIsDeleted:   false,
			constants.FieldStatus:      "Won",
			constants.FieldAmount:      50000.0,
			constants.FieldCompanyName: "Acme",
		},
		models.Row{
			constants.FieldID:          "row-2",
			constants.FieldIsDeleted:   false,
			constants.FieldStatus:      "New",
			constants.FieldAmount:      100.0,
			constants.FieldCompanyName: "Globex",
		},
	)

	out, err := svc.ListRows(context.Background(), `status == "Won" && amount > 10000`, 0)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "row-1", out[0].GetString(constants.FieldID))
}

func TestQueryServiceCustomFieldEnv(t *testing.T) {
	svc := newQueryServiceForTest(models.Row{
		constants.FieldID:        "row-1",
		constants.FieldIsDeleted: false,
		constants.FieldCustomFields: map[string]interface{}{
			"deal_size": 42.0,
		},
	})

	out, err := svc.ListRows(context.Background(), `custom.deal_size > 40`, 0)
	require.NoError(t, err)
	assert.Len(t, out, 1)
}

func TestQueryServiceInvalidExpression(t *testing.T) {
	svc := newQueryServiceForTest()

	_, err := svc.ListRows(context.Background(), `status ==`, 0)
	assert.True(t, apperrors.IsValidation(err))
}

func TestQueryServiceUndefinedVariablesTolerated(t *testing.T) {
	svc := newQueryServiceForTest(models.Row{
		constants.FieldID:        "row-1",
		constants.FieldIsDeleted: false,
	})

	// Rows missing the referenced field simply do not match.
	out, err := svc.ListRows(context.Background(), `status == "Won"`, 0)
	require.NoError(t, err)
	assert.Empty(t, out)
}
