package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salesdesk/backend/internal/domain/events"
	"github.com/salesdesk/backend/pkg/constants"
	"github.com/salesdesk/backend/pkg/models"
)

type importFixture struct {
	svc      *ImportService
	rows     *fakeRowStore
	columns  *fakeColumnStore
	options  *fakeOptionStore
	activity *fakeActivity
	sink     *fakeSink
}

func newImportServiceForTest() *importFixture {
	rows := newFakeRowStore()
	columns := &fakeColumnStore{}
	options := &fakeOptionStore{}
	activity := &fakeActivity{}
	sink := &fakeSink{}

	schema := NewSchemaService(columns, options, &fakeUsageScanner{usage: map[string]map[string]int{}}, &fakeTxRunner{}, nil)
	rowSvc := NewRowService(rows, columns, activity, nil, &fakeTxRunner{}, sink)

	return &importFixture{
		svc:      NewImportService(schema, rowSvc, sink),
		rows:     rows,
		columns:  columns,
		options:  options,
		activity: activity,
		sink:     sink,
	}
}

func TestImportRowsFailureIsolation(t *testing.T) {
	f := newImportServiceForTest()

	records := []map[string]interface{}{
		{constants.FieldCompanyName: "Acme", constants.FieldStatus: "New"},
		{constants.FieldCompanyName: "Globex", constants.FieldStatus: "New"},
		{constants.FieldContactName: "No Company"}, // missing required field
		{constants.FieldCompanyName: "Initech", constants.FieldStatus: "Won"},
		{constants.FieldCompanyName: "Umbrella"},
	}

	result, err := f.svc.ImportRows(context.Background(), records, nil, alice, models.RequestMeta{})
	require.NoError(t, err)

	assert.Len(t, result.Succeeded, 4)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, 2, result.Failed[0].Index)
	assert.Contains(t, result.Failed[0].Error, constants.FieldCompanyName)

	// Every successful record got its audit entry; the failed one did not.
	assert.Len(t, f.activity.byAction(constants.ActionCreated), 4)
}

func TestImportRowsEmitsOneBatchEvent(t *testing.T) {
	f := newImportServiceForTest()

	records := []map[string]interface{}{
		{constants.FieldCompanyName: "Acme"},
		{constants.FieldCompanyName: "Globex"},
	}

	_, err := f.svc.ImportRows(context.Background(), records, nil, alice, models.RequestMeta{})
	require.NoError(t, err)

	// No per-row create broadcasts; one rows-imported event for the batch.
	assert.Empty(t, f.sink.ofType(events.RowCreated))
	imported := f.sink.ofType(events.RowsImported)
	require.Len(t, imported, 1)

	payload, ok := imported[0].payload.(ImportedPayload)
	require.True(t, ok)
	assert.Equal(t, 2, payload.SuccessCount)
}

func TestImportRowsColumnPreCreation(t *testing.T) {
	f := newImportServiceForTest()

	specs := []models.ColumnSpec{
		{Name: "Deal Size", Kind: constants.ColumnKindNumber},
		{Name: "Status", Kind: constants.ColumnKindDropdown}, // collides with fixed field, skipped
		{Name: "%%%", Kind: constants.ColumnKindText},        // empty key, skipped
		{Name: "Deal  Size", Kind: constants.ColumnKindNumber}, // duplicate key, skipped
	}

	result, err := f.svc.ImportRows(context.Background(),
		[]map[string]interface{}{{constants.FieldCompanyName: "Acme"}},
		specs, alice, models.RequestMeta{})
	require.NoError(t, err)

	require.Len(t, result.ColumnsCreated, 1)
	assert.Equal(t, "deal_size", result.ColumnsCreated[0].Key)
	assert.Len(t, f.columns.columns, 1)
}

func TestImportRowsDropdownAutoPopulation(t *testing.T) {
	f := newImportServiceForTest()

	records := []map[string]interface{}{
		{constants.FieldCompanyName: "Acme", constants.FieldStatus: "New", "lead_grade": "A"},
		{constants.FieldCompanyName: "Globex", constants.FieldStatus: " New ", "lead_grade": "B"},
		{constants.FieldCompanyName: "Initech", constants.FieldStatus: "Won", "lead_grade": "A"},
	}

	specs := []models.ColumnSpec{{Name: "Lead Grade", Kind: constants.ColumnKindDropdown}}

	result, err := f.svc.ImportRows(context.Background(), records, specs, alice, models.RequestMeta{})
	require.NoError(t, err)

	// Distinct trimmed values per scope: status gets New and Won, the
	// phase 1 dropdown column gets A and B.
	var statusValues, gradeValues []string
	for _, opt := range result.DropdownOptionsCreated {
		switch opt.Scope {
		case constants.FieldStatus:
			statusValues = append(statusValues, opt.Value)
		case "lead_grade":
			gradeValues = append(gradeValues, opt.Value)
		}
	}
	assert.Equal(t, []string{"New", "Won"}, statusValues)
	assert.Equal(t, []string{"A", "B"}, gradeValues)
}

func TestImportRowsDropdownDedupAgainstExisting(t *testing.T) {
	f := newImportServiceForTest()
	f.options.options = append(f.options.options, models.DropdownOption{
		ID: "opt-1", Scope: constants.FieldStatus, Value: "New", Label: "New", Active: true,
	})

	result, err := f.svc.ImportRows(context.Background(),
		[]map[string]interface{}{
			{constants.FieldCompanyName: "Acme", constants.FieldStatus: "New"},
			{constants.FieldCompanyName: "Globex", constants.FieldStatus: "Won"},
		}, nil, alice, models.RequestMeta{})
	require.NoError(t, err)

	require.Len(t, result.DropdownOptionsCreated, 1)
	assert.Equal(t, "Won", result.DropdownOptionsCreated[0].Value)
}

func TestImportRowsDateNormalization(t *testing.T) {
	f := newImportServiceForTest()

	records := []map[string]interface{}{
		{
			constants.FieldCompanyName:      "Acme",
			constants.FieldFirstContactDate: "15/01/2025",
			constants.FieldNextFollowUpDate: float64(45658), // spreadsheet serial
		},
		{
			constants.FieldCompanyName:       "Globex",
			constants.FieldExpectedCloseDate: "2025-06-30T00:00:00Z",
		},
	}

	result, err := f.svc.ImportRows(context.Background(), records, nil, alice, models.RequestMeta{})
	require.NoError(t, err)
	require.Len(t, result.Succeeded, 2)

	first, err := f.rows.FindByID(context.Background(), nil, result.Succeeded[0].ID)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, time.January, 15, 0, 0, 0, 0, time.UTC), first.Get(constants.FieldFirstContactDate))
	assert.Equal(t, time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC), first.Get(constants.FieldNextFollowUpDate))

	second, err := f.rows.FindByID(context.Background(), nil, result.Succeeded[1].ID)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, time.June, 30, 0, 0, 0, 0, time.UTC), second.Get(constants.FieldExpectedCloseDate))
}

func TestImportRowsKeepsUnparseableDatesRaw(t *testing.T) {
	f := newImportServiceForTest()

	result, err := f.svc.ImportRows(context.Background(),
		[]map[string]interface{}{
			{constants.FieldCompanyName: "Acme", constants.FieldFirstContactDate: "sometime soon"},
		}, nil, alice, models.RequestMeta{})
	require.NoError(t, err)

	// The raw value survives normalization and fails row validation, so
	// the record lands in the failure list instead of aborting the batch.
	assert.Empty(t, result.Succeeded)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, 0, result.Failed[0].Index)
}
