package services

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/salesdesk/backend/internal/domain/events"
	"github.com/salesdesk/backend/pkg/constants"
	"github.com/salesdesk/backend/pkg/models"
)

// ImportedPayload is the fan-out payload emitted once per completed batch.
type ImportedPayload struct {
	SuccessCount           int                       `json:"success_count"`
	ColumnsCreated         []models.ColumnDefinition `json:"columns_created"`
	DropdownOptionsCreated []models.DropdownOption   `json:"dropdown_options_created"`
}

// ImportService runs the three-phase batch import: evolve the schema,
// auto-populate dropdowns from the batch, then ingest records one by one
// with per-record failure isolation.
type ImportService struct {
	schema *SchemaService
	rows   *RowService
	sink   eventSink
}

// NewImportService creates a new ImportService
func NewImportService(schema *SchemaService, rows *RowService, sink eventSink) *ImportService {
	return &ImportService{schema: schema, rows: rows, sink: sink}
}

// ImportRows processes an ordered batch of external records. A failing
// record never aborts the batch; it lands in the failure list with its
// input index and the remaining records are still attempted. The batch as
// a whole succeeds with a mixed result.
func (is *ImportService) ImportRows(
	ctx context.Context,
	records []map[string]interface{},
	columnSpecs []models.ColumnSpec,
	actor *models.UserSession,
	meta models.RequestMeta,
) (*models.ImportResult, error) {
	result := &models.ImportResult{
		Succeeded:              []models.ImportSuccess{},
		Failed:                 []models.ImportFailure{},
		ColumnsCreated:         []models.ColumnDefinition{},
		DropdownOptionsCreated: []models.DropdownOption{},
	}

	// Phase 1: schema pre-creation. Empty or colliding keys skip silently.
	for _, spec := range columnSpecs {
		col, err := is.schema.CreateColumn(ctx, spec.Name, spec.Kind, actor, true)
		if err != nil {
			return nil, err
		}
		if col != nil {
			result.ColumnsCreated = append(result.ColumnsCreated, *col)
		}
	}

	// Phase 2: dropdown auto-population across fixed enumerated fields and
	// every column currently typed dropdown, including phase 1 creations.
	scopes, err := is.schema.DropdownScopes(ctx)
	if err != nil {
		return nil, err
	}

	for _, scope := range scopes {
		for _, value := range collectDistinctValues(records, scope) {
			opt, err := is.schema.CreateOption(ctx, scope, value, value, actor, true)
			if err != nil {
				return nil, err
			}
			if opt != nil {
				result.DropdownOptionsCreated = append(result.DropdownOptionsCreated, *opt)
			}
		}
	}

	// Phase 3: per-record ingestion, strictly in input order.
	for i, record := range records {
		id, err := is.ingestRecord(ctx, record, actor, meta)
		if err != nil {
			result.Failed = append(result.Failed, models.ImportFailure{
				Index: i,
				Data:  record,
				Error: err.Error(),
			})
			continue
		}
		result.Succeeded = append(result.Succeeded, models.ImportSuccess{Index: i, ID: id})
	}

	log.Printf("📥 Import finished: %d ok, %d failed, %d columns, %d options",
		len(result.Succeeded), len(result.Failed),
		len(result.ColumnsCreated), len(result.DropdownOptionsCreated))

	if err := is.sink.Enqueue(ctx, nil, events.RowsImported, ImportedPayload{
		SuccessCount:           len(result.Succeeded),
		ColumnsCreated:         result.ColumnsCreated,
		DropdownOptionsCreated: result.DropdownOptionsCreated,
	}); err != nil {
		log.Printf("⚠️ Failed to enqueue import event: %v", err)
	}

	return result, nil
}

// ingestRecord normalizes one record's date fields and inserts it.
func (is *ImportService) ingestRecord(ctx context.Context, record map[string]interface{}, actor *models.UserSession, meta models.RequestMeta) (string, error) {
	data := make(map[string]interface{}, len(record))
	for k, v := range record {
		data[k] = v
	}

	for key := range constants.DateFields {
		raw, ok := data[key]
		if !ok || raw == nil {
			continue
		}
		switch v := raw.(type) {
		case string:
			if t, parsed := ParseFlexibleDate(v); parsed {
				data[key] = t
			}
			// Unparsed values stay raw; validation decides downstream.
		case float64:
			if t, parsed := ParseFlexibleDate(fmt.Sprintf("%v", v)); parsed {
				data[key] = t
			}
		}
	}

	row, err := is.rows.IngestImportedRow(ctx, data, actor, meta)
	if err != nil {
		return "", err
	}
	return row.GetString(constants.FieldID), nil
}

// collectDistinctValues gathers the distinct non-empty trimmed string
// values one field takes across the whole batch, preserving first-seen
// order.
func collectDistinctValues(records []map[string]interface{}, field string) []string {
	seen := map[string]bool{}
	var out []string
	for _, record := range records {
		raw, ok := record[field]
		if !ok {
			continue
		}
		s, ok := raw.(string)
		if !ok {
			continue
		}
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
