package models

import (
	"time"
)

// Row represents one shared sales row as a generic field map: fixed
// columns, the open custom-field map (under "custom_fields"), lock
// metadata and system fields all live in the same bag. Repositories are
// responsible for mapping it to and from physical storage.
type Row map[string]interface{}

// GetString extracts a string value, empty if missing or not a string.
func (r Row) GetString(key string) string {
	if val, ok := r[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

// GetBool extracts a bool value, false if missing.
func (r Row) GetBool(key string) bool {
	if val, ok := r[key]; ok {
		if b, ok := val.(bool); ok {
			return b
		}
	}
	return false
}

// GetTime extracts a time.Time value, parsing RFC3339 strings as a
// fallback. Zero time if missing or unparseable.
func (r Row) GetTime(key string) time.Time {
	if val, ok := r[key]; ok {
		if t, ok := val.(time.Time); ok {
			return t
		}
		if tStr, ok := val.(string); ok {
			parsed, _ := time.Parse(time.RFC3339, tStr)
			return parsed
		}
	}
	return time.Time{}
}

// Get returns the raw value for key.
func (r Row) Get(key string) interface{} {
	return r[key]
}

// CustomFields returns the open custom-field map, never nil.
func (r Row) CustomFields() map[string]interface{} {
	if val, ok := r["custom_fields"]; ok {
		if m, ok := val.(map[string]interface{}); ok {
			return m
		}
	}
	return map[string]interface{}{}
}

// Clone returns a shallow copy of the row with a deep-copied custom-field
// map, so diffing a snapshot against later mutations is safe.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	custom := make(map[string]interface{}, len(r.CustomFields()))
	for k, v := range r.CustomFields() {
		custom[k] = v
	}
	out["custom_fields"] = custom
	return out
}

// ColumnDefinition describes one dynamic custom column.
type ColumnDefinition struct {
	ID           string    `json:"id"`
	Key          string    `json:"key"`
	Name         string    `json:"name"`
	Kind         string    `json:"kind"`
	DisplayOrder int       `json:"display_order"`
	Visible      bool      `json:"visible"`
	CreatedBy    string    `json:"created_by"`
	CreatedDate  time.Time `json:"created_date"`
}

// DropdownOption is one allowed value for an enumerated fixed field or a
// custom dropdown column. Scope is the owning field/column key.
type DropdownOption struct {
	ID           string    `json:"id"`
	Scope        string    `json:"scope"`
	Value        string    `json:"value"`
	Label        string    `json:"label"`
	DisplayOrder int       `json:"display_order"`
	Active       bool      `json:"active"`
	CreatedBy    string    `json:"created_by"`
	CreatedDate  time.Time `json:"created_date"`
}

// FieldChange is one field-level before/after pair in an audit diff.
type FieldChange struct {
	Field    string      `json:"field"`
	Label    string      `json:"label"`
	OldValue interface{} `json:"old_value"`
	NewValue interface{} `json:"new_value"`
}

// ActivityEntry is one immutable audit record. Entries are append-only;
// nothing in the system updates or deletes them.
type ActivityEntry struct {
	ID          string        `json:"id"`
	RowID       string        `json:"row_id"`
	ActorID     string        `json:"actor_id"`
	ActorName   string        `json:"actor_name"`
	Action      string        `json:"action"`
	Changes     []FieldChange `json:"changes,omitempty"`
	Description string        `json:"description"`
	IPAddress   string        `json:"ip_address,omitempty"`
	UserAgent   string        `json:"user_agent,omitempty"`
	CreatedDate time.Time     `json:"created_date"`
}

// UserSession is the authenticated actor for a request, used for lock
// ownership and audit attribution.
type UserSession struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	IsAdmin bool   `json:"is_admin"`
}

// RequestMeta carries optional request metadata attached to audit entries.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

// LockState is the observable lock condition of a row.
type LockState struct {
	Holder     string
	HolderName string
	AcquiredAt time.Time
}

// Held reports whether any holder is recorded, expired or not.
func (ls LockState) Held() bool {
	return ls.Holder != ""
}

// ColumnSpec is a caller-supplied (name, kind) pair for import phase 1.
type ColumnSpec struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

// ImportFailure describes one record the import pipeline could not ingest.
type ImportFailure struct {
	Index int                    `json:"index"`
	Data  map[string]interface{} `json:"data"`
	Error string                 `json:"error"`
}

// ImportSuccess identifies one ingested record by input index and new id.
type ImportSuccess struct {
	Index int    `json:"index"`
	ID    string `json:"id"`
}

// ImportResult is the mixed outcome of a batch import. A batch with
// failures still succeeds as a whole; failures are reported per record.
type ImportResult struct {
	Succeeded              []ImportSuccess    `json:"succeeded"`
	Failed                 []ImportFailure    `json:"failed"`
	ColumnsCreated         []ColumnDefinition `json:"columns_created"`
	DropdownOptionsCreated []DropdownOption   `json:"dropdown_options_created"`
}
