package events

// EventType defines the type of event broadcast on the sales channel
type EventType string

const (
	// Row Events
	RowCreated       EventType = "row.created"
	RowUpdated       EventType = "row.updated"
	RowDeleted       EventType = "row.deleted"
	RowRestored      EventType = "row.restored"
	RowsBulkUpdated  EventType = "row.bulk_updated"
	RowsBulkDeleted  EventType = "row.bulk_deleted"
	RowLocked        EventType = "row.locked"
	RowUnlocked      EventType = "row.unlocked"
	RowsImported     EventType = "row.imported"

	// Schema Events
	ColumnCreated EventType = "schema.column_created"
	ColumnUpdated EventType = "schema.column_updated"
	ColumnDeleted EventType = "schema.column_deleted"

	// Dropdown Events
	DropdownUpdated EventType = "schema.dropdown_updated"
)

// String returns the string representation of the event type
func (e EventType) String() string {
	return string(e)
}
