package constants

// Table names
const (
	TableRows       = "sales_rows"
	TableColumns    = "sales_column_definitions"
	TableOptions    = "sales_dropdown_options"
	TableActivity   = "sales_activity_log"
	TableOutbox     = "sales_event_outbox"
	TableUsers      = "users"
)

// Column value kinds
const (
	ColumnKindDropdown = "dropdown"
	ColumnKindDate     = "date"
	ColumnKindText     = "text"
	ColumnKindLink     = "link"
	ColumnKindNumber   = "number"
)

// ColumnKinds lists every valid column value kind.
var ColumnKinds = []string{
	ColumnKindDropdown,
	ColumnKindDate,
	ColumnKindText,
	ColumnKindLink,
	ColumnKindNumber,
}

// IsValidColumnKind reports whether kind is an accepted column value kind.
func IsValidColumnKind(kind string) bool {
	for _, k := range ColumnKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Audit action kinds
const (
	ActionCreated  = "created"
	ActionUpdated  = "updated"
	ActionDeleted  = "deleted"
	ActionRestored = "restored"
	ActionLocked   = "locked"
	ActionUnlocked = "unlocked"
)

// Request context keys
const (
	ContextKeyUser = "currentUser"
	HeaderAuthorization = "Authorization"
)
