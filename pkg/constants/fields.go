package constants

// System field names on sales_rows
const (
	FieldID             = "id"
	FieldIsDeleted      = "is_deleted"
	FieldCreatedBy      = "created_by"
	FieldLastModifiedBy = "last_modified_by"
	FieldCreatedDate    = "created_date"
	FieldModifiedDate   = "last_modified_date"
	FieldLockHolder     = "lock_holder"
	FieldLockAcquiredAt = "lock_acquired_at"
	FieldCustomFields   = "custom_fields"
)

// Fixed business fields on sales_rows
const (
	FieldCompanyName       = "company_name"
	FieldContactName       = "contact_name"
	FieldPosition          = "position"
	FieldPhone             = "phone"
	FieldEmail             = "email"
	FieldWebsite           = "website"
	FieldRegion            = "region"
	FieldIndustry          = "industry"
	FieldSource            = "source"
	FieldStatus            = "status"
	FieldStage             = "stage"
	FieldPriority          = "priority"
	FieldOwnerID           = "owner_id"
	FieldAmount            = "amount"
	FieldProbability       = "probability"
	FieldEmployeeCount     = "employee_count"
	FieldAddress           = "address"
	FieldFirstContactDate  = "first_contact_date"
	FieldNextFollowUpDate  = "next_follow_up_date"
	FieldExpectedCloseDate = "expected_close_date"
	FieldNotes             = "notes"
)

// TrackableField pairs a fixed field with its human label for audit diffs.
type TrackableField struct {
	Key   string
	Label string
}

// TrackableFields is the fixed whitelist of audited fields. Declaration
// order here is the order changes appear in an audit entry, regardless of
// the order keys arrive in an update payload.
var TrackableFields = []TrackableField{
	{FieldCompanyName, "Company"},
	{FieldContactName, "Contact"},
	{FieldPosition, "Position"},
	{FieldPhone, "Phone"},
	{FieldEmail, "Email"},
	{FieldWebsite, "Website"},
	{FieldRegion, "Region"},
	{FieldIndustry, "Industry"},
	{FieldSource, "Source"},
	{FieldStatus, "Status"},
	{FieldStage, "Stage"},
	{FieldPriority, "Priority"},
	{FieldOwnerID, "Owner"},
	{FieldAmount, "Amount"},
	{FieldProbability, "Probability"},
	{FieldEmployeeCount, "Employees"},
	{FieldAddress, "Address"},
	{FieldFirstContactDate, "First Contact"},
	{FieldNextFollowUpDate, "Next Follow-up"},
	{FieldExpectedCloseDate, "Expected Close"},
	{FieldNotes, "Notes"},
}

// DateFields are fixed fields compared at calendar-day granularity and
// normalized during import.
var DateFields = map[string]bool{
	FieldFirstContactDate:  true,
	FieldNextFollowUpDate:  true,
	FieldExpectedCloseDate: true,
}

// EnumeratedFields are fixed fields whose allowed values live in the
// dropdown option registry (scope = field name).
var EnumeratedFields = []string{
	FieldRegion,
	FieldIndustry,
	FieldSource,
	FieldStatus,
	FieldStage,
	FieldPriority,
}

var fixedFieldSet = buildFixedFieldSet()

func buildFixedFieldSet() map[string]bool {
	set := map[string]bool{
		FieldID:             true,
		FieldIsDeleted:      true,
		FieldCreatedBy:      true,
		FieldLastModifiedBy: true,
		FieldCreatedDate:    true,
		FieldModifiedDate:   true,
		FieldLockHolder:     true,
		FieldLockAcquiredAt: true,
		FieldCustomFields:   true,
	}
	for _, f := range TrackableFields {
		set[f.Key] = true
	}
	return set
}

// IsFixedField reports whether name is a fixed (physical) column on
// sales_rows. Custom column keys must never collide with these.
func IsFixedField(name string) bool {
	return fixedFieldSet[name]
}

// IsEnumeratedField reports whether a fixed field takes its values from
// the dropdown registry.
func IsEnumeratedField(name string) bool {
	for _, f := range EnumeratedFields {
		if f == name {
			return true
		}
	}
	return false
}

// LabelFor returns the human label for a trackable field key, or the key
// itself when the field is not on the whitelist.
func LabelFor(key string) string {
	for _, f := range TrackableFields {
		if f.Key == key {
			return f.Label
		}
	}
	return key
}
