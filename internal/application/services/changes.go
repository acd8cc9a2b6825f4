package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/salesdesk/backend/pkg/constants"
	"github.com/salesdesk/backend/pkg/models"
)

// EmptyPlaceholder substitutes for null/missing values in rendered audit
// descriptions.
const EmptyPlaceholder = "Empty"

const changeSeparator = "; "

// TrackChanges compares a row snapshot against an update payload and
// returns the field-level differences. Only whitelisted fixed fields are
// inspected, in whitelist declaration order. A key absent from the payload
// means "not being changed" and is skipped entirely; a present key with a
// nil value means "cleared" and is compared.
func TrackChanges(old models.Row, payload map[string]interface{}) []models.FieldChange {
	var changes []models.FieldChange

	for _, field := range constants.TrackableFields {
		newVal, present := payload[field.Key]
		if !present {
			continue
		}

		oldVal := old.Get(field.Key)

		var equal bool
		if constants.DateFields[field.Key] {
			equal = sameCalendarDay(oldVal, newVal)
		} else {
			equal = valuesEqual(oldVal, newVal)
		}

		if !equal {
			changes = append(changes, models.FieldChange{
				Field:    field.Key,
				Label:    field.Label,
				OldValue: oldVal,
				NewValue: newVal,
			})
		}
	}

	return changes
}

// FormatChangeDescription renders a change list as a human-readable audit
// description. Empty input yields an empty string.
func FormatChangeDescription(changes []models.FieldChange) string {
	if len(changes) == 0 {
		return ""
	}

	parts := make([]string, 0, len(changes))
	for _, ch := range changes {
		parts = append(parts, fmt.Sprintf("%s: \"%s\" → \"%s\"",
			ch.Label, renderValue(ch.OldValue), renderValue(ch.NewValue)))
	}
	return strings.Join(parts, changeSeparator)
}

func renderValue(v interface{}) string {
	if v == nil {
		return EmptyPlaceholder
	}
	if s, ok := v.(string); ok && s == "" {
		return EmptyPlaceholder
	}
	if t, ok := v.(time.Time); ok {
		return t.Format("2006-01-02")
	}
	return fmt.Sprintf("%v", v)
}

// valuesEqual compares two raw field values. Values may arrive as
// different concrete types for the same logical value (int64 from the
// driver, float64 from JSON), so comparison happens on the rendered form.
func valuesEqual(a, b interface{}) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		// nil and the empty string are the same logical "no value"; any
		// other value, including the placeholder text itself, is a change.
		other := a
		if a == nil {
			other = b
		}
		s, ok := other.(string)
		return ok && s == ""
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

// sameCalendarDay compares two date-like values at calendar-day
// granularity: equal iff year, month and day match, whatever the
// time-of-day. Unparseable values fall back to raw comparison.
func sameCalendarDay(a, b interface{}) bool {
	ta, okA := parseDateValue(a)
	tb, okB := parseDateValue(b)
	if !okA || !okB {
		return valuesEqual(a, b)
	}

	return ta.Year() == tb.Year() && ta.Month() == tb.Month() && ta.Day() == tb.Day()
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseDateValue extracts a time.Time from a date-like field value.
func parseDateValue(v interface{}) (time.Time, bool) {
	switch val := v.(type) {
	case time.Time:
		return val, true
	case *time.Time:
		if val != nil {
			return *val, true
		}
	case string:
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, val); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}
