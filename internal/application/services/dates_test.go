package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseFlexibleDateDMY(t *testing.T) {
	cases := []struct {
		raw  string
		want time.Time
	}{
		{"15/01/2025", time.Date(2025, time.January, 15, 0, 0, 0, 0, time.UTC)},
		{"15-01-2025", time.Date(2025, time.January, 15, 0, 0, 0, 0, time.UTC)},
		{"15.01.2025", time.Date(2025, time.January, 15, 0, 0, 0, 0, time.UTC)},
		{"5/3/24", time.Date(2024, time.March, 5, 0, 0, 0, 0, time.UTC)},
	}

	for _, tc := range cases {
		got, ok := ParseFlexibleDate(tc.raw)
		assert.True(t, ok, "expected %q to parse", tc.raw)
		assert.Equal(t, tc.want, got, "raw=%q", tc.raw)
	}
}

func TestParseFlexibleDateSerial(t *testing.T) {
	// Spreadsheet serial 45658 is 2025-01-01.
	got, ok := ParseFlexibleDate("45658")
	assert.True(t, ok)
	assert.Equal(t, time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC), got)
}

func TestParseFlexibleDateSerialBelowThreshold(t *testing.T) {
	// Small numbers are plain numbers, not serial dates.
	_, ok := ParseFlexibleDate("500")
	assert.False(t, ok)
}

func TestParseFlexibleDateISO(t *testing.T) {
	got, ok := ParseFlexibleDate("2025-01-15")
	assert.True(t, ok)
	assert.Equal(t, time.Date(2025, time.January, 15, 0, 0, 0, 0, time.UTC), got)

	// Timestamps are truncated to their date part.
	got, ok = ParseFlexibleDate("2025-01-15T10:30:00Z")
	assert.True(t, ok)
	assert.Equal(t, time.Date(2025, time.January, 15, 0, 0, 0, 0, time.UTC), got)
}

func TestParseFlexibleDateUnmatched(t *testing.T) {
	for _, raw := range []string{"", "   ", "not a date", "13/13/2025"} {
		_, ok := ParseFlexibleDate(raw)
		assert.False(t, ok, "expected %q to fail", raw)
	}
}
