package services

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// serialDateEpoch is the spreadsheet serial-date epoch (Excel convention,
// which counts 1900-02-29 as a real day, hence Dec 30 not Dec 31).
var serialDateEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// serialDateThreshold guards against treating small numbers as serial
// dates. Serial 1000 is late 1902; anything below is a plain number.
const serialDateThreshold = 1000

var dmyPattern = regexp.MustCompile(`^(\d{1,2})[-/.](\d{1,2})[-/.](\d{2,4})$`)

// ParseFlexibleDate normalizes the date formats spreadsheet exports
// produce, in priority order: day-month-year with -, / or . separators;
// a numeric spreadsheet serial date; an ISO YYYY-MM-DD prefix. Returns
// false when nothing matches, leaving the raw value for downstream
// validation to judge.
func ParseFlexibleDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}

	if m := dmyPattern.FindStringSubmatch(raw); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		if year < 100 {
			year += 2000
		}
		if month >= 1 && month <= 12 && day >= 1 && day <= 31 {
			return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), true
		}
	}

	if serial, err := strconv.ParseFloat(raw, 64); err == nil {
		if serial > serialDateThreshold {
			days := int(serial)
			return serialDateEpoch.AddDate(0, 0, days), true
		}
		return time.Time{}, false
	}

	if len(raw) >= 10 {
		if t, err := time.Parse("2006-01-02", raw[:10]); err == nil {
			return t, true
		}
	}

	return time.Time{}, false
}
