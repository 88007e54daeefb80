package forecast

import (
	"strings"
	"time"
)

// dateLayouts are the Last Updated formats accepted on read. Sheets may
// reformat a USER_ENTERED date according to the spreadsheet locale.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"1/2/2006",
	time.RFC3339,
}

// ParseLastUpdated parses a Last Updated cell. ok is false for empty or
// unrecognised input.
func ParseLastUpdated(raw string) (t time.Time, ok bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// IsStale reports whether a row last updated at raw needs refreshing at now:
// the date is missing, unparsable, or strictly before one calendar month ago.
func IsStale(raw string, now time.Time) bool {
	t, ok := ParseLastUpdated(raw)
	if !ok {
		return true
	}
	return t.Before(now.AddDate(0, -1, 0))
}
