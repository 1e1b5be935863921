package timeentry

import (
	"fmt"
	"strings"
	"time"
)

// Layouts tried in order. Zone-less layouts are interpreted as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"20060102T150405Z0700",
	"20060102T150405Z",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseTimestamp parses the timestamp forms produced by timewarrior and
// common spreadsheet exports.
func ParseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
}
