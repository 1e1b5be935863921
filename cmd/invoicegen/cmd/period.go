package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/johnmatter/timewarrior-invoice/pkg/invoice"
	"github.com/johnmatter/timewarrior-invoice/pkg/timeentry"
)

// resolvePeriod turns the period flags into a billing period. Without any
// flag the previous calendar month relative to now is billed.
func resolvePeriod(month, start, end string, now time.Time) (invoice.Period, error) {
	if month != "" {
		if start != "" || end != "" {
			return invoice.Period{}, errors.New("--month cannot be combined with --start/--end")
		}
		first, err := time.Parse("2006-01", month)
		if err != nil {
			return invoice.Period{}, fmt.Errorf("--month %q is not YYYY-MM", month)
		}
		return invoice.NewPeriod(first, first.AddDate(0, 1, 0))
	}

	if start != "" || end != "" {
		if start == "" || end == "" {
			return invoice.Period{}, errors.New("--start and --end must be given together")
		}
		return invoice.ParsePeriod(start, end)
	}

	now = now.UTC()
	thisMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return invoice.NewPeriod(thisMonth.AddDate(0, -1, 0), thisMonth)
}

// parseInstant parses an optional --reference or --issue-date value.
func parseInstant(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.DateOnly, value); err == nil {
		return t, nil
	}
	return timeentry.ParseTimestamp(value)
}
