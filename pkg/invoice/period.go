package invoice

import (
	"fmt"
	"time"
)

// Period is a half-open billing range [Start, End) of UTC calendar dates.
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// InvalidPeriodError reports caller-supplied period bounds that cannot be used.
type InvalidPeriodError struct {
	Start  string
	End    string
	Reason string
}

func (e *InvalidPeriodError) Error() string {
	return fmt.Sprintf("invalid billing period %s..%s: %s", e.Start, e.End, e.Reason)
}

// NewPeriod truncates both bounds to UTC midnight and checks start <= end.
func NewPeriod(start, end time.Time) (Period, error) {
	p := Period{Start: truncateDay(start), End: truncateDay(end)}
	if p.Start.IsZero() || p.End.IsZero() {
		return Period{}, &InvalidPeriodError{
			Start:  p.Start.Format(time.DateOnly),
			End:    p.End.Format(time.DateOnly),
			Reason: "both bounds are required",
		}
	}
	if p.End.Before(p.Start) {
		return Period{}, &InvalidPeriodError{
			Start:  p.Start.Format(time.DateOnly),
			End:    p.End.Format(time.DateOnly),
			Reason: "end is before start",
		}
	}
	return p, nil
}

// ParsePeriod parses YYYY-MM-DD bounds.
func ParsePeriod(start, end string) (Period, error) {
	s, err := time.Parse(time.DateOnly, start)
	if err != nil {
		return Period{}, &InvalidPeriodError{Start: start, End: end, Reason: "start is not YYYY-MM-DD"}
	}
	e, err := time.Parse(time.DateOnly, end)
	if err != nil {
		return Period{}, &InvalidPeriodError{Start: start, End: end, Reason: "end is not YYYY-MM-DD"}
	}
	return NewPeriod(s, e)
}

// Midpoint returns the instant halfway between Start and End.
func (p Period) Midpoint() time.Time {
	return p.Start.Add(p.End.Sub(p.Start) / 2)
}

// Contains reports whether t falls inside [Start, End).
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

// IsZero reports whether the period is unset.
func (p Period) IsZero() bool {
	return p.Start.IsZero() && p.End.IsZero()
}

func (p Period) String() string {
	return p.Start.Format(time.DateOnly) + ".." + p.End.Format(time.DateOnly)
}

func truncateDay(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
