// Package timeentry normalizes exported time-tracking intervals into a
// canonical in-memory representation.
package timeentry

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Entry is one recorded interval.
// Entries are values; callers must not mutate Tags after construction.
type Entry struct {
	Start      time.Time
	End        *time.Time // nil while the interval is still open
	Tags       []string   // distinct, sorted ascending
	Annotation string
	// Index is the position of the source record in the raw export. It
	// survives filtering, so diagnostics always point at the input record.
	Index int
}

// IsOpen reports whether the interval has no end timestamp.
func (e Entry) IsOpen() bool {
	return e.End == nil
}

// Duration returns the elapsed time of a closed interval, or zero when open.
func (e Entry) Duration() time.Duration {
	if e.End == nil {
		return 0
	}
	return e.End.Sub(e.Start)
}

// HasTag reports whether the entry carries tag (case-sensitive).
func (e Entry) HasTag(tag string) bool {
	return slices.Contains(e.Tags, tag)
}

func (e Entry) String() string {
	end := "open"
	if e.End != nil {
		end = e.End.UTC().Format(time.RFC3339)
	}
	s := fmt.Sprintf("%s - %s [%s]", e.Start.UTC().Format(time.RFC3339), end, strings.Join(e.Tags, ","))
	if e.Annotation != "" {
		s += " " + e.Annotation
	}
	return s
}

// Format selects how raw export data is decoded.
type Format int

const (
	// FormatStructured is a JSON array of interval objects (timew export).
	FormatStructured Format = iota
	// FormatTabular is CSV with a header row.
	FormatTabular
)

func (f Format) String() string {
	switch f {
	case FormatStructured:
		return "json"
	case FormatTabular:
		return "csv"
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// ParseFormat maps a user-facing format name to a Format.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "json", "structured":
		return FormatStructured, nil
	case "csv", "tabular":
		return FormatTabular, nil
	}
	return 0, fmt.Errorf("unsupported format: %s", name)
}

// Kind classifies a Diagnostic.
type Kind string

const (
	KindMalformed    Kind = "malformed_record"
	KindOpenInterval Kind = "open_interval"
	KindDuplicateTag Kind = "duplicate_tag"
	KindOutOfPeriod  Kind = "out_of_period"
)

// Diagnostic describes a record that was skipped, collapsed or excluded.
type Diagnostic struct {
	Kind    Kind
	Index   int
	Raw     string
	Message string
	Err     error
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: record %d: %s", d.Kind, d.Index, d.Message)
}

// Sink receives diagnostics. A nil Sink discards them.
type Sink func(Diagnostic)

func (s Sink) report(d Diagnostic) {
	if s != nil {
		s(d)
	}
}

// Collector accumulates diagnostics for one run. It is not safe for
// concurrent use; give each pipeline its own Collector.
type Collector struct {
	Diagnostics []Diagnostic
}

// Report appends d. Pass c.Report wherever a Sink is expected.
func (c *Collector) Report(d Diagnostic) {
	c.Diagnostics = append(c.Diagnostics, d)
}

// Count returns the number of diagnostics of the given kind.
func (c *Collector) Count(kind Kind) int {
	n := 0
	for _, d := range c.Diagnostics {
		if d.Kind == kind {
			n++
		}
	}
	return n
}
