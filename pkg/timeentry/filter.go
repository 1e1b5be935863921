package timeentry

import (
	"fmt"
	"time"
)

// ForClient returns the entries attributed to clientID: those tagged with the
// id itself, "client:<id>" or "project:<id>".
func ForClient(entries []Entry, clientID string) []Entry {
	result := []Entry{}
	for _, e := range entries {
		if e.HasTag(clientID) || e.HasTag("client:"+clientID) || e.HasTag("project:"+clientID) {
			result = append(result, e)
		}
	}
	return result
}

// Within returns the entries that start inside [start, end). Entries outside
// the range are reported to sink as KindOutOfPeriod.
func Within(entries []Entry, start, end time.Time, sink Sink) []Entry {
	result := []Entry{}
	for _, e := range entries {
		if !e.Start.Before(start) && e.Start.Before(end) {
			result = append(result, e)
			continue
		}
		sink.report(Diagnostic{
			Kind:    KindOutOfPeriod,
			Index:   e.Index,
			Raw:     e.String(),
			Message: fmt.Sprintf("starts outside %s..%s", start.Format(time.DateOnly), end.Format(time.DateOnly)),
		})
	}
	return result
}
