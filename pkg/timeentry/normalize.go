package timeentry

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
)

// rawRecord is a record decoded from either format before validation.
type rawRecord struct {
	start      string
	end        string
	tags       []string
	annotation string
}

// jsonRecord mirrors one interval object of `timew export`.
type jsonRecord struct {
	ID         int      `json:"id"`
	Start      string   `json:"start"`
	End        string   `json:"end"`
	Tags       []string `json:"tags"`
	Annotation string   `json:"annotation"`
}

// Normalize decodes raw export data into entries, preserving input order.
//
// A record that cannot be normalized is reported to sink as a
// KindMalformed diagnostic wrapping a *MalformedRecordError, and the
// remaining records are still processed. When sink is nil the first such
// error is returned instead. Input that cannot be read in the declared
// format at all yields an error wrapping ErrUnparseableInput.
func Normalize(raw []byte, format Format, sink Sink) ([]Entry, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return []Entry{}, nil
	}

	n := &normalizer{sink: sink, entries: []Entry{}}
	var err error
	switch format {
	case FormatStructured:
		err = n.structured(raw)
	case FormatTabular:
		err = n.tabular(raw)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
	if err != nil {
		return nil, err
	}
	return n.entries, nil
}

type normalizer struct {
	sink    Sink
	entries []Entry
}

func (n *normalizer) structured(raw []byte) error {
	var records []json.RawMessage
	if err := json.Unmarshal(raw, &records); err != nil {
		return fmt.Errorf("%w: expected a JSON array of intervals: %v", ErrUnparseableInput, err)
	}

	for i, msg := range records {
		var rec jsonRecord
		if err := json.Unmarshal(msg, &rec); err != nil {
			if err := n.malformed(i, string(msg), fmt.Sprintf("cannot decode interval: %v", err)); err != nil {
				return err
			}
			continue
		}
		err := n.add(i, string(msg), rawRecord{
			start:      rec.Start,
			end:        rec.End,
			tags:       rec.Tags,
			annotation: rec.Annotation,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (n *normalizer) tabular(raw []byte) error {
	reader := csv.NewReader(bytes.NewReader(raw))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("%w: cannot read CSV header: %v", ErrUnparseableInput, err)
	}
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	if _, ok := columns["start"]; !ok {
		return fmt.Errorf("%w: CSV header has no start column", ErrUnparseableInput)
	}

	field := func(row []string, name string) string {
		i, ok := columns[name]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	for index := 0; ; index++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			line := ""
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				line = fmt.Sprintf("line %d", perr.Line)
			}
			if err := n.malformed(index, line, err.Error()); err != nil {
				return err
			}
			continue
		}

		err = n.add(index, strings.Join(row, ","), rawRecord{
			start:      field(row, "start"),
			end:        field(row, "end"),
			tags:       splitTags(field(row, "tags")),
			annotation: strings.TrimSpace(field(row, "annotation")),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// add validates rec and appends it. The returned error is non-nil only when
// the record is malformed and there is no sink to report it to.
func (n *normalizer) add(index int, raw string, rec rawRecord) error {
	if strings.TrimSpace(rec.start) == "" {
		return n.malformed(index, raw, "missing start timestamp")
	}
	start, err := ParseTimestamp(rec.start)
	if err != nil {
		return n.malformed(index, raw, fmt.Sprintf("start: %v", err))
	}

	var end *time.Time
	if strings.TrimSpace(rec.end) != "" {
		t, err := ParseTimestamp(rec.end)
		if err != nil {
			return n.malformed(index, raw, fmt.Sprintf("end: %v", err))
		}
		if t.Before(start) {
			return n.malformed(index, raw, "end is before start")
		}
		end = &t
	}

	tags, duplicates := dedupeTags(rec.tags)
	for _, tag := range duplicates {
		n.sink.report(Diagnostic{
			Kind:    KindDuplicateTag,
			Index:   index,
			Raw:     raw,
			Message: fmt.Sprintf("duplicate tag %q collapsed", tag),
		})
	}

	n.entries = append(n.entries, Entry{
		Start:      start,
		End:        end,
		Tags:       tags,
		Annotation: rec.annotation,
		Index:      index,
	})
	return nil
}

func (n *normalizer) malformed(index int, raw, reason string) error {
	err := &MalformedRecordError{Index: index, Raw: raw, Reason: reason}
	if n.sink == nil {
		return err
	}
	n.sink(Diagnostic{
		Kind:    KindMalformed,
		Index:   index,
		Raw:     raw,
		Message: reason,
		Err:     err,
	})
	return nil
}

func splitTags(field string) []string {
	var tags []string
	for _, tag := range strings.Split(field, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

// dedupeTags returns the distinct non-empty tags in ascending order and the
// tags that appeared more than once.
func dedupeTags(tags []string) (distinct, duplicates []string) {
	seen := make(map[string]int, len(tags))
	for _, tag := range tags {
		if tag == "" {
			continue
		}
		seen[tag]++
		if seen[tag] == 1 {
			distinct = append(distinct, tag)
		} else if seen[tag] == 2 {
			duplicates = append(duplicates, tag)
		}
	}
	sort.Strings(distinct)
	if distinct == nil {
		distinct = []string{}
	}
	return distinct, duplicates
}
