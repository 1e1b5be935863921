package timeentry

import (
	"errors"
	"fmt"
)

// ErrUnparseableInput means the whole input could not be read in the declared
// format, as opposed to a single bad record.
var ErrUnparseableInput = errors.New("unparseable input")

// MalformedRecordError identifies a record that could not be normalized.
type MalformedRecordError struct {
	Index  int
	Raw    string
	Reason string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed record %d: %s: %q", e.Index, e.Reason, e.Raw)
}
