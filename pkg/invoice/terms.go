package invoice

import (
	"strconv"
	"strings"
	"time"
)

// DefaultPaymentTerms applies when neither the client nor the defaults set terms.
const DefaultPaymentTerms = "Net 30"

const defaultNetDays = 30

// DueDate computes the due date for issue under terms. "Due on receipt"
// is due immediately, "Net N" after N days; anything else falls back to
// Net 30.
func DueDate(issue time.Time, terms string) time.Time {
	terms = strings.ToLower(strings.TrimSpace(terms))
	if terms == "due on receipt" {
		return issue
	}
	if days, ok := strings.CutPrefix(terms, "net"); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(days)); err == nil && n >= 0 {
			return issue.AddDate(0, 0, n)
		}
	}
	return issue.AddDate(0, 0, defaultNetDays)
}
