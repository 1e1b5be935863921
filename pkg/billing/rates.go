// Package billing groups normalized time entries into rated line items.
package billing

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// DefaultRateKey is the rate table key used when no exact key matches.
const DefaultRateKey = "default"

// RateTable maps a billing key (project or task tag) to an hourly rate.
// It is read-only once built and may be shared between concurrent runs.
type RateTable map[string]decimal.Decimal

// MissingRateError is returned when neither the key nor DefaultRateKey has a rate.
type MissingRateError struct {
	Key string
}

func (e *MissingRateError) Error() string {
	return fmt.Sprintf("no rate for %q and no %q rate configured", e.Key, DefaultRateKey)
}

// NewRateTable converts plain float rates (as decoded from configuration).
func NewRateTable(rates map[string]float64) RateTable {
	table := make(RateTable, len(rates))
	for key, rate := range rates {
		table[key] = decimal.NewFromFloat(rate)
	}
	return table
}

// Lookup resolves the rate for key: exact match, else the default rate.
func (r RateTable) Lookup(key string) (decimal.Decimal, error) {
	if rate, ok := r[key]; ok {
		return rate, nil
	}
	if rate, ok := r[DefaultRateKey]; ok {
		return rate, nil
	}
	return decimal.Zero, &MissingRateError{Key: key}
}

// Validate checks that a default rate exists and no rate is negative.
func (r RateTable) Validate() error {
	if _, ok := r[DefaultRateKey]; !ok {
		return &MissingRateError{Key: DefaultRateKey}
	}
	for _, key := range r.Keys() {
		if r[key].IsNegative() {
			return fmt.Errorf("rate for %q is negative: %s", key, r[key])
		}
	}
	return nil
}

// Keys returns the configured keys in ascending order.
func (r RateTable) Keys() []string {
	keys := make([]string, 0, len(r))
	for key := range r {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Merge returns a new table with overrides applied on top of r.
func (r RateTable) Merge(overrides RateTable) RateTable {
	merged := make(RateTable, len(r)+len(overrides))
	for key, rate := range r {
		merged[key] = rate
	}
	for key, rate := range overrides {
		merged[key] = rate
	}
	return merged
}
