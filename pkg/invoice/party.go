package invoice

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Address is a postal address.
type Address struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"`
}

// Lines returns the non-empty address lines in display order.
func (a Address) Lines() []string {
	locality := strings.TrimSpace(a.City)
	if rest := strings.Join(nonEmpty(a.State, a.PostalCode), " "); rest != "" {
		if locality != "" {
			locality += ", "
		}
		locality += rest
	}
	return nonEmpty(a.Street, locality, a.Country)
}

func (a Address) String() string {
	return strings.Join(a.Lines(), "\n")
}

// Biller is the party issuing the invoice.
type Biller struct {
	Name    string  `json:"name"`
	Address Address `json:"address"`
	Email   string  `json:"email,omitempty"`
	Phone   string  `json:"phone,omitempty"`
	TaxID   string  `json:"tax_id,omitempty"`
	Website string  `json:"website,omitempty"`
}

// Client is the billed party. Prefix decorates invoice numbers.
type Client struct {
	ID      string  `json:"id"`
	Prefix  string  `json:"prefix"`
	Name    string  `json:"name"`
	Address Address `json:"address"`
	Email   string  `json:"email,omitempty"`
	Phone   string  `json:"phone,omitempty"`
	TaxID   string  `json:"tax_id,omitempty"`
	// TaxRate overrides Defaults.TaxRate when set.
	TaxRate *decimal.Decimal `json:"tax_rate,omitempty"`
	// PaymentTerms overrides Defaults.PaymentTerms when non-empty.
	PaymentTerms string `json:"payment_terms,omitempty"`
}

// IncompleteConfigurationError names a legally required field that is empty.
type IncompleteConfigurationError struct {
	Party    string // "biller", "client" or "period"
	ClientID string
	Field    string
}

func (e *IncompleteConfigurationError) Error() string {
	if e.ClientID != "" {
		return fmt.Sprintf("incomplete configuration for client %q: %s %s is required", e.ClientID, e.Party, e.Field)
	}
	return fmt.Sprintf("incomplete configuration: %s %s is required", e.Party, e.Field)
}

func (b Biller) validate(clientID string) error {
	return requireFields("biller", clientID, map[string]string{
		"name":           b.Name,
		"address.street": b.Address.Street,
		"address.city":   b.Address.City,
	})
}

func (c Client) validate() error {
	return requireFields("client", c.ID, map[string]string{
		"id":             c.ID,
		"prefix":         c.Prefix,
		"name":           c.Name,
		"address.street": c.Address.Street,
		"address.city":   c.Address.City,
	})
}

// requireFields reports the first empty field in a fixed order so errors are stable.
func requireFields(party, clientID string, fields map[string]string) error {
	for _, name := range []string{"id", "prefix", "name", "address.street", "address.city"} {
		value, ok := fields[name]
		if ok && strings.TrimSpace(value) == "" {
			return &IncompleteConfigurationError{Party: party, ClientID: clientID, Field: name}
		}
	}
	return nil
}

func nonEmpty(values ...string) []string {
	result := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			result = append(result, v)
		}
	}
	return result
}
