// Package invoice assembles rated line items and party details into a
// complete, immutable invoice.
package invoice

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/johnmatter/timewarrior-invoice/pkg/billing"
	"github.com/johnmatter/timewarrior-invoice/pkg/invoiceid"
)

// Invoice is the aggregate root handed to renderers and the history store.
// It is a plain value; nothing in this module mutates it after Assemble.
type Invoice struct {
	Number              string          `json:"number"`
	Biller              Biller          `json:"biller"`
	Client              Client          `json:"client"`
	Period              Period          `json:"period"`
	IssueDate           time.Time       `json:"issue_date"`
	DueDate             time.Time       `json:"due_date"`
	Items               []billing.Item  `json:"items"`
	TotalHours          decimal.Decimal `json:"total_hours"`
	Subtotal            decimal.Decimal `json:"subtotal"`
	TaxRate             decimal.Decimal `json:"tax_rate"`
	TaxAmount           decimal.Decimal `json:"tax_amount"`
	Total               decimal.Decimal `json:"total"`
	PaymentTerms        string          `json:"payment_terms"`
	PaymentInstructions string          `json:"payment_instructions,omitempty"`
	Notes               string          `json:"notes,omitempty"`
	TermsAndConditions  string          `json:"terms_and_conditions,omitempty"`
	Reference           time.Time       `json:"reference"`
}

// Defaults are the biller-wide settings a client may override.
type Defaults struct {
	TaxRate             decimal.Decimal
	PaymentTerms        string
	PaymentInstructions string
	Notes               string
	TermsAndConditions  string
}

// Request carries everything Assemble needs.
type Request struct {
	Biller    Biller
	Client    Client
	Period    Period
	Items     []billing.Item
	Defaults  Defaults
	Reference time.Time
	// IssueDate defaults to Period.End when zero.
	IssueDate time.Time
}

// Assembler builds invoices. The zero value is ready to use.
type Assembler struct {
	// NewNumber derives the invoice number. Nil means invoiceid.Generate.
	NewNumber func(invoiceid.Input) string
}

// Assemble builds an invoice with the zero Assembler.
func Assemble(req Request) (*Invoice, error) {
	return Assembler{}.Assemble(req)
}

// Assemble validates req and builds the invoice. Either a complete invoice
// is returned or an error, never both.
//
// The subtotal is the exact sum of item amounts. Tax is rounded half-even
// to currency precision once, on the subtotal.
func (a Assembler) Assemble(req Request) (*Invoice, error) {
	if err := req.Biller.validate(req.Client.ID); err != nil {
		return nil, err
	}
	if err := req.Client.validate(); err != nil {
		return nil, err
	}
	if req.Period.Start.IsZero() {
		return nil, &IncompleteConfigurationError{Party: "period", ClientID: req.Client.ID, Field: "start"}
	}
	if req.Period.End.IsZero() {
		return nil, &IncompleteConfigurationError{Party: "period", ClientID: req.Client.ID, Field: "end"}
	}
	if req.Period.End.Before(req.Period.Start) {
		return nil, &InvalidPeriodError{
			Start:  req.Period.Start.Format(time.DateOnly),
			End:    req.Period.End.Format(time.DateOnly),
			Reason: "end is before start",
		}
	}
	if req.Reference.IsZero() {
		return nil, fmt.Errorf("client %q period %s: reference timestamp is required", req.Client.ID, req.Period)
	}

	items := cloneItems(req.Items)
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.Amount)
	}

	taxRate := req.Defaults.TaxRate
	if req.Client.TaxRate != nil {
		taxRate = *req.Client.TaxRate
	}
	taxAmount := subtotal.Mul(taxRate).RoundBank(billing.CurrencyPlaces)

	terms := firstNonEmpty(req.Client.PaymentTerms, req.Defaults.PaymentTerms, DefaultPaymentTerms)
	issue := truncateDay(req.IssueDate)
	if issue.IsZero() {
		issue = req.Period.End
	}

	totalHours := billing.TotalHours(items)
	newNumber := a.NewNumber
	if newNumber == nil {
		newNumber = invoiceid.Generate
	}
	number := newNumber(invoiceid.Input{
		ClientID:    req.Client.ID,
		Prefix:      req.Client.Prefix,
		PeriodStart: req.Period.Start,
		PeriodEnd:   req.Period.End,
		TotalHours:  totalHours,
		Tags:        billing.Keys(items),
		Reference:   req.Reference,
	})

	return &Invoice{
		Number:              number,
		Biller:              req.Biller,
		Client:              req.Client,
		Period:              req.Period,
		IssueDate:           issue,
		DueDate:             DueDate(issue, terms),
		Items:               items,
		TotalHours:          totalHours,
		Subtotal:            subtotal,
		TaxRate:             taxRate,
		TaxAmount:           taxAmount,
		Total:               subtotal.Add(taxAmount),
		PaymentTerms:        terms,
		PaymentInstructions: req.Defaults.PaymentInstructions,
		Notes:               req.Defaults.Notes,
		TermsAndConditions:  req.Defaults.TermsAndConditions,
		Reference:           req.Reference.UTC(),
	}, nil
}

// IdentityInput returns the identity generator input the invoice was numbered from.
func (inv *Invoice) IdentityInput() invoiceid.Input {
	return invoiceid.Input{
		ClientID:    inv.Client.ID,
		Prefix:      inv.Client.Prefix,
		PeriodStart: inv.Period.Start,
		PeriodEnd:   inv.Period.End,
		TotalHours:  inv.TotalHours,
		Tags:        billing.Keys(inv.Items),
		Reference:   inv.Reference,
	}
}

// Check verifies the arithmetic invariants of an assembled invoice.
func (inv *Invoice) Check() error {
	var problems []string

	sum := decimal.Zero
	for _, item := range inv.Items {
		sum = sum.Add(item.Amount)
		want := item.Hours.Mul(item.Rate).RoundBank(billing.CurrencyPlaces)
		if !want.Equal(item.Amount) {
			problems = append(problems, fmt.Sprintf("item %q amount %s, expected %s", item.Key, item.Amount, want))
		}
		if item.Hours.IsNegative() || item.Rate.IsNegative() {
			problems = append(problems, fmt.Sprintf("item %q has negative hours or rate", item.Key))
		}
	}
	if !sum.Equal(inv.Subtotal) {
		problems = append(problems, fmt.Sprintf("subtotal %s, expected %s", inv.Subtotal, sum))
	}
	if !inv.Subtotal.Add(inv.TaxAmount).Equal(inv.Total) {
		problems = append(problems, fmt.Sprintf("total %s != subtotal %s + tax %s", inv.Total, inv.Subtotal, inv.TaxAmount))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invoice %s: %s", inv.Number, strings.Join(problems, "; "))
	}
	return nil
}

func cloneItems(items []billing.Item) []billing.Item {
	cloned := make([]billing.Item, len(items))
	for i, item := range items {
		item.Tags = slices.Clone(item.Tags)
		cloned[i] = item
	}
	return cloned
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
