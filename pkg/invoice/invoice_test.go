package invoice

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/johnmatter/timewarrior-invoice/pkg/billing"
	"github.com/johnmatter/timewarrior-invoice/pkg/invoiceid"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testRequest(t *testing.T) Request {
	t.Helper()
	period, err := ParsePeriod("2025-07-01", "2025-07-31")
	if err != nil {
		t.Fatalf("ParsePeriod() error = %v", err)
	}
	return Request{
		Biller: Biller{
			Name:    "John Matter",
			Address: Address{Street: "1 Main St", City: "Springfield", State: "OR", PostalCode: "97477"},
			Email:   "john@example.com",
		},
		Client: Client{
			ID:      "ml",
			Prefix:  "ml",
			Name:    "Madrona Labs",
			Address: Address{Street: "2 Water St", City: "Seattle", State: "WA", PostalCode: "98101", Country: "USA"},
		},
		Period: period,
		Items: []billing.Item{
			{Key: "code", Description: "code", Hours: dec("3.50"), Rate: dec("150"), Amount: dec("525.00"), Tags: []string{"code"}},
			{Key: "design", Description: "design", Hours: dec("1.25"), Rate: dec("100"), Amount: dec("125.00"), Tags: []string{"design"}},
		},
		Defaults: Defaults{
			TaxRate:             dec("0.1"),
			PaymentTerms:        "Net 15",
			PaymentInstructions: "Wire transfer",
			TermsAndConditions:  "Late payments accrue interest.",
		},
		Reference: time.Date(2025, 7, 16, 0, 0, 0, 0, time.UTC),
	}
}

func TestAssemble(t *testing.T) {
	inv, err := Assemble(testRequest(t))
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}

	checks := []struct {
		name     string
		got      decimal.Decimal
		expected string
	}{
		{"subtotal", inv.Subtotal, "650"},
		{"tax amount", inv.TaxAmount, "65"},
		{"total", inv.Total, "715"},
		{"total hours", inv.TotalHours, "4.75"},
	}
	for _, c := range checks {
		if !c.got.Equal(dec(c.expected)) {
			t.Errorf("%s = %s, expected %s", c.name, c.got, c.expected)
		}
	}

	wantIssue := time.Date(2025, 7, 31, 0, 0, 0, 0, time.UTC)
	if !inv.IssueDate.Equal(wantIssue) {
		t.Errorf("IssueDate = %v, expected period end %v", inv.IssueDate, wantIssue)
	}
	if want := wantIssue.AddDate(0, 0, 15); !inv.DueDate.Equal(want) {
		t.Errorf("DueDate = %v, expected %v", inv.DueDate, want)
	}
	if inv.PaymentTerms != "Net 15" {
		t.Errorf("PaymentTerms = %q, expected Net 15", inv.PaymentTerms)
	}
	if inv.TermsAndConditions != "Late payments accrue interest." {
		t.Errorf("TermsAndConditions = %q", inv.TermsAndConditions)
	}
	if !invoiceid.Verify(inv.Number, inv.IdentityInput()) {
		t.Errorf("number %q does not verify against its own identity input", inv.Number)
	}
	if err := inv.Check(); err != nil {
		t.Errorf("Check() error = %v", err)
	}
}

func TestAssembleEmptyItems(t *testing.T) {
	req := testRequest(t)
	req.Items = nil

	inv, err := Assemble(req)
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	if len(inv.Items) != 0 {
		t.Errorf("Items = %v, expected none", inv.Items)
	}
	for name, got := range map[string]decimal.Decimal{
		"subtotal": inv.Subtotal,
		"tax":      inv.TaxAmount,
		"total":    inv.Total,
	} {
		if !got.IsZero() {
			t.Errorf("%s = %s, expected 0", name, got)
		}
	}
	if got := inv.Total.StringFixedBank(2); got != "0.00" {
		t.Errorf("formatted total = %q, expected 0.00", got)
	}
}

func TestAssembleTaxRounding(t *testing.T) {
	tests := []struct {
		name     string
		subtotal string
		rate     string
		tax      string
	}{
		{"half rounds to even down", "0.25", "0.1", "0.02"},
		{"half rounds to even up", "0.35", "0.1", "0.04"},
		{"no tax", "100.00", "0", "0"},
		{"fractional rate", "199.99", "0.0825", "16.50"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := testRequest(t)
			req.Defaults.TaxRate = dec(tt.rate)
			req.Items = []billing.Item{{Key: "code", Hours: dec("1"), Rate: dec(tt.subtotal), Amount: dec(tt.subtotal)}}

			inv, err := Assemble(req)
			if err != nil {
				t.Fatalf("Assemble() error = %v", err)
			}
			if !inv.TaxAmount.Equal(dec(tt.tax)) {
				t.Errorf("TaxAmount = %s, expected %s", inv.TaxAmount, tt.tax)
			}
			if !inv.Total.Equal(inv.Subtotal.Add(inv.TaxAmount)) {
				t.Errorf("Total %s != Subtotal %s + Tax %s", inv.Total, inv.Subtotal, inv.TaxAmount)
			}
		})
	}
}

func TestAssembleClientOverrides(t *testing.T) {
	req := testRequest(t)
	rate := dec("0")
	req.Client.TaxRate = &rate
	req.Client.PaymentTerms = "Due on receipt"

	inv, err := Assemble(req)
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	if !inv.TaxAmount.IsZero() {
		t.Errorf("TaxAmount = %s, expected client override of 0", inv.TaxAmount)
	}
	if !inv.DueDate.Equal(inv.IssueDate) {
		t.Errorf("DueDate = %v, expected issue date for due on receipt", inv.DueDate)
	}
}

func TestAssembleDeterministic(t *testing.T) {
	first, err := Assemble(testRequest(t))
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	firstJSON, err := json.Marshal(first)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	for i := 0; i < 20; i++ {
		inv, err := Assemble(testRequest(t))
		if err != nil {
			t.Fatalf("Assemble() error = %v", err)
		}
		got, _ := json.Marshal(inv)
		if string(got) != string(firstJSON) {
			t.Fatalf("run %d differs:\n%s\nexpected\n%s", i, got, firstJSON)
		}
	}
}

func TestAssembleCallsNumberOnce(t *testing.T) {
	var calls []invoiceid.Input
	a := Assembler{NewNumber: func(in invoiceid.Input) string {
		calls = append(calls, in)
		return "TEST-1"
	}}

	inv, err := a.Assemble(testRequest(t))
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	if len(calls) != 1 {
		t.Fatalf("NewNumber called %d times, expected 1", len(calls))
	}
	if inv.Number != "TEST-1" {
		t.Errorf("Number = %q, expected TEST-1", inv.Number)
	}
	if !reflect.DeepEqual(calls[0].Tags, []string{"code", "design"}) {
		t.Errorf("identity tags = %v, expected [code design]", calls[0].Tags)
	}
	if !calls[0].TotalHours.Equal(dec("4.75")) {
		t.Errorf("identity hours = %s, expected 4.75", calls[0].TotalHours)
	}
}

func TestAssembleDoesNotAliasItems(t *testing.T) {
	req := testRequest(t)
	inv, err := Assemble(req)
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	req.Items[0].Tags[0] = "changed"
	req.Items[0].Amount = dec("1")
	if inv.Items[0].Tags[0] != "code" || !inv.Items[0].Amount.Equal(dec("525")) {
		t.Errorf("invoice items changed with the request: %+v", inv.Items[0])
	}
}

func TestAssembleIncompleteConfiguration(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Request)
		party  string
		field  string
	}{
		{"biller name", func(r *Request) { r.Biller.Name = "" }, "biller", "name"},
		{"biller street", func(r *Request) { r.Biller.Address.Street = " " }, "biller", "address.street"},
		{"biller city", func(r *Request) { r.Biller.Address.City = "" }, "biller", "address.city"},
		{"client id", func(r *Request) { r.Client.ID = "" }, "client", "id"},
		{"client prefix", func(r *Request) { r.Client.Prefix = "" }, "client", "prefix"},
		{"client name", func(r *Request) { r.Client.Name = "" }, "client", "name"},
		{"client city", func(r *Request) { r.Client.Address.City = "" }, "client", "address.city"},
		{"period start", func(r *Request) { r.Period.Start = time.Time{} }, "period", "start"},
		{"period end", func(r *Request) { r.Period.End = time.Time{} }, "period", "end"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := testRequest(t)
			tt.mutate(&req)

			inv, err := Assemble(req)
			if inv != nil {
				t.Errorf("Assemble() returned an invoice alongside an error")
			}
			var incomplete *IncompleteConfigurationError
			if !errors.As(err, &incomplete) {
				t.Fatalf("Assemble() error = %v, expected IncompleteConfigurationError", err)
			}
			if incomplete.Party != tt.party || incomplete.Field != tt.field {
				t.Errorf("error names %s %s, expected %s %s", incomplete.Party, incomplete.Field, tt.party, tt.field)
			}
		})
	}
}

func TestAssembleInvalidPeriod(t *testing.T) {
	req := testRequest(t)
	req.Period.Start, req.Period.End = req.Period.End, req.Period.Start

	_, err := Assemble(req)
	var invalid *InvalidPeriodError
	if !errors.As(err, &invalid) {
		t.Fatalf("Assemble() error = %v, expected InvalidPeriodError", err)
	}
}

func TestAssembleRequiresReference(t *testing.T) {
	req := testRequest(t)
	req.Reference = time.Time{}
	if _, err := Assemble(req); err == nil {
		t.Fatal("Assemble() succeeded without a reference timestamp")
	}
}

func TestCheckDetectsTampering(t *testing.T) {
	inv, err := Assemble(testRequest(t))
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	inv.Total = inv.Total.Add(dec("0.01"))
	if err := inv.Check(); err == nil {
		t.Error("Check() accepted a total that is not subtotal + tax")
	}
}

func TestParsePeriod(t *testing.T) {
	tests := []struct {
		name    string
		start   string
		end     string
		wantErr bool
	}{
		{"month", "2025-07-01", "2025-07-31", false},
		{"single day", "2025-07-01", "2025-07-01", false},
		{"reversed", "2025-07-31", "2025-07-01", true},
		{"bad start", "07/01/2025", "2025-07-31", true},
		{"bad end", "2025-07-01", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePeriod(tt.start, tt.end)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParsePeriod() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPeriodMidpoint(t *testing.T) {
	p, _ := ParsePeriod("2025-07-01", "2025-07-31")
	want := time.Date(2025, 7, 16, 0, 0, 0, 0, time.UTC)
	if got := p.Midpoint(); !got.Equal(want) {
		t.Errorf("Midpoint() = %v, expected %v", got, want)
	}
}

func TestAddressLines(t *testing.T) {
	tests := []struct {
		name     string
		address  Address
		expected []string
	}{
		{
			"full",
			Address{Street: "1 Main St", City: "Springfield", State: "OR", PostalCode: "97477", Country: "USA"},
			[]string{"1 Main St", "Springfield, OR 97477", "USA"},
		},
		{
			"city only",
			Address{Street: "1 Main St", City: "Springfield"},
			[]string{"1 Main St", "Springfield"},
		},
		{
			"postal code without city",
			Address{Street: "1 Main St", PostalCode: "97477"},
			[]string{"1 Main St", "97477"},
		},
		{"empty", Address{}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.address.Lines(); !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("Lines() = %q, expected %q", got, tt.expected)
			}
		})
	}
}

func TestDueDate(t *testing.T) {
	issue := time.Date(2025, 7, 31, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		terms string
		days  int
	}{
		{"Net 30", 30},
		{"net 15", 15},
		{"NET45", 45},
		{"Due on receipt", 0},
		{"", 30},
		{"whenever", 30},
	}

	for _, tt := range tests {
		t.Run(tt.terms, func(t *testing.T) {
			want := issue.AddDate(0, 0, tt.days)
			if got := DueDate(issue, tt.terms); !got.Equal(want) {
				t.Errorf("DueDate(%q) = %v, expected %v", tt.terms, got, want)
			}
		})
	}
}
