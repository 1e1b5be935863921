package render

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/johnmatter/timewarrior-invoice/pkg/billing"
	"github.com/johnmatter/timewarrior-invoice/pkg/invoice"
	"github.com/johnmatter/timewarrior-invoice/pkg/pathutil"
)

func testInvoice(t *testing.T, taxRate string) *invoice.Invoice {
	t.Helper()
	period, err := invoice.ParsePeriod("2025-07-01", "2025-07-31")
	if err != nil {
		t.Fatalf("ParsePeriod() error = %v", err)
	}
	inv, err := invoice.Assemble(invoice.Request{
		Biller: invoice.Biller{
			Name:    "John Matter",
			Address: invoice.Address{Street: "1 Main St", City: "Springfield", State: "OR", PostalCode: "97477"},
			Email:   "john_matter@example.com",
		},
		Client: invoice.Client{
			ID:      "ml",
			Prefix:  "ml",
			Name:    "Madrona Labs & Co",
			Address: invoice.Address{Street: "2 Water St", City: "Seattle"},
		},
		Period: period,
		Items: []billing.Item{{
			Key:         "code",
			Description: "code: fix 100% of #bugs",
			Hours:       decimal.RequireFromString("3.5"),
			Rate:        decimal.RequireFromString("150"),
			Amount:      decimal.RequireFromString("525"),
		}},
		Defaults:  invoice.Defaults{TaxRate: decimal.RequireFromString(taxRate), PaymentInstructions: "Pay by wire"},
		Reference: time.Date(2025, 7, 16, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	return inv
}

func TestEscapeLaTeX(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"plain", "plain"},
		{"R&D", `R\&D`},
		{"100%", `100\%`},
		{"$5 #1", `\$5 \#1`},
		{"a_b", `a\_b`},
		{`back\slash`, `back\textbackslash{}slash`},
		{"{x}", `\{x\}`},
		{"~^", `\textasciitilde{}\textasciicircum{}`},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := EscapeLaTeX(tt.in); got != tt.expected {
				t.Errorf("EscapeLaTeX(%q) = %q, expected %q", tt.in, got, tt.expected)
			}
		})
	}
}

func TestLaTeXSource(t *testing.T) {
	l, err := NewLaTeX("")
	if err != nil {
		t.Fatalf("NewLaTeX() error = %v", err)
	}

	src, err := l.Source(testInvoice(t, "0.1"))
	if err != nil {
		t.Fatalf("Source() error = %v", err)
	}
	out := string(src)

	for _, want := range []string{
		`\documentclass`,
		`ml-`,
		`Madrona Labs \& Co`,
		`code: fix 100\% of \#bugs`,
		`john\_matter@example.com`,
		`\$525.00`,
		`3.50`,
		`tax (10\%)`,
		`\$52.50`,
		`\$577.50`,
		`1 Main St\\Springfield, OR 97477`,
		`Pay by wire`,
		`July 31, 2025`,
		`\end{document}`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("source does not contain %q", want)
		}
	}
	if strings.Contains(out, "<<") {
		t.Errorf("source contains unexpanded template actions")
	}
}

func TestLaTeXSourceTermsAndConditions(t *testing.T) {
	l, err := NewLaTeX("")
	if err != nil {
		t.Fatalf("NewLaTeX() error = %v", err)
	}
	inv := testInvoice(t, "0")
	src, err := l.Source(inv)
	if err != nil {
		t.Fatalf("Source() error = %v", err)
	}
	if strings.Contains(string(src), "Terms and conditions") {
		t.Errorf("empty terms and conditions still rendered")
	}

	inv.TermsAndConditions = "Late fee of 5% after 30 days"
	src, err = l.Source(inv)
	if err != nil {
		t.Fatalf("Source() error = %v", err)
	}
	if !strings.Contains(string(src), `Late fee of 5\% after 30 days`) {
		t.Errorf("terms and conditions missing from source")
	}
}

func TestLaTeXSourceWithoutTax(t *testing.T) {
	l, err := NewLaTeX("")
	if err != nil {
		t.Fatalf("NewLaTeX() error = %v", err)
	}
	src, err := l.Source(testInvoice(t, "0"))
	if err != nil {
		t.Fatalf("Source() error = %v", err)
	}
	if strings.Contains(string(src), "tax (") {
		t.Errorf("zero tax rate still renders a tax row")
	}
}

func TestNewLaTeXCustomTemplate(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.tex")
	if err := os.WriteFile(good, []byte(`<< .Number >> << money .Total >>`), 0644); err != nil {
		t.Fatal(err)
	}
	bad := filepath.Join(dir, "bad.tex")
	if err := os.WriteFile(bad, []byte(`<< .Number`), 0644); err != nil {
		t.Fatal(err)
	}

	l, err := NewLaTeX(good)
	if err != nil {
		t.Fatalf("NewLaTeX(good) error = %v", err)
	}
	inv := testInvoice(t, "0")
	src, err := l.Source(inv)
	if err != nil {
		t.Fatalf("Source() error = %v", err)
	}
	if want := inv.Number + ` \$525.00`; string(src) != want {
		t.Errorf("Source() = %q, expected %q", src, want)
	}

	if _, err := NewLaTeX(bad); err == nil {
		t.Error("NewLaTeX(bad) succeeded, expected a parse error")
	}
	if _, err := NewLaTeX(filepath.Join(dir, "missing.tex")); err == nil {
		t.Error("NewLaTeX(missing) succeeded, expected a read error")
	}
}

func TestParseLog(t *testing.T) {
	log := `This is pdfTeX, Version 3.141592653
(./ml-1a2b3c4d.tex
! Undefined control sequence.
l.42 \badcommand
                {x}
No pages of output.`

	ce := ParseLog(log)
	if ce.Message != "Undefined control sequence." {
		t.Errorf("Message = %q", ce.Message)
	}
	if ce.Line != 42 || ce.Fragment != `\badcommand` {
		t.Errorf("Line, Fragment = %d, %q; expected 42, \\badcommand", ce.Line, ce.Fragment)
	}
	if !strings.Contains(ce.Error(), "line 42") {
		t.Errorf("Error() = %q", ce.Error())
	}

	if empty := ParseLog("all good"); empty.Message != "" || empty.Line != 0 {
		t.Errorf("ParseLog(clean) = %+v, expected no error", empty)
	}
}

func TestPDFCompilerMissingCommand(t *testing.T) {
	texPath := filepath.Join(t.TempDir(), "x.tex")
	if err := os.WriteFile(texPath, []byte(`\relax`), 0644); err != nil {
		t.Fatal(err)
	}

	c := PDFCompiler{Command: "pdflatex-definitely-not-installed"}
	_, err := c.Compile(context.Background(), texPath)
	var ce *CompileError
	if !errors.As(err, &ce) {
		t.Fatalf("Compile() error = %v, expected CompileError", err)
	}
	if _, err := CheckEnvironment(c.Command); err == nil {
		t.Error("CheckEnvironment() found a command that does not exist")
	}
}

func TestWorkbook(t *testing.T) {
	inv := testInvoice(t, "0.1")
	f, err := Workbook(inv)
	if err != nil {
		t.Fatalf("Workbook() error = %v", err)
	}
	defer f.Close()

	number, err := f.GetCellValue(xlsxSheet, "B1")
	if err != nil {
		t.Fatalf("GetCellValue() error = %v", err)
	}
	if number != inv.Number {
		t.Errorf("B1 = %q, expected %q", number, inv.Number)
	}

	rows, err := f.GetRows(xlsxSheet, excelize.Options{RawCellValue: true})
	if err != nil {
		t.Fatalf("GetRows() error = %v", err)
	}
	var foundItem, foundTotal bool
	for _, row := range rows {
		if len(row) >= 2 && row[0] == "code" && strings.HasPrefix(row[1], "code:") {
			foundItem = true
		}
		if len(row) >= 5 && row[3] == "Total" && row[4] == "577.5" {
			foundTotal = true
		}
	}
	if !foundItem {
		t.Errorf("workbook has no line item row: %v", rows)
	}
	if !foundTotal {
		t.Errorf("workbook has no total row of 577.5: %v", rows)
	}
}

func TestDocumentWriter(t *testing.T) {
	root := t.TempDir()
	renderers, err := New([]string{FormatTeX, FormatXLSX}, Options{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	w := NewDocumentWriter(pathutil.New(pathutil.Config{OutputDir: root}), renderers, nil)

	inv := testInvoice(t, "0")
	docs, err := w.Write(context.Background(), inv)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("Write() = %d documents, expected 2", len(docs))
	}

	dir := filepath.Join(root, "ml", "2025", "07")
	for _, doc := range docs {
		want := filepath.Join(dir, inv.Number+"."+doc.Format)
		if doc.Path != want {
			t.Errorf("%s path = %q, expected %q", doc.Format, doc.Path, want)
		}
		if _, err := os.Stat(doc.Path); err != nil {
			t.Errorf("%s not written: %v", doc.Format, err)
		}
	}

	if _, err := excelize.OpenFile(filepath.Join(dir, inv.Number+".xlsx")); err != nil {
		t.Errorf("written workbook does not open: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".partial") {
			t.Errorf("temporary file left behind: %s", e.Name())
		}
	}
}

func TestDocumentWriterReplacesExisting(t *testing.T) {
	root := t.TempDir()
	renderers, err := New([]string{FormatTeX}, Options{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	w := NewDocumentWriter(pathutil.New(pathutil.Config{OutputDir: root}), renderers, nil)
	inv := testInvoice(t, "0")

	path, err := w.Path(inv, FormatTeX)
	if err != nil {
		t.Fatalf("Path() error = %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("stale"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := w.Write(context.Background(), inv); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `\documentclass`) {
		t.Errorf("existing document was not replaced: %q", data)
	}
}

func TestDocumentWriterFailureLeavesNoPartialFile(t *testing.T) {
	root := t.TempDir()
	renderers, err := New([]string{FormatPDF}, Options{Compiler: PDFCompiler{Command: "pdflatex-definitely-not-installed"}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	w := NewDocumentWriter(pathutil.New(pathutil.Config{OutputDir: root}), renderers, nil)

	inv := testInvoice(t, "0")
	if _, err := w.Write(context.Background(), inv); err == nil {
		t.Fatal("Write() succeeded without a LaTeX compiler")
	}

	path, _ := w.Path(inv, FormatPDF)
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("document exists after failed render: %v", err)
	}
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 0 {
		t.Errorf("directory not empty after failed render: %v", entries)
	}
}

func TestNewUnknownFormat(t *testing.T) {
	if _, err := New([]string{"docx"}, Options{}); err == nil {
		t.Error("New(docx) succeeded")
	}
}
