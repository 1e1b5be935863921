package render

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"text/template"
	"time"

	"github.com/shopspring/decimal"

	"github.com/johnmatter/timewarrior-invoice/pkg/billing"
	"github.com/johnmatter/timewarrior-invoice/pkg/invoice"
)

//go:embed templates/invoice.tex.tmpl
var defaultTemplate string

// FormatTeX is the LaTeX source format.
const FormatTeX = "tex"

var latexEscaper = strings.NewReplacer(
	`\`, `\textbackslash{}`,
	`{`, `\{`,
	`}`, `\}`,
	`$`, `\$`,
	`&`, `\&`,
	`%`, `\%`,
	`#`, `\#`,
	`^`, `\textasciicircum{}`,
	`_`, `\_`,
	`~`, `\textasciitilde{}`,
	`<`, `\textless{}`,
	`>`, `\textgreater{}`,
)

// EscapeLaTeX escapes the characters LaTeX treats specially.
func EscapeLaTeX(s string) string {
	return latexEscaper.Replace(s)
}

var templateFuncs = template.FuncMap{
	"tex": EscapeLaTeX,
	"money": func(d decimal.Decimal) string {
		return `\$` + d.StringFixedBank(billing.CurrencyPlaces)
	},
	"hours": func(d decimal.Decimal) string {
		return d.StringFixedBank(billing.HoursPlaces)
	},
	"percent": func(d decimal.Decimal) string {
		return d.Shift(2).String() + `\%`
	},
	"date": func(t time.Time) string {
		return t.Format("January 2, 2006")
	},
	"address": func(a invoice.Address) string {
		lines := a.Lines()
		for i, line := range lines {
			lines[i] = EscapeLaTeX(line)
		}
		return strings.Join(lines, `\\`)
	},
}

// LaTeX renders invoices as LaTeX source.
type LaTeX struct {
	tmpl *template.Template
}

// NewLaTeX parses the template at templatePath, or the built-in template
// when templatePath is empty. Templates use << >> as action delimiters.
func NewLaTeX(templatePath string) (*LaTeX, error) {
	text := defaultTemplate
	name := "invoice.tex"
	if templatePath != "" {
		data, err := os.ReadFile(templatePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read template: %w", err)
		}
		text = string(data)
		name = templatePath
	}

	tmpl, err := template.New(name).
		Delims("<<", ">>").
		Funcs(templateFuncs).
		Option("missingkey=error").
		Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
	}
	return &LaTeX{tmpl: tmpl}, nil
}

// Format returns the file extension this renderer produces.
func (l *LaTeX) Format() string { return FormatTeX }

// Source returns the LaTeX source for inv.
func (l *LaTeX) Source(inv *invoice.Invoice) ([]byte, error) {
	var buf bytes.Buffer
	if err := l.tmpl.Execute(&buf, inv); err != nil {
		return nil, fmt.Errorf("failed to render invoice %s: %w", inv.Number, err)
	}
	return buf.Bytes(), nil
}

// Render writes the LaTeX source for inv to path.
func (l *LaTeX) Render(_ context.Context, inv *invoice.Invoice, path string) error {
	src, err := l.Source(inv)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, src, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
