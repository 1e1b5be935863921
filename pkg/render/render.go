// Package render turns assembled invoices into documents: LaTeX source,
// PDF compiled through an external LaTeX distribution, and XLSX workbooks.
package render

import (
	"context"
	"fmt"

	"github.com/johnmatter/timewarrior-invoice/pkg/invoice"
)

// Renderer writes one document format for an invoice.
type Renderer interface {
	// Format is the document format and file extension, e.g. "pdf".
	Format() string
	Render(ctx context.Context, inv *invoice.Invoice, path string) error
}

// Options configures New.
type Options struct {
	TemplatePath string
	Compiler     PDFCompiler
}

// New builds one renderer per requested format, in order.
func New(formats []string, opts Options) ([]Renderer, error) {
	var latex *LaTeX
	loadLaTeX := func() (*LaTeX, error) {
		if latex != nil {
			return latex, nil
		}
		var err error
		latex, err = NewLaTeX(opts.TemplatePath)
		return latex, err
	}

	renderers := make([]Renderer, 0, len(formats))
	for _, format := range formats {
		switch format {
		case FormatTeX:
			l, err := loadLaTeX()
			if err != nil {
				return nil, err
			}
			renderers = append(renderers, l)
		case FormatPDF:
			l, err := loadLaTeX()
			if err != nil {
				return nil, err
			}
			renderers = append(renderers, &PDF{LaTeX: l, Compiler: opts.Compiler})
		case FormatXLSX:
			renderers = append(renderers, XLSX{})
		default:
			return nil, fmt.Errorf("unknown document format %q", format)
		}
	}
	return renderers, nil
}
