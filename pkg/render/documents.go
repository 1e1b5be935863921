package render

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/johnmatter/timewarrior-invoice/pkg/invoice"
	"github.com/johnmatter/timewarrior-invoice/pkg/pathutil"
)

// Document is a file written for an invoice.
type Document struct {
	Format string
	Path   string
}

// DocumentWriter places rendered documents in the output layout
// {output}/{client}/{yyyy}/{mm}/{number}.{ext}.
type DocumentWriter struct {
	pathResolver *pathutil.PathResolver
	renderers    []Renderer
	logger       *slog.Logger
}

// NewDocumentWriter creates a new DocumentWriter.
func NewDocumentWriter(pathResolver *pathutil.PathResolver, renderers []Renderer, logger *slog.Logger) *DocumentWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentWriter{
		pathResolver: pathResolver,
		renderers:    renderers,
		logger:       logger,
	}
}

// Path returns where the document of the given format for inv is written.
func (w *DocumentWriter) Path(inv *invoice.Invoice, format string) (string, error) {
	return w.pathResolver.GetInvoicePath(inv.Client.ID, inv.Period.Start, inv.Number, format)
}

// Write renders every configured format for inv. Each document is rendered
// to a temporary file and renamed into place, so a failed render never
// leaves a partial document at the final path. Documents already written
// in this call are kept when a later format fails.
func (w *DocumentWriter) Write(ctx context.Context, inv *invoice.Invoice) ([]Document, error) {
	docs := make([]Document, 0, len(w.renderers))
	for _, r := range w.renderers {
		path, err := w.Path(inv, r.Format())
		if err != nil {
			return docs, err
		}
		if err := w.pathResolver.EnsureParentDir(path); err != nil {
			return docs, err
		}

		replacing := w.pathResolver.FileExists(path)
		tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".partial")
		if err := r.Render(ctx, inv, tmp); err != nil {
			os.Remove(tmp)
			return docs, fmt.Errorf("failed to render %s: %w", r.Format(), err)
		}
		if err := os.Rename(tmp, path); err != nil {
			os.Remove(tmp)
			return docs, fmt.Errorf("failed to move %s into place: %w", path, err)
		}

		w.logger.Info("Wrote invoice document", "invoice", inv.Number, "format", r.Format(), "path", path, "replaced", replacing)
		docs = append(docs, Document{Format: r.Format(), Path: path})
	}
	return docs, nil
}
