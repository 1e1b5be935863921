// Package generator wires the invoice pipeline together: it normalizes a
// time tracking export, selects a client's entries for a billing period,
// rates them, assembles the invoice and, when configured, writes documents
// and records the result in the history database.
package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/johnmatter/timewarrior-invoice/pkg/billing"
	"github.com/johnmatter/timewarrior-invoice/pkg/config"
	"github.com/johnmatter/timewarrior-invoice/pkg/db"
	"github.com/johnmatter/timewarrior-invoice/pkg/invoice"
	"github.com/johnmatter/timewarrior-invoice/pkg/render"
	"github.com/johnmatter/timewarrior-invoice/pkg/timeentry"
)

// ErrNoEntries is returned when a client has no entries in the period and
// the request does not allow empty invoices.
var ErrNoEntries = errors.New("no time entries for client in period")

// Request describes one invoice to generate.
type Request struct {
	ClientID string
	Period   invoice.Period
	Raw      []byte
	Format   timeentry.Format
	// Reference pins the identity of the invoice. Zero means the period midpoint.
	Reference time.Time
	// IssueDate defaults to the period end when zero.
	IssueDate time.Time
	// SkipClientFilter uses every entry in Raw instead of only the client's.
	SkipClientFilter bool
	// AllowEmpty assembles a zero-item invoice instead of failing with ErrNoEntries.
	AllowEmpty bool
}

// Result is a successfully generated invoice.
type Result struct {
	Invoice   *invoice.Invoice
	Warnings  []timeentry.Diagnostic
	Documents []render.Document
}

// Generator runs the pipeline against a billing configuration.
type Generator struct {
	config  *config.File
	writer  *render.DocumentWriter
	history *db.InvoiceHistory
	logger  *slog.Logger
	runID   string
}

// New creates a Generator. writer and history are optional; without them
// Generate only assembles the invoice.
func New(cfg *config.File, writer *render.DocumentWriter, history *db.InvoiceHistory, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	runID := uuid.NewString()
	return &Generator{
		config:  cfg,
		writer:  writer,
		history: history,
		logger:  logger.With("run_id", runID),
		runID:   runID,
	}
}

// RunID identifies this generator's run in logs and the history.
func (g *Generator) RunID() string {
	return g.runID
}

// Build runs the pure part of the pipeline and returns the assembled
// invoice with the diagnostics collected on the way. It performs no I/O.
func (g *Generator) Build(req Request) (*invoice.Invoice, []timeentry.Diagnostic, error) {
	wrap := func(err error) error {
		return fmt.Errorf("client %q period %s: %w", req.ClientID, req.Period, err)
	}

	client, err := g.config.InvoiceClient(req.ClientID)
	if err != nil {
		return nil, nil, wrap(err)
	}

	var warnings timeentry.Collector
	entries, err := timeentry.Normalize(req.Raw, req.Format, warnings.Report)
	if err != nil {
		return nil, warnings.Diagnostics, wrap(err)
	}
	if !req.SkipClientFilter {
		entries = timeentry.ForClient(entries, req.ClientID)
	}
	entries = timeentry.Within(entries, req.Period.Start, req.Period.End, warnings.Report)
	if len(entries) == 0 && !req.AllowEmpty {
		return nil, warnings.Diagnostics, wrap(ErrNoEntries)
	}

	aggregator := billing.Aggregator{
		KeyFunc: billing.TaskKey(req.ClientID),
		Sink:    warnings.Report,
	}
	items, err := aggregator.Aggregate(entries, g.config.RatesFor(req.ClientID))
	if err != nil {
		return nil, warnings.Diagnostics, wrap(err)
	}

	reference := req.Reference
	if reference.IsZero() {
		reference = req.Period.Midpoint()
	}

	inv, err := invoice.Assemble(invoice.Request{
		Biller:    g.config.InvoiceBiller(),
		Client:    client,
		Period:    req.Period,
		Items:     items,
		Defaults:  g.config.InvoiceDefaults(),
		Reference: reference,
		IssueDate: req.IssueDate,
	})
	if err != nil {
		return nil, warnings.Diagnostics, wrap(err)
	}
	if err := inv.Check(); err != nil {
		return nil, warnings.Diagnostics, wrap(err)
	}
	return inv, warnings.Diagnostics, nil
}

// Generate builds the invoice, writes its documents and records it.
// Nothing is written when Build fails.
func (g *Generator) Generate(ctx context.Context, req Request) (*Result, error) {
	g.logger.Info("Generating invoice", "client", req.ClientID, "period", req.Period.String())

	inv, warnings, err := g.Build(req)
	for _, w := range warnings {
		g.logger.Warn("Time entry warning", "client", req.ClientID, "kind", string(w.Kind), "index", w.Index, "message", w.Message)
	}
	if err != nil {
		return nil, err
	}

	result := &Result{Invoice: inv, Warnings: warnings}
	if g.writer != nil {
		docs, err := g.writer.Write(ctx, inv)
		result.Documents = docs
		if err != nil {
			return nil, fmt.Errorf("invoice %s: %w", inv.Number, err)
		}
	}

	if g.history != nil {
		recorded, err := g.history.IsRecorded(ctx, inv.Number)
		if err != nil {
			return nil, err
		}
		if recorded {
			g.logger.Info("Invoice already recorded, replacing", "client", req.ClientID, "invoice", inv.Number)
		}

		record := db.NewInvoiceRecord(inv, g.runID)
		docs := make([]db.InvoiceDocument, 0, len(result.Documents))
		for _, d := range result.Documents {
			docs = append(docs, db.InvoiceDocument{Format: d.Format, DocumentPath: d.Path})
		}
		if err := g.history.RecordGeneration(ctx, record, docs); err != nil {
			return nil, err
		}
	}

	g.logger.Info("Generated invoice",
		"client", req.ClientID,
		"invoice", inv.Number,
		"items", len(inv.Items),
		"hours", inv.TotalHours.StringFixedBank(billing.HoursPlaces),
		"total", inv.Total.StringFixedBank(billing.CurrencyPlaces),
		"warnings", len(warnings),
	)
	return result, nil
}
