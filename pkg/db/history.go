package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/johnmatter/timewarrior-invoice/pkg/billing"
	"github.com/johnmatter/timewarrior-invoice/pkg/invoice"
	"github.com/johnmatter/timewarrior-invoice/pkg/invoiceid"
)

// InvoiceRecord represents one generated invoice in the history.
type InvoiceRecord struct {
	ID          int64
	Number      string
	Prefix      string
	ClientID    string
	PeriodStart time.Time
	PeriodEnd   time.Time
	IssueDate   time.Time
	DueDate     time.Time
	TotalHours  decimal.Decimal
	Tags        []string
	Reference   time.Time
	Subtotal    decimal.Decimal
	TaxAmount   decimal.Decimal
	Total       decimal.Decimal
	RunID       string
	GeneratedAt time.Time
}

// InvoiceDocument represents a file written for an invoice.
type InvoiceDocument struct {
	ID            int64
	InvoiceNumber string
	Format        string
	DocumentPath  string
	WrittenAt     time.Time
}

// NewInvoiceRecord captures the fields of inv that the history keeps.
func NewInvoiceRecord(inv *invoice.Invoice, runID string) InvoiceRecord {
	return InvoiceRecord{
		Number:      inv.Number,
		Prefix:      inv.Client.Prefix,
		ClientID:    inv.Client.ID,
		PeriodStart: inv.Period.Start,
		PeriodEnd:   inv.Period.End,
		IssueDate:   inv.IssueDate,
		DueDate:     inv.DueDate,
		TotalHours:  inv.TotalHours,
		Tags:        billing.Keys(inv.Items),
		Reference:   inv.Reference,
		Subtotal:    inv.Subtotal,
		TaxAmount:   inv.TaxAmount,
		Total:       inv.Total,
		RunID:       runID,
	}
}

// IdentityInput rebuilds the identity generator input from the stored fields.
func (r InvoiceRecord) IdentityInput() invoiceid.Input {
	return invoiceid.Input{
		ClientID:    r.ClientID,
		Prefix:      r.Prefix,
		PeriodStart: r.PeriodStart,
		PeriodEnd:   r.PeriodEnd,
		TotalHours:  r.TotalHours,
		Tags:        r.Tags,
		Reference:   r.Reference,
	}
}

// InvoiceHistory manages invoice history operations.
type InvoiceHistory struct {
	conn *Connection
}

// NewInvoiceHistory creates a new InvoiceHistory instance.
func NewInvoiceHistory(conn *Connection) *InvoiceHistory {
	return &InvoiceHistory{conn: conn}
}

const upsertInvoice = `
	INSERT INTO invoices (number, prefix, client_id, period_start, period_end, issue_date, due_date,
		total_hours, tags, reference, subtotal, tax_amount, total, run_id)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(number) DO UPDATE SET
		issue_date = excluded.issue_date,
		due_date = excluded.due_date,
		subtotal = excluded.subtotal,
		tax_amount = excluded.tax_amount,
		total = excluded.total,
		run_id = excluded.run_id,
		generated_at = CURRENT_TIMESTAMP
`

const upsertDocument = `
	INSERT INTO invoice_documents (invoice_number, format, document_path)
	VALUES (?, ?, ?)
	ON CONFLICT(invoice_number, format) DO UPDATE SET
		document_path = excluded.document_path,
		written_at = CURRENT_TIMESTAMP
`

// RecordGeneration records an invoice and its documents atomically.
func (h *InvoiceHistory) RecordGeneration(ctx context.Context, record InvoiceRecord, docs []InvoiceDocument) error {
	return h.conn.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, upsertInvoice, invoiceArgs(record)...); err != nil {
			return fmt.Errorf("failed to record invoice %s: %w", record.Number, err)
		}
		for _, doc := range docs {
			if _, err := tx.ExecContext(ctx, upsertDocument, record.Number, doc.Format, doc.DocumentPath); err != nil {
				return fmt.Errorf("failed to record %s document for %s: %w", doc.Format, record.Number, err)
			}
		}
		return nil
	})
}

// IsRecorded checks if an invoice number is in the history.
func (h *InvoiceHistory) IsRecorded(ctx context.Context, number string) (bool, error) {
	var count int
	err := h.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM invoices WHERE number = ?`, number).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check invoice %s: %w", number, err)
	}
	return count > 0, nil
}

const selectInvoice = `
	SELECT id, number, prefix, client_id, period_start, period_end, issue_date, due_date,
		total_hours, tags, reference, subtotal, tax_amount, total, run_id, generated_at
	FROM invoices
`

// GetInvoice retrieves an invoice record by number.
// Returns nil if the number is unknown.
func (h *InvoiceHistory) GetInvoice(ctx context.Context, number string) (*InvoiceRecord, error) {
	row := h.conn.QueryRowContext(ctx, selectInvoice+` WHERE number = ?`, number)
	record, err := scanInvoice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invoice %s: %w", number, err)
	}
	return record, nil
}

// GetInvoicesByClient retrieves every invoice of a client, newest period first.
// An empty clientID lists all invoices.
func (h *InvoiceHistory) GetInvoicesByClient(ctx context.Context, clientID string) ([]InvoiceRecord, error) {
	query := selectInvoice + ` ORDER BY period_start DESC, number`
	var args []any
	if clientID != "" {
		query = selectInvoice + ` WHERE client_id = ? ORDER BY period_start DESC, number`
		args = append(args, clientID)
	}

	rows, err := h.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	defer rows.Close()

	var records []InvoiceRecord
	for rows.Next() {
		record, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		records = append(records, *record)
	}
	return records, rows.Err()
}

// GetDocuments retrieves the documents written for an invoice.
func (h *InvoiceHistory) GetDocuments(ctx context.Context, number string) ([]InvoiceDocument, error) {
	rows, err := h.conn.QueryContext(ctx, `
		SELECT id, invoice_number, format, document_path, written_at
		FROM invoice_documents
		WHERE invoice_number = ?
		ORDER BY format
	`, number)
	if err != nil {
		return nil, fmt.Errorf("failed to get documents for %s: %w", number, err)
	}
	defer rows.Close()

	var docs []InvoiceDocument
	for rows.Next() {
		var doc InvoiceDocument
		if err := rows.Scan(&doc.ID, &doc.InvoiceNumber, &doc.Format, &doc.DocumentPath, &doc.WrittenAt); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// DeleteInvoice deletes an invoice and its document records.
// Use case: force regeneration of a specific invoice.
func (h *InvoiceHistory) DeleteInvoice(ctx context.Context, number string) (bool, error) {
	result, err := h.conn.ExecContext(ctx, `DELETE FROM invoices WHERE number = ?`, number)
	if err != nil {
		return false, fmt.Errorf("failed to delete invoice %s: %w", number, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

// Stats represents history statistics.
type Stats struct {
	TotalInvoices  int
	TotalDocuments int
	Clients        int
	TotalHours     decimal.Decimal
	TotalBilled    decimal.Decimal
	LastGenerated  sql.NullString
}

// GetStats retrieves history statistics.
func (h *InvoiceHistory) GetStats(ctx context.Context) (*Stats, error) {
	stats := Stats{TotalHours: decimal.Zero, TotalBilled: decimal.Zero}

	err := h.conn.QueryRowContext(ctx, `SELECT COUNT(*), COUNT(DISTINCT client_id) FROM invoices`).
		Scan(&stats.TotalInvoices, &stats.Clients)
	if err != nil {
		return nil, fmt.Errorf("failed to get invoice count: %w", err)
	}

	err = h.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM invoice_documents`).Scan(&stats.TotalDocuments)
	if err != nil {
		return nil, fmt.Errorf("failed to get document count: %w", err)
	}

	err = h.conn.QueryRowContext(ctx, `SELECT MAX(generated_at) FROM invoices`).Scan(&stats.LastGenerated)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to get last generation time: %w", err)
	}

	// Amounts are stored as decimal strings, so they are summed here rather than in SQL.
	rows, err := h.conn.QueryContext(ctx, `SELECT total_hours, total FROM invoices`)
	if err != nil {
		return nil, fmt.Errorf("failed to get totals: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var hours, total string
		if err := rows.Scan(&hours, &total); err != nil {
			return nil, fmt.Errorf("failed to scan totals: %w", err)
		}
		hoursValue, err := decimal.NewFromString(hours)
		if err != nil {
			return nil, fmt.Errorf("invalid stored hours %q: %w", hours, err)
		}
		totalValue, err := decimal.NewFromString(total)
		if err != nil {
			return nil, fmt.Errorf("invalid stored total %q: %w", total, err)
		}
		stats.TotalHours = stats.TotalHours.Add(hoursValue)
		stats.TotalBilled = stats.TotalBilled.Add(totalValue)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &stats, nil
}

// GetMetadata retrieves a metadata value.
func (h *InvoiceHistory) GetMetadata(ctx context.Context, key string) (string, error) {
	var value string
	err := h.conn.QueryRowContext(ctx, `SELECT value FROM history_metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get metadata: %w", err)
	}
	return value, nil
}

// SetMetadata sets a metadata value.
func (h *InvoiceHistory) SetMetadata(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO history_metadata (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP
	`
	if _, err := h.conn.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to set metadata: %w", err)
	}
	return nil
}

func invoiceArgs(r InvoiceRecord) []any {
	return []any{
		r.Number,
		r.Prefix,
		r.ClientID,
		r.PeriodStart.Format(time.DateOnly),
		r.PeriodEnd.Format(time.DateOnly),
		r.IssueDate.Format(time.DateOnly),
		r.DueDate.Format(time.DateOnly),
		r.TotalHours.String(),
		encodeTags(r.Tags),
		r.Reference.UTC().Format(time.RFC3339Nano),
		r.Subtotal.String(),
		r.TaxAmount.String(),
		r.Total.String(),
		r.RunID,
	}
}

func encodeTags(tags []string) string {
	if tags == nil {
		tags = []string{}
	}
	b, _ := json.Marshal(tags)
	return string(b)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanInvoice(s scanner) (*InvoiceRecord, error) {
	var (
		record                                     InvoiceRecord
		periodStart, periodEnd, issueDate, dueDate string
		totalHours, subtotal, tax, total           string
		tags, reference                            string
	)
	if err := s.Scan(
		&record.ID,
		&record.Number,
		&record.Prefix,
		&record.ClientID,
		&periodStart,
		&periodEnd,
		&issueDate,
		&dueDate,
		&totalHours,
		&tags,
		&reference,
		&subtotal,
		&tax,
		&total,
		&record.RunID,
		&record.GeneratedAt,
	); err != nil {
		return nil, err
	}

	var err error
	dates := []struct {
		dst *time.Time
		src string
	}{
		{&record.PeriodStart, periodStart},
		{&record.PeriodEnd, periodEnd},
		{&record.IssueDate, issueDate},
		{&record.DueDate, dueDate},
	}
	for _, d := range dates {
		if *d.dst, err = time.Parse(time.DateOnly, d.src); err != nil {
			return nil, fmt.Errorf("invoice %s: invalid stored date %q: %w", record.Number, d.src, err)
		}
	}
	if record.Reference, err = time.Parse(time.RFC3339Nano, reference); err != nil {
		return nil, fmt.Errorf("invoice %s: invalid stored reference %q: %w", record.Number, reference, err)
	}

	amounts := []struct {
		dst *decimal.Decimal
		src string
	}{
		{&record.TotalHours, totalHours},
		{&record.Subtotal, subtotal},
		{&record.TaxAmount, tax},
		{&record.Total, total},
	}
	for _, a := range amounts {
		if *a.dst, err = decimal.NewFromString(a.src); err != nil {
			return nil, fmt.Errorf("invoice %s: invalid stored amount %q: %w", record.Number, a.src, err)
		}
	}

	if err := json.Unmarshal([]byte(tags), &record.Tags); err != nil {
		return nil, fmt.Errorf("invoice %s: invalid stored tags %q: %w", record.Number, tags, err)
	}
	return &record, nil
}
