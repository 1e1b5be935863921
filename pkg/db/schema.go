// Package db provides SQLite storage for the history of generated invoices.
package db

// Schema defines the SQL statements to create database tables.
const Schema = `
-- Invoice history table
-- One row per invoice number; regenerating the same number updates it
CREATE TABLE IF NOT EXISTS invoices (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    number TEXT NOT NULL UNIQUE,       -- {prefix}-{hex}
    prefix TEXT NOT NULL,
    client_id TEXT NOT NULL,
    period_start TEXT NOT NULL,        -- YYYY-MM-DD
    period_end TEXT NOT NULL,          -- YYYY-MM-DD
    issue_date TEXT NOT NULL,          -- YYYY-MM-DD
    due_date TEXT NOT NULL,            -- YYYY-MM-DD
    total_hours TEXT NOT NULL,         -- decimal string
    tags TEXT NOT NULL,                -- billing keys, JSON array
    reference TEXT NOT NULL,           -- RFC 3339 UTC
    subtotal TEXT NOT NULL,            -- decimal string
    tax_amount TEXT NOT NULL,          -- decimal string
    total TEXT NOT NULL,               -- decimal string
    run_id TEXT NOT NULL,
    generated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_invoices_client_period
    ON invoices(client_id, period_start);

-- Invoice documents table
-- Tracks the files written for each invoice
CREATE TABLE IF NOT EXISTS invoice_documents (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    invoice_number TEXT NOT NULL REFERENCES invoices(number) ON DELETE CASCADE,
    format TEXT NOT NULL,              -- 'tex', 'pdf' or 'xlsx'
    document_path TEXT NOT NULL,
    written_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(invoice_number, format)
);

CREATE INDEX IF NOT EXISTS idx_invoice_documents_path
    ON invoice_documents(document_path);

-- History metadata table
-- Stores key-value metadata about generation runs
CREATE TABLE IF NOT EXISTS history_metadata (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

// InitializeSchema creates all tables if they don't exist.
func InitializeSchema(conn *Connection) error {
	_, err := conn.db.Exec(Schema)
	return err
}
