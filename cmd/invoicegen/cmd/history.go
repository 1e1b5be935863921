package cmd

import (
	"log/slog"

	"github.com/johnmatter/timewarrior-invoice/pkg/config"
	"github.com/johnmatter/timewarrior-invoice/pkg/db"
	"github.com/johnmatter/timewarrior-invoice/pkg/pathutil"
)

// openHistory opens the invoice history for read-only commands. The billing
// configuration is optional here; only its output directory is consulted.
func openHistory(cfg *config.Config) (*db.Connection, *db.InvoiceHistory) {
	var file *config.File
	if loaded, err := config.LoadFile(cfg.ConfigPath); err == nil {
		file = loaded
	} else {
		slog.Debug("Billing configuration not loaded", "path", cfg.ConfigPath, "error", err)
	}

	pathResolver := pathutil.New(pathutil.Config{
		OutputDir:    outputDir("", cfg, file),
		DatabasePath: cfg.DBPath,
	})

	dbPath := pathResolver.GetDatabasePath()
	slog.Debug("Opening database", "path", dbPath)
	conn, err := db.Open(dbPath)
	exitOnError(err, "failed to open database")
	return conn, db.NewInvoiceHistory(conn)
}
