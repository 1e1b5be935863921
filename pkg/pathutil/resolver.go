// Package pathutil provides centralized path management for generated
// invoice documents and the history database.
package pathutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// PathResolver manages paths for invoice documents and the history database.
type PathResolver struct {
	outputDir    string
	databasePath string
}

// Config represents the configuration for PathResolver.
type Config struct {
	// OutputDir is the root directory for generated invoices (e.g., ~/invoices)
	OutputDir string
	// DatabasePath is the path to the SQLite database file for invoice history
	DatabasePath string
}

// New creates a new PathResolver with the given configuration.
// If DatabasePath is empty, it defaults to {OutputDir}/.history/invoices.db
func New(config Config) *PathResolver {
	dbPath := config.DatabasePath
	if dbPath == "" {
		dbPath = filepath.Join(config.OutputDir, ".history", "invoices.db")
	}

	return &PathResolver{
		outputDir:    config.OutputDir,
		databasePath: dbPath,
	}
}

// GetOutputDir returns the output root directory.
func (p *PathResolver) GetOutputDir() string {
	return p.outputDir
}

// GetDatabasePath returns the database file path.
func (p *PathResolver) GetDatabasePath() string {
	return p.databasePath
}

// GetClientDir returns the directory holding every invoice of a client.
// Example: ~/invoices/ml
func (p *PathResolver) GetClientDir(clientID string) string {
	return filepath.Join(p.outputDir, clientID)
}

// GetInvoicePath returns the document path for an invoice.
// The period start selects the year/month subdirectory.
// Example: ~/invoices/ml/2025/07/ml-1a2b3c4d.pdf
func (p *PathResolver) GetInvoicePath(clientID string, periodStart time.Time, number, ext string) (string, error) {
	if clientID == "" || strings.ContainsAny(clientID, `/\`) || clientID == "." || clientID == ".." {
		return "", fmt.Errorf("invalid client id for path: %q", clientID)
	}
	if number == "" || strings.ContainsAny(number, `/\`) {
		return "", fmt.Errorf("invalid invoice number for path: %q", number)
	}
	if periodStart.IsZero() {
		return "", fmt.Errorf("invoice %s: period start is required", number)
	}

	start := periodStart.UTC()
	filename := number + "." + strings.TrimPrefix(ext, ".")
	return filepath.Join(
		p.GetClientDir(clientID),
		start.Format("2006"),
		start.Format("01"),
		filename,
	), nil
}

// EnsureDir creates a directory if it doesn't exist.
// It creates all parent directories as needed (like mkdir -p).
func (p *PathResolver) EnsureDir(dirPath string) error {
	if err := os.MkdirAll(dirPath, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dirPath, err)
	}
	return nil
}

// EnsureParentDir ensures the parent directory of a file exists.
func (p *PathResolver) EnsureParentDir(filePath string) error {
	return p.EnsureDir(filepath.Dir(filePath))
}

// FileExists checks if a file exists.
func (p *PathResolver) FileExists(filePath string) bool {
	_, err := os.Stat(filePath)
	return err == nil
}
