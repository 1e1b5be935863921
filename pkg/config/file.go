package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/johnmatter/timewarrior-invoice/pkg/billing"
	"github.com/johnmatter/timewarrior-invoice/pkg/invoice"
)

// ErrClientNotFound is returned when a client id has no configuration entry.
var ErrClientNotFound = errors.New("client not found in configuration")

// Output formats accepted in the output.format setting.
const (
	FormatPDF  = "pdf"
	FormatTeX  = "tex"
	FormatXLSX = "xlsx"
	FormatBoth = "both"
	FormatAll  = "all"
)

// AddressSection is an address as written in the YAML file.
type AddressSection struct {
	Street  string `yaml:"street"`
	City    string `yaml:"city"`
	State   string `yaml:"state,omitempty"`
	ZipCode string `yaml:"zip_code,omitempty"`
	Country string `yaml:"country,omitempty"`
}

// BillerSection describes the invoicing party.
type BillerSection struct {
	Name    string         `yaml:"name"`
	Address AddressSection `yaml:"address"`
	Email   string         `yaml:"email,omitempty"`
	Phone   string         `yaml:"phone,omitempty"`
	TaxID   string         `yaml:"tax_id,omitempty"`
	Website string         `yaml:"website,omitempty"`
}

// DefaultsSection holds biller-wide invoice defaults.
type DefaultsSection struct {
	TaxRate             float64 `yaml:"tax_rate"`
	PaymentTerms        string  `yaml:"payment_terms"`
	PaymentInstructions string  `yaml:"payment_instructions,omitempty"`
	Notes               string  `yaml:"notes,omitempty"`
	TermsAndConditions  string  `yaml:"terms_and_conditions,omitempty"`
}

// NumberingSection configures invoice numbering.
type NumberingSection struct {
	// Prefix is used for clients that do not set their own.
	Prefix string `yaml:"prefix,omitempty"`
	Format string `yaml:"format,omitempty"`
}

// LatexSection configures LaTeX rendering.
type LatexSection struct {
	Command      string `yaml:"command,omitempty"`
	TemplatePath string `yaml:"template_path,omitempty"`
}

// ClientSection describes one billed client.
type ClientSection struct {
	Name         string             `yaml:"name"`
	Prefix       string             `yaml:"prefix"`
	Address      AddressSection     `yaml:"address"`
	Email        string             `yaml:"email,omitempty"`
	Phone        string             `yaml:"phone,omitempty"`
	TaxID        string             `yaml:"tax_id,omitempty"`
	TaxRate      *float64           `yaml:"tax_rate,omitempty"`
	PaymentTerms string             `yaml:"payment_terms,omitempty"`
	Rates        map[string]float64 `yaml:"rates,omitempty"`
}

// OutputSection configures where and what is written.
type OutputSection struct {
	Directory string `yaml:"directory"`
	Format    string `yaml:"format"`
}

// File is the YAML billing configuration.
type File struct {
	Biller           BillerSection            `yaml:"biller"`
	Defaults         DefaultsSection          `yaml:"defaults"`
	InvoiceNumbering NumberingSection         `yaml:"invoice_numbering"`
	Latex            LatexSection             `yaml:"latex"`
	Clients          map[string]ClientSection `yaml:"clients"`
	HourlyRates      map[string]float64       `yaml:"hourly_rates"`
	Output           OutputSection            `yaml:"output"`
}

// ValidationError lists every semantic problem found in a File.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid configuration:\n  - " + strings.Join(e.Problems, "\n  - ")
}

// LoadFile reads, schema-checks and decodes a YAML configuration file.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse schema-checks and decodes YAML configuration bytes.
func Parse(data []byte) (*File, error) {
	if err := validateSchema(data); err != nil {
		return nil, err
	}

	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	file.applyDefaults()
	return &file, nil
}

// Default returns a starter configuration with placeholder biller details
// and a common set of task rates.
func Default() *File {
	file := &File{
		Biller: BillerSection{
			Name: "Your Name",
			Address: AddressSection{
				Street:  "[Your Street Address]",
				City:    "[Your City]",
				State:   "[Your State]",
				ZipCode: "[Your ZIP]",
				Country: "USA",
			},
		},
		Defaults: DefaultsSection{PaymentTerms: invoice.DefaultPaymentTerms},
		InvoiceNumbering: NumberingSection{
			Format: "hash",
		},
		Latex: LatexSection{Command: DefaultLatexCommand},
		Clients: map[string]ClientSection{
			"example": {
				Name:    "Example Client",
				Prefix:  "EX",
				Address: AddressSection{Street: "1 Example Way", City: "Example City"},
			},
		},
		HourlyRates: map[string]float64{
			billing.DefaultRateKey: 150,
			"development":          150,
			"consulting":           200,
			"testing":              100,
			"documentation":        120,
			"design":               180,
			"research":             160,
			"meeting":              140,
			"review":               130,
			"support":              120,
		},
		Output: OutputSection{Directory: DefaultOutputDir, Format: FormatPDF},
	}
	return file
}

// Save writes the configuration as YAML, creating parent directories.
func (f *File) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate runs the semantic checks the schema cannot express.
func (f *File) Validate() error {
	var problems []string

	if strings.TrimSpace(f.Biller.Name) == "" {
		problems = append(problems, "biller name is required")
	}
	if strings.TrimSpace(f.Biller.Address.Street) == "" {
		problems = append(problems, "biller street address is required")
	}
	if strings.TrimSpace(f.Biller.Address.City) == "" {
		problems = append(problems, "biller city is required")
	}
	if rate, ok := f.HourlyRates[billing.DefaultRateKey]; !ok || rate <= 0 {
		problems = append(problems, "default hourly rate must be greater than 0")
	}

	for _, id := range f.ClientIDs() {
		client := f.Clients[id]
		if strings.TrimSpace(client.Name) == "" {
			problems = append(problems, fmt.Sprintf("client %q name is required", id))
		}
		if strings.TrimSpace(f.prefixFor(client)) == "" {
			problems = append(problems, fmt.Sprintf("client %q prefix is required", id))
		}
		for _, key := range sortedKeys(client.Rates) {
			if client.Rates[key] < 0 {
				problems = append(problems, fmt.Sprintf("client %q rate for %q is negative", id, key))
			}
		}
	}

	if _, err := f.Formats(); err != nil {
		problems = append(problems, err.Error())
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// ClientIDs returns the configured client ids in ascending order.
func (f *File) ClientIDs() []string {
	ids := make([]string, 0, len(f.Clients))
	for id := range f.Clients {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// InvoiceBiller returns the invoicing party.
func (f *File) InvoiceBiller() invoice.Biller {
	return invoice.Biller{
		Name:    f.Biller.Name,
		Address: f.Biller.Address.toAddress(),
		Email:   f.Biller.Email,
		Phone:   f.Biller.Phone,
		TaxID:   f.Biller.TaxID,
		Website: f.Biller.Website,
	}
}

// InvoiceClient returns the configured client with the given id.
func (f *File) InvoiceClient(id string) (invoice.Client, error) {
	section, ok := f.Clients[id]
	if !ok {
		return invoice.Client{}, fmt.Errorf("%w: %q", ErrClientNotFound, id)
	}

	client := invoice.Client{
		ID:           id,
		Prefix:       f.prefixFor(section),
		Name:         section.Name,
		Address:      section.Address.toAddress(),
		Email:        section.Email,
		Phone:        section.Phone,
		TaxID:        section.TaxID,
		PaymentTerms: section.PaymentTerms,
	}
	if section.TaxRate != nil {
		rate := decimal.NewFromFloat(*section.TaxRate)
		client.TaxRate = &rate
	}
	return client, nil
}

// RatesFor merges the global hourly rates with the client's own rates.
// Client rates win for the same key.
func (f *File) RatesFor(id string) billing.RateTable {
	rates := billing.NewRateTable(f.HourlyRates)
	if section, ok := f.Clients[id]; ok {
		rates = rates.Merge(billing.NewRateTable(section.Rates))
	}
	return rates
}

// InvoiceDefaults returns the defaults applied to every invoice.
func (f *File) InvoiceDefaults() invoice.Defaults {
	return invoice.Defaults{
		TaxRate:             decimal.NewFromFloat(f.Defaults.TaxRate),
		PaymentTerms:        f.Defaults.PaymentTerms,
		PaymentInstructions: f.Defaults.PaymentInstructions,
		Notes:               f.Defaults.Notes,
		TermsAndConditions:  f.Defaults.TermsAndConditions,
	}
}

// Formats expands output.format into the document formats to produce.
func (f *File) Formats() ([]string, error) {
	return ParseFormats(f.Output.Format)
}

// ParseFormats expands a format setting such as "both" into concrete formats.
func ParseFormats(format string) ([]string, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatPDF:
		return []string{FormatPDF}, nil
	case FormatTeX:
		return []string{FormatTeX}, nil
	case FormatXLSX:
		return []string{FormatXLSX}, nil
	case FormatBoth:
		return []string{FormatTeX, FormatPDF}, nil
	case FormatAll:
		return []string{FormatTeX, FormatPDF, FormatXLSX}, nil
	default:
		return nil, fmt.Errorf("unknown output format %q (want pdf, tex, xlsx, both or all)", format)
	}
}

func (f *File) prefixFor(client ClientSection) string {
	if client.Prefix != "" {
		return client.Prefix
	}
	return f.InvoiceNumbering.Prefix
}

func (f *File) applyDefaults() {
	if f.Defaults.PaymentTerms == "" {
		f.Defaults.PaymentTerms = invoice.DefaultPaymentTerms
	}
	if f.Latex.Command == "" {
		f.Latex.Command = DefaultLatexCommand
	}
	if f.Output.Directory == "" {
		f.Output.Directory = DefaultOutputDir
	}
	if f.Output.Format == "" {
		f.Output.Format = FormatPDF
	}
}

func (a AddressSection) toAddress() invoice.Address {
	return invoice.Address{
		Street:     a.Street,
		City:       a.City,
		State:      a.State,
		PostalCode: a.ZipCode,
		Country:    a.Country,
	}
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
