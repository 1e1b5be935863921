package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/johnmatter/timewarrior-invoice/pkg/billing"
	"github.com/johnmatter/timewarrior-invoice/pkg/config"
	"github.com/johnmatter/timewarrior-invoice/pkg/db"
	"github.com/johnmatter/timewarrior-invoice/pkg/generator"
	"github.com/johnmatter/timewarrior-invoice/pkg/invoice"
	"github.com/johnmatter/timewarrior-invoice/pkg/pathutil"
	"github.com/johnmatter/timewarrior-invoice/pkg/render"
	"github.com/johnmatter/timewarrior-invoice/pkg/timeentry"
	"github.com/johnmatter/timewarrior-invoice/pkg/timew"
)

var (
	genClients     []string
	genAll         bool
	genMonth       string
	genStart       string
	genEnd         string
	genInput       string
	genInputFormat string
	genReference   string
	genIssueDate   string
	genOutput      string
	genFormat      string
	genTemplate    string
	genDryRun      bool
	genJSON        bool
	genAllowEmpty  bool
	genConcurrency int
)

// generateCmd represents the generate command.
var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate invoices for a billing period",
	Long: `Generate invoices from timewarrior intervals.

This command:
1. Exports intervals from timew (or reads --input)
2. Selects each client's entries inside the period
3. Groups them by task and applies hourly rates
4. Assembles the invoice with a reproducible number
5. Writes the documents and records them in the history

The period is half-open: --end is the first day not billed.
Without period flags the previous calendar month is billed.

Example:
  invoicegen generate --client ml --month 2025-07
  invoicegen generate --client ml --start 2025-07-01 --end 2025-07-16
  invoicegen generate --all --month 2025-07 --format all
  timew export | invoicegen generate --client ml --input - --dry-run`,
	Run: runGenerate,
}

func init() {
	generateCmd.Flags().StringSliceVarP(&genClients, "client", "c", nil, "client id to invoice (repeatable)")
	generateCmd.Flags().BoolVar(&genAll, "all", false, "invoice every configured client")
	generateCmd.Flags().StringVar(&genMonth, "month", "", "billing month (YYYY-MM)")
	generateCmd.Flags().StringVar(&genStart, "start", "", "period start (YYYY-MM-DD)")
	generateCmd.Flags().StringVar(&genEnd, "end", "", "period end, exclusive (YYYY-MM-DD)")
	generateCmd.Flags().StringVarP(&genInput, "input", "i", "", "read intervals from a file instead of timew (- for stdin)")
	generateCmd.Flags().StringVar(&genInputFormat, "input-format", "json", "input format: json or csv")
	generateCmd.Flags().StringVar(&genReference, "reference", "", "reference timestamp for the invoice number (default: period midpoint)")
	generateCmd.Flags().StringVar(&genIssueDate, "issue-date", "", "issue date (default: period end)")
	generateCmd.Flags().StringVarP(&genOutput, "output", "o", "", "output directory")
	generateCmd.Flags().StringVarP(&genFormat, "format", "f", "", "document format: pdf, tex, xlsx, both or all (default from config)")
	generateCmd.Flags().StringVar(&genTemplate, "template", "", "custom LaTeX template")
	generateCmd.Flags().BoolVar(&genDryRun, "dry-run", false, "assemble invoices without writing documents or history")
	generateCmd.Flags().BoolVar(&genJSON, "json", false, "print assembled invoices as JSON")
	generateCmd.Flags().BoolVar(&genAllowEmpty, "allow-empty", false, "generate invoices for clients without entries")
	generateCmd.Flags().IntVar(&genConcurrency, "concurrency", generator.DefaultConcurrency, "clients generated in parallel")

	generateCmd.MarkFlagsMutuallyExclusive("client", "all")
}

func runGenerate(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	cfg := loadRuntime()
	file := loadBilling(cfg)

	clientIDs, err := selectClients(file, genClients, genAll)
	exitOnError(err, "no client selected")

	period, err := resolvePeriod(genMonth, genStart, genEnd, time.Now())
	exitOnError(err, "invalid period")
	reference, err := parseInstant(genReference)
	exitOnError(err, "invalid --reference")
	issueDate, err := parseInstant(genIssueDate)
	exitOnError(err, "invalid --issue-date")

	slog.Info("Starting generation", "clients", strings.Join(clientIDs, ","), "period", period.String(), "dry_run", genDryRun)

	raw, format, err := readIntervals(ctx, cfg, period)
	exitOnError(err, "failed to read time entries")

	reqs := make([]generator.Request, 0, len(clientIDs))
	for _, id := range clientIDs {
		reqs = append(reqs, generator.Request{
			ClientID:   id,
			Period:     period,
			Raw:        raw,
			Format:     format,
			Reference:  reference,
			IssueDate:  issueDate,
			AllowEmpty: genAllowEmpty,
		})
	}

	var (
		gen     *generator.Generator
		history *db.InvoiceHistory
	)
	if genDryRun {
		gen = generator.New(file, nil, nil, slog.Default())
	} else {
		pathResolver := pathutil.New(pathutil.Config{
			OutputDir:    outputDir(genOutput, cfg, file),
			DatabasePath: cfg.DBPath,
		})

		writer, err := newDocumentWriter(cfg, file, pathResolver)
		exitOnError(err, "failed to prepare renderers")

		dbPath := pathResolver.GetDatabasePath()
		slog.Debug("Opening database", "path", dbPath, "output", pathResolver.GetOutputDir())
		conn, err := db.Open(dbPath)
		exitOnError(err, "failed to open database")
		defer conn.Close()

		history = db.NewInvoiceHistory(conn)
		gen = generator.New(file, writer, history, slog.Default())
	}

	results, err := gen.GenerateAll(ctx, reqs, genConcurrency)
	writeResults(os.Stdout, os.Stderr, results, genJSON)
	if history != nil {
		if err := history.SetMetadata(ctx, lastRunKey, gen.RunID()); err != nil {
			slog.Warn("Failed to record run id", "error", err)
		}
	}
	exitOnError(err, "failed to generate invoices")

	slog.Info("Generation completed", "invoices", len(results), "run_id", gen.RunID())
}

// lastRunKey is the history metadata key holding the latest run id.
const lastRunKey = "last_run_id"

// selectClients returns the configured clients to invoice.
func selectClients(file *config.File, requested []string, all bool) ([]string, error) {
	available := file.ClientIDs()
	if all {
		return available, nil
	}
	if len(requested) == 0 {
		return nil, fmt.Errorf("use --client or --all (available clients: %s)", strings.Join(available, ", "))
	}
	for _, id := range requested {
		if !slices.Contains(available, id) {
			return nil, fmt.Errorf("%w: %q (available clients: %s)", config.ErrClientNotFound, id, strings.Join(available, ", "))
		}
	}
	return requested, nil
}

// readIntervals reads --input when given, otherwise exports the period from timew.
func readIntervals(ctx context.Context, cfg *config.Config, period invoice.Period) ([]byte, timeentry.Format, error) {
	if genInput != "" {
		format, err := timeentry.ParseFormat(genInputFormat)
		if err != nil {
			return nil, 0, err
		}
		var raw []byte
		if genInput == "-" {
			raw, err = io.ReadAll(os.Stdin)
		} else {
			raw, err = os.ReadFile(genInput)
		}
		if err != nil {
			return nil, 0, fmt.Errorf("failed to read %s: %w", genInput, err)
		}
		return raw, format, nil
	}

	runner := timew.Runner{Command: cfg.TimewCommand, Logger: slog.Default()}
	slog.Info("Exporting intervals from timew", "period", period.String())
	raw, err := runner.Export(ctx, period.Start, period.End)
	if err != nil {
		return nil, 0, err
	}
	return raw, timeentry.FormatStructured, nil
}

// newDocumentWriter builds the renderers for the requested formats.
func newDocumentWriter(cfg *config.Config, file *config.File, pathResolver *pathutil.PathResolver) (*render.DocumentWriter, error) {
	formats, err := config.ParseFormats(genFormat)
	if genFormat == "" {
		formats, err = file.Formats()
	}
	if err != nil {
		return nil, err
	}

	latexCommand := cfg.LatexCommand
	if latexCommand == "" {
		latexCommand = file.Latex.Command
	}
	if slices.Contains(formats, render.FormatPDF) {
		if _, err := render.CheckEnvironment(latexCommand); err != nil {
			return nil, fmt.Errorf("%w (use --format tex to skip PDF compilation)", err)
		}
	}

	templatePath := genTemplate
	if templatePath == "" {
		templatePath = file.Latex.TemplatePath
	}
	renderers, err := render.New(formats, render.Options{
		TemplatePath: templatePath,
		Compiler:     render.PDFCompiler{Command: latexCommand, Logger: slog.Default()},
	})
	if err != nil {
		return nil, err
	}
	return render.NewDocumentWriter(pathResolver, renderers, slog.Default()), nil
}

// writeResults prints the invoice summaries to stdout. With asJSON, stdout
// carries only the JSON array and the summaries go to stderr.
func writeResults(stdout, stderr io.Writer, results []generator.BatchResult, asJSON bool) {
	summary := stdout
	if asJSON {
		summary = stderr
	}
	for _, r := range results {
		if r.Result != nil {
			printResult(summary, r.Result)
		}
	}
	if asJSON {
		printJSON(stdout, results)
	}
}

func printResult(w io.Writer, r *generator.Result) {
	inv := r.Invoice
	fmt.Fprintf(w, "\n=== Invoice %s ===\n", inv.Number)
	fmt.Fprintf(w, "Client:   %s (%s)\n", inv.Client.Name, inv.Client.ID)
	fmt.Fprintf(w, "Period:   %s\n", inv.Period)
	fmt.Fprintf(w, "Due:      %s (%s)\n", inv.DueDate.Format(time.DateOnly), inv.PaymentTerms)
	for _, item := range inv.Items {
		fmt.Fprintf(w, "  %-20s %8sh x %8s = %10s\n",
			item.Key,
			item.Hours.StringFixedBank(billing.HoursPlaces),
			item.Rate.StringFixedBank(billing.CurrencyPlaces),
			item.Amount.StringFixedBank(billing.CurrencyPlaces),
		)
	}
	fmt.Fprintf(w, "Hours:    %s\n", inv.TotalHours.StringFixedBank(billing.HoursPlaces))
	fmt.Fprintf(w, "Subtotal: %s\n", inv.Subtotal.StringFixedBank(billing.CurrencyPlaces))
	if !inv.TaxRate.IsZero() {
		fmt.Fprintf(w, "Tax:      %s\n", inv.TaxAmount.StringFixedBank(billing.CurrencyPlaces))
	}
	fmt.Fprintf(w, "Total:    %s\n", inv.Total.StringFixedBank(billing.CurrencyPlaces))
	for _, doc := range r.Documents {
		fmt.Fprintf(w, "Wrote:    %s\n", doc.Path)
	}
	for _, warning := range r.Warnings {
		fmt.Fprintf(w, "Warning:  %s\n", warning)
	}
}

func printJSON(w io.Writer, results []generator.BatchResult) {
	invoices := make([]*invoice.Invoice, 0, len(results))
	for _, r := range results {
		if r.Result != nil {
			invoices = append(invoices, r.Result.Invoice)
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(invoices); err != nil {
		slog.Error("Failed to encode invoices", "error", err)
	}
}
