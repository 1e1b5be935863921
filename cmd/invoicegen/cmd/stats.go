package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/johnmatter/timewarrior-invoice/pkg/billing"
)

// statsCmd represents the stats command.
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Display invoice history statistics",
	Long: `Display statistics about generated invoices.

Shows:
- Total number of invoices and documents
- Number of invoiced clients
- Billed hours and amount
- Last generation timestamp and run id

Example:
  invoicegen stats`,
	Run: runStats,
}

func runStats(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	cfg := loadRuntime()

	conn, history := openHistory(cfg)
	defer conn.Close()

	stats, err := history.GetStats(ctx)
	exitOnError(err, "failed to get statistics")
	lastRun, err := history.GetMetadata(ctx, lastRunKey)
	exitOnError(err, "failed to get last run")

	fmt.Println("\n=== Invoice Statistics ===")
	fmt.Printf("Database:         %s\n", conn.Path())
	fmt.Printf("Total invoices:   %d\n", stats.TotalInvoices)
	fmt.Printf("Total documents:  %d\n", stats.TotalDocuments)
	fmt.Printf("Clients:          %d\n", stats.Clients)
	fmt.Printf("Hours billed:     %s\n", stats.TotalHours.StringFixedBank(billing.HoursPlaces))
	fmt.Printf("Amount billed:    %s\n", stats.TotalBilled.StringFixedBank(billing.CurrencyPlaces))

	if stats.LastGenerated.Valid {
		fmt.Printf("Last generated:   %s\n", stats.LastGenerated.String)
	} else {
		fmt.Printf("Last generated:   (never)\n")
	}
	if lastRun != "" {
		fmt.Printf("Last run:         %s\n", lastRun)
	}

	fmt.Println()

	slog.Info("Statistics displayed successfully")
}
