package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/johnmatter/timewarrior-invoice/pkg/billing"
)

var listClient string

// listCmd represents the list command.
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded invoices",
	Long: `List invoices recorded in the history, newest period first,
with the documents written for each.

Example:
  invoicegen list
  invoicegen list --client ml`,
	Run: runList,
}

// forgetCmd represents the forget command.
var forgetCmd = &cobra.Command{
	Use:   "forget <invoice-number>...",
	Short: "Remove invoices from the history",
	Long: `Remove invoices and their document records from the history.
Documents on disk are left untouched.

Example:
  invoicegen forget ml-1a2b3c4d`,
	Args: cobra.MinimumNArgs(1),
	Run:  runForget,
}

func init() {
	listCmd.Flags().StringVar(&listClient, "client", "", "only list invoices of this client")
}

func runList(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	cfg := loadRuntime()

	conn, history := openHistory(cfg)
	defer conn.Close()

	records, err := history.GetInvoicesByClient(ctx, listClient)
	exitOnError(err, "failed to list invoices")

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NUMBER\tCLIENT\tPERIOD\tHOURS\tTOTAL\tDUE")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s..%s\t%s\t%s\t%s\n",
			r.Number,
			r.ClientID,
			r.PeriodStart.Format(time.DateOnly),
			r.PeriodEnd.Format(time.DateOnly),
			r.TotalHours.StringFixedBank(billing.HoursPlaces),
			r.Total.StringFixedBank(billing.CurrencyPlaces),
			r.DueDate.Format(time.DateOnly),
		)
		docs, err := history.GetDocuments(ctx, r.Number)
		exitOnError(err, "failed to list documents")
		for _, d := range docs {
			fmt.Fprintf(tw, "\t  %s\t%s\t\t\t\n", d.Format, d.DocumentPath)
		}
	}
	exitOnError(tw.Flush(), "failed to write invoice list")
}

func runForget(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	cfg := loadRuntime()

	conn, history := openHistory(cfg)
	defer conn.Close()

	for _, number := range args {
		deleted, err := history.DeleteInvoice(ctx, number)
		exitOnError(err, "failed to delete invoice")
		if !deleted {
			slog.Warn("Invoice not recorded", "invoice", number)
			continue
		}
		fmt.Printf("Removed %s from the history\n", number)
	}
}
