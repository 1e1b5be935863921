package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/johnmatter/timewarrior-invoice/pkg/billing"
	"github.com/johnmatter/timewarrior-invoice/pkg/db"
	"github.com/johnmatter/timewarrior-invoice/pkg/invoiceid"
)

var verifyClient string

// verifyCmd represents the verify command.
var verifyCmd = &cobra.Command{
	Use:   "verify [invoice-number...]",
	Short: "Recompute invoice numbers from the history",
	Long: `Recompute each recorded invoice number from the stored client,
period, hours, tags and reference, and report numbers that no longer match.
Without arguments every recorded invoice is verified.

Example:
  invoicegen verify
  invoicegen verify ml-1a2b3c4d
  invoicegen verify --client ml`,
	Run: runVerify,
}

func init() {
	verifyCmd.Flags().StringVar(&verifyClient, "client", "", "only verify invoices of this client")
}

func runVerify(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	cfg := loadRuntime()

	conn, history := openHistory(cfg)
	defer conn.Close()

	var records []db.InvoiceRecord
	if len(args) == 0 {
		all, err := history.GetInvoicesByClient(ctx, verifyClient)
		exitOnError(err, "failed to list invoices")
		records = all
	} else {
		for _, number := range args {
			record, err := history.GetInvoice(ctx, number)
			exitOnError(err, "failed to read invoice")
			if record == nil {
				exitOnError(fmt.Errorf("invoice %s is not recorded", number), "unknown invoice")
			}
			records = append(records, *record)
		}
	}

	mismatches := 0
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, r := range records {
		status := "ok"
		if !invoiceid.Verify(r.Number, r.IdentityInput()) {
			status = "MISMATCH (expected " + invoiceid.Generate(r.IdentityInput()) + ")"
			mismatches++
		}
		fmt.Fprintf(tw, "%s\t%s\t%s..%s\t%sh\t%s\n",
			r.Number,
			r.ClientID,
			r.PeriodStart.Format(time.DateOnly),
			r.PeriodEnd.Format(time.DateOnly),
			r.TotalHours.StringFixedBank(billing.HoursPlaces),
			status,
		)
	}
	exitOnError(tw.Flush(), "failed to write report")

	fmt.Printf("\n%d invoice(s) verified, %d mismatch(es)\n", len(records), mismatches)
	if mismatches > 0 {
		exitOnError(fmt.Errorf("%d invoice number(s) do not match their recorded inputs", mismatches), "verification failed")
	}
}
