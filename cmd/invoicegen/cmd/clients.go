package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/johnmatter/timewarrior-invoice/pkg/billing"
	"github.com/johnmatter/timewarrior-invoice/pkg/pathutil"
)

// clientsCmd represents the clients command.
var clientsCmd = &cobra.Command{
	Use:   "clients",
	Short: "List configured clients and their rates",
	Long: `List the clients in the billing configuration with their invoice
prefix, effective hourly rates and output directory.

Example:
  invoicegen clients`,
	Run: runClients,
}

func runClients(cmd *cobra.Command, args []string) {
	cfg := loadRuntime()
	file := loadBilling(cfg)
	pathResolver := pathutil.New(pathutil.Config{OutputDir: outputDir("", cfg, file), DatabasePath: cfg.DBPath})

	defaults := file.InvoiceDefaults()
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, id := range file.ClientIDs() {
		client, err := file.InvoiceClient(id)
		exitOnError(err, "failed to read client")

		taxRate := defaults.TaxRate
		if client.TaxRate != nil {
			taxRate = *client.TaxRate
		}
		fmt.Fprintf(tw, "%s\t%s\tprefix %s\ttax %s\t%s\n", id, client.Name, client.Prefix, taxRate.String(), pathResolver.GetClientDir(id))

		rates := file.RatesFor(id)
		for _, key := range rates.Keys() {
			marker := ""
			if key == billing.DefaultRateKey {
				marker = "(fallback)"
			}
			fmt.Fprintf(tw, "\t  %s\t%s\t%s\t\n", key, rates[key].StringFixedBank(billing.CurrencyPlaces), marker)
		}
	}
	exitOnError(tw.Flush(), "failed to write client list")
}
