package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/johnmatter/timewarrior-invoice/pkg/config"
)

var initForce bool

// initCmd represents the init command.
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter billing configuration",
	Long: `Write a starter billing configuration with placeholder biller
details, an example client and common task rates.

Example:
  invoicegen init
  invoicegen init --config ~/.config/invoicegen/billing.yaml --force`,
	Run: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing configuration")
}

func runInit(cmd *cobra.Command, args []string) {
	cfg := loadRuntime()

	if _, err := os.Stat(cfg.ConfigPath); err == nil && !initForce {
		exitOnError(fmt.Errorf("%s already exists (use --force to overwrite)", cfg.ConfigPath), "refusing to overwrite configuration")
	}

	exitOnError(config.Default().Save(cfg.ConfigPath), "failed to write configuration")

	slog.Info("Configuration written", "path", cfg.ConfigPath)
	fmt.Printf("Wrote %s\nEdit the biller details and clients, then run: invoicegen check\n", cfg.ConfigPath)
}
