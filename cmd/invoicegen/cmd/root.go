// Package cmd provides CLI commands for invoicegen.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/johnmatter/timewarrior-invoice/pkg/config"
)

var (
	envFile    string
	configFile string
	debug      bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "invoicegen",
	Short: "Generate invoices from timewarrior data",
	Long: `invoicegen turns timewarrior intervals into client invoices.

It supports:
- Exporting intervals from timew or reading a JSON/CSV export
- Per-task hourly rates with client overrides
- Reproducible invoice numbers derived from the billed work
- LaTeX, PDF and XLSX documents
- An SQLite history of generated invoices

Example:
  invoicegen init
  invoicegen generate --client ml --month 2025-07
  invoicegen generate --all --month 2025-07 --format all
  invoicegen stats`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logLevel := slog.LevelInfo
		if debug {
			logLevel = slog.LevelDebug
		}

		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: logLevel,
		}))
		slog.SetDefault(logger)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env", "", "env file (default is .env)")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "billing config file (default is $INVOICE_CONFIG or "+config.DefaultConfigPath+")")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(clientsCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(forgetCmd)
}

// loadRuntime loads the environment settings, applying the --config flag.
func loadRuntime() *config.Config {
	cfg, err := config.Load(envFile)
	exitOnError(err, "failed to load configuration")
	if configFile != "" {
		cfg.ConfigPath = configFile
	}
	if cfg.Debug && !debug {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}
	return cfg
}

// loadBilling loads and validates the billing configuration file.
func loadBilling(cfg *config.Config) *config.File {
	exitOnError(cfg.Validate("config"), "invalid configuration")

	slog.Debug("Loading billing configuration", "path", cfg.ConfigPath)
	file, err := config.LoadFile(cfg.ConfigPath)
	exitOnError(err, "failed to load billing configuration")
	exitOnError(file.Validate(), "invalid billing configuration")
	return file
}

// outputDir resolves the output root: flag, then environment, then file.
func outputDir(flagValue string, cfg *config.Config, file *config.File) string {
	switch {
	case flagValue != "":
		return flagValue
	case cfg.OutputDir != "":
		return cfg.OutputDir
	case file != nil && file.Output.Directory != "":
		return file.Output.Directory
	}
	return config.DefaultOutputDir
}

// Helper function to handle errors and exit.
func exitOnError(err error, msg string) {
	if err != nil {
		slog.Error(msg, "error", err)
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
		os.Exit(1)
	}
}
