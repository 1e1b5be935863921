package cmd

import (
	"context"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/johnmatter/timewarrior-invoice/pkg/config"
	"github.com/johnmatter/timewarrior-invoice/pkg/render"
	"github.com/johnmatter/timewarrior-invoice/pkg/timew"
)

// checkCmd represents the check command.
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check configuration and external tools",
	Long: `Check that the billing configuration is valid, every client has a
usable rate table, and the timew and LaTeX executables can be found.

Example:
  invoicegen check`,
	Run: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	cfg := loadRuntime()
	failed := false

	report := func(name string, err error, detail string) {
		if err != nil {
			failed = true
			fmt.Printf("[FAIL] %s: %v\n", name, err)
			return
		}
		fmt.Printf("[ OK ] %s %s\n", name, detail)
	}

	file, err := config.LoadFile(cfg.ConfigPath)
	if err == nil {
		err = file.Validate()
	}
	report("configuration", err, cfg.ConfigPath)

	if file != nil {
		for _, id := range file.ClientIDs() {
			report("rates for "+id, file.RatesFor(id).Validate(), "")
		}
	}

	version, err := checkTimew(ctx, cfg)
	report("timew", err, version)

	if file != nil {
		formats, err := file.Formats()
		report("output format", err, file.Output.Format)
		if slices.Contains(formats, render.FormatPDF) {
			command := cfg.LatexCommand
			if command == "" {
				command = file.Latex.Command
			}
			path, err := render.CheckEnvironment(command)
			report("latex", err, path)
		}
		if file.Latex.TemplatePath != "" {
			_, err := render.NewLaTeX(file.Latex.TemplatePath)
			report("latex template", err, file.Latex.TemplatePath)
		}
	}

	if failed {
		exitOnError(fmt.Errorf("one or more checks failed"), "check failed")
	}
}

func checkTimew(ctx context.Context, cfg *config.Config) (string, error) {
	runner := timew.Runner{Command: cfg.TimewCommand}
	if !runner.Available() {
		return "", fmt.Errorf("%s not found in PATH (use --input to read exports instead)", cfg.TimewCommand)
	}
	return runner.Version(ctx)
}
