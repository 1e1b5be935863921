// Package main is the entry point for the invoicegen CLI.
package main

import (
	"os"

	"github.com/johnmatter/timewarrior-invoice/cmd/invoicegen/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
