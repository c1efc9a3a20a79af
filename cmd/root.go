// Package cmd implements the command-line interface for the crawl engine.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/lattice-run/crawlhive/cmd/httpd"
)

// rootCmd is the crawlhive CLI entry point.
var rootCmd = &cobra.Command{
	Use:   "crawlhive",
	Short: "A multi-tenant web crawling engine",
	Long:  `crawlhive runs user-defined crawl tasks as controllable, observable worker pools.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Help()
	},
}

func init() {
	rootCmd.AddCommand(httpd.Command())
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
