// Package cmd is the cobra command tree for the argus binary: serve runs
// the analysis and clustering core, migrate brings the relational store's
// schema up to date. Every other surface the teacher's CLI exposed (digest
// generation, research, TUI, manual fetch) belongs to the RSS-ingestion and
// mobile-API layers this core does not implement.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jeremyandrews/argus/internal/logger"
)

// NewRootCmd creates the root command with serve and migrate attached.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "argus",
		Short: "Continuous news analysis and clustering core",
		Long: `Argus ingests already-fetched article text, runs it through relevance and
threat gating, LLM content analysis, entity extraction and embedding, and
groups the results into evolving story clusters.`,
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newMigrateCmd())
	return rootCmd
}

// Execute runs the root command, exiting non-zero on failure (spec §7:
// "a fatal process failure exits the process non-zero").
func Execute() {
	logger.Init()
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
