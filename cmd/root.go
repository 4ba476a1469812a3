// Package cmd defines the docloom command-line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "docloom",
	Short: "docloom - knowledge-base chat backend",
	Long: `docloom serves chatbots grounded in document knowledge bases.

Documents are chunked and embedded into PostgreSQL (pgvector); each chat
turn retrieves the closest chunks from the chatbot's document scope and
answers with source attribution.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
