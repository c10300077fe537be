package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:   "sentio",
	Short: "Message enrichment and semantic search service",
	Long: `sentio enriches chat messages with a summary, an automatic reply and a
sentiment label, stores them, and indexes their embeddings for semantic search.

Run "sentio serve" to start the HTTP API, or "sentio mcp" to serve MCP over stdio.
Client commands (process, search, history, product, ai) talk to a running server.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "sentio version %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", os.Getenv("NO_COLOR") != "", "disable colored output")

	rootCmd.AddCommand(serveCmd, mcpCmd, statusCmd, versionCmd)
	rootCmd.AddCommand(processCmd, searchCmd, reindexCmd, historyCmd, productCmd, aiCmd, configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}
