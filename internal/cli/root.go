// Package cli provides the command-line interface for ontograph.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pkolbe/ontograph-go/internal/client"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose   bool
	serverURL string

	// Global server client
	apiClient *client.Client
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "ontograph",
	Short: "Ontology-guided knowledge graph extraction",
	Long: `Ontograph extracts knowledge graphs from text, constrained by a
controlled vocabulary of entity classes and relation predicates.

Submit batches of documents for extraction, watch their progress over a
ticket-gated stream, and suspend or resume them across restarts.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		apiClient = client.New(serverURL)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "server URL (default ONTOGRAPH_SERVER_URL or http://localhost:8484)")
}

// exitWithError prints an error message and exits with code 1.
func exitWithError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
