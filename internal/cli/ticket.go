package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var ticketAPIKey string

var ticketCmd = &cobra.Command{
	Use:   "ticket <ontology-id>",
	Short: "Issue a single-use streaming ticket",
	Long: `Issue a short-lived, single-use ticket scoped to one ontology.

The ticket authorizes exactly one streaming connection and expires after
its TTL. Consumed or expired tickets cannot be renewed; request a new one.

Examples:
  ontograph ticket org
  ontograph ticket org --api-key sk-...`,
	Args: cobra.ExactArgs(1),
	RunE: runTicket,
}

func init() {
	ticketCmd.Flags().StringVar(&ticketAPIKey, "api-key", "", "API key to bind into the ticket scope")
	rootCmd.AddCommand(ticketCmd)
}

func runTicket(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	grant, err := apiClient.IssueTicket(ctx, args[0], ticketAPIKey)
	if err != nil {
		return fmt.Errorf("issue ticket: %w", err)
	}

	fmt.Println(grant.Ticket)
	if verbose {
		expires := time.UnixMilli(grant.ExpiresAt)
		fmt.Printf("  Expires: %s (ttl %ds)\n", expires.Format(time.RFC3339), grant.TTLSeconds)
	}
	return nil
}
