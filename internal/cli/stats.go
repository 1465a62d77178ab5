package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pkolbe/ontograph-go/internal/client"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show server runtime statistics",
	Long:  `Show the server's in-memory operation statistics. Resets on server restart.`,
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	stats, err := apiClient.GetStats(ctx)
	if err != nil {
		return fmt.Errorf("get stats: %w", err)
	}

	fmt.Printf("Uptime: %.0fs\n\n", stats.UptimeSeconds)
	printOpStats("Extraction", stats.Extraction)
	printOpStats("Embedding", stats.Embedding)
	printOpStats("DB queries", stats.DBQuery)
	printOpStats("Batch items", stats.BatchItem)
	return nil
}

func printOpStats(name string, op *client.OperationStats) {
	if op == nil {
		return
	}
	fmt.Printf("%s:\n", name)
	fmt.Printf("  Count: %d\n", op.Count)
	if op.Failures > 0 {
		fmt.Printf("  Failures: %d\n", op.Failures)
	}
	if op.Count > 0 {
		fmt.Printf("  Avg: %.1fms  Min: %dms  Max: %dms\n", op.AvgTimeMs, op.MinTimeMs, op.MaxTimeMs)
	}
	fmt.Println()
}
