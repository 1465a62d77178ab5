package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pkolbe/ontograph-go/internal/client"
)

var statusCmd = &cobra.Command{
	Use:   "status <batch-id>",
	Short: "Show the status of a batch",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

var suspendCause string

var suspendCmd = &cobra.Command{
	Use:   "suspend <batch-id>",
	Short: "Pause an active batch",
	Long: `Pause an active batch. Progress is persisted; a suspended batch can
be resumed later without reprocessing completed items.`,
	Args: cobra.ExactArgs(1),
	RunE: runSuspend,
}

var resumeCmd = &cobra.Command{
	Use:   "resume <batch-id>",
	Short: "Resume a suspended batch",
	Long: `Resume a suspended batch from its persisted state. Items already
processed are skipped; previously failed items are retried.`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

func init() {
	suspendCmd.Flags().StringVar(&suspendCause, "cause", "", "reason recorded with the suspension")
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(suspendCmd)
	rootCmd.AddCommand(resumeCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	status, err := apiClient.GetBatchStatus(ctx, args[0])
	if err != nil {
		return fmt.Errorf("get batch status: %w", err)
	}

	printStatus(args[0], status)
	return nil
}

func printStatus(batchID string, status *client.BatchStatus) {
	switch status.Tag {
	case "Active":
		fmt.Printf("Batch: %s\n", batchID)
		fmt.Printf("  Status: active\n")
		if s := status.State; s != nil {
			printProgress(s)
			if s.Pending == 0 {
				fmt.Printf("  Status: completed\n")
			}
		}
	case "Suspended":
		fmt.Printf("Batch: %s\n", batchID)
		fmt.Printf("  Status: suspended\n")
		if status.Cause != nil {
			fmt.Printf("  Cause: %s\n", *status.Cause)
		}
		if status.LastKnownState != nil {
			printProgress(status.LastKnownState)
		}
		if status.CanResume != nil {
			fmt.Printf("  Resumable: %t\n", *status.CanResume)
		}
	default:
		fmt.Printf("Batch not found: %s\n", batchID)
	}
}

func printProgress(s *client.BatchProgress) {
	fmt.Printf("  Processed: %d\n", s.Processed)
	fmt.Printf("  Pending: %d\n", s.Pending)
	if s.Failed > 0 {
		fmt.Printf("  Failed: %d\n", s.Failed)
	}
}

func runSuspend(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if err := apiClient.SuspendBatch(ctx, args[0], suspendCause); err != nil {
		return fmt.Errorf("suspend batch: %w", err)
	}
	fmt.Printf("Batch %s suspended\n", args[0])
	return nil
}

func runResume(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if err := apiClient.ResumeBatch(ctx, args[0]); err != nil {
		return fmt.Errorf("resume batch: %w", err)
	}
	fmt.Printf("Batch %s resumed\n", args[0])
	return nil
}
