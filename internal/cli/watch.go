package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pkolbe/ontograph-go/internal/client"
)

var watchBatch string

var watchCmd = &cobra.Command{
	Use:   "watch <ontology-id>",
	Short: "Stream live batch progress events",
	Long: `Issue a ticket and stream batch progress events over a websocket.

The ticket is single-use: it is consumed when the stream opens. With --batch,
only that batch's events are shown and the stream ends when it finishes.

Examples:
  ontograph watch org
  ontograph watch org --batch a1b2c3d4`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchBatch, "batch", "", "only show events for this batch")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	grant, err := apiClient.IssueTicket(ctx, args[0], "")
	if err != nil {
		return fmt.Errorf("issue ticket: %w", err)
	}

	err = apiClient.StreamEvents(ctx, grant.Ticket, watchBatch, func(ev client.ProgressEvent) error {
		switch ev.Type {
		case "item_failed":
			fmt.Printf("%s  %s  %s (processed %d, pending %d, failed %d)\n",
				ev.At.Format("15:04:05"), ev.BatchID, ev.Error,
				ev.State.Processed, ev.State.Pending, ev.State.Failed)
		default:
			fmt.Printf("%s  %s  %s (processed %d, pending %d)\n",
				ev.At.Format("15:04:05"), ev.BatchID, ev.Type,
				ev.State.Processed, ev.State.Pending)
		}
		return nil
	})
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("stream events: %w", err)
	}
	return nil
}
