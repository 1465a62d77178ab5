package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pkolbe/ontograph-go/internal/client"
)

var (
	extractModel       string
	extractConcurrency int
	extractWatch       bool
)

var extractCmd = &cobra.Command{
	Use:   "extract <ontology-id> [file...]",
	Short: "Submit texts for knowledge graph extraction",
	Long: `Submit one or more documents for extraction under an ontology's
vocabulary. Each file becomes one batch item; with no files, items are read
from stdin, one per line.

Examples:
  ontograph extract org notes/*.txt
  cat items.txt | ontograph extract org
  ontograph extract org report.txt --watch`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().StringVar(&extractModel, "model", "", "override the extraction model")
	extractCmd.Flags().IntVar(&extractConcurrency, "concurrency", 0, "items processed in parallel (0 = server default)")
	extractCmd.Flags().BoolVarP(&extractWatch, "watch", "w", false, "watch progress until the batch finishes")
	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	items, err := collectItems(args[1:])
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return fmt.Errorf("no items to extract")
	}

	batchID, err := apiClient.SubmitBatch(ctx, client.SubmitBatchInput{
		OntologyID:  args[0],
		Items:       items,
		Model:       extractModel,
		Concurrency: extractConcurrency,
	})
	if err != nil {
		return fmt.Errorf("submit batch: %w", err)
	}

	fmt.Printf("Batch %s submitted (%d items)\n", batchID, len(items))

	if !extractWatch {
		fmt.Printf("Use 'ontograph status %s' to check progress.\n", batchID)
		return nil
	}

	return RunBatchProgress(apiClient, batchID)
}

// collectItems reads batch items from the given files, or from stdin
// (one item per line) when no files are named.
func collectItems(paths []string) ([]string, error) {
	if len(paths) > 0 {
		items := make([]string, 0, len(paths))
		for _, path := range paths {
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", path, err)
			}
			items = append(items, string(data))
		}
		return items, nil
	}

	var items []string
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			items = append(items, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read stdin: %w", err)
	}
	return items, nil
}
