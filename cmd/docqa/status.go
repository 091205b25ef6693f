package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bull/docqa/internal/qa"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the index contents and configured models",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	status := service.Status(cmd.Context())
	m := status.Models

	fmt.Fprintln(out, ui.Title.Render("Models"))
	fmt.Fprintf(out, "  %s %s (%d dimensions)\n", ui.Label.Render("embedding: "), m.Embedding, m.EmbeddingDim)
	fmt.Fprintf(out, "  %s %s/%s\n", ui.Label.Render("generation:"), m.GenerationKind, m.Generation)
	fmt.Fprintf(out, "  %s %d\n", ui.Label.Render("top k:     "), m.TopK)
	fmt.Fprintln(out)

	fmt.Fprintln(out, ui.Title.Render("Index"))
	if status.Err != nil {
		logger.Debug("index stats failed", "error", status.Err)
		fmt.Fprintln(out, "  "+ui.Error.Render(qa.UserMessage(status.Err)))
		return nil
	}
	idx := status.Index
	fmt.Fprintf(out, "  %s %s\n", ui.Label.Render("backend:   "), idx.Backend)
	if idx.Collection != "" {
		fmt.Fprintf(out, "  %s %s\n", ui.Label.Render("collection:"), idx.Collection)
	}
	fmt.Fprintf(out, "  %s %s\n", ui.Label.Render("metric:    "), idx.Metric)
	fmt.Fprintf(out, "  %s %d\n", ui.Label.Render("documents: "), idx.Documents)
	fmt.Fprintf(out, "  %s %d\n", ui.Label.Render("chunks:    "), idx.Chunks)
	return nil
}
