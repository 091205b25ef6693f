package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bull/docqa/internal/qa"
)

var listJSON bool

type documentJSON struct {
	DocumentID string    `json:"document_id"`
	Name       string    `json:"name"`
	Chunks     int       `json:"chunks"`
	IngestedAt time.Time `json:"ingested_at"`
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List ingested documents",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <document_id>",
	Short: "Delete a document and its indexed passages",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

func init() {
	listCmd.Flags().BoolVar(&listJSON, "json", false, "output documents as JSON")
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(deleteCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	docs, err := service.Documents(cmd.Context())
	if err != nil {
		return userError(err)
	}

	if listJSON {
		records := make([]documentJSON, 0, len(docs))
		for _, doc := range docs {
			records = append(records, documentJSON{
				DocumentID: doc.ID,
				Name:       doc.DisplayName,
				Chunks:     doc.ChunkCount,
				IngestedAt: doc.IngestedAt,
			})
		}
		data, err := json.MarshalIndent(records, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal documents: %w", err)
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	if len(docs) == 0 {
		fmt.Fprintln(out, "No documents ingested yet.")
		return nil
	}
	for _, doc := range docs {
		fmt.Fprintf(out, "%s  %s %s\n", doc.ID, doc.DisplayName,
			ui.Muted.Render(fmt.Sprintf("(%d chunks, %s)", doc.ChunkCount, doc.IngestedAt.Local().Format("2006-01-02 15:04"))))
	}
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if err := service.Delete(cmd.Context(), args[0]); err != nil {
		if qa.IsNotFound(err) {
			fmt.Fprintln(out, ui.Warning.Render("No document with id "+args[0]))
			return nil
		}
		return userError(err)
	}
	fmt.Fprintln(out, ui.Success.Render("Deleted "+args[0]))
	return nil
}
