package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bull/docqa/internal/storage"
)

var askNoSources bool

var askCmd = &cobra.Command{
	Use:   "ask <document_id> <question>",
	Short: "Answer a question from one document",
	Long: `Retrieves the passages of the document most similar to the question
and asks the language model to answer from those passages only. If the
document does not contain the answer, the model says so.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&askNoSources, "no-sources", false, "print only the answer")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	question := strings.Join(args[1:], " ")

	h, err := service.Resume(ctx, args[0])
	if err != nil {
		return userError(err)
	}
	ans, err := service.Ask(ctx, h, question)
	if err != nil {
		return userError(err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, ui.Answer.Render(ans.Text))
	if !askNoSources {
		printSources(out, ans.Citations)
	}
	return nil
}

func printSources(out io.Writer, sources []*storage.ScoredChunk) {
	if len(sources) == 0 {
		return
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, ui.Muted.Render("Sources:"))
	for i, s := range sources {
		snippet := truncate(strings.Join(strings.Fields(s.Content), " "), 100)
		fmt.Fprintln(out, ui.Muted.Render(fmt.Sprintf("  [%d] chunk %d (%.2f) %s", i+1, s.ChunkIndex, s.Score, snippet)))
	}
}
