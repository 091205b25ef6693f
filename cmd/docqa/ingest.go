package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	ghclient "github.com/bull/docqa/internal/github"
	"github.com/bull/docqa/internal/indexer"
	"github.com/bull/docqa/internal/qa"
	"github.com/bull/docqa/internal/storage"
)

// documentExts are the file types picked up from GitHub directories.
var documentExts = []string{".pdf", ".md", ".markdown", ".txt"}

var (
	ingestName   string
	ingestGitHub string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [files...]",
	Short: "Index documents for question answering",
	Long: `Extracts, chunks and embeds each document and stores it under a new
document id. Use the printed id with "docqa ask" or "docqa chat".

With --github, a single file is fetched, or every PDF, Markdown and text
file under a directory. A failed document does not stop the others.`,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestName, "name", "", "display name for a single document (default: file name)")
	ingestCmd.Flags().StringVar(&ingestGitHub, "github", "", "GitHub file or directory, as owner/repo/path[@ref] or a github.com URL")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && ingestGitHub == "" {
		return errors.New("give at least one file or --github")
	}
	ctx := cmd.Context()

	sources, err := readFiles(args)
	if err != nil {
		return err
	}
	if ingestGitHub != "" {
		remote, err := fetchGitHub(ctx, ingestGitHub)
		if err != nil {
			return err
		}
		sources = append(sources, remote...)
	}
	if len(sources) == 0 {
		return errors.New("no documents found")
	}
	if ingestName != "" {
		if len(sources) > 1 {
			return errors.New("--name applies to a single document")
		}
		sources[0].Name = ingestName
	}

	if len(sources) == 1 {
		h, err := service.Ingest(ctx, sources[0].Content, sources[0].Name)
		if err != nil {
			return userError(err)
		}
		printDocument(cmd.OutOrStdout(), &h.Document)
		return nil
	}

	result, err := batch.IngestAll(ctx, sources)
	if err != nil {
		return userError(err)
	}
	out := cmd.OutOrStdout()
	for _, doc := range result.Documents {
		printDocument(out, doc)
	}
	for _, failed := range result.Failed {
		fmt.Fprintln(out, ui.Error.Render("  ✗ "+failed.Name)+ui.Muted.Render(": "+qa.UserMessage(failed.Err)))
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "%s %d/%d documents, %d chunks in %s\n", ui.Title.Render("Ingested"),
		len(result.Documents), len(sources), result.TotalChunks, result.Duration.Round(time.Millisecond))

	if len(result.Failed) > 0 {
		return fmt.Errorf("%d of %d documents failed", len(result.Failed), len(sources))
	}
	return nil
}

func readFiles(paths []string) ([]indexer.Source, error) {
	sources := make([]indexer.Source, 0, len(paths))
	for _, p := range paths {
		raw, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		sources = append(sources, indexer.Source{Name: filepath.Base(p), Content: raw})
	}
	return sources, nil
}

// fetchGitHub downloads a single document, or every document under a
// directory when the path has no document extension.
func fetchGitHub(ctx context.Context, location string) ([]indexer.Source, error) {
	if fetcher == nil {
		return nil, errors.New("GitHub ingestion is not configured")
	}
	loc, err := ghclient.ParseLocation(location)
	if err != nil {
		return nil, err
	}

	paths := []string{loc.Path}
	if !isDocument(loc.Path) {
		paths, err = fetcher.ListFiles(ctx, loc, documentExts...)
		if err != nil {
			return nil, err
		}
	}

	sources := make([]indexer.Source, 0, len(paths))
	for _, p := range paths {
		fileLoc := loc
		fileLoc.Path = p
		file, err := fetcher.FetchFile(ctx, fileLoc)
		if err != nil {
			return nil, err
		}
		sources = append(sources, indexer.Source{Name: file.Name, Content: file.Content})
	}
	return sources, nil
}

func isDocument(p string) bool {
	ext := strings.ToLower(path.Ext(p))
	for _, e := range documentExts {
		if ext == e {
			return true
		}
	}
	return false
}

func printDocument(out io.Writer, doc *storage.Document) {
	fmt.Fprintf(out, "%s %s\n", ui.Success.Render("✓"), doc.DisplayName)
	fmt.Fprintf(out, "  %s %s\n", ui.Label.Render("document id:"), doc.ID)
	fmt.Fprintf(out, "  %s %d\n", ui.Label.Render("chunks:"), doc.ChunkCount)
}
