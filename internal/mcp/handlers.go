package mcp

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	ghclient "github.com/bull/docqa/internal/github"
	"github.com/bull/docqa/internal/qa"
	"github.com/bull/docqa/internal/storage"
)

// toolError logs err in full and returns the user-facing message as the tool
// error.
func toolError(logger *slog.Logger, tool string, err error) error {
	logger.Warn("tool failed", "tool", tool, "error", err)
	return errors.New(qa.UserMessage(err))
}

func documentInfo(doc *storage.Document) DocumentInfo {
	return DocumentInfo{
		DocumentID: doc.ID,
		Name:       doc.DisplayName,
		Chunks:     doc.ChunkCount,
		IngestedAt: doc.IngestedAt,
	}
}

// makeIngestHandler creates the ingest_document tool handler.
// Content comes from exactly one of: inline text, base64 bytes, or a GitHub
// location fetched through the fetcher.
func makeIngestHandler(service *qa.Service, fetcher *ghclient.Fetcher, logger *slog.Logger) func(
	context.Context, *mcp.CallToolRequest, IngestDocumentInput,
) (*mcp.CallToolResult, IngestDocumentOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input IngestDocumentInput) (
		*mcp.CallToolResult, IngestDocumentOutput, error,
	) {
		sources := 0
		for _, s := range []string{input.Content, input.ContentBase64, input.GitHub} {
			if s != "" {
				sources++
			}
		}
		if sources != 1 {
			return nil, IngestDocumentOutput{}, fmt.Errorf("provide exactly one of content, content_base64 or github")
		}

		var raw []byte
		name := input.Name
		switch {
		case input.Content != "":
			raw = []byte(input.Content)
		case input.ContentBase64 != "":
			decoded, err := base64.StdEncoding.DecodeString(input.ContentBase64)
			if err != nil {
				return nil, IngestDocumentOutput{}, fmt.Errorf("content_base64 is not valid base64: %w", err)
			}
			raw = decoded
		default:
			if fetcher == nil {
				return nil, IngestDocumentOutput{}, fmt.Errorf("GitHub ingestion is not configured")
			}
			loc, err := ghclient.ParseLocation(input.GitHub)
			if err != nil {
				return nil, IngestDocumentOutput{}, err
			}
			file, err := fetcher.FetchFile(ctx, loc)
			if err != nil {
				logger.Warn("GitHub fetch failed", "location", loc.String(), "error", err)
				return nil, IngestDocumentOutput{}, fmt.Errorf("could not fetch %s from GitHub", loc)
			}
			raw = file.Content
			if name == "" {
				name = file.Name
			}
		}

		h, err := service.Ingest(ctx, raw, name)
		if err != nil {
			return nil, IngestDocumentOutput{}, toolError(logger, "ingest_document", err)
		}
		return nil, IngestDocumentOutput{Document: documentInfo(&h.Document)}, nil
	}
}

// makeAskHandler creates the ask_question tool handler.
func makeAskHandler(service *qa.Service, logger *slog.Logger) func(
	context.Context, *mcp.CallToolRequest, AskQuestionInput,
) (*mcp.CallToolResult, AskQuestionOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input AskQuestionInput) (
		*mcp.CallToolResult, AskQuestionOutput, error,
	) {
		if strings.TrimSpace(input.DocumentID) == "" {
			return nil, AskQuestionOutput{}, toolError(logger, "ask_question", qa.ErrNoDocument)
		}
		h, err := service.Resume(ctx, input.DocumentID)
		if err != nil {
			return nil, AskQuestionOutput{}, toolError(logger, "ask_question", err)
		}

		ans, err := service.Ask(ctx, h, input.Question)
		if err != nil {
			return nil, AskQuestionOutput{}, toolError(logger, "ask_question", err)
		}

		citations := make([]Citation, 0, len(ans.Citations))
		for _, c := range ans.Citations {
			citations = append(citations, Citation{
				ChunkIndex: c.ChunkIndex,
				Score:      c.Score,
				Content:    c.Content,
			})
		}
		return nil, AskQuestionOutput{
			Answer:    ans.Text,
			Document:  h.Document.DisplayName,
			Citations: citations,
		}, nil
	}
}

// makeListHandler creates the list_documents tool handler.
func makeListHandler(service *qa.Service, logger *slog.Logger) func(
	context.Context, *mcp.CallToolRequest, ListDocumentsInput,
) (*mcp.CallToolResult, ListDocumentsOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ListDocumentsInput) (
		*mcp.CallToolResult, ListDocumentsOutput, error,
	) {
		docs, err := service.Documents(ctx)
		if err != nil {
			return nil, ListDocumentsOutput{}, toolError(logger, "list_documents", err)
		}

		infos := make([]DocumentInfo, 0, len(docs))
		for _, doc := range docs {
			infos = append(infos, documentInfo(doc))
		}
		return nil, ListDocumentsOutput{Documents: infos, Count: len(infos)}, nil
	}
}

// makeDeleteHandler creates the delete_document tool handler. Deleting an
// unknown document is reported as deleted=false, not as an error.
func makeDeleteHandler(service *qa.Service, logger *slog.Logger) func(
	context.Context, *mcp.CallToolRequest, DeleteDocumentInput,
) (*mcp.CallToolResult, DeleteDocumentOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input DeleteDocumentInput) (
		*mcp.CallToolResult, DeleteDocumentOutput, error,
	) {
		err := service.Delete(ctx, input.DocumentID)
		if qa.IsNotFound(err) {
			return nil, DeleteDocumentOutput{DocumentID: input.DocumentID, Deleted: false}, nil
		}
		if err != nil {
			return nil, DeleteDocumentOutput{}, toolError(logger, "delete_document", err)
		}
		return nil, DeleteDocumentOutput{DocumentID: input.DocumentID, Deleted: true}, nil
	}
}

// makeStatusHandler creates the get_index_status tool handler. An unreachable
// index is reported in the output so the models are still visible.
func makeStatusHandler(service *qa.Service, logger *slog.Logger) func(
	context.Context, *mcp.CallToolRequest, StatusInput,
) (*mcp.CallToolResult, StatusOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input StatusInput) (
		*mcp.CallToolResult, StatusOutput, error,
	) {
		status := service.Status(ctx)
		out := StatusOutput{
			EmbeddingModel:  status.Models.Embedding,
			GenerationModel: status.Models.Generation,
			TopK:            status.Models.TopK,
			Dimension:       status.Models.EmbeddingDim,
		}
		if status.Err != nil {
			logger.Warn("index status unavailable", "error", status.Err)
			out.IndexError = qa.UserMessage(status.Err)
			return nil, out, nil
		}

		out.Backend = status.Index.Backend
		out.Collection = status.Index.Collection
		out.TotalDocs = status.Index.Documents
		out.TotalChunks = status.Index.Chunks
		out.Dimension = status.Index.Dimension
		out.Metric = string(status.Index.Metric)
		return nil, out, nil
	}
}
