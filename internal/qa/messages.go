package qa

import (
	"context"
	"errors"

	"github.com/bull/docqa/internal/answer"
	"github.com/bull/docqa/internal/embedding"
	"github.com/bull/docqa/internal/extract"
	"github.com/bull/docqa/internal/indexer"
	"github.com/bull/docqa/internal/storage"
)

// UserMessage turns an error from this package into a short message fit to
// show an end user. Details belong in the logs.
func UserMessage(err error) string {
	var ingErr *indexer.IngestionError
	var ansErr *answer.Error

	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return "The request was cancelled."
	case errors.Is(err, context.DeadlineExceeded):
		return "The request timed out. Please try again."
	case errors.Is(err, ErrNoDocument):
		return "Load a document before asking questions."
	case errors.Is(err, answer.ErrEmptyQuestion):
		return "Please enter a question."
	case errors.Is(err, extract.ErrUnparseable):
		return "The file could not be read. Upload a PDF, Markdown or plain text document."
	case errors.Is(err, extract.ErrInsufficientContent):
		return "The document does not contain enough text to answer questions about."
	case errors.Is(err, storage.ErrDocumentNotFound):
		return "That document is not in the index. It may have been deleted."
	case errors.Is(err, storage.ErrIndexNotInitialized):
		return "The document index has not been set up yet. Ingest a document first."
	case errors.Is(err, storage.ErrIndexUnavailable):
		return "The document index is unreachable. Check that it is running and try again."
	case errors.Is(err, storage.ErrDimensionMismatch):
		return "The index was built with a different embedding model. Use a new collection or the original model."
	case errors.Is(err, embedding.ErrEmptyInput):
		return "There was no text to embed."
	case errors.Is(err, embedding.ErrModelUnavailable),
		errors.Is(err, embedding.ErrDimensionMismatch),
		errors.Is(err, embedding.ErrZeroVector):
		return "The embedding model is unavailable. Check the embedding settings and try again."
	case errors.As(err, &ansErr) && ansErr.Stage == "generate":
		return "The language model could not produce an answer. Check that it is running and try again."
	case errors.As(err, &ingErr):
		return "The document could not be indexed. Please try again."
	case errors.As(err, &ansErr):
		return "The question could not be answered. Please try again."
	}
	return "Something went wrong. Please try again."
}
