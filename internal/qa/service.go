// Package qa is the ingest and ask surface used by the command line and the
// MCP server.
package qa

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bull/docqa/internal/answer"
	"github.com/bull/docqa/internal/storage"
)

// Ingester indexes one uploaded document.
type Ingester interface {
	Ingest(ctx context.Context, raw []byte, displayName string) (*storage.Document, error)
}

// Answerer answers a question against one document namespace.
type Answerer interface {
	Answer(ctx context.Context, question, documentID string) (*answer.Answer, error)
}

// Catalogue is the read and purge side of the index.
type Catalogue interface {
	GetDocument(ctx context.Context, namespace string) (*storage.Document, error)
	ListDocuments(ctx context.Context) ([]*storage.Document, error)
	DeleteNamespace(ctx context.Context, namespace string) error
	Stats(ctx context.Context) (*storage.Stats, error)
	Health(ctx context.Context) error
}

// Handle is the retrieval configuration for one ingested document. It is
// only produced once the document's chunks are stored.
type Handle struct {
	Document storage.Document
}

// DocumentID is the namespace questions are answered from.
func (h *Handle) DocumentID() string { return h.Document.ID }

// Models names the configured model backends, for status output.
type Models struct {
	Embedding      string
	EmbeddingDim   int
	Generation     string
	GenerationKind string
	TopK           int
}

// Status summarises the service for display.
type Status struct {
	Models Models
	Index  *storage.Stats // Nil when the index could not be reached
	Err    error          // Why Index is nil
}

// Service ties ingestion, answering and the document catalogue together.
// It is safe for concurrent use; per-user state lives in Session.
type Service struct {
	ingester  Ingester
	answerer  Answerer
	catalogue Catalogue
	models    Models
}

// NewService creates a Service.
func NewService(ingester Ingester, answerer Answerer, catalogue Catalogue, models Models) *Service {
	return &Service{
		ingester:  ingester,
		answerer:  answerer,
		catalogue: catalogue,
		models:    models,
	}
}

// Ingest indexes raw under a new document id and returns its handle.
func (s *Service) Ingest(ctx context.Context, raw []byte, displayName string) (*Handle, error) {
	doc, err := s.ingester.Ingest(ctx, raw, displayName)
	if err != nil {
		return nil, err
	}
	return &Handle{Document: *doc}, nil
}

// Ask answers question from the document behind h.
func (s *Service) Ask(ctx context.Context, h *Handle, question string) (*answer.Answer, error) {
	if h == nil {
		return nil, ErrNoDocument
	}
	return s.answerer.Answer(ctx, question, h.DocumentID())
}

// Resume returns the handle of a previously ingested document.
func (s *Service) Resume(ctx context.Context, documentID string) (*Handle, error) {
	doc, err := s.catalogue.GetDocument(ctx, strings.TrimSpace(documentID))
	if err != nil {
		return nil, err
	}
	return &Handle{Document: *doc}, nil
}

// Delete purges a document and all of its chunks. The namespace is purged
// even without a catalogue record so chunks left by a failed ingestion can
// be removed; ErrDocumentNotFound is still returned in that case.
func (s *Service) Delete(ctx context.Context, documentID string) error {
	documentID = strings.TrimSpace(documentID)
	_, lookupErr := s.catalogue.GetDocument(ctx, documentID)
	if lookupErr != nil && !errors.Is(lookupErr, storage.ErrDocumentNotFound) {
		return lookupErr
	}
	if err := s.catalogue.DeleteNamespace(ctx, documentID); err != nil {
		return fmt.Errorf("delete document %s: %w", documentID, err)
	}
	return lookupErr
}

// Documents lists ingested documents, newest first.
func (s *Service) Documents(ctx context.Context) ([]*storage.Document, error) {
	return s.catalogue.ListDocuments(ctx)
}

// Status reports the configured models and the index contents. An
// unreachable index is reported in Status.Err rather than as an error.
func (s *Service) Status(ctx context.Context) *Status {
	status := &Status{Models: s.models}
	stats, err := s.catalogue.Stats(ctx)
	if err != nil {
		status.Err = err
		return status
	}
	status.Index = stats
	return status
}

// Health checks that the index is reachable.
func (s *Service) Health(ctx context.Context) error {
	return s.catalogue.Health(ctx)
}

// IsNotFound reports whether err means the document does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, storage.ErrDocumentNotFound)
}
