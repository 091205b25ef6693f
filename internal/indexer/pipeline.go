package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bull/docqa/internal/chunker"
	"github.com/bull/docqa/internal/extract"
	"github.com/bull/docqa/internal/storage"
)

// Stage names the pipeline step an ingestion failed in.
type Stage string

const (
	StageExtract Stage = "extract"
	StageChunk   Stage = "chunk"
	StageEmbed   Stage = "embed"
	StageStore   Stage = "store"
)

// ErrNoChunks is returned when extracted text produced nothing to embed.
var ErrNoChunks = errors.New("document produced no chunks")

// IngestionError is returned for every failed ingestion.
type IngestionError struct {
	Stage Stage
	Err   error
}

func (e *IngestionError) Error() string {
	return fmt.Sprintf("ingestion failed at %s: %v", e.Stage, e.Err)
}

func (e *IngestionError) Unwrap() error { return e.Err }

// DocumentEmbedder embeds chunk texts, one vector per text.
type DocumentEmbedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// Writer is the part of storage.Index the pipeline writes through.
type Writer interface {
	Upsert(ctx context.Context, doc *storage.Document, chunks []*storage.Chunk) error
	DeleteNamespace(ctx context.Context, namespace string) error
}

// Source is one document to ingest.
type Source struct {
	Name    string
	Content []byte
}

// Result contains statistics about a batch ingestion.
type Result struct {
	Documents   []*storage.Document
	TotalChunks int
	Failed      []Failed
	Duration    time.Duration
}

// Failed represents a source that failed to ingest.
type Failed struct {
	Name string
	Err  error
}

// Pipeline runs extract, chunk, embed and store for uploaded documents.
type Pipeline struct {
	extractor *extract.Extractor
	chunker   *chunker.Chunker
	embedder  DocumentEmbedder
	index     Writer
	logger    *slog.Logger
	now       func() time.Time
}

// NewPipeline creates a new ingestion pipeline with the given components.
func NewPipeline(
	extractor *extract.Extractor,
	chunker *chunker.Chunker,
	embedder DocumentEmbedder,
	index Writer,
	logger *slog.Logger,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		index:     index,
		logger:    logger,
		now:       time.Now,
	}
}

// Ingest indexes one document under a newly minted document id. The returned
// document is ready to query. Extraction and chunking failures touch neither
// the embedder nor the index. If the store write fails the namespace is
// purged before the error is returned; it is never resumed.
func (p *Pipeline) Ingest(ctx context.Context, raw []byte, displayName string) (*storage.Document, error) {
	start := p.now()

	extracted, err := p.extractor.Extract(raw, displayName)
	if err != nil {
		return nil, &IngestionError{Stage: StageExtract, Err: err}
	}
	name := strings.TrimSpace(displayName)
	if name == "" {
		name = extracted.Title()
	}
	if name == "" {
		name = "untitled"
	}
	p.logger.Debug("extracted document",
		"name", name,
		"format", extracted.Format,
		"chars", len([]rune(extracted.Text)))

	pieces := p.chunker.Split(extracted.Text)
	if len(pieces) == 0 {
		return nil, &IngestionError{Stage: StageChunk, Err: ErrNoChunks}
	}

	texts := make([]string, len(pieces))
	for i, piece := range pieces {
		texts[i] = piece.Text
	}
	vectors, err := p.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, &IngestionError{Stage: StageEmbed, Err: err}
	}

	doc := &storage.Document{
		ID:          uuid.New().String(),
		DisplayName: name,
		ChunkCount:  len(pieces),
		IngestedAt:  start.UTC(),
	}
	chunks := make([]*storage.Chunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = &storage.Chunk{
			ID:           uuid.New().String(),
			DocumentID:   doc.ID,
			DocumentName: doc.DisplayName,
			ChunkIndex:   piece.Index,
			Content:      piece.Text,
			IngestedAt:   doc.IngestedAt,
			Embedding:    vectors[i],
		}
	}

	if err := p.index.Upsert(ctx, doc, chunks); err != nil {
		// Use a fresh context so a cancelled request still cleans up.
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if purgeErr := p.index.DeleteNamespace(cleanupCtx, doc.ID); purgeErr != nil {
			p.logger.Warn("failed to purge partial document",
				"document_id", doc.ID,
				"error", purgeErr)
		}
		return nil, &IngestionError{Stage: StageStore, Err: err}
	}

	p.logger.Info("ingested document",
		"document_id", doc.ID,
		"name", doc.DisplayName,
		"chunks", doc.ChunkCount,
		"duration", time.Since(start))
	return doc, nil
}

// IngestAll ingests each source in turn. A failed source is recorded and the
// rest still run; only context cancellation stops the batch early.
func (p *Pipeline) IngestAll(ctx context.Context, sources []Source) (*Result, error) {
	start := p.now()
	result := &Result{}

	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		doc, err := p.Ingest(ctx, src.Content, src.Name)
		if err != nil {
			p.logger.Warn("failed to ingest document", "name", src.Name, "error", err)
			result.Failed = append(result.Failed, Failed{Name: src.Name, Err: err})
			continue
		}
		result.Documents = append(result.Documents, doc)
		result.TotalChunks += doc.ChunkCount
	}

	result.Duration = time.Since(start)
	p.logger.Info("ingestion complete",
		"successful", len(result.Documents),
		"failed", len(result.Failed),
		"chunks", result.TotalChunks,
		"duration", result.Duration)
	return result, nil
}
