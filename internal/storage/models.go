package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Document is the catalogue record of one ingested upload. Its ID is also
// the namespace holding the document's chunks.
type Document struct {
	ID          string    // UUID, minted per ingestion
	DisplayName string    // Name given at upload time
	ChunkCount  int       // Number of chunks written
	IngestedAt  time.Time // When the ingestion was accepted
}

// Chunk is one embedded slice of a document.
type Chunk struct {
	ID           string    // UUID
	DocumentID   string    // Namespace; equals the owning Document.ID
	DocumentName string    // Same as the owning Document.DisplayName
	ChunkIndex   int       // Position in document (0, 1, 2...)
	Content      string    // Chunk text
	IngestedAt   time.Time // Same as the owning Document.IngestedAt
	Embedding    []float32 // Unit-length vector; not returned by Search
}

// ScoredChunk is a search hit. Higher scores are more similar.
type ScoredChunk struct {
	*Chunk
	Score float64
}

// Stats summarises the index contents.
type Stats struct {
	Backend    string
	Documents  int
	Chunks     int
	Dimension  int
	Metric     Metric
	Collection string // Qdrant collection or Postgres table prefix
}

// Metric is the similarity measure used for search.
type Metric string

const (
	MetricCosine Metric = "cosine"
	MetricDot    Metric = "dot"
	MetricEuclid Metric = "euclid"
)

// ParseMetric validates a configured metric name.
func ParseMetric(s string) (Metric, error) {
	switch m := Metric(s); m {
	case MetricCosine, MetricDot, MetricEuclid:
		return m, nil
	case "":
		return MetricCosine, nil
	}
	return "", fmt.Errorf("unknown similarity metric %q", s)
}

// Index stores chunk vectors partitioned by document namespace.
//
// Search only ever sees chunks of the namespace it is given; the restriction
// is applied by the store, never by filtering results afterwards.
type Index interface {
	// Upsert writes chunks and then the catalogue record for doc. Every
	// chunk must carry DocumentID == doc.ID.
	Upsert(ctx context.Context, doc *Document, chunks []*Chunk) error
	// Search returns up to k chunks of namespace, most similar first. A
	// namespace that holds nothing yields an empty result.
	Search(ctx context.Context, namespace string, query []float32, k int) ([]*ScoredChunk, error)
	GetDocument(ctx context.Context, namespace string) (*Document, error)
	// ListDocuments returns catalogue records, most recent first.
	ListDocuments(ctx context.Context) ([]*Document, error)
	DeleteNamespace(ctx context.Context, namespace string) error
	Stats(ctx context.Context) (*Stats, error)
	Health(ctx context.Context) error
	Close() error
}

// validateUpsert checks the shared preconditions of Upsert.
func validateUpsert(doc *Document, chunks []*Chunk, dimension int) error {
	if doc == nil || doc.ID == "" {
		return fmt.Errorf("document id is required")
	}
	for i, chunk := range chunks {
		if chunk.DocumentID != doc.ID {
			return fmt.Errorf("%w: chunk %d has %q, document is %q",
				ErrNamespaceMismatch, i, chunk.DocumentID, doc.ID)
		}
		if len(chunk.Embedding) != dimension {
			return fmt.Errorf("%w: chunk %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(chunk.Embedding), dimension)
		}
	}
	return nil
}

func validateQuery(query []float32, dimension int) error {
	if len(query) != dimension {
		return fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(query), dimension)
	}
	return nil
}

// isNamespace reports whether namespace can be a document id. Anything else
// holds no points or rows.
func isNamespace(namespace string) bool {
	return uuid.Validate(namespace) == nil
}
