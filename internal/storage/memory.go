package storage

import (
	"context"
	"math"
	"sort"
	"sync"
)

// MemoryStorage is a process-local index using brute-force scoring. Chunks
// are kept per namespace, so a search never looks at other documents.
type MemoryStorage struct {
	mu         sync.RWMutex
	dimension  int
	metric     Metric
	namespaces map[string][]*Chunk
	documents  map[string]*Document
}

// NewMemoryStorage creates an empty in-memory index.
func NewMemoryStorage(dimension int, metric Metric) *MemoryStorage {
	if metric == "" {
		metric = MetricCosine
	}
	return &MemoryStorage{
		dimension:  dimension,
		metric:     metric,
		namespaces: make(map[string][]*Chunk),
		documents:  make(map[string]*Document),
	}
}

func (s *MemoryStorage) Upsert(ctx context.Context, doc *Document, chunks []*Chunk) error {
	if err := validateUpsert(doc, chunks, s.dimension); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := s.namespaces[doc.ID]
	byID := make(map[string]int, len(stored))
	for i, c := range stored {
		byID[c.ID] = i
	}
	for _, c := range chunks {
		cp := *c
		cp.Embedding = append([]float32(nil), c.Embedding...)
		if i, ok := byID[c.ID]; ok {
			stored[i] = &cp
			continue
		}
		byID[c.ID] = len(stored)
		stored = append(stored, &cp)
	}
	s.namespaces[doc.ID] = stored

	d := *doc
	s.documents[doc.ID] = &d
	return nil
}

func (s *MemoryStorage) Search(ctx context.Context, namespace string, query []float32, k int) ([]*ScoredChunk, error) {
	if err := validateQuery(query, s.dimension); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.namespaces[namespace]
	if k <= 0 || len(stored) == 0 {
		return []*ScoredChunk{}, nil
	}

	hits := make([]*ScoredChunk, len(stored))
	for i, c := range stored {
		cp := *c
		cp.Embedding = nil
		hits[i] = &ScoredChunk{Chunk: &cp, Score: score(s.metric, c.Embedding, query)}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkIndex < hits[j].ChunkIndex
	})

	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

func (s *MemoryStorage) GetDocument(ctx context.Context, namespace string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.documents[namespace]
	if !ok {
		return nil, ErrDocumentNotFound
	}
	d := *doc
	return &d, nil
}

func (s *MemoryStorage) ListDocuments(ctx context.Context) ([]*Document, error) {
	s.mu.RLock()
	docs := make([]*Document, 0, len(s.documents))
	for _, doc := range s.documents {
		d := *doc
		docs = append(docs, &d)
	}
	s.mu.RUnlock()

	sortDocuments(docs)
	return docs, nil
}

func (s *MemoryStorage) DeleteNamespace(ctx context.Context, namespace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.namespaces, namespace)
	delete(s.documents, namespace)
	return nil
}

func (s *MemoryStorage) Stats(ctx context.Context) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chunks := 0
	for _, c := range s.namespaces {
		chunks += len(c)
	}
	return &Stats{
		Backend:   "memory",
		Documents: len(s.documents),
		Chunks:    chunks,
		Dimension: s.dimension,
		Metric:    s.metric,
	}, nil
}

func (s *MemoryStorage) Health(ctx context.Context) error { return nil }

func (s *MemoryStorage) Close() error { return nil }

// score returns a similarity where higher is better. Euclidean distance d is
// reported as 1/(1+d) so every metric sorts the same way.
func score(metric Metric, a, b []float32) float64 {
	switch metric {
	case MetricDot:
		return dot(a, b)
	case MetricEuclid:
		var sum float64
		for i := range a {
			d := float64(a[i]) - float64(b[i])
			sum += d * d
		}
		return 1 / (1 + math.Sqrt(sum))
	default:
		na, nb := math.Sqrt(dot(a, a)), math.Sqrt(dot(b, b))
		if na == 0 || nb == 0 {
			return 0
		}
		return dot(a, b) / (na * nb)
	}
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// sortDocuments orders by ingestion time, newest first.
func sortDocuments(docs []*Document) {
	sort.Slice(docs, func(i, j int) bool {
		if !docs[i].IngestedAt.Equal(docs[j].IngestedAt) {
			return docs[i].IngestedAt.After(docs[j].IngestedAt)
		}
		return docs[i].ID < docs[j].ID
	})
}
