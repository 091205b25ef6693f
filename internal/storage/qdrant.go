package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// DefaultCollection is the single Qdrant collection holding every namespace.
const DefaultCollection = "docqa"

// vectorName is the named vector carried by chunk points. Catalogue points
// carry no vector.
const vectorName = "content"

// Point types stored in the "type" payload field.
const (
	pointTypeChunk    = "chunk"
	pointTypeDocument = "document"
)

// QdrantConfig describes how to reach Qdrant and what the collection holds.
type QdrantConfig struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
	Dimension  int
	Metric     Metric
}

// QdrantStorage keeps every document in one collection. The namespace is the
// document_id payload field, indexed as a tenant key and applied as a filter
// inside each query.
type QdrantStorage struct {
	client     *qdrant.Client
	collection string
	dimension  int
	metric     Metric
}

// NewQdrantStorage connects to Qdrant, retrying the health check with
// exponential backoff, and makes sure the collection exists.
func NewQdrantStorage(ctx context.Context, cfg QdrantConfig) (*QdrantStorage, error) {
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}
	if cfg.Metric == "" {
		cfg.Metric = MetricCosine
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	s := &QdrantStorage{
		client:     client,
		collection: cfg.Collection,
		dimension:  cfg.Dimension,
		metric:     cfg.Metric,
	}

	if err := s.healthCheckWithRetry(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}
	if err := s.EnsureCollection(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return s, nil
}

// OpenQdrant adapts NewQdrantStorage to an Opener.
func OpenQdrant(cfg QdrantConfig) Opener {
	return func(ctx context.Context) (Index, error) {
		return NewQdrantStorage(ctx, cfg)
	}
}

func newBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second
	return backoff.WithContext(b, ctx)
}

// healthCheckWithRetry performs health check with exponential backoff.
// Initial interval 500ms, max interval 10s, max elapsed 30s.
func (s *QdrantStorage) healthCheckWithRetry(ctx context.Context) error {
	return backoff.Retry(func() error { return s.Health(ctx) }, newBackoff(ctx))
}

// Health performs a single health check against Qdrant.
func (s *QdrantStorage) Health(ctx context.Context) error {
	result, err := s.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if result == nil || result.Title == "" {
		return fmt.Errorf("health check returned invalid response")
	}
	return nil
}

// EnsureCollection creates the collection and its payload indexes if they are
// missing. An existing collection must have a matching vector size.
func (s *QdrantStorage) EnsureCollection(ctx context.Context) error {
	collections, err := s.client.ListCollections(ctx)
	if err != nil {
		return classify(fmt.Errorf("failed to list collections: %w", err))
	}

	for _, name := range collections {
		if name == s.collection {
			return s.checkDimension(ctx)
		}
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{
			vectorName: {
				Size:     uint64(s.dimension),
				Distance: distance(s.metric),
			},
		}),
	})
	if err != nil {
		return classify(fmt.Errorf("failed to create collection: %w", err))
	}

	if err := s.createPayloadIndexes(ctx); err != nil {
		return classify(fmt.Errorf("failed to create payload indexes: %w", err))
	}
	return nil
}

func (s *QdrantStorage) checkDimension(ctx context.Context) error {
	info, err := s.client.GetCollectionInfo(ctx, s.collection)
	if err != nil {
		return classify(fmt.Errorf("failed to get collection: %w", err))
	}
	params, ok := info.GetConfig().GetParams().GetVectorsConfig().GetParamsMap().GetMap()[vectorName]
	if !ok {
		return fmt.Errorf("%w: collection %s has no %q vector", ErrDimensionMismatch, s.collection, vectorName)
	}
	if int(params.GetSize()) != s.dimension {
		return fmt.Errorf("%w: collection %s stores %d dimensions, expected %d",
			ErrDimensionMismatch, s.collection, params.GetSize(), s.dimension)
	}
	return nil
}

// createPayloadIndexes indexes the filterable fields. document_id is marked
// as a tenant key so Qdrant co-locates each namespace.
func (s *QdrantStorage) createPayloadIndexes(ctx context.Context) error {
	_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: s.collection,
		FieldName:      "document_id",
		FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		FieldIndexParams: qdrant.NewPayloadIndexParamsKeyword(&qdrant.KeywordIndexParams{
			IsTenant: qdrant.PtrOf(true),
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create index for field document_id: %w", err)
	}

	_, err = s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: s.collection,
		FieldName:      "type",
		FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
	})
	if err != nil {
		return fmt.Errorf("failed to create index for field type: %w", err)
	}
	return nil
}

// Close closes the Qdrant client connection.
func (s *QdrantStorage) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// upsertWithRetry retries transient failures with exponential backoff.
func (s *QdrantStorage) upsertWithRetry(ctx context.Context, points []*qdrant.PointStruct) error {
	operation := func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.collection,
			Wait:           qdrant.PtrOf(true),
			Points:         points,
		})
		if err != nil && !transient(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	return backoff.Retry(operation, newBackoff(ctx))
}

// Upsert writes chunks in batches of 100 and then the catalogue point, so a
// document is only listed once all of its chunks are stored.
func (s *QdrantStorage) Upsert(ctx context.Context, doc *Document, chunks []*Chunk) error {
	if err := validateUpsert(doc, chunks, s.dimension); err != nil {
		return err
	}

	batchSize := 100
	for i := 0; i < len(chunks); i += batchSize {
		end := min(i+batchSize, len(chunks))

		batch := chunks[i:end]
		points := make([]*qdrant.PointStruct, len(batch))
		for j, chunk := range batch {
			points[j] = &qdrant.PointStruct{
				Id: qdrant.NewIDUUID(chunk.ID),
				Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{
					vectorName: qdrant.NewVector(chunk.Embedding...),
				}),
				Payload: qdrant.NewValueMap(map[string]any{
					"type":          pointTypeChunk,
					"document_id":   chunk.DocumentID,
					"document_name": chunk.DocumentName,
					"chunk_index":   chunk.ChunkIndex,
					"content":       chunk.Content,
					"ingested_at":   chunk.IngestedAt.UTC().Format(time.RFC3339),
				}),
			}
		}

		if err := s.upsertWithRetry(ctx, points); err != nil {
			return classify(fmt.Errorf("failed to upsert batch %d-%d: %w", i, end, err))
		}
	}

	// Catalogue points don't have vectors - use empty vector map
	point := &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(doc.ID),
		Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{}),
		Payload: qdrant.NewValueMap(map[string]any{
			"type":          pointTypeDocument,
			"document_id":   doc.ID,
			"document_name": doc.DisplayName,
			"chunk_count":   doc.ChunkCount,
			"ingested_at":   doc.IngestedAt.UTC().Format(time.RFC3339),
		}),
	}
	if err := s.upsertWithRetry(ctx, []*qdrant.PointStruct{point}); err != nil {
		return classify(fmt.Errorf("failed to upsert document: %w", err))
	}
	return nil
}

// Search queries the named vector with the namespace filter applied by Qdrant.
func (s *QdrantStorage) Search(ctx context.Context, namespace string, query []float32, k int) ([]*ScoredChunk, error) {
	if err := validateQuery(query, s.dimension); err != nil {
		return nil, err
	}
	if k <= 0 {
		return []*ScoredChunk{}, nil
	}

	using := vectorName
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(query...),
		Using:          &using,
		Filter:         namespaceFilter(namespace, pointTypeChunk),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(false),
	})
	if err != nil {
		err = classify(fmt.Errorf("failed to search chunks: %w", err))
		if notInitialized(err) {
			return []*ScoredChunk{}, nil
		}
		return nil, err
	}

	hits := make([]*ScoredChunk, 0, len(results))
	for _, result := range results {
		score := float64(result.Score)
		if s.metric == MetricEuclid {
			score = 1 / (1 + score)
		}
		hits = append(hits, &ScoredChunk{
			Chunk: chunkFromPayload(result.Id.GetUuid(), result.Payload),
			Score: score,
		})
	}
	return hits, nil
}

// GetDocument retrieves the catalogue point of a namespace.
func (s *QdrantStorage) GetDocument(ctx context.Context, namespace string) (*Document, error) {
	if !isNamespace(namespace) {
		return nil, ErrDocumentNotFound
	}
	result, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: s.collection,
		Ids:            []*qdrant.PointId{qdrant.NewIDUUID(namespace)},
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		err = classify(fmt.Errorf("failed to get document: %w", err))
		if notInitialized(err) {
			return nil, ErrDocumentNotFound
		}
		return nil, err
	}

	if len(result) == 0 || result[0].Payload["type"].GetStringValue() != pointTypeDocument {
		return nil, ErrDocumentNotFound
	}
	return documentFromPayload(result[0].Payload), nil
}

// ListDocuments returns every catalogue point, newest first.
func (s *QdrantStorage) ListDocuments(ctx context.Context) ([]*Document, error) {
	filter := &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatch("type", pointTypeDocument)},
	}

	total, err := s.count(ctx, filter)
	if err != nil {
		if notInitialized(err) {
			return []*Document{}, nil
		}
		return nil, err
	}
	if total == 0 {
		return []*Document{}, nil
	}

	results, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: s.collection,
		Filter:         filter,
		Limit:          qdrant.PtrOf(uint32(total)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, classify(fmt.Errorf("failed to scroll documents: %w", err))
	}

	docs := make([]*Document, 0, len(results))
	for _, result := range results {
		docs = append(docs, documentFromPayload(result.Payload))
	}
	sortDocuments(docs)
	return docs, nil
}

// DeleteNamespace removes every point carrying the namespace, chunks and
// catalogue point alike.
func (s *QdrantStorage) DeleteNamespace(ctx context.Context, namespace string) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelectorFilter(namespaceFilter(namespace, "")),
	})
	if err != nil {
		err = classify(fmt.Errorf("failed to delete namespace %s: %w", namespace, err))
		if notInitialized(err) {
			return nil
		}
		return err
	}
	return nil
}

// Stats counts catalogue and chunk points.
func (s *QdrantStorage) Stats(ctx context.Context) (*Stats, error) {
	docs, err := s.count(ctx, &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatch("type", pointTypeDocument)},
	})
	if err != nil {
		return nil, err
	}
	chunks, err := s.count(ctx, &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatch("type", pointTypeChunk)},
	})
	if err != nil {
		return nil, err
	}

	return &Stats{
		Backend:    "qdrant",
		Documents:  int(docs),
		Chunks:     int(chunks),
		Dimension:  s.dimension,
		Metric:     s.metric,
		Collection: s.collection,
	}, nil
}

func (s *QdrantStorage) count(ctx context.Context, filter *qdrant.Filter) (uint64, error) {
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Filter:         filter,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, classify(fmt.Errorf("failed to count points: %w", err))
	}
	return n, nil
}

// namespaceFilter matches points of a namespace, optionally of one type.
func namespaceFilter(namespace, pointType string) *qdrant.Filter {
	must := []*qdrant.Condition{
		qdrant.NewMatch("document_id", namespace),
	}
	if pointType != "" {
		must = append(must, qdrant.NewMatch("type", pointType))
	}
	return &qdrant.Filter{Must: must}
}

func chunkFromPayload(id string, payload map[string]*qdrant.Value) *Chunk {
	return &Chunk{
		ID:           id,
		DocumentID:   payload["document_id"].GetStringValue(),
		DocumentName: payload["document_name"].GetStringValue(),
		ChunkIndex:   int(payload["chunk_index"].GetIntegerValue()),
		Content:      payload["content"].GetStringValue(),
		IngestedAt:   parseTime(payload["ingested_at"].GetStringValue()),
	}
}

func documentFromPayload(payload map[string]*qdrant.Value) *Document {
	return &Document{
		ID:          payload["document_id"].GetStringValue(),
		DisplayName: payload["document_name"].GetStringValue(),
		ChunkCount:  int(payload["chunk_count"].GetIntegerValue()),
		IngestedAt:  parseTime(payload["ingested_at"].GetStringValue()),
	}
}

// parseTime returns the zero time if value is not RFC3339.
func parseTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

func distance(metric Metric) qdrant.Distance {
	switch metric {
	case MetricDot:
		return qdrant.Distance_Dot
	case MetricEuclid:
		return qdrant.Distance_Euclid
	default:
		return qdrant.Distance_Cosine
	}
}

// transient reports whether a gRPC failure is worth retrying.
func transient(err error) bool {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
		return true
	}
	return false
}

// classify tags connection failures with ErrIndexUnavailable and a missing
// collection with ErrIndexNotInitialized.
func classify(err error) error {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded:
		return fmt.Errorf("%w: %w", ErrIndexUnavailable, err)
	case codes.NotFound:
		return fmt.Errorf("%w: %w", ErrIndexNotInitialized, err)
	}
	return err
}

func notInitialized(err error) bool {
	return errors.Is(err, ErrIndexNotInitialized)
}
