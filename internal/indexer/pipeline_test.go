package indexer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/docqa/internal/chunker"
	"github.com/bull/docqa/internal/embedding"
	"github.com/bull/docqa/internal/extract"
	"github.com/bull/docqa/internal/storage"
	"github.com/bull/docqa/internal/testutil"
)

const testDim = 32

// failingWriter rejects every Upsert after writing a partial namespace, and
// records purges.
type failingWriter struct {
	*storage.MemoryStorage
	err    error
	purged []string
}

func (w *failingWriter) Upsert(ctx context.Context, doc *storage.Document, chunks []*storage.Chunk) error {
	// Half the chunks land before the failure.
	partial := &storage.Document{ID: doc.ID, DisplayName: doc.DisplayName, IngestedAt: doc.IngestedAt}
	if err := w.MemoryStorage.Upsert(ctx, partial, chunks[:len(chunks)/2]); err != nil {
		return err
	}
	return w.err
}

func (w *failingWriter) DeleteNamespace(ctx context.Context, namespace string) error {
	w.purged = append(w.purged, namespace)
	return w.MemoryStorage.DeleteNamespace(ctx, namespace)
}

type fixture struct {
	backend  *testutil.HashEmbedder
	index    *storage.MemoryStorage
	pipeline *Pipeline
}

func newFixture(t *testing.T, writer func(*storage.MemoryStorage) Writer) *fixture {
	t.Helper()
	c, err := chunker.New(chunker.DefaultSize, chunker.DefaultOverlap)
	require.NoError(t, err)

	f := &fixture{
		backend: testutil.NewHashEmbedder(testDim),
		index:   storage.NewMemoryStorage(testDim, storage.MetricCosine),
	}
	provider := embedding.NewProvider(embedding.ProviderConfig{Model: "hash", Dimension: testDim},
		func() (embedding.Backend, error) { return f.backend, nil })

	var w Writer = f.index
	if writer != nil {
		w = writer(f.index)
	}
	f.pipeline = NewPipeline(extract.New(extract.DefaultMinChars), c, provider, w, nil)
	return f
}

func TestIngest_StoresEveryChunkUnderNewNamespace(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.pipeline.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	doc, err := f.pipeline.Ingest(ctx, []byte(strings.Repeat("abcd ", 600)), "notes.txt")
	require.NoError(t, err)

	assert.NoError(t, uuid.Validate(doc.ID))
	assert.Equal(t, "notes.txt", doc.DisplayName)
	assert.Equal(t, 4, doc.ChunkCount)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), doc.IngestedAt)

	calls := f.backend.Calls()
	require.Len(t, calls, 1, "one embedding request per ingestion")
	assert.Len(t, calls[0], 4)

	stored, err := f.index.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc, stored)

	hits, err := f.index.Search(ctx, doc.ID, unitQuery(), 10)
	require.NoError(t, err)
	require.Len(t, hits, 4)
	indexes := map[int]bool{}
	for _, hit := range hits {
		indexes[hit.ChunkIndex] = true
		assert.Equal(t, "notes.txt", hit.DocumentName)
		assert.Equal(t, doc.IngestedAt, hit.IngestedAt)
		assert.LessOrEqual(t, len([]rune(hit.Content)), chunker.DefaultSize)
	}
	assert.Len(t, indexes, 4)
}

func unitQuery() []float32 {
	q := make([]float32, testDim)
	q[0] = 1
	return q
}

func TestIngest_EachUploadGetsItsOwnNamespace(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	text := []byte(strings.Repeat("The same contract text, uploaded twice. ", 10))

	first, err := f.pipeline.Ingest(ctx, text, "contract.txt")
	require.NoError(t, err)
	second, err := f.pipeline.Ingest(ctx, text, "contract.txt")
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	docs, err := f.index.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestIngest_ExtractionFailureTouchesNothing(t *testing.T) {
	tests := []struct {
		name   string
		raw    []byte
		reason error
	}{
		{"whitespace only", []byte("   \n\t\n   "), extract.ErrInsufficientContent},
		{"too short", []byte("Just a line."), extract.ErrInsufficientContent},
		{"binary", []byte{0xff, 0xfe, 0x00, 0x81}, extract.ErrUnparseable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)

			_, err := f.pipeline.Ingest(context.Background(), tt.raw, "upload.bin")

			var ingErr *IngestionError
			require.ErrorAs(t, err, &ingErr)
			assert.Equal(t, StageExtract, ingErr.Stage)
			assert.ErrorIs(t, err, tt.reason)

			var extErr *extract.Error
			assert.ErrorAs(t, err, &extErr)

			assert.Empty(t, f.backend.Calls())
			stats, err := f.index.Stats(context.Background())
			require.NoError(t, err)
			assert.Zero(t, stats.Documents)
			assert.Zero(t, stats.Chunks)
		})
	}
}

func TestIngest_BlankUploadWithoutMinimum(t *testing.T) {
	c, err := chunker.New(chunker.DefaultSize, chunker.DefaultOverlap)
	require.NoError(t, err)
	backend := testutil.NewHashEmbedder(testDim)
	provider := embedding.NewProvider(embedding.ProviderConfig{Model: "hash", Dimension: testDim},
		func() (embedding.Backend, error) { return backend, nil })
	index := storage.NewMemoryStorage(testDim, storage.MetricCosine)
	pipeline := NewPipeline(extract.New(0), c, provider, index, nil)

	_, err = pipeline.Ingest(context.Background(), []byte("   \n\t  "), "blank.txt")

	var ingErr *IngestionError
	require.ErrorAs(t, err, &ingErr)
	assert.Equal(t, StageExtract, ingErr.Stage)
	assert.ErrorIs(t, err, extract.ErrInsufficientContent)
	assert.Empty(t, backend.Calls())
}

func TestIngest_EmbeddingFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.backend.Err = errors.New("rate limited")

	_, err := f.pipeline.Ingest(context.Background(), []byte(strings.Repeat("policy text ", 20)), "p.txt")

	var ingErr *IngestionError
	require.ErrorAs(t, err, &ingErr)
	assert.Equal(t, StageEmbed, ingErr.Stage)
	assert.ErrorIs(t, err, embedding.ErrModelUnavailable)

	docs, err := f.index.ListDocuments(context.Background())
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestIngest_StoreFailurePurgesNamespace(t *testing.T) {
	var writer *failingWriter
	f := newFixture(t, func(m *storage.MemoryStorage) Writer {
		writer = &failingWriter{MemoryStorage: m, err: storage.ErrIndexUnavailable}
		return writer
	})
	ctx := context.Background()

	_, err := f.pipeline.Ingest(ctx, []byte(strings.Repeat("abcd ", 600)), "big.txt")

	var ingErr *IngestionError
	require.ErrorAs(t, err, &ingErr)
	assert.Equal(t, StageStore, ingErr.Stage)
	assert.ErrorIs(t, err, storage.ErrIndexUnavailable)

	require.Len(t, writer.purged, 1)
	stats, err := f.index.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Chunks, "partial chunks are purged")
	assert.Zero(t, stats.Documents)
}

func TestIngest_DisplayNameFallsBackToTitle(t *testing.T) {
	f := newFixture(t, nil)
	md := "# Employee Handbook\n\n" + strings.Repeat("Everyone gets paid leave. ", 8)

	doc, err := f.pipeline.Ingest(context.Background(), []byte(md), "  ")
	require.NoError(t, err)
	assert.Equal(t, "Employee Handbook", doc.DisplayName)

	doc, err = f.pipeline.Ingest(context.Background(), []byte(md), "handbook.md")
	require.NoError(t, err)
	assert.Equal(t, "handbook.md", doc.DisplayName)

	doc, err = f.pipeline.Ingest(context.Background(), []byte(strings.Repeat("no heading here ", 10)), "")
	require.NoError(t, err)
	assert.Equal(t, "untitled", doc.DisplayName)
}

func TestIngestAll_ContinuesPastFailures(t *testing.T) {
	f := newFixture(t, nil)

	result, err := f.pipeline.IngestAll(context.Background(), []Source{
		{Name: "a.txt", Content: []byte(strings.Repeat("first document ", 10))},
		{Name: "empty.txt", Content: []byte("  ")},
		{Name: "b.txt", Content: []byte(strings.Repeat("second document ", 10))},
	})
	require.NoError(t, err)

	require.Len(t, result.Documents, 2)
	assert.Equal(t, "a.txt", result.Documents[0].DisplayName)
	assert.Equal(t, "b.txt", result.Documents[1].DisplayName)
	assert.Equal(t, 2, result.TotalChunks)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "empty.txt", result.Failed[0].Name)
	assert.ErrorIs(t, result.Failed[0].Err, extract.ErrInsufficientContent)
}

func TestIngestAll_StopsOnCancel(t *testing.T) {
	f := newFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := f.pipeline.IngestAll(ctx, []Source{{Name: "a.txt", Content: []byte("x")}})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, result.Documents)
}
