package storage

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const suiteDimension = 4

// unit returns xs scaled to length one.
func unit(xs ...float32) []float32 {
	var sum float64
	for _, x := range xs {
		sum += float64(x) * float64(x)
	}
	n := float32(math.Sqrt(sum))
	out := make([]float32, len(xs))
	for i, x := range xs {
		out[i] = x / n
	}
	return out
}

// seedDocument builds a document whose chunks point along the given vectors.
func seedDocument(name string, at time.Time, vectors ...[]float32) (*Document, []*Chunk) {
	doc := &Document{
		ID:          uuid.New().String(),
		DisplayName: name,
		ChunkCount:  len(vectors),
		IngestedAt:  at.UTC().Truncate(time.Second),
	}
	chunks := make([]*Chunk, len(vectors))
	for i, v := range vectors {
		chunks[i] = &Chunk{
			ID:           uuid.New().String(),
			DocumentID:   doc.ID,
			DocumentName: name,
			ChunkIndex:   i,
			Content:      name + " chunk " + string(rune('a'+i)),
			IngestedAt:   doc.IngestedAt,
			Embedding:    v,
		}
	}
	return doc, chunks
}

// runIndexSuite checks the Index contract against any backend. newIndex must
// return an index of suiteDimension using cosine similarity. Backends may be
// shared between tests, so assertions only look at documents created here.
func runIndexSuite(t *testing.T, newIndex func(t *testing.T) Index) {
	ctx := context.Background()

	t.Run("SearchStaysInNamespace", func(t *testing.T) {
		index := newIndex(t)

		docA, chunksA := seedDocument("handbook.pdf", time.Now(),
			unit(1, 0, 0, 0), unit(0, 1, 0, 0))
		docB, chunksB := seedDocument("contract.pdf", time.Now(),
			unit(1, 0, 0, 0), unit(1, 0.1, 0, 0))
		require.NoError(t, index.Upsert(ctx, docA, chunksA))
		require.NoError(t, index.Upsert(ctx, docB, chunksB))

		hits, err := index.Search(ctx, docA.ID, unit(1, 0, 0, 0), 10)
		require.NoError(t, err)
		require.Len(t, hits, 2)
		for _, hit := range hits {
			assert.Equal(t, docA.ID, hit.DocumentID)
			assert.Equal(t, "handbook.pdf", hit.DocumentName)
			assert.Nil(t, hit.Embedding)
		}
	})

	t.Run("SearchOrdersBySimilarity", func(t *testing.T) {
		index := newIndex(t)

		doc, chunks := seedDocument("ordered.md", time.Now(),
			unit(0, 0, 1, 0), unit(1, 0, 0, 0), unit(1, 1, 0, 0))
		require.NoError(t, index.Upsert(ctx, doc, chunks))

		hits, err := index.Search(ctx, doc.ID, unit(1, 0, 0, 0), 2)
		require.NoError(t, err)
		require.Len(t, hits, 2)
		assert.Equal(t, 1, hits[0].ChunkIndex)
		assert.Equal(t, 2, hits[1].ChunkIndex)
		assert.InDelta(t, 1.0, hits[0].Score, 1e-4)
		assert.Greater(t, hits[0].Score, hits[1].Score)
		assert.Equal(t, chunks[1].Content, hits[0].Content)
	})

	t.Run("UnknownNamespaceIsEmpty", func(t *testing.T) {
		index := newIndex(t)

		hits, err := index.Search(ctx, uuid.New().String(), unit(1, 0, 0, 0), 5)
		require.NoError(t, err)
		assert.NotNil(t, hits)
		assert.Empty(t, hits)

		hits, err = index.Search(ctx, "not-a-uuid", unit(1, 0, 0, 0), 5)
		require.NoError(t, err)
		assert.Empty(t, hits)
	})

	t.Run("GetDocument", func(t *testing.T) {
		index := newIndex(t)

		doc, chunks := seedDocument("policy.txt", time.Now(), unit(0, 0, 0, 1))
		require.NoError(t, index.Upsert(ctx, doc, chunks))

		got, err := index.GetDocument(ctx, doc.ID)
		require.NoError(t, err)
		assert.Equal(t, doc.ID, got.ID)
		assert.Equal(t, "policy.txt", got.DisplayName)
		assert.Equal(t, 1, got.ChunkCount)
		assert.WithinDuration(t, doc.IngestedAt, got.IngestedAt, time.Second)

		_, err = index.GetDocument(ctx, uuid.New().String())
		assert.ErrorIs(t, err, ErrDocumentNotFound)

		_, err = index.GetDocument(ctx, chunks[0].ID)
		assert.ErrorIs(t, err, ErrDocumentNotFound, "chunk ids are not documents")
	})

	t.Run("ListDocumentsNewestFirst", func(t *testing.T) {
		index := newIndex(t)

		base := time.Now().Add(time.Hour)
		older, olderChunks := seedDocument("older", base, unit(1, 0, 0, 0))
		newer, newerChunks := seedDocument("newer", base.Add(time.Minute), unit(1, 0, 0, 0))
		require.NoError(t, index.Upsert(ctx, older, olderChunks))
		require.NoError(t, index.Upsert(ctx, newer, newerChunks))

		docs, err := index.ListDocuments(ctx)
		require.NoError(t, err)

		var ids []string
		for _, d := range docs {
			if d.ID == older.ID || d.ID == newer.ID {
				ids = append(ids, d.ID)
			}
		}
		assert.Equal(t, []string{newer.ID, older.ID}, ids)
	})

	t.Run("DeleteNamespace", func(t *testing.T) {
		index := newIndex(t)

		doc, chunks := seedDocument("gone.pdf", time.Now(), unit(1, 0, 0, 0), unit(0, 1, 0, 0))
		keep, keepChunks := seedDocument("kept.pdf", time.Now(), unit(1, 0, 0, 0))
		require.NoError(t, index.Upsert(ctx, doc, chunks))
		require.NoError(t, index.Upsert(ctx, keep, keepChunks))

		require.NoError(t, index.DeleteNamespace(ctx, doc.ID))

		hits, err := index.Search(ctx, doc.ID, unit(1, 0, 0, 0), 5)
		require.NoError(t, err)
		assert.Empty(t, hits)
		_, err = index.GetDocument(ctx, doc.ID)
		assert.ErrorIs(t, err, ErrDocumentNotFound)

		hits, err = index.Search(ctx, keep.ID, unit(1, 0, 0, 0), 5)
		require.NoError(t, err)
		assert.Len(t, hits, 1)

		assert.NoError(t, index.DeleteNamespace(ctx, doc.ID), "deleting twice is not an error")
	})

	t.Run("UpsertRejectsForeignChunk", func(t *testing.T) {
		index := newIndex(t)

		doc, chunks := seedDocument("mixed", time.Now(), unit(1, 0, 0, 0))
		chunks[0].DocumentID = uuid.New().String()

		err := index.Upsert(ctx, doc, chunks)
		assert.ErrorIs(t, err, ErrNamespaceMismatch)
	})

	t.Run("DimensionMismatch", func(t *testing.T) {
		index := newIndex(t)

		doc, chunks := seedDocument("wide", time.Now(), make([]float32, suiteDimension+1))
		assert.ErrorIs(t, index.Upsert(ctx, doc, chunks), ErrDimensionMismatch)

		_, err := index.Search(ctx, doc.ID, make([]float32, 2), 5)
		assert.ErrorIs(t, err, ErrDimensionMismatch)
	})

	t.Run("Stats", func(t *testing.T) {
		index := newIndex(t)

		before, err := index.Stats(ctx)
		require.NoError(t, err)

		doc, chunks := seedDocument("stats", time.Now(), unit(1, 0, 0, 0), unit(0, 1, 0, 0))
		require.NoError(t, index.Upsert(ctx, doc, chunks))

		after, err := index.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, before.Documents+1, after.Documents)
		assert.Equal(t, before.Chunks+2, after.Chunks)
		assert.Equal(t, suiteDimension, after.Dimension)
		assert.Equal(t, MetricCosine, after.Metric)
		assert.NoError(t, index.Health(ctx))
	})
}
