package qa

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/docqa/internal/answer"
	"github.com/bull/docqa/internal/chunker"
	"github.com/bull/docqa/internal/embedding"
	"github.com/bull/docqa/internal/extract"
	"github.com/bull/docqa/internal/generation"
	"github.com/bull/docqa/internal/indexer"
	"github.com/bull/docqa/internal/storage"
	"github.com/bull/docqa/internal/testutil"
)

const testDim = 64

type fixture struct {
	index     *storage.MemoryStorage
	generator *testutil.Generator
	service   *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	c, err := chunker.New(200, 40)
	require.NoError(t, err)

	index := storage.NewMemoryStorage(testDim, storage.MetricCosine)
	provider := embedding.NewProvider(embedding.ProviderConfig{Model: "hash", Dimension: testDim},
		func() (embedding.Backend, error) { return testutil.NewHashEmbedder(testDim), nil })
	// Echo the prompt so tests can see which chunks reached the model.
	generator := &testutil.Generator{ReplyFunc: func(req generation.Request) string { return req.Prompt }}

	pipeline := indexer.NewPipeline(extract.New(extract.DefaultMinChars), c, provider, index, nil)
	engine := answer.NewEngine(answer.Config{Embedder: provider, Index: index, Generator: generator, TopK: 3})

	return &fixture{
		index:     index,
		generator: generator,
		service: NewService(pipeline, engine, index, Models{
			Embedding: "hash", EmbeddingDim: testDim, Generation: "echo", GenerationKind: "test", TopK: 3,
		}),
	}
}

func document(topic string) []byte {
	var b strings.Builder
	for i := 0; i < 6; i++ {
		fmt.Fprintf(&b, "Section %d explains the %s rules in detail.\n\n", i, topic)
	}
	return []byte(b.String())
}

func TestService_IngestThenAsk(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	h, err := f.service.Ingest(ctx, document("vacation"), "vacation.txt")
	require.NoError(t, err)
	assert.Equal(t, "vacation.txt", h.Document.DisplayName)
	assert.Positive(t, h.Document.ChunkCount)

	ans, err := f.service.Ask(ctx, h, "What are the vacation rules?")
	require.NoError(t, err)
	require.NotEmpty(t, ans.Citations)
	assert.LessOrEqual(t, len(ans.Citations), 3)
	for _, c := range ans.Citations {
		assert.Equal(t, h.DocumentID(), c.DocumentID)
	}
}

func TestService_AnswersStayInsideTheirDocument(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	vacation, err := f.service.Ingest(ctx, document("vacation"), "vacation.txt")
	require.NoError(t, err)
	_, err = f.service.Ingest(ctx, document("expense"), "expenses.txt")
	require.NoError(t, err)

	ans, err := f.service.Ask(ctx, vacation, "What are the expense rules?")
	require.NoError(t, err)
	assert.NotContains(t, ans.Text, "expense rules in detail")
	for _, c := range ans.Citations {
		assert.Equal(t, vacation.DocumentID(), c.DocumentID)
	}
}

func TestService_ResumeAndDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	h, err := f.service.Ingest(ctx, document("travel"), "travel.txt")
	require.NoError(t, err)

	resumed, err := f.service.Resume(ctx, " "+h.DocumentID()+" ")
	require.NoError(t, err)
	assert.Equal(t, h.Document, resumed.Document)

	docs, err := f.service.Documents(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)

	require.NoError(t, f.service.Delete(ctx, h.DocumentID()))
	_, err = f.service.Resume(ctx, h.DocumentID())
	assert.True(t, IsNotFound(err))

	err = f.service.Delete(ctx, h.DocumentID())
	assert.ErrorIs(t, err, storage.ErrDocumentNotFound)

	// A deleted namespace answers from nothing.
	ans, err := f.service.Ask(ctx, h, "What are the travel rules?")
	require.NoError(t, err)
	assert.Empty(t, ans.Citations)
}

// uncatalogued hides one document's catalogue record while its chunks stay
// in the index, as after a failed ingestion whose cleanup also failed.
type uncatalogued struct {
	*storage.MemoryStorage
	hidden string
}

func (u *uncatalogued) GetDocument(ctx context.Context, namespace string) (*storage.Document, error) {
	if namespace == u.hidden {
		return nil, storage.ErrDocumentNotFound
	}
	return u.MemoryStorage.GetDocument(ctx, namespace)
}

func TestService_DeletePurgesOrphanedChunks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	kept, err := f.service.Ingest(ctx, document("travel"), "travel.txt")
	require.NoError(t, err)
	orphan, err := f.service.Ingest(ctx, document("expenses"), "expenses.txt")
	require.NoError(t, err)

	service := NewService(nil, nil, &uncatalogued{MemoryStorage: f.index, hidden: orphan.DocumentID()}, Models{})

	err = service.Delete(ctx, orphan.DocumentID())
	assert.ErrorIs(t, err, storage.ErrDocumentNotFound)
	assert.True(t, IsNotFound(err))

	stats, err := f.index.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Documents)
	assert.Equal(t, kept.Document.ChunkCount, stats.Chunks)
}

func TestService_Status(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.Ingest(ctx, document("security"), "security.txt")
	require.NoError(t, err)

	status := f.service.Status(ctx)
	require.NoError(t, status.Err)
	require.NotNil(t, status.Index)
	assert.Equal(t, 1, status.Index.Documents)
	assert.Equal(t, "hash", status.Models.Embedding)
	assert.NoError(t, f.service.Health(ctx))
}

func TestService_StatusWithUnreachableIndex(t *testing.T) {
	lazy := storage.NewLazy(func(ctx context.Context) (storage.Index, error) {
		return nil, errors.New("connection refused")
	})
	s := NewService(nil, nil, lazy, Models{Embedding: "m"})

	status := s.Status(context.Background())
	assert.Nil(t, status.Index)
	assert.ErrorIs(t, status.Err, storage.ErrIndexUnavailable)
	assert.Equal(t, "m", status.Models.Embedding)
}

func TestService_IngestFailure(t *testing.T) {
	f := newFixture(t)

	h, err := f.service.Ingest(context.Background(), []byte("\n\n   \n"), "blank.txt")
	assert.Nil(t, h)

	var ingErr *indexer.IngestionError
	require.ErrorAs(t, err, &ingErr)
	assert.ErrorIs(t, err, extract.ErrInsufficientContent)
	assert.Empty(t, f.generator.Requests())
}

func TestService_AskWithoutHandle(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.Ask(context.Background(), nil, "anything")
	assert.ErrorIs(t, err, ErrNoDocument)
}

func TestSession_History(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := NewSession(f.service)
	s.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	_, err := s.Ask(ctx, "Too early?")
	assert.ErrorIs(t, err, ErrNoDocument)

	first, err := s.Ingest(ctx, document("parking"), "parking.txt")
	require.NoError(t, err)
	assert.Equal(t, first, s.Handle())

	_, err = s.Ask(ctx, "Where do I park?")
	require.NoError(t, err)
	_, err = s.Ask(ctx, "Is parking free?")
	require.NoError(t, err)

	history := s.History()
	require.Len(t, history, 2)
	assert.Equal(t, "Where do I park?", history[0].Question)
	assert.Equal(t, "Is parking free?", history[1].Question)
	assert.NotEmpty(t, history[1].Sources)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), history[1].AskedAt)

	// A failed ingestion keeps the current document and history.
	_, err = s.Ingest(ctx, []byte("short"), "short.txt")
	require.Error(t, err)
	assert.Equal(t, first, s.Handle())
	assert.Len(t, s.History(), 2)

	// A new document starts a new conversation.
	second, err := s.Ingest(ctx, document("canteen"), "canteen.txt")
	require.NoError(t, err)
	assert.NotEqual(t, first.DocumentID(), second.DocumentID())
	assert.Empty(t, s.History())

	_, err = s.Resume(ctx, first.DocumentID())
	require.NoError(t, err)
	assert.Equal(t, first.DocumentID(), s.Handle().DocumentID())

	s.Reset()
	assert.Nil(t, s.Handle())
	assert.Empty(t, s.History())
}

func TestSession_ResumeUnknownKeepsState(t *testing.T) {
	f := newFixture(t)
	s := NewSession(f.service)

	_, err := s.Resume(context.Background(), uuid.New().String())
	assert.True(t, IsNotFound(err))
	assert.Nil(t, s.Handle())
}
