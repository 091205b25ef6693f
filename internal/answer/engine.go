// Package answer turns a question about one document into a grounded answer.
package answer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bull/docqa/internal/generation"
	"github.com/bull/docqa/internal/storage"
)

// DefaultTopK is the number of chunks retrieved per question.
const DefaultTopK = 5

// ErrEmptyQuestion is returned for a blank question.
var ErrEmptyQuestion = errors.New("question is empty")

// Error wraps every failure returned by Engine.Answer.
type Error struct {
	Stage string // "embed", "search" or "generate"
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("answering failed at %s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// QueryEmbedder embeds a question the same way document chunks were embedded.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Searcher returns the chunks of one namespace nearest to a query vector.
type Searcher interface {
	Search(ctx context.Context, namespace string, query []float32, k int) ([]*storage.ScoredChunk, error)
}

// Answer is the generated reply and the chunks it was grounded on, in
// retrieval order.
type Answer struct {
	Text      string
	Citations []*storage.ScoredChunk
}

// Config holds the engine's collaborators and generation settings.
type Config struct {
	Embedder    QueryEmbedder
	Index       Searcher
	Generator   generation.Generator
	TopK        int
	Model       string
	Temperature float64
	Logger      *slog.Logger
}

// Engine answers questions against a single document namespace.
type Engine struct {
	embedder    QueryEmbedder
	index       Searcher
	generator   generation.Generator
	topK        int
	model       string
	temperature float64
	logger      *slog.Logger
}

// NewEngine creates an Engine. TopK defaults to DefaultTopK.
func NewEngine(cfg Config) *Engine {
	topK := cfg.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		embedder:    cfg.Embedder,
		index:       cfg.Index,
		generator:   cfg.Generator,
		topK:        topK,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		logger:      logger,
	}
}

// TopK returns the number of chunks retrieved per question.
func (e *Engine) TopK() int { return e.topK }

// Answer retrieves the top chunks of documentID for question and invokes the
// generator exactly once. The returned citations are the retrieved chunks,
// unmodified. A namespace with no chunks still produces an answer, with no
// citations.
func (e *Engine) Answer(ctx context.Context, question, documentID string) (*Answer, error) {
	if strings.TrimSpace(question) == "" {
		return nil, &Error{Stage: "embed", Err: ErrEmptyQuestion}
	}
	start := time.Now()

	query, err := e.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, &Error{Stage: "embed", Err: err}
	}

	chunks, err := e.index.Search(ctx, documentID, query, e.topK)
	if err != nil {
		return nil, &Error{Stage: "search", Err: err}
	}

	text, err := e.generator.Generate(ctx, generation.Request{
		Model:       e.model,
		Temperature: e.temperature,
		System:      SystemPrompt,
		Prompt:      BuildPrompt(question, chunks),
	})
	if err != nil {
		return nil, &Error{Stage: "generate", Err: err}
	}

	e.logger.Debug("answered question",
		"document_id", documentID,
		"chunks", len(chunks),
		"duration", time.Since(start))

	return &Answer{
		Text:      strings.TrimSpace(text),
		Citations: chunks,
	}, nil
}
