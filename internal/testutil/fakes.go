// Package testutil provides deterministic stand-ins for the model backends
// so that ingestion and answering can be tested without network access.
package testutil

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
	"unicode"

	"github.com/bull/docqa/internal/generation"
)

// HashEmbedder is a bag-of-words embedding backend. Each lower-cased word is
// hashed into one of Dim buckets, so texts sharing words score higher. A
// constant first component keeps every vector non-zero.
type HashEmbedder struct {
	Dim int
	Err error // Returned by Embed when set

	mu    sync.Mutex
	calls [][]string
}

// NewHashEmbedder returns a HashEmbedder producing dim-length vectors.
func NewHashEmbedder(dim int) *HashEmbedder {
	return &HashEmbedder{Dim: dim}
}

func (h *HashEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	h.mu.Lock()
	h.calls = append(h.calls, append([]string(nil), texts...))
	h.mu.Unlock()

	if h.Err != nil {
		return nil, h.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([][]float64, len(texts))
	for i, text := range texts {
		v := make([]float64, h.Dim)
		v[0] = 0.1
		for _, word := range strings.FieldsFunc(strings.ToLower(text), isSeparator) {
			f := fnv.New32a()
			f.Write([]byte(word))
			v[1+int(f.Sum32()%uint32(h.Dim-1))]++
		}
		out[i] = v
	}
	return out, nil
}

// Calls returns the text batches passed to Embed so far.
func (h *HashEmbedder) Calls() [][]string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([][]string(nil), h.calls...)
}

func isSeparator(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsNumber(r)
}

// Generator records requests and replies with Reply, or with the result of
// ReplyFunc when it is set.
type Generator struct {
	Reply     string
	ReplyFunc func(generation.Request) string
	Err       error

	mu       sync.Mutex
	requests []generation.Request
}

func (g *Generator) Generate(ctx context.Context, req generation.Request) (string, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	g.mu.Unlock()

	if g.Err != nil {
		return "", g.Err
	}
	if g.ReplyFunc != nil {
		return g.ReplyFunc(req), nil
	}
	return g.Reply, nil
}

// Requests returns every request received so far.
func (g *Generator) Requests() []generation.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]generation.Request(nil), g.requests...)
}
