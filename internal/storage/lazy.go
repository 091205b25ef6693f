package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Opener connects to a backend and checks that its collection or schema
// exists, creating it if needed.
type Opener func(ctx context.Context) (Index, error)

// Lazy defers opening an Index until first use. Concurrent first callers
// wait for a single open attempt. A failed attempt leaves the index
// uninitialized so the next call tries again; a successful one is kept until
// Close.
type Lazy struct {
	open Opener

	mu     sync.Mutex
	index  Index
	closed bool
}

// NewLazy wraps open.
func NewLazy(open Opener) *Lazy {
	return &Lazy{open: open}
}

// Ready reports whether the backend has been opened.
func (l *Lazy) Ready() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.index != nil
}

func (l *Lazy) get(ctx context.Context) (Index, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.index != nil {
		return l.index, nil
	}
	if l.closed {
		return nil, fmt.Errorf("%w: index closed", ErrIndexUnavailable)
	}

	index, err := l.open(ctx)
	if err != nil {
		if errors.Is(err, ErrIndexUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrIndexUnavailable, err)
	}
	l.index = index
	return index, nil
}

func (l *Lazy) Upsert(ctx context.Context, doc *Document, chunks []*Chunk) error {
	index, err := l.get(ctx)
	if err != nil {
		return err
	}
	return index.Upsert(ctx, doc, chunks)
}

func (l *Lazy) Search(ctx context.Context, namespace string, query []float32, k int) ([]*ScoredChunk, error) {
	index, err := l.get(ctx)
	if err != nil {
		return nil, err
	}
	return index.Search(ctx, namespace, query, k)
}

func (l *Lazy) GetDocument(ctx context.Context, namespace string) (*Document, error) {
	index, err := l.get(ctx)
	if err != nil {
		return nil, err
	}
	return index.GetDocument(ctx, namespace)
}

func (l *Lazy) ListDocuments(ctx context.Context) ([]*Document, error) {
	index, err := l.get(ctx)
	if err != nil {
		return nil, err
	}
	return index.ListDocuments(ctx)
}

func (l *Lazy) DeleteNamespace(ctx context.Context, namespace string) error {
	index, err := l.get(ctx)
	if err != nil {
		return err
	}
	return index.DeleteNamespace(ctx, namespace)
}

func (l *Lazy) Stats(ctx context.Context) (*Stats, error) {
	index, err := l.get(ctx)
	if err != nil {
		return nil, err
	}
	return index.Stats(ctx)
}

func (l *Lazy) Health(ctx context.Context) error {
	index, err := l.get(ctx)
	if err != nil {
		return err
	}
	return index.Health(ctx)
}

// Close closes the backend if it was opened. Later calls fail.
func (l *Lazy) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.closed = true
	if l.index == nil {
		return nil
	}
	err := l.index.Close()
	l.index = nil
	return err
}
