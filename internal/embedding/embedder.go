package embedding

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
)

// DefaultBatchSize balances requests-per-minute vs tokens-per-minute rate limits.
// OpenAI supports up to 2048 texts per batch, but smaller batches reduce TPM pressure.
const DefaultBatchSize = 500

// ProviderConfig describes the vectors a Provider must produce.
type ProviderConfig struct {
	Model     string
	Dimension int
	BatchSize int
}

// Provider maps text to unit-length vectors of a fixed dimension. Documents
// and queries go through the same backend and normalization, so their
// vectors are comparable.
//
// The backend is opened on first use and shared by every caller for the
// life of the Provider; if opening fails, every call reports that failure.
type Provider struct {
	backend   func() (Backend, error)
	model     string
	dimension int
	batchSize int
}

// NewProvider creates a Provider. open is called at most once.
func NewProvider(cfg ProviderConfig, open func() (Backend, error)) *Provider {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	return &Provider{
		backend:   sync.OnceValues(open),
		model:     cfg.Model,
		dimension: cfg.Dimension,
		batchSize: cfg.BatchSize,
	}
}

// Model returns the configured model name.
func (p *Provider) Model() string { return p.model }

// Dimension returns the length of every vector the Provider returns.
func (p *Provider) Dimension() int { return p.dimension }

// EmbedDocuments embeds chunk texts for indexing. Requests are batched but
// the result is all-or-nothing.
func (p *Provider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	const op = "embed documents"

	if len(texts) == 0 {
		return nil, &Error{Op: op, Err: ErrEmptyInput}
	}
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, &Error{Op: op, Err: fmt.Errorf("%w: text %d is blank", ErrEmptyInput, i)}
		}
	}

	backend, err := p.backend()
	if err != nil {
		return nil, &Error{Op: op, Err: fmt.Errorf("%w: %w", ErrModelUnavailable, err)}
	}

	vectors := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += p.batchSize {
		end := min(i+p.batchSize, len(texts))

		batch, err := p.embed(ctx, backend, texts[i:end])
		if err != nil {
			return nil, &Error{Op: op, Err: fmt.Errorf("batch %d-%d: %w", i, end, err)}
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

// EmbedQuery embeds a single question.
func (p *Provider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	const op = "embed query"

	if strings.TrimSpace(text) == "" {
		return nil, &Error{Op: op, Err: ErrEmptyInput}
	}

	backend, err := p.backend()
	if err != nil {
		return nil, &Error{Op: op, Err: fmt.Errorf("%w: %w", ErrModelUnavailable, err)}
	}

	vectors, err := p.embed(ctx, backend, []string{text})
	if err != nil {
		return nil, &Error{Op: op, Err: err}
	}
	return vectors[0], nil
}

func (p *Provider) embed(ctx context.Context, backend Backend, texts []string) ([][]float32, error) {
	raw, err := backend.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}
	if len(raw) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrModelUnavailable, len(raw), len(texts))
	}

	vectors := make([][]float32, len(raw))
	for i, v := range raw {
		if len(v) != p.dimension {
			return nil, fmt.Errorf("%w: got %d, expected %d", ErrDimensionMismatch, len(v), p.dimension)
		}
		unit, ok := normalize(v)
		if !ok {
			return nil, fmt.Errorf("%w: text %d", ErrZeroVector, i)
		}
		vectors[i] = unit
	}
	return vectors, nil
}

// normalize scales v to unit L2 norm and converts it to float32 for storage.
// It reports false for a zero or non-finite vector.
func normalize(v []float64) ([]float32, bool) {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	norm := math.Sqrt(sum)
	if norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
		return nil, false
	}

	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x / norm)
	}
	return out, true
}
