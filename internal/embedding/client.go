package embedding

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Backend turns texts into raw vectors, one per input and in input order.
type Backend interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// ClientConfig configures the OpenAI-compatible embeddings client.
type ClientConfig struct {
	APIKey  string
	BaseURL string // Empty for api.openai.com, or e.g. http://localhost:11434/v1
	Model   string
	// Dimension is requested from text-embedding-3 models, which can
	// shorten their output. Other models ignore it.
	Dimension int
}

// Client calls the embeddings endpoint of an OpenAI-compatible API.
type Client struct {
	client    openai.Client
	model     string
	dimension int
}

// NewClient creates an embeddings client. An API key is required unless a
// custom base URL is given.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("embedding model not set")
	}

	// Retries are handled in Embed.
	opts := []option.RequestOption{option.WithMaxRetries(0)}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Client{
		client:    openai.NewClient(opts...),
		model:     cfg.Model,
		dimension: cfg.Dimension,
	}, nil
}

// Embed sends one request for texts. Rate limit errors (HTTP 429) are retried
// with exponential backoff; anything else fails immediately.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
		Model: openai.EmbeddingModel(c.model),
	}
	if c.dimension > 0 && strings.HasPrefix(c.model, "text-embedding-3") {
		params.Dimensions = openai.Int(int64(c.dimension))
	}

	var vectors [][]float64
	operation := func() error {
		resp, err := c.client.Embeddings.New(ctx, params)
		if err != nil {
			if isRateLimitError(err) {
				return err
			}
			return backoff.Permanent(err)
		}

		data := resp.Data
		sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })
		vectors = make([][]float64, len(data))
		for i, d := range data {
			vectors[i] = d.Embedding
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	err := backoff.Retry(operation, backoff.WithContext(b, ctx))
	return vectors, err
}

// isRateLimitError checks if the error is a rate limit error (HTTP 429).
func isRateLimitError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}
