// Package generation calls a generative model once per request. There is no
// tool use and no conversation state.
package generation

import (
	"context"
	"errors"
)

// ErrEmptyResponse is returned when a backend answers without any text.
var ErrEmptyResponse = errors.New("model returned no content")

// Request is a single prompt for the model.
type Request struct {
	Model       string
	Temperature float64
	System      string // Instructions sent ahead of Prompt
	Prompt      string
}

// Generator produces the model's reply to req.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}
