package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/loqalabs/loqa-scribe/internal/config"
)

// Request describes a language model prompt.
type Request struct {
	RunID       string
	Prompt      string
	System      string
	Language    string
	MaxTokens   int
	Temperature float64
}

// Chunk represents streamed model output.
type Chunk struct {
	RunID            string
	Content          string
	Partial          bool
	PromptTokens     int
	CompletionTokens int
	Latency          time.Duration
}

// Generator defines a pluggable LLM backend.
type Generator interface {
	Generate(ctx context.Context, req Request, consumer func(Chunk) error) error
}

// NewGenerator builds the backend named by cfg.Mode.
func NewGenerator(cfg config.SummaryConfig) (Generator, error) {
	switch cfg.Mode {
	case "ollama":
		return NewOllamaGenerator(cfg.Endpoint, cfg.Model), nil
	case "exec":
		return NewExecGenerator(cfg.Command)
	case "mock":
		return NewMockGenerator(), nil
	default:
		return nil, fmt.Errorf("unknown summary mode %q", cfg.Mode)
	}
}
