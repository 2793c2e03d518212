package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/loqalabs/loqa-scribe/internal/config"
)

const summarySystemPrompt = "You write one-sentence summaries of spoken journal entries. Reply in the language of the transcript with the summary only."

// Summarizer condenses a transcript into a short summary line.
type Summarizer struct {
	gen         Generator
	maxTokens   int
	temperature float64
	log         *slog.Logger
}

func NewSummarizer(cfg config.SummaryConfig, gen Generator, log *slog.Logger) *Summarizer {
	return &Summarizer{
		gen:         gen,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		log:         log.With(slog.String("component", "summarizer")),
	}
}

// Summarize streams the generator output and returns the accumulated text.
func (s *Summarizer) Summarize(ctx context.Context, runID, text, language string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	req := Request{
		RunID:       runID,
		Prompt:      buildPrompt(text, language),
		System:      summarySystemPrompt,
		Language:    language,
		MaxTokens:   s.maxTokens,
		Temperature: s.temperature,
	}

	var b strings.Builder
	var last Chunk
	err := s.gen.Generate(ctx, req, func(chunk Chunk) error {
		b.WriteString(chunk.Content)
		last = chunk
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}
	s.log.Debug("summary generated",
		slog.String("run_id", runID),
		slog.Int("prompt_tokens", last.PromptTokens),
		slog.Int("completion_tokens", last.CompletionTokens),
		slog.Duration("latency", last.Latency),
	)
	return strings.TrimSpace(b.String()), nil
}

func buildPrompt(text, language string) string {
	var b strings.Builder
	if language != "" {
		b.WriteString("Language: ")
		b.WriteString(language)
		b.WriteString("\n")
	}
	b.WriteString("Transcript:\n")
	b.WriteString(strings.TrimSpace(text))
	return b.String()
}
