package llm

import (
	"context"
	"strings"
)

type mockGenerator struct{}

func NewMockGenerator() Generator { return &mockGenerator{} }

// Generate echoes the first sentence of the prompt's transcript as the summary.
func (m *mockGenerator) Generate(ctx context.Context, req Request, consumer func(Chunk) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	content := strings.TrimSpace(req.Prompt)
	if i := strings.LastIndex(content, "\n"); i >= 0 {
		content = content[i+1:]
	}
	if i := strings.IndexAny(content, ".!?"); i >= 0 {
		content = content[:i+1]
	}
	return consumer(Chunk{
		RunID:   req.RunID,
		Content: content,
		Partial: false,
	})
}
