package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/mattn/go-shellwords"
)

// execGenerator runs a local summarizer command once per request:
//
//	<command> --system S [--language L] [--max-tokens N] < prompt
//
// stdout is either JSON {"content": ...} or the summary as plain text.
type execGenerator struct {
	cmd []string
	mu  sync.Mutex
}

type execSummary struct {
	Content          string `json:"content"`
	PromptTokens     int    `json:"prompt_tokens,omitempty"`
	CompletionTokens int    `json:"completion_tokens,omitempty"`
}

func NewExecGenerator(command string) (Generator, error) {
	args, err := shellwords.NewParser().Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse summary command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("summary command empty")
	}
	return &execGenerator{cmd: args}, nil
}

func (g *execGenerator) Generate(ctx context.Context, req Request, consumer func(Chunk) error) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	args := append([]string{}, g.cmd[1:]...)
	args = append(args, "--system", req.System)
	if req.Language != "" {
		args = append(args, "--language", req.Language)
	}
	if req.MaxTokens > 0 {
		args = append(args, "--max-tokens", strconv.Itoa(req.MaxTokens))
	}

	cmd := exec.CommandContext(ctx, g.cmd[0], args...)
	cmd.Stdin = strings.NewReader(req.Prompt)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("summary command failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	summary, err := parseExecSummary(stdout.Bytes())
	if err != nil {
		return err
	}
	return consumer(Chunk{
		RunID:            req.RunID,
		Content:          capWords(singleLine(summary.Content), req.MaxTokens),
		PromptTokens:     summary.PromptTokens,
		CompletionTokens: summary.CompletionTokens,
	})
}

func parseExecSummary(out []byte) (execSummary, error) {
	trimmed := bytes.TrimSpace(out)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return execSummary{Content: string(trimmed)}, nil
	}
	var s execSummary
	if err := json.Unmarshal(trimmed, &s); err != nil {
		return execSummary{}, fmt.Errorf("decode summary command output: %w", err)
	}
	return s, nil
}

// singleLine collapses all whitespace runs, line breaks included, to one space.
func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// capWords keeps at most n words of s; n <= 0 keeps everything.
func capWords(s string, n int) string {
	if n <= 0 {
		return s
	}
	words := strings.Fields(s)
	if len(words) <= n {
		return s
	}
	return strings.Join(words[:n], " ")
}
